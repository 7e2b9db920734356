// Package authmw provides HTTP middleware for ingest API key authentication.
package authmw

import (
	"crypto/subtle"
	"net/http"
)

// HeaderName is the header ingest clients send their key in.
const HeaderName = "X-Api-Key"

// APIKey returns middleware that validates the X-Api-Key header against
// the expected value. Comparison uses constant-time equality to prevent
// timing side-channel attacks.
func APIKey(key string) func(http.Handler) http.Handler {
	expected := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(HeaderName))

			if len(got) == 0 {
				http.Error(w, `{"error":"missing api key"}`, http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare(got, expected) != 1 {
				http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
