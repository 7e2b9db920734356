package incident

import (
	"crypto/md5" //nolint:gosec // G401: dedup key, not a security boundary; must stay bit-exact with existing stored signatures
	"encoding/hex"
)

// Signature computes the dedup key for a service and normalized message.
// The digest must be stable across restarts and across implementations
// sharing a datastore, so the algorithm is fixed: a collision here would
// silently merge two distinct defects, but nothing security-relevant
// depends on it.
func Signature(serviceName, normalizedMessage string) string {
	sum := md5.Sum([]byte(serviceName + ":" + normalizedMessage)) //nolint:gosec // G401: see above
	return hex.EncodeToString(sum[:])
}
