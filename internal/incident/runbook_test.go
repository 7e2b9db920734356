package incident

import "testing"

func TestRunbookURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		message string
		want    string
	}{
		{"Timeout waiting for upstream", "https://wiki.company.com/runbooks/network-timeout"},
		{"connection refused", "https://wiki.company.com/runbooks/network-timeout"},
		{"database is locked", "https://wiki.company.com/runbooks/db-connectivity"},
		{"SQL syntax error near SELECT", "https://wiki.company.com/runbooks/db-connectivity"},
		{"OutOfMemoryError thrown", "https://wiki.company.com/runbooks/oom-killer"},
		{"null pointer dereference", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := runbookURL(tt.message); got != tt.want {
			t.Errorf("runbookURL(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}
