package incident

import "regexp"

// Coarse keyword mapping from error text to operational runbooks. Matching
// on the raw message is intentional: normalization placeholders never
// contain these keywords.
var runbookPatterns = []struct {
	re  *regexp.Regexp
	url string
}{
	{regexp.MustCompile(`(?i)timeout|connection`), "https://wiki.company.com/runbooks/network-timeout"},
	{regexp.MustCompile(`(?i)database|sql`), "https://wiki.company.com/runbooks/db-connectivity"},
	{regexp.MustCompile(`(?i)memory|outofmemory`), "https://wiki.company.com/runbooks/oom-killer"},
}

// runbookURL returns the runbook link for a message, or "" when no
// heuristic matches.
func runbookURL(message string) string {
	for _, p := range runbookPatterns {
		if p.re.MatchString(message) {
			return p.url
		}
	}
	return ""
}
