package incident

import "regexp"

// The replacement chain strips volatile tokens so that two occurrences of
// the same defect normalize to the same template. Order matters where
// patterns overlap: ISO datetimes before bare dates, UUIDs before generic
// hex. The placeholder strings are an external contract - they end up in
// stored metadata, so changing them silently would orphan existing
// signatures.
var normalizers = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`), "<UUID>"},
	{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "<EMAIL>"},
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z?`), "<DATE>"},
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}`), "<DATE>"},
	{regexp.MustCompile(`0x[0-9a-fA-F]+`), "<HEX>"},
	// Parser position markers, e.g. "Line 1, position 27766".
	{regexp.MustCompile(`(?i)Line \d+, position \d+`), "Line <L>, position <P>"},
	// Stack trace line markers, e.g. "line 4340" or ":line 42".
	{regexp.MustCompile(`(?i)line \d+`), "line <L>"},
	// SQL deadlock victim ids, e.g. "(Process ID 56)".
	{regexp.MustCompile(`(?i)\(Process ID \d+\)`), "(Process ID <PID>)"},
	// Absolute paths collapse to the trailing file name.
	{regexp.MustCompile(`[a-zA-Z]:\\[\\\w.\-]+\\([\w.\-]+)`), "$1"},
	{regexp.MustCompile(`(?:/[^/]+)+/([\w.\-]+)`), "$1"},
	// Quoted literals carry variable data; keep the quoting as a
	// structural marker.
	{regexp.MustCompile(`'[^']*'`), "'<VAR>'"},
	{regexp.MustCompile(`"[^"]*"`), `"<VAR>"`},
}

// Normalize collapses the volatile parts of a raw error message onto
// stable placeholders. It is pure, deterministic and idempotent.
func Normalize(raw string) string {
	msg := raw
	for _, n := range normalizers {
		msg = n.re.ReplaceAllString(msg, n.repl)
	}
	return msg
}
