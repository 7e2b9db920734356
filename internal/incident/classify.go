package incident

// Classification is the decision the engine makes for an incoming event
// (or batch group) given the latest stored incident for its signature.
type Classification string

const (
	// ClassNew: no incident exists for the signature; create version 1.
	ClassNew Classification = "new"

	// ClassRecurrence: the latest version is still active; fold the
	// event into it.
	ClassRecurrence Classification = "recurrence"

	// ClassRegression: the latest version was resolved; spawn version
	// N+1 chained to it.
	ClassRegression Classification = "regression"

	// ClassSuppressed: the signature is ignored; touch nothing.
	ClassSuppressed Classification = "suppressed"
)

// Classify applies the lifecycle decision table. latest is the highest
// version stored for the signature, or nil when the signature has never
// been seen. The same table serves the single-event and batch paths.
func Classify(latest *Incident) Classification {
	switch {
	case latest == nil:
		return ClassNew
	case latest.Status == StatusIgnored:
		return ClassSuppressed
	case IsResolved(latest.Status):
		return ClassRegression
	default:
		return ClassRecurrence
	}
}
