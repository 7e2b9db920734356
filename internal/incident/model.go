package incident

import "time"

// Status tracks where an incident is in its lifecycle.
type Status string

const (
	// StatusOpen means newly created, nobody has looked at it yet.
	StatusOpen Status = "OPEN"

	// StatusAcknowledged means an operator has claimed it.
	StatusAcknowledged Status = "ACKNOWLEDGED"

	// StatusFixed means an operator marked the defect as fixed.
	StatusFixed Status = "FIXED"

	// StatusRegression marks a newly spawned version of a previously
	// resolved defect. It is a creation-time marker, not a terminal state.
	StatusRegression Status = "REGRESSION"

	// StatusDeployed means a fix has shipped but is not yet verified.
	StatusDeployed Status = "DEPLOYED"

	// StatusVerifiedFixed means the fix has been confirmed in production.
	StatusVerifiedFixed Status = "VERIFIED_FIXED"

	// StatusIgnored suppresses further tracking of the signature.
	StatusIgnored Status = "IGNORED"

	// StatusArchived removes the incident from active views.
	StatusArchived Status = "ARCHIVED"
)

// ValidStatus reports whether s is one of the known lifecycle states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusAcknowledged, StatusFixed, StatusRegression,
		StatusDeployed, StatusVerifiedFixed, StatusIgnored, StatusArchived:
		return true
	}
	return false
}

// IsResolved reports whether a status ends the active lifecycle of an
// incident version, making the signature eligible for a regression.
//
// DEPLOYED is deliberately NOT resolved: a deploy that has not been
// verified can still recur, and a recurrence should fold into the same
// version rather than spawn a new one. IGNORED is handled separately as
// suppression and never produces a regression either.
func IsResolved(s Status) bool {
	switch s {
	case StatusFixed, StatusVerifiedFixed, StatusArchived:
		return true
	}
	return false
}

// Severity is the operator-assigned classification. The dedup engine
// never sets or reads it beyond the default.
type Severity string

const (
	SeverityCritical    Severity = "CRITICAL"
	SeverityMedium      Severity = "MEDIUM"
	SeverityMinor       Severity = "MINOR"
	SeverityUnqualified Severity = "UNQUALIFIED"
)

// Incident is a tracked, deduplicated defect. Identity is (Signature,
// Version): version 1 is the original defect, each regression spawns
// version N+1 chained via RegressionOf.
type Incident struct {
	ID           string `json:"id"`
	Signature    string `json:"signature"`
	Version      int    `json:"version"`
	RegressionOf string `json:"regressionOf,omitempty"`

	Status   Status   `json:"status"`
	Severity Severity `json:"severity"`

	Message     string `json:"message"`
	StackTrace  string `json:"stackTrace,omitempty"`
	ServiceName string `json:"serviceName"`
	Environment string `json:"environment"`

	OccurrenceCount int       `json:"occurrenceCount"`
	FirstSeen       time.Time `json:"firstSeen"`
	LastSeen        time.Time `json:"lastSeen"`

	Metadata   map[string]any `json:"metadata,omitempty"`
	RunbookURL string         `json:"runbookUrl,omitempty"`

	// Filled asynchronously by the enrichment collaborator.
	AISummary      string `json:"aiSummary,omitempty"`
	AISuggestedFix string `json:"aiSuggestedFix,omitempty"`
	AILocation     string `json:"aiLocation,omitempty"`
}

// Outcome is the ingest result tag returned to the host service layer.
type Outcome string

const (
	// OutcomeAccepted covers both a brand new incident and a new
	// regression version.
	OutcomeAccepted Outcome = "ACCEPTED"

	// OutcomeUpdated means the event folded into an active incident.
	OutcomeUpdated Outcome = "UPDATED"

	// OutcomeIgnored means the signature is suppressed.
	OutcomeIgnored Outcome = "IGNORED"
)

// IngestResult is the outcome of ingesting a single event.
type IngestResult struct {
	Outcome    Outcome `json:"status"`
	IncidentID string  `json:"incidentId"`
	IsNew      bool    `json:"isNew"`
}
