// Package event defines the raw error event consumed by the ingest engine.
package event

import (
	"errors"
	"time"
)

// Event is a single application error occurrence as reported by a client
// or a polling adapter. It is the only input to the dedup engine.
type Event struct {
	Message     string         `json:"message"`
	StackTrace  string         `json:"stackTrace,omitempty"`
	ServiceName string         `json:"serviceName"`
	Environment string         `json:"environment"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp,omitempty"`
}

// Validate checks the required fields. Events failing validation are
// rejected individually and never abort a batch.
func (e *Event) Validate() error {
	var errs []error
	if e.Message == "" {
		errs = append(errs, errors.New("message is required"))
	}
	if e.ServiceName == "" {
		errs = append(errs, errors.New("serviceName is required"))
	}
	if e.Environment == "" {
		errs = append(errs, errors.New("environment is required"))
	}
	return errors.Join(errs...)
}

// OccurredAt returns the event timestamp, defaulting to now when the
// reporter did not supply one.
func (e *Event) OccurredAt() time.Time {
	if e.Timestamp.IsZero() {
		return time.Now()
	}
	return e.Timestamp
}
