package incident

import (
	"context"
	"errors"
)

// ErrVersionConflict is returned by Store.Create when another writer
// already created an incident with the same (signature, version). The
// engine treats it as "someone advanced state first": re-read, re-classify,
// retry - never surface it as an ingest failure.
var ErrVersionConflict = errors.New("incident version conflict")

// ErrNotFound is returned for operations on an id that does not exist.
var ErrNotFound = errors.New("incident not found")

// Store is the persistence interface for incidents. Implementations must
// enforce uniqueness on (signature, version) and report violations as
// ErrVersionConflict.
type Store interface {
	// FindLatestBySignature returns the highest-version incident for a
	// signature, or ok=false when the signature has never been seen.
	FindLatestBySignature(ctx context.Context, signature string) (*Incident, bool, error)

	// Get retrieves an incident by id.
	Get(ctx context.Context, id string) (*Incident, bool, error)

	// Create inserts a new incident version.
	Create(ctx context.Context, inc *Incident) error

	// Update rewrites a mutable incident in place.
	Update(ctx context.Context, inc *Incident) error

	// SetEnrichment merges AI analysis fields into an incident without
	// touching status, counters or timestamps.
	SetEnrichment(ctx context.Context, id string, a *Analysis) error

	// List returns all incidents ordered by last seen, most recent first.
	List(ctx context.Context) ([]*Incident, error)

	// DeleteAll wipes every incident. Operator-initiated full reset only.
	DeleteAll(ctx context.Context) error
}
