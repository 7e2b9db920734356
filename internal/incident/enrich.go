package incident

import "context"

// Analysis is the best-effort AI assessment attached to an incident after
// creation.
type Analysis struct {
	Summary      string `json:"summary"`
	SuggestedFix string `json:"fix"`
	Location     string `json:"location"`
}

// Enricher is the asynchronous analysis collaborator. A nil *Analysis with
// a nil error means the collaborator has nothing to contribute (degraded or
// mock mode); the engine merges nothing and moves on.
type Enricher interface {
	Analyze(ctx context.Context, message, stackTrace string) (*Analysis, error)
}

// NopEnricher is the null collaborator used when no enrichment backend is
// configured. It replaces "is enrichment enabled" checks in the engine.
type NopEnricher struct{}

// Analyze always returns nothing.
func (NopEnricher) Analyze(context.Context, string, string) (*Analysis, error) {
	return nil, nil
}
