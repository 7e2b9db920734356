package incident

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/gatekeeper/internal/event"
)

const (
	// createRetries bounds the re-read loop after a (signature, version)
	// create conflict. A conflict means another writer advanced the
	// signature, so one re-read normally settles it.
	createRetries = 3

	// enrichTimeout bounds the fire-and-forget enrichment call so slow
	// collaborators cannot accumulate goroutines.
	enrichTimeout = 60 * time.Second

	// notifyTimeout bounds best-effort notification delivery.
	notifyTimeout = 10 * time.Second
)

// Notifier delivers a best-effort notification when a new incident or a
// new regression version is created.
type Notifier interface {
	NotifyCreated(ctx context.Context, inc *Incident) error
}

// Service is the business boundary for incident ingestion: it owns
// normalization, signature hashing, lifecycle classification, and the
// async enrichment/notification dispatch.
type Service struct {
	store    Store
	enricher Enricher
	notifier Notifier // nil disables notifications
	logger   log.Logger
	metrics  *Metrics
	locks    *keyedMutex
}

// NewService creates a new ingest service.
func NewService(store Store, enricher Enricher, notifier Notifier, logger log.Logger, m *Metrics) *Service {
	if enricher == nil {
		enricher = NopEnricher{}
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		enricher: enricher,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		locks:    newKeyedMutex(),
	}
}

// aggregate is what the classifier acts on: one event, or a batch group
// collapsed to its representative payload and min/max window.
type aggregate struct {
	rep        *event.Event
	normalized string
	count      int
	first      time.Time
	last       time.Time
	batch      bool
}

// IngestOne processes a single error event: normalize, hash, classify
// against the latest stored version, and apply exactly one store mutation.
// Store errors propagate to the caller; the caller owns retry policy.
func (s *Service) IngestOne(ctx context.Context, ev *event.Event) (*IngestResult, error) {
	if err := ev.Validate(); err != nil {
		s.metrics.RejectedEvents.Inc()
		return nil, fmt.Errorf("invalid event: %w", err)
	}

	normalized := Normalize(ev.Message)
	sig := Signature(ev.ServiceName, normalized)
	ts := ev.OccurredAt()

	res, err := s.apply(ctx, sig, aggregate{
		rep:        ev,
		normalized: normalized,
		count:      1,
		first:      ts,
		last:       ts,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IngestsTotal.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}

// IngestBatch folds a burst of events into at most one store mutation per
// unique signature. Invalid events and failing signature groups are
// isolated; the return value is the count of events folded into some
// incident. The error is non-nil only when the context is cancelled
// mid-batch - a batch never fails wholesale on store errors.
func (s *Service) IngestBatch(ctx context.Context, evs []*event.Event) (int, error) {
	if len(evs) == 0 {
		return 0, nil
	}

	s.metrics.BatchEvents.Observe(float64(len(evs)))

	// Partition by signature, preserving first-arrival order of groups.
	// The representative payload is the last event of the group.
	groups := make(map[string]*aggregate)
	var order []string

	for _, ev := range evs {
		if err := ev.Validate(); err != nil {
			s.metrics.RejectedEvents.Inc()
			s.logger.Warn(ctx, "rejecting malformed batch event", "error", err)
			continue
		}

		normalized := Normalize(ev.Message)
		sig := Signature(ev.ServiceName, normalized)
		ts := ev.OccurredAt()

		g, ok := groups[sig]
		if !ok {
			g = &aggregate{normalized: normalized, first: ts, last: ts, batch: true}
			groups[sig] = g
			order = append(order, sig)
		}
		g.rep = ev
		g.count++
		if ts.Before(g.first) {
			g.first = ts
		}
		if ts.After(g.last) {
			g.last = ts
		}
	}

	s.metrics.BatchSignatures.Observe(float64(len(order)))

	processed := 0
	for _, sig := range order {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		g := groups[sig]
		res, err := s.apply(ctx, sig, *g)
		if err != nil {
			s.metrics.BatchFailedGroups.Inc()
			s.logger.Error(ctx, err, "batch signature group failed",
				"signature", sig,
				"events", g.count,
			)
			continue
		}

		s.metrics.IngestsTotal.WithLabelValues(string(res.Outcome)).Add(float64(g.count))
		processed += g.count
	}

	return processed, nil
}

// apply runs the read-classify-write sequence for one signature. The
// per-signature lock serializes writers inside this process; the store's
// (signature, version) uniqueness catches writers in other processes, and
// a conflict re-enters the loop with fresh state.
func (s *Service) apply(ctx context.Context, sig string, agg aggregate) (*IngestResult, error) {
	unlock := s.locks.Lock(sig)
	defer unlock()

	for attempt := 0; attempt <= createRetries; attempt++ {
		latest, ok, err := s.store.FindLatestBySignature(ctx, sig)
		if err != nil {
			return nil, fmt.Errorf("find latest for signature %s: %w", sig, err)
		}
		if !ok {
			latest = nil
		}

		switch Classify(latest) {
		case ClassSuppressed:
			return &IngestResult{Outcome: OutcomeIgnored, IncidentID: latest.ID, IsNew: false}, nil

		case ClassRecurrence:
			latest.OccurrenceCount += agg.count
			if agg.last.After(latest.LastSeen) {
				latest.LastSeen = agg.last
			}
			if agg.first.Before(latest.FirstSeen) {
				latest.FirstSeen = agg.first
			}
			if err := s.store.Update(ctx, latest); err != nil {
				return nil, fmt.Errorf("update incident %s: %w", latest.ID, err)
			}
			return &IngestResult{Outcome: OutcomeUpdated, IncidentID: latest.ID, IsNew: false}, nil

		case ClassNew, ClassRegression:
			inc := s.newIncident(sig, agg, latest)

			err := s.store.Create(ctx, inc)
			if errors.Is(err, ErrVersionConflict) {
				// Another writer created this version first; their state
				// is now the latest, so re-read and re-classify.
				s.metrics.VersionConflicts.Inc()
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("create incident version %d for signature %s: %w", inc.Version, sig, err)
			}

			kind := "new"
			if inc.Version > 1 {
				kind = "regression"
			}
			s.metrics.IncidentsCreated.WithLabelValues(kind).Inc()

			s.logger.Info(ctx, "incident created",
				"incident_id", inc.ID,
				"signature", sig,
				"version", inc.Version,
				"kind", kind,
				"occurrences", inc.OccurrenceCount,
				"service", inc.ServiceName,
			)

			s.dispatchEnrichment(ctx, inc)
			s.dispatchNotification(ctx, inc)

			return &IngestResult{Outcome: OutcomeAccepted, IncidentID: inc.ID, IsNew: true}, nil
		}
	}

	return nil, fmt.Errorf("signature %s: version conflict persisted after %d retries", sig, createRetries)
}

// newIncident builds version 1 for an unseen signature, or version N+1
// chained to latest when the prior version was resolved.
func (s *Service) newIncident(sig string, agg aggregate, latest *Incident) *Incident {
	rep := agg.rep

	md := make(map[string]any, len(rep.Metadata)+2)
	for k, v := range rep.Metadata {
		md[k] = v
	}
	md["normalizedSignature"] = agg.normalized

	inc := &Incident{
		ID:              ulid.Make().String(),
		Signature:       sig,
		Version:         1,
		Status:          StatusOpen,
		Severity:        SeverityUnqualified,
		Message:         rep.Message,
		StackTrace:      rep.StackTrace,
		ServiceName:     rep.ServiceName,
		Environment:     rep.Environment,
		OccurrenceCount: agg.count,
		FirstSeen:       agg.first,
		LastSeen:        agg.last,
		Metadata:        md,
		RunbookURL:      runbookURL(rep.Message),
	}

	if latest != nil {
		inc.Version = latest.Version + 1
		inc.Status = StatusRegression
		inc.RegressionOf = latest.ID
		if agg.batch {
			md["triggeredBy"] = "batch-regression"
		} else {
			md["triggeredBy"] = "regression"
		}
	}

	return inc
}

// dispatchEnrichment fires the analysis collaborator for a freshly created
// incident. Fully decoupled from the ingest path: the caller's cancellation
// does not propagate, failures are logged and swallowed, and the result is
// merged without touching status, counters or timestamps.
func (s *Service) dispatchEnrichment(ctx context.Context, inc *Incident) {
	go s.enrich(context.WithoutCancel(ctx), inc.ID, inc.Message, inc.StackTrace)
}

func (s *Service) enrich(ctx context.Context, id, message, stackTrace string) {
	ctx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	start := time.Now()
	analysis, err := s.enricher.Analyze(ctx, message, stackTrace)
	s.metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.EnrichmentsTotal.WithLabelValues("error").Inc()
		s.logger.Warn(ctx, "enrichment failed", "incident_id", id, "error", err)
		return
	}
	if analysis == nil {
		s.metrics.EnrichmentsTotal.WithLabelValues("skipped").Inc()
		return
	}

	if err := s.store.SetEnrichment(ctx, id, analysis); err != nil {
		s.metrics.EnrichmentsTotal.WithLabelValues("error").Inc()
		s.logger.Warn(ctx, "failed to persist enrichment", "incident_id", id, "error", err)
		return
	}

	s.metrics.EnrichmentsTotal.WithLabelValues("ok").Inc()
}

func (s *Service) dispatchNotification(ctx context.Context, inc *Incident) {
	if s.notifier == nil {
		return
	}

	cp := *inc
	go func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()

		if err := s.notifier.NotifyCreated(ctx, &cp); err != nil {
			s.metrics.NotifyFailures.Inc()
			s.logger.Warn(ctx, "notification failed", "incident_id", cp.ID, "error", err)
		}
	}(context.WithoutCancel(ctx))
}

// Get retrieves an incident by id.
func (s *Service) Get(ctx context.Context, id string) (*Incident, bool, error) {
	return s.store.Get(ctx, id)
}

// List returns all incidents, most recently seen first.
func (s *Service) List(ctx context.Context) ([]*Incident, error) {
	return s.store.List(ctx)
}

// UpdateStatus applies an operator status change.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*Incident, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("unknown status %q", status)
	}

	inc, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	inc.Status = status
	if err := s.store.Update(ctx, inc); err != nil {
		return nil, fmt.Errorf("update incident %s: %w", id, err)
	}

	s.logger.Info(ctx, "incident status changed", "incident_id", id, "status", status)
	return inc, nil
}

// DeleteAll wipes every incident. Exposed for the operator full-reset
// endpoint only.
func (s *Service) DeleteAll(ctx context.Context) error {
	return s.store.DeleteAll(ctx)
}
