package incidentapi

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/gatekeeper/internal/event"
)

// maxBatchEvents caps a single batch request. Pollers that accumulate
// more than this should split their flushes.
const maxBatchEvents = 5000

func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	var ev event.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if err := ev.Validate(); err != nil {
		a.logger.Warn(r.Context(), "rejecting malformed event", "error", err)
		http.Error(w, `{"error":"missing required fields"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("gatekeeper.event.service", ev.ServiceName))

	res, err := a.svc.IngestOne(r.Context(), &ev)
	if err != nil {
		a.logger.Error(r.Context(), err, "ingest failed", "service", ev.ServiceName)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	span.SetAttributes(
		attribute.String("gatekeeper.ingest.outcome", string(res.Outcome)),
		attribute.String("gatekeeper.incident.id", res.IncidentID),
	)

	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var evs []*event.Event
	if err := json.NewDecoder(r.Body).Decode(&evs); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if len(evs) > maxBatchEvents {
		http.Error(w, `{"error":"batch too large"}`, http.StatusRequestEntityTooLarge)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int("gatekeeper.batch.events", len(evs)))

	processed, err := a.svc.IngestBatch(r.Context(), evs)
	if err != nil {
		// Only context cancellation aborts a batch; report what was done.
		a.logger.Warn(r.Context(), "batch aborted", "processed", processed, "error", err)
	}

	span.SetAttributes(attribute.Int("gatekeeper.batch.processed", processed))

	writeJSON(w, http.StatusOK, map[string]any{
		"processedCount": processed,
	})
}
