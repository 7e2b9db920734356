package incidentapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/gatekeeper/internal/event"
	"github.com/linnemanlabs/gatekeeper/internal/incident"
)

// IngestService defines the business operations incidentapi needs.
type IngestService interface {
	IngestOne(ctx context.Context, ev *event.Event) (*incident.IngestResult, error)
	IngestBatch(ctx context.Context, evs []*event.Event) (int, error)
	Get(ctx context.Context, id string) (*incident.Incident, bool, error)
	List(ctx context.Context) ([]*incident.Incident, error)
	UpdateStatus(ctx context.Context, id string, status incident.Status) (*incident.Incident, error)
	DeleteAll(ctx context.Context) error
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    IngestService
}

// New creates a new API handler.
func New(logger log.Logger, svc IngestService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("ingest service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router. The keyed
// middleware guards every state-changing endpoint; reads are open.
func (a *API) RegisterRoutes(r chi.Router, keyed func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(keyed)
			r.Post("/ingest", a.handleIngest)
			r.Post("/ingest/batch", a.handleIngestBatch)
			r.Post("/incidents/{id}/status", a.handleUpdateStatus)
			r.Delete("/incidents", a.handleDeleteAll)
		})
		r.Get("/incidents", a.handleListIncidents)
		r.Get("/incidents/{id}", a.handleGetIncident)
	})
}

func (a *API) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("gatekeeper.incident.id", id))

	inc, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get incident", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	span.SetAttributes(attribute.String("gatekeeper.incident.status", string(inc.Status)))

	writeJSON(w, http.StatusOK, inc)
}

func (a *API) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := a.svc.List(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list incidents")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if incidents == nil {
		incidents = []*incident.Incident{}
	}

	writeJSON(w, http.StatusOK, incidents)
}

func (a *API) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Status incident.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if !incident.ValidStatus(body.Status) {
		http.Error(w, `{"error":"unknown status"}`, http.StatusBadRequest)
		return
	}

	inc, err := a.svc.UpdateStatus(r.Context(), id, body.Status)
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		a.logger.Error(r.Context(), err, "failed to update status", "id", id, "status", body.Status)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, inc)
}

func (a *API) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteAll(r.Context()); err != nil {
		a.logger.Error(r.Context(), err, "failed to delete incidents")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	a.logger.Info(r.Context(), "all incidents deleted by operator")
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}
