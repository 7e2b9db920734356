package incidentapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/gatekeeper/internal/event"
	"github.com/linnemanlabs/gatekeeper/internal/incident"
)

// stubService implements IngestService with canned responses.
type stubService struct {
	ingestRes   *incident.IngestResult
	ingestErr   error
	batchCount  int
	batchErr    error
	batchGot    []*event.Event
	incidents   map[string]*incident.Incident
	listErr     error
	updateErr   error
	deleteErr   error
	deleteCalls int
}

func newStubService() *stubService {
	return &stubService{
		ingestRes: &incident.IngestResult{Outcome: incident.OutcomeAccepted, IncidentID: "inc-1", IsNew: true},
		incidents: make(map[string]*incident.Incident),
	}
}

func (s *stubService) IngestOne(_ context.Context, _ *event.Event) (*incident.IngestResult, error) {
	return s.ingestRes, s.ingestErr
}

func (s *stubService) IngestBatch(_ context.Context, evs []*event.Event) (int, error) {
	s.batchGot = evs
	return s.batchCount, s.batchErr
}

func (s *stubService) Get(_ context.Context, id string) (*incident.Incident, bool, error) {
	if s.listErr != nil {
		return nil, false, s.listErr
	}
	inc, ok := s.incidents[id]
	return inc, ok, nil
}

func (s *stubService) List(context.Context) ([]*incident.Incident, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]*incident.Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		out = append(out, inc)
	}
	return out, nil
}

func (s *stubService) UpdateStatus(_ context.Context, id string, status incident.Status) (*incident.Incident, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	inc, ok := s.incidents[id]
	if !ok {
		return nil, incident.ErrNotFound
	}
	inc.Status = status
	return inc, nil
}

func (s *stubService) DeleteAll(context.Context) error {
	s.deleteCalls++
	return s.deleteErr
}

// passKey is a no-op stand-in for the API key middleware.
func passKey(next http.Handler) http.Handler { return next }

func newTestRouter(t *testing.T, svc IngestService) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	New(nil, svc).RegisterRoutes(r, passKey)
	return r
}

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, newStubService())
	if api == nil {
		t.Fatal("New returned nil API")
	}
	if api.logger == nil {
		t.Fatal("New left logger nil; expected Nop logger")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil) did not panic; expected panic for nil service")
		}
	}()
	New(log.Nop(), nil)
}

func TestIngest_OK(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, newStubService())

	body := `{"message":"connection refused","serviceName":"payments","environment":"production"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var res incident.IngestResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Outcome != incident.OutcomeAccepted {
		t.Errorf("outcome = %q, want %q", res.Outcome, incident.OutcomeAccepted)
	}
	if res.IncidentID != "inc-1" {
		t.Errorf("incidentId = %q, want %q", res.IncidentID, "inc-1")
	}
}

func TestIngest_MalformedJSON(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, newStubService())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestIngest_MissingFields(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, newStubService())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(`{"message":"boom"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestIngest_ServiceError(t *testing.T) {
	t.Parallel()

	svc := newStubService()
	svc.ingestErr = errors.New("store down")
	r := newTestRouter(t, svc)

	body := `{"message":"boom","serviceName":"api","environment":"production"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestIngestBatch_OK(t *testing.T) {
	t.Parallel()

	svc := newStubService()
	svc.batchCount = 3
	r := newTestRouter(t, svc)

	body := `[
		{"message":"boom","serviceName":"api","environment":"production"},
		{"message":"boom","serviceName":"api","environment":"production"},
		{"message":"crash","serviceName":"worker","environment":"production"}
	]`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var res struct {
		ProcessedCount int `json:"processedCount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.ProcessedCount != 3 {
		t.Errorf("processedCount = %d, want 3", res.ProcessedCount)
	}
	if len(svc.batchGot) != 3 {
		t.Errorf("service received %d events, want 3", len(svc.batchGot))
	}
}

func TestIngestBatch_TooLarge(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, newStubService())

	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i <= maxBatchEvents; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"message":"x","serviceName":"s","environment":"p"}`)
	}
	sb.WriteString("]")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/batch", strings.NewReader(sb.String()))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestIngestBatch_CancelledStillReportsProcessed(t *testing.T) {
	t.Parallel()

	svc := newStubService()
	svc.batchCount = 2
	svc.batchErr = context.Canceled
	r := newTestRouter(t, svc)

	body := `[{"message":"boom","serviceName":"api","environment":"production"}]`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var res struct {
		ProcessedCount int `json:"processedCount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.ProcessedCount != 2 {
		t.Errorf("processedCount = %d, want 2", res.ProcessedCount)
	}
}

func TestGetIncident(t *testing.T) {
	t.Parallel()

	svc := newStubService()
	svc.incidents["inc-1"] = &incident.Incident{ID: "inc-1", Signature: "sig", Version: 1, Status: incident.StatusOpen}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents/inc-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var inc incident.Incident
	if err := json.Unmarshal(rec.Body.Bytes(), &inc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if inc.ID != "inc-1" {
		t.Errorf("id = %q, want %q", inc.ID, "inc-1")
	}
}

func TestGetIncident_NotFound(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, newStubService())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestListIncidents_EmptyIsArray(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, newStubService())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want empty JSON array", got)
	}
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()

	svc := newStubService()
	svc.incidents["inc-1"] = &incident.Incident{ID: "inc-1", Status: incident.StatusOpen}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/incidents/inc-1/status",
		strings.NewReader(`{"status":"ACKNOWLEDGED"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var inc incident.Incident
	if err := json.Unmarshal(rec.Body.Bytes(), &inc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if inc.Status != incident.StatusAcknowledged {
		t.Errorf("status = %q, want %q", inc.Status, incident.StatusAcknowledged)
	}
}

func TestUpdateStatus_Unknown(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, newStubService())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/incidents/inc-1/status",
		strings.NewReader(`{"status":"BOGUS"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, newStubService())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/incidents/nope/status",
		strings.NewReader(`{"status":"FIXED"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDeleteAll(t *testing.T) {
	t.Parallel()

	svc := newStubService()
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/incidents", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if svc.deleteCalls != 1 {
		t.Errorf("deleteCalls = %d, want 1", svc.deleteCalls)
	}
}

func TestKeyedMiddlewareGuardsMutations(t *testing.T) {
	t.Parallel()

	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"missing api key"}`, http.StatusUnauthorized)
		})
	}
	svc := newStubService()
	svc.incidents["inc-1"] = &incident.Incident{ID: "inc-1"}
	r := chi.NewRouter()
	New(nil, svc).RegisterRoutes(r, deny)

	guarded := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/ingest"},
		{http.MethodPost, "/api/v1/ingest/batch"},
		{http.MethodPost, "/api/v1/incidents/inc-1/status"},
		{http.MethodDelete, "/api/v1/incidents"},
	}
	for _, g := range guarded {
		req := httptest.NewRequest(g.method, g.path, strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want %d", g.method, g.path, rec.Code, http.StatusUnauthorized)
		}
	}

	// Reads stay open.
	open := []string{"/api/v1/incidents", "/api/v1/incidents/inc-1"}
	for _, path := range open {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}

func TestIngest_RecordsSpanAttributes(t *testing.T) {
	// Not parallel: swaps the global OTel tracer provider.

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	r := newTestRouter(t, newStubService())

	tracer := tp.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "http.server")

	body := `{"message":"connection refused","serviceName":"payments","environment":"production"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(body)).WithContext(ctx)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	span.End()

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range spans[0].Attributes {
		attrs[kv.Key] = kv.Value
	}
	if got := attrs["gatekeeper.event.service"].AsString(); got != "payments" {
		t.Errorf("gatekeeper.event.service = %q, want %q", got, "payments")
	}
	if got := attrs["gatekeeper.ingest.outcome"].AsString(); got != "ACCEPTED" {
		t.Errorf("gatekeeper.ingest.outcome = %q, want %q", got, "ACCEPTED")
	}
	if got := attrs["gatekeeper.incident.id"].AsString(); got != "inc-1" {
		t.Errorf("gatekeeper.incident.id = %q, want %q", got, "inc-1")
	}
}
