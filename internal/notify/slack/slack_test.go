package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/gatekeeper/internal/incident"
)

func testIncident() *incident.Incident {
	return &incident.Incident{
		ID:              "01JN123",
		Signature:       "2fe69c0a9cbcd18fc2b421084f4c5dbb",
		Version:         1,
		Status:          incident.StatusOpen,
		Severity:        incident.SeverityUnqualified,
		Message:         "connection refused",
		ServiceName:     "payments",
		Environment:     "production",
		OccurrenceCount: 3,
		LastSeen:        time.Date(2026, 2, 26, 14, 23, 0, 0, time.UTC),
	}
}

func TestNotifyCreated_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	if err := n.NotifyCreated(context.Background(), testIncident()); err != nil {
		t.Fatalf("NotifyCreated: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}

	// header, divider, fields, divider, message, divider, context = 7 blocks
	if len(blocks) != 7 {
		t.Errorf("blocks count = %d, want 7", len(blocks))
	}

	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "New Incident") {
		t.Errorf("header text = %q, want to contain %q", headerText, "New Incident")
	}
	if !strings.Contains(headerText, "payments") {
		t.Errorf("header text = %q, want to contain service name", headerText)
	}
}

func TestNotifyCreated_RegressionHeader(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	inc := testIncident()
	inc.Version = 2
	inc.Status = incident.StatusRegression
	inc.RegressionOf = "01JN000"

	n := New(srv.URL)
	if err := n.NotifyCreated(context.Background(), inc); err != nil {
		t.Fatalf("NotifyCreated: %v", err)
	}

	blocks := got["blocks"].([]any)
	headerText := blocks[0].(map[string]any)["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "Regression (v2)") {
		t.Errorf("header text = %q, want to contain %q", headerText, "Regression (v2)")
	}

	fields := blocks[2].(map[string]any)["fields"].([]any)
	var foundChain bool
	for _, f := range fields {
		text := f.(map[string]any)["text"].(string)
		if strings.Contains(text, "Regression of:") && strings.Contains(text, "01JN000") {
			foundChain = true
		}
	}
	if !foundChain {
		t.Error("expected a field linking back to the regressed incident")
	}
}

func TestNotifyCreated_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("")
	if err := n.NotifyCreated(context.Background(), testIncident()); err != nil {
		t.Fatalf("NotifyCreated with empty URL should be no-op, got: %v", err)
	}
}

func TestNotifyCreated_WebhookError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no_service", http.StatusNotFound)
	}))
	defer srv.Close()

	n := New(srv.URL)
	err := n.NotifyCreated(context.Background(), testIncident())
	if err == nil {
		t.Fatal("expected error for non-2xx webhook response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want to contain status code", err)
	}
}

func TestNotifyCreated_TruncatesLongMessage(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	inc := testIncident()
	inc.Message = strings.Repeat("x", maxMessageLen*2)

	n := New(srv.URL)
	if err := n.NotifyCreated(context.Background(), inc); err != nil {
		t.Fatalf("NotifyCreated: %v", err)
	}

	blocks := got["blocks"].([]any)
	msgText := blocks[4].(map[string]any)["text"].(map[string]any)["text"].(string)
	if len(msgText) > maxMessageLen+100 {
		t.Errorf("message block length = %d, want truncated near %d", len(msgText), maxMessageLen)
	}
	if !strings.Contains(msgText, "...") {
		t.Error("truncated message should end with ellipsis")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("short", 100); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	got := truncate(strings.Repeat("a", 100), 10)
	if got != strings.Repeat("a", 7)+"..." {
		t.Errorf("truncate = %q, want 7 a's and ellipsis", got)
	}
}
