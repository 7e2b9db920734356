// Package slack announces new incidents and regressions via incoming
// webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/gatekeeper/internal/incident"
)

const (
	maxMessageLen = 3000
	httpTimeout   = 10 * time.Second
)

// Notifier posts incident notifications to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, NotifyCreated
// is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// NotifyCreated posts a newly created incident or regression version to
// the configured webhook. Implements incident.Notifier.
func (n *Notifier) NotifyCreated(ctx context.Context, inc *incident.Incident) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(inc)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(inc *incident.Incident) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(inc),
			{"type": "divider"},
			fieldsBlock(inc),
			{"type": "divider"},
			messageBlock(inc),
			{"type": "divider"},
			contextBlock(inc),
		},
	}
}

func headerBlock(inc *incident.Incident) map[string]any {
	title := "New Incident"
	emoji := "\U0001f6a8" // rotating light
	if inc.Status == incident.StatusRegression {
		title = fmt.Sprintf("Regression (v%d)", inc.Version)
		emoji = "\U0001f501" // repeat arrows
	}
	text := fmt.Sprintf("%s %s: %s", emoji, title, inc.ServiceName)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(inc *incident.Incident) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Service:* %s", inc.ServiceName),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Environment:* %s", inc.Environment),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Status:* %s", inc.Status),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Occurrences:* %d", inc.OccurrenceCount),
		},
	}

	if inc.RunbookURL != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Runbook:* <%s|link>", inc.RunbookURL),
		})
	}
	if inc.RegressionOf != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Regression of:* %s", inc.RegressionOf),
		})
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func messageBlock(inc *incident.Incident) map[string]any {
	text := truncate(strings.TrimSpace(inc.Message), maxMessageLen)
	if text == "" {
		text = "_No message captured._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Message*\n\n```%s```", text),
		},
	}
}

func contextBlock(inc *incident.Incident) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("gatekeeper • incident %s • %s", inc.ID, inc.LastSeen.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
