package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/obsidianstack/pitchwatch/pkg/types"
)

// Webhook posts alerts to a Slack, Teams or generic HTTP endpoint.
type Webhook struct {
	kind   string // slack | teams | http
	url    string
	client *http.Client
}

// NewWebhook returns a Webhook of the given kind.
func NewWebhook(kind, url string, client *http.Client) *Webhook {
	if client == nil {
		client = http.DefaultClient
	}
	return &Webhook{kind: kind, url: url, client: client}
}

// Notify implements Notifier.
func (w *Webhook) Notify(ctx context.Context, a types.Alert) error {
	var payload any
	switch w.kind {
	case "slack":
		payload = map[string]string{
			"text": fmt.Sprintf("*%s* %s", severityLabel(a.Severity), a.Message),
		}
	case "teams":
		payload = map[string]any{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": severityColor(a.Severity),
			"summary":    a.RuleID,
			"title":      fmt.Sprintf("pitchwatch: %s on fixture %d", a.RuleID, a.FixtureID),
			"text":       a.Message,
		}
	default:
		payload = map[string]any{"alert": a}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: %s webhook: encode: %w", w.kind, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: %s webhook: build request: %w", w.kind, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: %s webhook: %w", w.kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: %s webhook returned HTTP %d", w.kind, resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case types.SeverityCritical:
		return "[CRITICAL]"
	case types.SeverityWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case types.SeverityCritical:
		return "FF4F6A"
	case types.SeverityWarning:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
