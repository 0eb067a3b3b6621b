// Package notify delivers job failure alerts.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"energyiq/internal/scheduler"
)

// WebhookNotifier posts failed runs to a chat-style webhook.
type WebhookNotifier struct {
	url    string
	source string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookNotifier constructs a notifier. source names the emitting instance in the message.
func NewWebhookNotifier(url, source string) (*WebhookNotifier, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("webhook notifier: empty url")
	}
	return &WebhookNotifier{
		url:    url,
		source: source,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// NotifyFailure implements scheduler.Notifier.
func (n *WebhookNotifier) NotifyFailure(ctx context.Context, run scheduler.Run) error {
	body, err := json.Marshal(webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: formatRun(n.source, run)},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notifier: status %d", resp.StatusCode)
	}
	return nil
}

func formatRun(source string, run scheduler.Run) string {
	var b strings.Builder
	b.WriteString("[Energy Job Alert]\n")
	if source != "" {
		fmt.Fprintf(&b, "Source: %s\n", source)
	}
	fmt.Fprintf(&b, "Job: %s\n", run.Job)
	fmt.Fprintf(&b, "Status: %s\n", run.Status)
	fmt.Fprintf(&b, "Trigger: %s\n", run.Trigger)
	fmt.Fprintf(&b, "Run: %s\n", run.ID)
	fmt.Fprintf(&b, "Started: %s\n", run.StartedAt.Format(time.RFC3339))
	if run.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", run.Error)
	}
	return strings.TrimSpace(b.String())
}
