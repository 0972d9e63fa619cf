// Package notify delivers run milestone notifications.
//
// Delivery is best-effort: a failed notification is logged and never fails
// the run.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sprintfoundry/sprintfoundry/internal/domain"
)

// webhookTimeout bounds one webhook delivery attempt.
const webhookTimeout = 5 * time.Second

// Message is one run milestone notification.
type Message struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`

	// TicketID identifies the ticket the run works on.
	TicketID string `json:"ticket_id"`

	// Status is the run's terminal or milestone status.
	Status string `json:"status"`

	// PRURL is the pull request URL for completed runs.
	PRURL string `json:"pr_url,omitempty"`

	// Detail carries a human-readable summary (error text for failed runs).
	Detail string `json:"detail,omitempty"`
}

// Notifier delivers run milestone messages.
type Notifier interface {
	// Notify delivers one message. Implementations must not block beyond
	// their own timeout and must not be required to succeed.
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the structured log. It is the default
// sink when no webhook is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier returns a log-backed notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

// Notify logs the message at info level.
func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info().
		Str("run_id", msg.RunID).
		Str("ticket_id", msg.TicketID).
		Str("status", msg.Status).
		Str("pr_url", msg.PRURL).
		Msg("run notification")
	return nil
}

// WebhookNotifier POSTs JSON messages to a configured URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier returns a webhook-backed notifier.
func NewWebhookNotifier(url string, logger zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Notify POSTs the message as JSON. Non-2xx responses are errors; the caller
// decides whether to ignore them (the orchestrator does).
func (n *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected: %s", resp.Status)
	}
	return nil
}

// ForRun builds a milestone message from a run.
func ForRun(run *domain.TaskRun) Message {
	msg := Message{
		RunID:  run.RunID,
		Status: string(run.Status),
		PRURL:  run.PRURL,
		Detail: run.Error,
	}
	if run.Ticket != nil {
		msg.TicketID = run.Ticket.ID
	}
	return msg
}
