// Package webhook implements a generic JSON webhook notifier.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/notification/types"
)

// Settings contains webhook-specific configuration
type Settings struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Payload is the JSON body sent for every event.
type Payload struct {
	EventType    string    `json:"eventType"`
	InstanceName string    `json:"instanceName"`
	Timestamp    time.Time `json:"timestamp"`
	Message      string    `json:"message,omitempty"`

	Dispatch *types.DispatchEvent `json:"dispatch,omitempty"`
	Approval *types.ApprovalEvent `json:"approval,omitempty"`
	Health   *types.HealthEvent   `json:"health,omitempty"`
}

// Notifier sends notifications to a custom webhook endpoint
type Notifier struct {
	name       string
	settings   Settings
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a new webhook notifier
func New(name string, settings Settings, httpClient *http.Client, logger zerolog.Logger) *Notifier {
	if settings.Method == "" {
		settings.Method = "POST"
	}
	return &Notifier{
		name:       name,
		settings:   settings,
		httpClient: httpClient,
		logger:     logger.With().Str("notifier", "webhook").Str("name", name).Logger(),
	}
}

func (n *Notifier) Type() types.NotifierType {
	return types.NotifierWebhook
}

func (n *Notifier) Name() string {
	return n.name
}

func (n *Notifier) Test(ctx context.Context) error {
	return n.send(ctx, Payload{
		EventType: "test",
		Message:   "Test notification from Helmarr",
	})
}

func (n *Notifier) OnDispatch(ctx context.Context, event types.DispatchEvent) error {
	return n.send(ctx, Payload{EventType: string(types.EventDispatch), Dispatch: &event})
}

func (n *Notifier) OnDispatchFailed(ctx context.Context, event types.DispatchEvent) error {
	return n.send(ctx, Payload{EventType: string(types.EventDispatchFailed), Dispatch: &event})
}

func (n *Notifier) OnApprovalCreated(ctx context.Context, event types.ApprovalEvent) error {
	return n.send(ctx, Payload{EventType: string(types.EventApprovalCreated), Approval: &event})
}

func (n *Notifier) OnApprovalResolved(ctx context.Context, event types.ApprovalEvent) error {
	return n.send(ctx, Payload{EventType: string(types.EventApprovalResolved), Approval: &event})
}

func (n *Notifier) OnHealthIssue(ctx context.Context, event types.HealthEvent) error {
	return n.send(ctx, Payload{EventType: string(types.EventHealthIssue), Health: &event})
}

func (n *Notifier) OnHealthRestored(ctx context.Context, event types.HealthEvent) error {
	return n.send(ctx, Payload{EventType: string(types.EventHealthRestored), Health: &event})
}

func (n *Notifier) send(ctx context.Context, payload Payload) error {
	payload.InstanceName = "Helmarr"
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, n.settings.Method, n.settings.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.settings.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	n.logger.Debug().Str("eventType", payload.EventType).Msg("webhook notification sent")
	return nil
}
