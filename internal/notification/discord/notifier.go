// Package discord implements a Discord webhook notifier.
package discord

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

// Discord embed colors
const (
	ColorSuccess = 0x2ECC71 // Green
	ColorWarning = 0xF1C40F // Yellow
	ColorDanger  = 0xE74C3C // Red
	ColorInfo    = 0x3498DB // Blue
)

// Settings contains Discord-specific configuration
type Settings struct {
	WebhookURL string `json:"webhookUrl"`
	Username   string `json:"username,omitempty"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
}

// Notifier sends notifications to Discord via webhook
type Notifier struct {
	name       string
	settings   Settings
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a new Discord notifier
func New(name string, settings Settings, httpClient *http.Client, logger zerolog.Logger) *Notifier {
	return &Notifier{
		name:       name,
		settings:   settings,
		httpClient: httpClient,
		logger:     logger.With().Str("notifier", "discord").Str("name", name).Logger(),
	}
}

func (n *Notifier) Type() types.NotifierType {
	return types.NotifierDiscord
}

func (n *Notifier) Name() string {
	return n.name
}

type webhookMessage struct {
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Embeds    []embed `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp"`
	Fields      []embedField `json:"fields,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func (n *Notifier) Test(ctx context.Context) error {
	return n.send(ctx, embed{
		Title:       "Test Notification",
		Description: "Helmarr can reach this Discord webhook.",
		Color:       ColorInfo,
	})
}

func (n *Notifier) OnDispatch(ctx context.Context, event types.DispatchEvent) error {
	return n.send(ctx, embed{
		Title:       "Item Dispatched",
		Description: fmt.Sprintf("**%s** (%s) sent to downstream managers", event.Title, event.ContentType),
		Color:       ColorSuccess,
		Fields:      dispatchFields(event),
	})
}

func (n *Notifier) OnDispatchFailed(ctx context.Context, event types.DispatchEvent) error {
	return n.send(ctx, embed{
		Title:       "Dispatch Failed",
		Description: fmt.Sprintf("**%s** (%s) could not be dispatched: %s", event.Title, event.ContentType, event.Error),
		Color:       ColorDanger,
		Fields:      dispatchFields(event),
	})
}

func (n *Notifier) OnApprovalCreated(ctx context.Context, event types.ApprovalEvent) error {
	return n.send(ctx, embed{
		Title:       "Approval Required",
		Description: fmt.Sprintf("**%s** (%s) is waiting for approval", event.Title, event.ContentType),
		Color:       ColorWarning,
		Fields: []embedField{
			{Name: "Reason", Value: event.TriggeredBy, Inline: true},
			{Name: "Request", Value: event.RequestID, Inline: true},
		},
	})
}

func (n *Notifier) OnApprovalResolved(ctx context.Context, event types.ApprovalEvent) error {
	color := ColorSuccess
	if event.Status == "rejected" || event.Status == "expired" {
		color = ColorDanger
	}
	return n.send(ctx, embed{
		Title:       "Approval Resolved",
		Description: fmt.Sprintf("**%s** is now %s", event.Title, event.Status),
		Color:       color,
	})
}

func (n *Notifier) OnHealthIssue(ctx context.Context, event types.HealthEvent) error {
	return n.send(ctx, embed{
		Title:       "Health Issue",
		Description: fmt.Sprintf("%s: %s", event.Source, event.Message),
		Color:       ColorDanger,
	})
}

func (n *Notifier) OnHealthRestored(ctx context.Context, event types.HealthEvent) error {
	return n.send(ctx, embed{
		Title:       "Health Restored",
		Description: event.Source,
		Color:       ColorSuccess,
	})
}

func dispatchFields(event types.DispatchEvent) []embedField {
	var fields []embedField
	if event.UserName != "" {
		fields = append(fields, embedField{Name: "User", Value: event.UserName, Inline: true})
	}
	for _, inst := range event.Instances {
		fields = append(fields, embedField{Name: "Instance", Value: inst, Inline: true})
	}
	return fields
}

func (n *Notifier) send(ctx context.Context, e embed) error {
	e.Timestamp = time.Now().UTC().Format(time.RFC3339)

	body, err := json.Marshal(webhookMessage{
		Username:  n.settings.Username,
		AvatarURL: n.settings.AvatarURL,
		Embeds:    []embed{e},
	})
	if err != nil {
		return fmt.Errorf("failed to encode discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.settings.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord returned status %d", resp.StatusCode)
	}

	n.logger.Debug().Str("title", e.Title).Msg("discord notification sent")
	return nil
}
