package notification

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/notification/discord"
	"github.com/helmarr/helmarr/internal/notification/webhook"
)

const notifierTimeout = 15 * time.Second

// buildNotifier constructs a notifier from a stored configuration row.
func buildNotifier(notifType NotifierType, name string, settings json.RawMessage, logger zerolog.Logger) (Notifier, error) {
	httpClient := &http.Client{Timeout: notifierTimeout}

	switch notifType {
	case NotifierDiscord:
		var s discord.Settings
		if err := json.Unmarshal(settings, &s); err != nil {
			return nil, fmt.Errorf("invalid discord settings: %w", err)
		}
		if s.WebhookURL == "" {
			return nil, fmt.Errorf("discord notifier %q has no webhook URL", name)
		}
		return discord.New(name, s, httpClient, logger), nil

	case NotifierWebhook:
		var s webhook.Settings
		if err := json.Unmarshal(settings, &s); err != nil {
			return nil, fmt.Errorf("invalid webhook settings: %w", err)
		}
		if s.URL == "" {
			return nil, fmt.Errorf("webhook notifier %q has no URL", name)
		}
		return webhook.New(name, s, httpClient, logger), nil
	}

	return nil, fmt.Errorf("unknown notifier type %q", notifType)
}
