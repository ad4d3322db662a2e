package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/store"
)

// Service fans pipeline events out to all enabled notifiers that subscribe
// to the event type. Each send runs in its own goroutine.
type Service struct {
	store  *store.Store
	logger zerolog.Logger
}

func NewService(st *store.Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		logger: logger.With().Str("component", "notification").Logger(),
	}
}

// Dispatch sends the event to every subscribed notifier. It returns
// immediately; sends happen in the background with their own timeout.
func (s *Service) Dispatch(eventType EventType, event any) {
	configs, err := s.store.ListEnabledNotifications(context.Background())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load notifier configs")
		return
	}

	for _, cfg := range configs {
		if !subscribes(cfg, eventType) {
			continue
		}
		notifier, err := buildNotifier(NotifierType(cfg.Type), cfg.Name, cfg.Settings, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Str("name", cfg.Name).Msg("skipping misconfigured notifier")
			continue
		}

		go func(n Notifier) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := send(ctx, n, eventType, event); err != nil {
				s.logger.Warn().Err(err).
					Str("notifier", n.Name()).
					Str("eventType", string(eventType)).
					Msg("notification send failed")
			}
		}(notifier)
	}
}

// Test builds a notifier from an unsaved configuration and sends a test
// message synchronously.
func (s *Service) Test(ctx context.Context, cfg store.NotificationConfig) error {
	notifier, err := buildNotifier(NotifierType(cfg.Type), cfg.Name, cfg.Settings, s.logger)
	if err != nil {
		return err
	}
	return notifier.Test(ctx)
}

// DispatchHealthIssue implements the health service's notifier contract.
func (s *Service) DispatchHealthIssue(_ context.Context, source, message string) {
	s.Dispatch(EventHealthIssue, HealthEvent{Source: source, Message: message, At: time.Now().UTC()})
}

// DispatchHealthRestored implements the health service's notifier contract.
func (s *Service) DispatchHealthRestored(_ context.Context, source, message string) {
	s.Dispatch(EventHealthRestored, HealthEvent{Source: source, Message: message, At: time.Now().UTC()})
}

func subscribes(cfg store.NotificationConfig, eventType EventType) bool {
	switch eventType {
	case EventDispatch:
		return cfg.OnDispatch
	case EventDispatchFailed:
		return cfg.OnDispatchFailed
	case EventApprovalCreated:
		return cfg.OnApprovalCreated
	case EventApprovalResolved:
		return cfg.OnApprovalResolved
	case EventHealthIssue:
		return cfg.OnHealthIssue
	case EventHealthRestored:
		return cfg.OnHealthRestored
	}
	return false
}

func send(ctx context.Context, n Notifier, eventType EventType, event any) error {
	switch eventType {
	case EventDispatch:
		if e, ok := event.(DispatchEvent); ok {
			return n.OnDispatch(ctx, e)
		}
	case EventDispatchFailed:
		if e, ok := event.(DispatchEvent); ok {
			return n.OnDispatchFailed(ctx, e)
		}
	case EventApprovalCreated:
		if e, ok := event.(ApprovalEvent); ok {
			return n.OnApprovalCreated(ctx, e)
		}
	case EventApprovalResolved:
		if e, ok := event.(ApprovalEvent); ok {
			return n.OnApprovalResolved(ctx, e)
		}
	case EventHealthIssue:
		if e, ok := event.(HealthEvent); ok {
			return n.OnHealthIssue(ctx, e)
		}
	case EventHealthRestored:
		if e, ok := event.(HealthEvent); ok {
			return n.OnHealthRestored(ctx, e)
		}
	}
	return nil
}
