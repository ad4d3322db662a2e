// Package gate decides whether routed content dispatches immediately or is
// held for approval. It sits between the router and the downstream managers:
// manual approval flags run first, then user quotas, then dispatch.
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/router"
	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/watchlist"
)

// Dispatcher sends an item to its routed targets.
type Dispatcher interface {
	Dispatch(ctx context.Context, item watchlist.Item, decisions []router.Decision) error
}

// Notifier receives gate lifecycle events. Implementations must not block.
type Notifier interface {
	OnApprovalCreated(req *store.ApprovalRequest)
	OnApprovalResolved(req *store.ApprovalRequest)
	OnItemDispatched(item watchlist.Item, decisions []router.Decision)
}

// Config holds gate behavior knobs.
type Config struct {
	// ExpireAfter bounds how long a pending request waits for a decision.
	// Zero disables expiry.
	ExpireAfter time.Duration

	// AutoApproveExpired dispatches expired requests instead of dropping them.
	AutoApproveExpired bool

	// Retention bounds how long resolved requests are kept.
	Retention time.Duration
}

// Gate applies approval and quota checks before dispatch.
type Gate struct {
	store      *store.Store
	dispatcher Dispatcher
	notifier   Notifier
	cfg        Config
	logger     zerolog.Logger
	now        func() time.Time
	sweeping   atomic.Bool
}

// Outcome describes what the gate did with one item.
type Outcome struct {
	Dispatched bool
	Decisions  []router.Decision
	Approval   *store.ApprovalRequest
}

func New(st *store.Store, dispatcher Dispatcher, notifier Notifier, cfg Config, logger zerolog.Logger) *Gate {
	return &Gate{
		store:      st,
		dispatcher: dispatcher,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger.With().Str("component", "gate").Logger(),
		now:        time.Now,
	}
}

// Process gates one routed item. Checks run in a fixed order: approval flags
// on the user or the matched rules first, then quotas, then dispatch with a
// usage record. Persistence failures propagate; the item is never silently
// dropped.
func (g *Gate) Process(ctx context.Context, user store.User, item watchlist.Item, decisions []router.Decision) (*Outcome, error) {
	if len(decisions) == 0 {
		return nil, fmt.Errorf("no routing decisions for %q", item.Title)
	}

	if user.RequiresApproval {
		return g.hold(ctx, user, item, decisions, store.TriggerManualFlag)
	}
	if router.RequiresApproval(decisions) {
		return g.hold(ctx, user, item, decisions, store.TriggerRouterRule)
	}

	quotaCfg, err := g.store.GetUserQuota(ctx, user.ID, item.Type)
	if err != nil {
		return nil, fmt.Errorf("loading quota config: %w", err)
	}
	bypass := router.BypassesQuotas(decisions) || (quotaCfg != nil && quotaCfg.BypassApproval)
	if !bypass {
		status, err := g.evaluateQuota(ctx, quotaCfg, user.ID, item.Type, g.now())
		if err != nil {
			return nil, err
		}
		if status.Exceeded {
			g.logger.Info().
				Int64("userID", user.ID).
				Str("title", item.Title).
				Int64("used", status.Used).
				Int64("limit", status.Limit).
				Msg("quota exceeded, holding for approval")
			return g.hold(ctx, user, item, decisions, store.TriggerQuotaExceeded)
		}
	}

	return g.dispatch(ctx, user, item, decisions)
}

// hold persists a pending approval request carrying the routing decisions.
// An existing pending request for the same (user, content) pair makes this
// an idempotent no-op.
func (g *Gate) hold(ctx context.Context, user store.User, item watchlist.Item, decisions []router.Decision, trigger string) (*Outcome, error) {
	encoded, err := json.Marshal(decisions)
	if err != nil {
		return nil, fmt.Errorf("encoding decisions: %w", err)
	}

	var expiresAt *time.Time
	if g.cfg.ExpireAfter > 0 {
		t := g.now().Add(g.cfg.ExpireAfter)
		expiresAt = &t
	}

	req, err := g.store.CreateApprovalRequest(ctx, store.CreateApprovalInput{
		UserID:      user.ID,
		ContentKey:  item.Key(),
		ContentType: item.Type,
		Title:       item.Title,
		Decisions:   encoded,
		TriggeredBy: trigger,
		ExpiresAt:   expiresAt,
	})
	if errors.Is(err, store.ErrDuplicateApproval) {
		g.logger.Debug().
			Int64("userID", user.ID).
			Str("contentKey", item.Key()).
			Msg("pending approval already exists")
		return &Outcome{Approval: req}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating approval request: %w", err)
	}

	g.logger.Info().
		Str("requestID", req.ID).
		Int64("userID", user.ID).
		Str("title", item.Title).
		Str("trigger", trigger).
		Msg("approval request created")
	if g.notifier != nil {
		g.notifier.OnApprovalCreated(req)
	}
	return &Outcome{Approval: req}, nil
}

// dispatch sends the item downstream and records quota usage. Usage is
// recorded only after a successful dispatch.
func (g *Gate) dispatch(ctx context.Context, user store.User, item watchlist.Item, decisions []router.Decision) (*Outcome, error) {
	if err := g.dispatcher.Dispatch(ctx, item, decisions); err != nil {
		return nil, fmt.Errorf("dispatching %q: %w", item.Title, err)
	}
	if err := g.store.InsertQuotaUsage(ctx, user.ID, item.Type, g.now()); err != nil {
		return nil, fmt.Errorf("recording quota usage: %w", err)
	}

	g.logger.Info().
		Int64("userID", user.ID).
		Str("title", item.Title).
		Int("targets", len(decisions)).
		Msg("item dispatched")
	if g.notifier != nil {
		g.notifier.OnItemDispatched(item, decisions)
	}
	return &Outcome{Dispatched: true, Decisions: decisions}, nil
}

// Approve resolves a pending request and dispatches its held decisions.
func (g *Gate) Approve(ctx context.Context, id string) (*store.ApprovalRequest, error) {
	req, err := g.store.ResolveApproval(ctx, id, store.ApprovalApproved)
	if err != nil {
		return nil, err
	}
	if err := g.dispatchHeld(ctx, req); err != nil {
		return req, err
	}
	if g.notifier != nil {
		g.notifier.OnApprovalResolved(req)
	}
	return req, nil
}

// Reject resolves a pending request without dispatching.
func (g *Gate) Reject(ctx context.Context, id string) (*store.ApprovalRequest, error) {
	req, err := g.store.ResolveApproval(ctx, id, store.ApprovalRejected)
	if err != nil {
		return nil, err
	}
	g.logger.Info().Str("requestID", req.ID).Str("title", req.Title).Msg("approval request rejected")
	if g.notifier != nil {
		g.notifier.OnApprovalResolved(req)
	}
	return req, nil
}

// dispatchHeld replays the decisions stored on a resolved request.
func (g *Gate) dispatchHeld(ctx context.Context, req *store.ApprovalRequest) error {
	var decisions []router.Decision
	if err := json.Unmarshal(req.Decisions, &decisions); err != nil {
		return fmt.Errorf("decoding held decisions for %s: %w", req.ID, err)
	}

	item := watchlist.Item{
		Title:       req.Title,
		Type:        req.ContentType,
		OwnerUserID: req.UserID,
		PlexKey:     req.ContentKey,
	}
	if err := g.dispatcher.Dispatch(ctx, item, decisions); err != nil {
		return fmt.Errorf("dispatching approved request %s: %w", req.ID, err)
	}
	if err := g.store.InsertQuotaUsage(ctx, req.UserID, req.ContentType, g.now()); err != nil {
		return fmt.Errorf("recording quota usage: %w", err)
	}

	g.logger.Info().Str("requestID", req.ID).Str("title", req.Title).Msg("held decisions dispatched")
	if g.notifier != nil {
		g.notifier.OnItemDispatched(item, decisions)
	}
	return nil
}
