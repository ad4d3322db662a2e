package gate

import (
	"context"
	"time"

	"github.com/helmarr/helmarr/internal/store"
)

// SweepResult summarizes one maintenance pass.
type SweepResult struct {
	Expired      int   `json:"expired"`
	AutoApproved int   `json:"autoApproved"`
	Purged       int64 `json:"purged"`
	Skipped      bool  `json:"skipped"`
}

// Sweep expires overdue pending requests and purges resolved ones past
// retention. Expired requests either transition to expired or, when
// auto-approval is configured, dispatch their held decisions. At most one
// sweep runs at a time; overlapping invocations are skipped.
func (g *Gate) Sweep(ctx context.Context) (*SweepResult, error) {
	if !g.sweeping.CompareAndSwap(false, true) {
		g.logger.Debug().Msg("sweep already in progress, skipping")
		return &SweepResult{Skipped: true}, nil
	}
	defer g.sweeping.Store(false)

	result := &SweepResult{}
	now := g.now()

	status := store.ApprovalExpired
	if g.cfg.AutoApproveExpired {
		status = store.ApprovalAutoApproved
	}
	transitioned, err := g.store.ExpirePendingBefore(ctx, now, status)
	if err != nil {
		return result, err
	}

	for i := range transitioned {
		req := &transitioned[i]
		if g.cfg.AutoApproveExpired {
			if err := g.dispatchHeld(ctx, req); err != nil {
				g.logger.Error().Err(err).Str("requestID", req.ID).
					Msg("failed to dispatch auto-approved request")
				continue
			}
			result.AutoApproved++
		} else {
			g.logger.Info().Str("requestID", req.ID).Str("title", req.Title).
				Msg("approval request expired")
			result.Expired++
		}
		if g.notifier != nil {
			g.notifier.OnApprovalResolved(req)
		}
	}

	if g.cfg.Retention > 0 {
		purged, err := g.store.PurgeResolvedBefore(ctx, now.Add(-g.cfg.Retention))
		if err != nil {
			return result, err
		}
		result.Purged = purged
	}

	if result.Expired > 0 || result.AutoApproved > 0 || result.Purged > 0 {
		g.logger.Info().
			Int("expired", result.Expired).
			Int("autoApproved", result.AutoApproved).
			Int64("purged", result.Purged).
			Msg("approval sweep finished")
	}
	return result, nil
}

// PurgeQuotaUsage deletes usage rows old enough that no quota window can
// still reference them.
func (g *Gate) PurgeQuotaUsage(ctx context.Context, olderThan time.Duration) (int64, error) {
	return g.store.DeleteQuotaUsageBefore(ctx, g.now().Add(-olderThan))
}
