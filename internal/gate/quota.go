package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/watchlist"
)

// QuotaStatus is the outcome of a quota evaluation.
type QuotaStatus struct {
	Limited   bool            `json:"limited"`  // a finite quota applies
	Exceeded  bool            `json:"exceeded"` // the current window is at or over the limit
	Used      int64           `json:"used"`
	Limit     int64           `json:"limit"`
	ResetsAt  time.Time       `json:"resetsAt,omitzero"`
	QuotaType store.QuotaType `json:"quotaType,omitempty"`
}

// quotaWindow returns the [from, to) bounds of the current quota window.
// Daily and monthly windows follow the local calendar; weekly windows roll
// over the trailing seven days.
func quotaWindow(quotaType store.QuotaType, now time.Time) (time.Time, time.Time) {
	switch quotaType {
	case store.QuotaDaily:
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return from, from.AddDate(0, 0, 1)
	case store.QuotaWeeklyRolling:
		return now.Add(-7 * 24 * time.Hour), now
	case store.QuotaMonthly:
		from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return from, from.AddDate(0, 1, 0)
	}
	return now, now
}

// evaluateQuota computes the quota status for a loaded config. A nil config
// or a limit of zero or less means unlimited.
func (g *Gate) evaluateQuota(ctx context.Context, cfg *store.QuotaConfig, userID int64, contentType watchlist.ContentType, now time.Time) (*QuotaStatus, error) {
	if cfg == nil || cfg.QuotaLimit <= 0 {
		return &QuotaStatus{}, nil
	}

	from, to := quotaWindow(cfg.QuotaType, now)
	used, err := g.store.CountQuotaUsage(ctx, userID, contentType, from, to)
	if err != nil {
		return nil, fmt.Errorf("counting quota usage: %w", err)
	}

	return &QuotaStatus{
		Limited:   true,
		Exceeded:  used >= cfg.QuotaLimit,
		Used:      used,
		Limit:     cfg.QuotaLimit,
		ResetsAt:  to,
		QuotaType: cfg.QuotaType,
	}, nil
}

// QuotaStatus reports a user's current quota standing for a content type.
func (g *Gate) QuotaStatus(ctx context.Context, userID int64, contentType watchlist.ContentType) (*QuotaStatus, error) {
	cfg, err := g.store.GetUserQuota(ctx, userID, contentType)
	if err != nil {
		return nil, fmt.Errorf("loading quota config: %w", err)
	}
	return g.evaluateQuota(ctx, cfg, userID, contentType, g.now())
}
