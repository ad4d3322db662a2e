package store

import (
	"context"
	"time"

	"github.com/helmarr/helmarr/internal/watchlist"
)

// InsertQuotaUsage appends a usage row. The row is never mutated afterwards;
// rolling counts are always derived from the log.
func (s *Store) InsertQuotaUsage(ctx context.Context, userID int64, contentType watchlist.ContentType, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_usage (user_id, content_type, request_date) VALUES (?, ?, ?)`,
		userID, string(contentType), at.UTC())
	return err
}

// CountQuotaUsage returns the number of usage rows for a user and content
// type with request_date in [from, to).
func (s *Store) CountQuotaUsage(ctx context.Context, userID int64, contentType watchlist.ContentType, from, to time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM quota_usage
		WHERE user_id = ? AND content_type = ? AND request_date >= ? AND request_date < ?`,
		userID, string(contentType), from.UTC(), to.UTC()).Scan(&n)
	return n, err
}

// DeleteQuotaUsageBefore purges usage rows older than the cutoff. Paired with
// the log-based rolling window: old rows no longer affect any window.
func (s *Store) DeleteQuotaUsageBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quota_usage WHERE request_date < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
