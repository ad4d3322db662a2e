// Package queue implements the in-memory deferred routing queue. Entries
// blocked on downstream health wait here and are replayed when health
// recovers. The queue is process-lifetime only: entries present at shutdown
// are dropped.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/watchlist"
)

// ErrRetryCeilingExceeded marks an entry dropped after repeated failures.
var ErrRetryCeilingExceeded = errors.New("deferred entry exceeded retry ceiling")

const defaultMaxRetries = 1

// EntryType discriminates deferred entry payloads.
type EntryType string

const (
	// EntryItems defers a batch of watchlist items whose targets were
	// unhealthy at routing time.
	EntryItems EntryType = "items"

	// EntryFeedRecheck asks for an unconditional re-poll of one feed,
	// typically after a recovery window where diffs may have been missed.
	EntryFeedRecheck EntryType = "etag-change"
)

// Entry is one deferred routing attempt.
type Entry struct {
	Type  EntryType
	User  store.User
	Items []watchlist.Item
	Feed  watchlist.FeedRef

	retries int
}

// Queue is a FIFO of deferred entries with a single-consumer drain loop.
type Queue struct {
	mu      sync.Mutex
	entries []Entry

	draining   atomic.Bool
	maxRetries int
	logger     zerolog.Logger
}

// New creates a deferred queue. maxRetries bounds how often a failed entry is
// put back; zero or negative selects the default of one retry.
func New(maxRetries int, logger zerolog.Logger) *Queue {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Queue{
		maxRetries: maxRetries,
		logger:     logger.With().Str("component", "deferred-queue").Logger(),
	}
}

// Enqueue appends an entry. Safe to call while a drain is in progress; the
// entry waits for the next cycle.
func (q *Queue) Enqueue(e Entry) {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	depth := len(q.entries)
	q.mu.Unlock()

	q.logger.Debug().
		Str("type", string(e.Type)).
		Int("depth", depth).
		Msg("entry deferred")
}

// EnqueueRecheck queues a full re-poll of one feed, skipping the append when
// a recheck for the same feed is already waiting.
func (q *Queue) EnqueueRecheck(feed watchlist.FeedRef) {
	q.mu.Lock()
	for _, e := range q.entries {
		if e.Type == EntryFeedRecheck && e.Feed.Key() == feed.Key() {
			q.mu.Unlock()
			return
		}
	}
	q.entries = append(q.entries, Entry{Type: EntryFeedRecheck, Feed: feed})
	depth := len(q.entries)
	q.mu.Unlock()

	q.logger.Debug().
		Str("feed", feed.Key()).
		Int("depth", depth).
		Msg("feed recheck deferred")
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Drop discards all queued entries and returns how many were lost.
// Called on shutdown; deferred work is not durable.
func (q *Queue) Drop() int {
	q.mu.Lock()
	n := len(q.entries)
	q.entries = nil
	q.mu.Unlock()

	if n > 0 {
		q.logger.Warn().Int("dropped", n).Msg("deferred entries dropped")
	}
	return n
}

// Drain replays queued entries front to back. One health check runs per
// drain cycle, not per entry; an unhealthy result leaves the queue intact.
// Entries that fail processing are re-enqueued until the retry ceiling, then
// dropped and logged. Only one drain runs at a time; overlapping calls
// return immediately.
func (q *Queue) Drain(ctx context.Context, isHealthy func(ctx context.Context) bool, process func(ctx context.Context, e Entry) error) []Entry {
	if !q.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer q.draining.Store(false)

	// Snapshot the depth so entries enqueued mid-drain wait for the next
	// cycle instead of extending this one.
	q.mu.Lock()
	n := len(q.entries)
	q.mu.Unlock()
	if n == 0 {
		return nil
	}

	if !isHealthy(ctx) {
		q.logger.Debug().Int("depth", n).Msg("downstream unhealthy, drain skipped")
		return nil
	}

	var processed []Entry
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}

		q.mu.Lock()
		if len(q.entries) == 0 {
			q.mu.Unlock()
			break
		}
		entry := q.entries[0]
		q.entries = q.entries[1:]
		q.mu.Unlock()

		if err := process(ctx, entry); err != nil {
			q.requeue(entry, err)
			continue
		}
		processed = append(processed, entry)
	}

	if len(processed) > 0 {
		q.logger.Info().Int("processed", len(processed)).Msg("deferred entries replayed")
	}
	return processed
}

func (q *Queue) requeue(entry Entry, cause error) {
	entry.retries++
	if entry.retries > q.maxRetries {
		q.logger.Error().Err(ErrRetryCeilingExceeded).
			AnErr("cause", cause).
			Str("type", string(entry.Type)).
			Int("retries", entry.retries).
			Msg("deferred entry dropped")
		return
	}

	q.logger.Warn().Err(cause).
		Str("type", string(entry.Type)).
		Int("retries", entry.retries).
		Msg("deferred entry re-enqueued")
	q.mu.Lock()
	q.entries = append(q.entries, entry)
	q.mu.Unlock()
}
