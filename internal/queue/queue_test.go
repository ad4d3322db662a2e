package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmarr/helmarr/internal/watchlist"
)

func itemsEntry(title string) Entry {
	return Entry{
		Type:  EntryItems,
		Items: []watchlist.Item{{Title: title, Type: watchlist.ContentTypeMovie}},
	}
}

func TestDrainReplaysInOrder(t *testing.T) {
	q := New(1, zerolog.Nop())
	q.Enqueue(itemsEntry("first"))
	q.Enqueue(itemsEntry("second"))

	var seen []string
	processed := q.Drain(context.Background(),
		func(context.Context) bool { return true },
		func(_ context.Context, e Entry) error {
			seen = append(seen, e.Items[0].Title)
			return nil
		})

	assert.Equal(t, []string{"first", "second"}, seen)
	assert.Len(t, processed, 2)
	assert.Zero(t, q.Len())
}

func TestDrainSkippedWhenUnhealthy(t *testing.T) {
	q := New(1, zerolog.Nop())
	q.Enqueue(itemsEntry("held"))

	checks := 0
	processed := q.Drain(context.Background(),
		func(context.Context) bool { checks++; return false },
		func(context.Context, Entry) error {
			t.Fatal("process must not run while unhealthy")
			return nil
		})

	assert.Nil(t, processed)
	assert.Equal(t, 1, q.Len())
	// One health check per drain cycle, not per entry.
	assert.Equal(t, 1, checks)
}

func TestDrainEmptyQueueIsNoOp(t *testing.T) {
	q := New(1, zerolog.Nop())

	checks := 0
	processed := q.Drain(context.Background(),
		func(context.Context) bool { checks++; return true },
		func(context.Context, Entry) error { return nil })

	assert.Nil(t, processed)
	// The empty queue short-circuits before the health check.
	assert.Zero(t, checks)
}

func TestFailedEntryReenqueuedOnce(t *testing.T) {
	q := New(1, zerolog.Nop())
	q.Enqueue(itemsEntry("flaky"))

	attempts := 0
	fail := func(context.Context, Entry) error {
		attempts++
		return errors.New("dispatch failed")
	}
	ok := func(context.Context) bool { return true }

	// First drain fails and re-enqueues.
	q.Drain(context.Background(), ok, fail)
	require.Equal(t, 1, q.Len())

	// Second failure exceeds the ceiling; the entry is dropped.
	q.Drain(context.Background(), ok, fail)
	assert.Equal(t, 2, attempts)
	assert.Zero(t, q.Len())
}

func TestEnqueueDuringDrainWaitsForNextCycle(t *testing.T) {
	q := New(1, zerolog.Nop())
	q.Enqueue(itemsEntry("first"))

	processed := q.Drain(context.Background(),
		func(context.Context) bool { return true },
		func(_ context.Context, e Entry) error {
			// Arrives mid-drain; must not extend this cycle.
			q.Enqueue(itemsEntry("late"))
			return nil
		})

	assert.Len(t, processed, 1)
	assert.Equal(t, 1, q.Len())
}

func TestEnqueueRecheckDeduplicatesPerFeed(t *testing.T) {
	q := New(1, zerolog.Nop())
	alice := watchlist.FeedRef{UserID: 1, UserName: "alice"}
	bob := watchlist.FeedRef{UserID: 2, UserName: "bob"}

	q.EnqueueRecheck(alice)
	q.EnqueueRecheck(alice)
	q.EnqueueRecheck(bob)
	assert.Equal(t, 2, q.Len())

	// Item batches never collapse, only rechecks for the same feed do.
	q.Enqueue(itemsEntry("a"))
	q.Enqueue(itemsEntry("a"))
	assert.Equal(t, 4, q.Len())
}

func TestDropDiscardsEverything(t *testing.T) {
	q := New(1, zerolog.Nop())
	q.Enqueue(itemsEntry("a"))
	q.Enqueue(Entry{Type: EntryFeedRecheck, Feed: watchlist.FeedRef{UserID: 1}})

	assert.Equal(t, 2, q.Drop())
	assert.Zero(t, q.Len())
	assert.Zero(t, q.Drop())
}
