package watchlist

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// removalDebounce is the number of consecutive diffs an item must be absent
// before it is reported as removed. A single stale fetch must not fabricate
// a removal burst.
const removalDebounce = 2

// Differ polls a feed through the cache and emits added/removed item events.
// Unchanged feeds (matching freshness token) return an empty diff with zero
// parsing cost.
type Differ struct {
	cache  *Cache
	source Source
	logger zerolog.Logger
}

// NewDiffer creates a differ over the given cache and feed source.
func NewDiffer(cache *Cache, source Source, logger zerolog.Logger) *Differ {
	return &Differ{
		cache:  cache,
		source: source,
		logger: logger.With().Str("component", "watchlist-differ").Logger(),
	}
}

// Poll fetches the feed and computes the diff against the cached snapshot.
// Fetch or parse errors leave the cache untouched and are returned to the
// caller as a soft failure; no diff is emitted.
func (d *Differ) Poll(ctx context.Context, feed FeedRef) (*Diff, error) {
	key := feed.Key()
	snap := d.cache.Get(key)

	token := ""
	if snap != nil {
		token = snap.FreshnessToken
	}

	result, err := d.source.Fetch(ctx, feed, token)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", key, err)
	}

	if result.Unchanged {
		d.logger.Debug().Str("feed", key).Msg("feed unchanged, skipping parse")
		return &Diff{}, nil
	}

	if snap == nil {
		snap = &Snapshot{
			Items:   make(map[string]Item),
			Missing: make(map[string]int),
		}
	}

	remote := make(map[string]Item, len(result.Items))
	for _, item := range result.Items {
		remote[item.Key()] = item
	}

	diff := &Diff{}

	// added = remote - cached; a reappearing item cancels its pending removal
	for id, item := range remote {
		if _, known := snap.Items[id]; !known {
			diff.Added = append(diff.Added, item)
			snap.Items[id] = item
		}
		delete(snap.Missing, id)
	}

	// removed = cached - remote, debounced across consecutive diffs
	for id, item := range snap.Items {
		if _, present := remote[id]; present {
			continue
		}
		snap.Missing[id]++
		if snap.Missing[id] < removalDebounce {
			continue
		}
		diff.Removed = append(diff.Removed, ItemRef{
			Key:   id,
			Type:  item.Type,
			Title: item.Title,
		})
		delete(snap.Items, id)
		delete(snap.Missing, id)
	}

	snap.FreshnessToken = result.NewToken
	d.cache.Replace(key, snap)

	d.logger.Debug().
		Str("feed", key).
		Int("remote", len(remote)).
		Int("added", len(diff.Added)).
		Int("removed", len(diff.Removed)).
		Msg("feed diff computed")

	return diff, nil
}
