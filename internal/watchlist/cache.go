package watchlist

import (
	"sync"
)

// Snapshot is the cached view of one feed: the freshness token from the last
// full fetch, the known item identities, and per-item consecutive absence
// counts used to debounce removals.
type Snapshot struct {
	FreshnessToken string
	Items          map[string]Item
	Missing        map[string]int
}

// Cache holds per-feed snapshots of known item identifiers.
// All state is in-memory and resets on application restart.
type Cache struct {
	mu    sync.RWMutex
	feeds map[string]*Snapshot
}

// NewCache creates an empty feed cache.
func NewCache() *Cache {
	return &Cache{
		feeds: make(map[string]*Snapshot),
	}
}

// Get returns a copy of the snapshot for a feed, or nil if the feed has never
// completed a full fetch.
func (c *Cache) Get(feedKey string) *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.feeds[feedKey]
	if !ok {
		return nil
	}
	return snap.clone()
}

// Token returns the stored freshness token for a feed, or "" if none.
func (c *Cache) Token(feedKey string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if snap, ok := c.feeds[feedKey]; ok {
		return snap.FreshnessToken
	}
	return ""
}

// Replace stores a new snapshot for a feed, overwriting any previous state.
func (c *Cache) Replace(feedKey string, snap *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feeds[feedKey] = snap.clone()
}

// Forget drops all cached state for a feed.
func (c *Cache) Forget(feedKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.feeds, feedKey)
}

// Len returns the number of cached feeds.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.feeds)
}

func (s *Snapshot) clone() *Snapshot {
	out := &Snapshot{
		FreshnessToken: s.FreshnessToken,
		Items:          make(map[string]Item, len(s.Items)),
		Missing:        make(map[string]int, len(s.Missing)),
	}
	for k, v := range s.Items {
		out.Items[k] = v
	}
	for k, v := range s.Missing {
		out.Missing[k] = v
	}
	return out
}
