// Package watchlist implements change detection over remote watchlist feeds.
package watchlist

import (
	"context"
	"errors"
	"fmt"
)

// ContentType represents the type of a watchlisted item.
type ContentType string

const (
	ContentTypeMovie ContentType = "movie"
	ContentTypeShow  ContentType = "show"
)

// Item is a single entry in a user's watchlist. Year and Languages are
// metadata enrichment from the origin; identity fields never change.
type Item struct {
	Title       string      `json:"title"`
	Type        ContentType `json:"type"`
	GUIDs       []string    `json:"guids"`
	Genres      []string    `json:"genres"`
	OwnerUserID int64       `json:"ownerUserId"`
	PlexKey     string      `json:"plexKey"`
	Year        int         `json:"year,omitempty"`
	Languages   []string    `json:"languages,omitempty"`
}

// Key returns the stable identity of the item within a feed.
// The Plex rating key is preferred; the first external GUID is the fallback.
func (i *Item) Key() string {
	if i.PlexKey != "" {
		return i.PlexKey
	}
	if len(i.GUIDs) > 0 {
		return i.GUIDs[0]
	}
	return i.Title
}

// ItemRef identifies an item that left a feed.
type ItemRef struct {
	Key   string      `json:"key"`
	Type  ContentType `json:"type"`
	Title string      `json:"title"`
}

// Diff is the result of one poll cycle for a feed.
type Diff struct {
	Added   []Item
	Removed []ItemRef
}

// Empty reports whether the diff carries no changes.
func (d *Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// FeedRef identifies one per-user watchlist feed.
type FeedRef struct {
	UserID   int64
	UserName string
	Token    string // per-user access token for the origin
}

// Key returns the cache key for the feed.
func (f FeedRef) Key() string {
	return fmt.Sprintf("user:%d", f.UserID)
}

// FetchResult is the outcome of a conditional feed fetch.
type FetchResult struct {
	Unchanged bool   // origin reported no change for the freshness token
	NewToken  string // freshness token to store after a full fetch
	Items     []Item
}

// Source fetches a remote feed representation, honoring a freshness token.
type Source interface {
	Fetch(ctx context.Context, feed FeedRef, freshnessToken string) (*FetchResult, error)
}

// ErrRateLimited is the distinguished error class for exhausted origin rate
// limits. Pollers pause the feed for a cool-down instead of retrying.
var ErrRateLimited = errors.New("feed rate limit exhausted")
