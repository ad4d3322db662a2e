// Package plex implements a conditional-fetch client for Plex watchlist feeds.
package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/watchlist"
)

const (
	defaultTimeout = 30 * time.Second
	tokenHeader    = "X-Plex-Token"
)

// Client fetches per-user watchlist feeds from a Plex-compatible origin.
// It implements watchlist.Source.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// ClientConfig contains configuration for creating a new watchlist client.
type ClientConfig struct {
	URL     string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// NewClient creates a new watchlist feed client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("plex URL is required")
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	baseURL := strings.TrimSuffix(cfg.URL, "/")
	logger := cfg.Logger.With().
		Str("component", "plex-client").
		Str("url", baseURL).
		Logger()

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// feedResponse is the wire shape of a watchlist feed page.
type feedResponse struct {
	MediaContainer struct {
		Metadata []feedItem `json:"Metadata"`
	} `json:"MediaContainer"`
}

type feedItem struct {
	Title     string `json:"title"`
	Type      string `json:"type"`
	RatingKey string `json:"ratingKey"`
	Year      int    `json:"year"`
	GUIDs     []struct {
		ID string `json:"id"`
	} `json:"Guid"`
	Genres []struct {
		Tag string `json:"tag"`
	} `json:"Genre"`
	Languages []struct {
		Tag string `json:"tag"`
	} `json:"Language"`
}

// Fetch retrieves a user's watchlist feed. When freshnessToken is set it is
// sent as If-None-Match; a 304 response yields FetchResult.Unchanged without
// parsing a body. A 429 response is reported as watchlist.ErrRateLimited.
func (c *Client) Fetch(ctx context.Context, feed watchlist.FeedRef, freshnessToken string) (*watchlist.FetchResult, error) {
	reqURL := c.baseURL + "/library/sections/watchlist/all"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(tokenHeader, feed.Token)
	req.Header.Set("Accept", "application/json")
	if freshnessToken != "" {
		req.Header.Set("If-None-Match", freshnessToken)
	}

	c.logger.Debug().
		Str("feed", feed.Key()).
		Bool("conditional", freshnessToken != "").
		Msg("fetching watchlist feed")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("watchlist request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &watchlist.FetchResult{Unchanged: true, NewToken: freshnessToken}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := resp.Header.Get("Retry-After")
		c.logger.Warn().
			Str("feed", feed.Key()).
			Str("retryAfter", retryAfter).
			Msg("watchlist feed rate limited")
		return nil, fmt.Errorf("feed %s: %w", feed.Key(), watchlist.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("watchlist request returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode watchlist feed: %w", err)
	}

	items := make([]watchlist.Item, 0, len(payload.MediaContainer.Metadata))
	for _, m := range payload.MediaContainer.Metadata {
		ct, ok := contentType(m.Type)
		if !ok {
			c.logger.Debug().Str("type", m.Type).Str("title", m.Title).Msg("skipping unsupported media type")
			continue
		}
		item := watchlist.Item{
			Title:       m.Title,
			Type:        ct,
			OwnerUserID: feed.UserID,
			PlexKey:     m.RatingKey,
			Year:        m.Year,
		}
		for _, g := range m.GUIDs {
			item.GUIDs = append(item.GUIDs, g.ID)
		}
		for _, g := range m.Genres {
			item.Genres = append(item.Genres, g.Tag)
		}
		for _, l := range m.Languages {
			item.Languages = append(item.Languages, l.Tag)
		}
		items = append(items, item)
	}

	return &watchlist.FetchResult{
		NewToken: resp.Header.Get("ETag"),
		Items:    items,
	}, nil
}

func contentType(wire string) (watchlist.ContentType, bool) {
	switch wire {
	case "movie":
		return watchlist.ContentTypeMovie, true
	case "show", "series":
		return watchlist.ContentTypeShow, true
	}
	return "", false
}
