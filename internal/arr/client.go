// Package arr provides HTTP clients for downstream Sonarr and Radarr
// instances plus the dispatch and health-check layer over them.
package arr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/watchlist"
)

const (
	defaultTimeout = 30 * time.Second
	apiKeyHeader   = "X-Api-Key"
)

// ErrInstanceUnavailable marks a downstream instance that failed its health
// check or refused a request at the transport level.
var ErrInstanceUnavailable = errors.New("instance unavailable")

// Client talks to one Sonarr or Radarr instance.
type Client struct {
	instance   store.Instance
	httpClient *http.Client
	logger     zerolog.Logger

	profileMu sync.Mutex
	profiles  []QualityProfile
}

// NewClient creates a client for a configured instance.
func NewClient(instance store.Instance, timeout time.Duration, logger zerolog.Logger) (*Client, error) {
	if instance.URL == "" {
		return nil, fmt.Errorf("instance %q has no URL", instance.Name)
	}
	if instance.APIKey == "" {
		return nil, fmt.Errorf("instance %q has no API key", instance.Name)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	instance.URL = strings.TrimSuffix(instance.URL, "/")
	return &Client{
		instance:   instance,
		httpClient: &http.Client{Timeout: timeout},
		logger: logger.With().
			Str("component", "arr-client").
			Str("instance", instance.Name).
			Logger(),
	}, nil
}

// Instance returns the configuration this client was built from.
func (c *Client) Instance() store.Instance {
	return c.instance
}

// do executes an HTTP request with the API key header.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.instance.URL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.instance.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInstanceUnavailable, err)
	}
	return resp, nil
}

// doJSON executes a request and decodes the JSON response into result.
func (c *Client) doJSON(ctx context.Context, method, path string, body, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("path", path).
			Str("body", string(payload)).
			Msg("request failed")
		return fmt.Errorf("request to %s returned status %d", path, resp.StatusCode)
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Ping checks instance reachability via the system status endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/v3/system/status", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status endpoint returned %d", ErrInstanceUnavailable, resp.StatusCode)
	}
	return nil
}

// mediaResource is the subset of the Sonarr/Radarr media payload we produce
// and inspect.
type mediaResource struct {
	ID               int64  `json:"id,omitempty"`
	Title            string `json:"title"`
	Year             int    `json:"year,omitempty"`
	TmdbID           int64  `json:"tmdbId,omitempty"`
	TvdbID           int64  `json:"tvdbId,omitempty"`
	ImdbID           string `json:"imdbId,omitempty"`
	QualityProfileID int64  `json:"qualityProfileId,omitempty"`
	RootFolderPath   string `json:"rootFolderPath,omitempty"`
	Monitored        bool   `json:"monitored"`
	AddOptions       struct {
		SearchForMovie           bool `json:"searchForMovie,omitempty"`
		SearchForMissingEpisodes bool `json:"searchForMissingEpisodes,omitempty"`
	} `json:"addOptions,omitempty"`
}

// QualityProfile is one profile as reported by the instance.
type QualityProfile struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// QualityProfiles lists the instance's quality profiles. The result is cached
// for the client's lifetime; the registry rebuilds clients on instance edits.
func (c *Client) QualityProfiles(ctx context.Context) ([]QualityProfile, error) {
	c.profileMu.Lock()
	defer c.profileMu.Unlock()

	if c.profiles == nil {
		var profiles []QualityProfile
		if err := c.doJSON(ctx, http.MethodGet, "/api/v3/qualityprofile", nil, &profiles); err != nil {
			return nil, fmt.Errorf("listing quality profiles: %w", err)
		}
		c.profiles = profiles
	}
	return c.profiles, nil
}

// resolveQualityProfile maps a profile name to its instance-local ID. An empty
// name selects the instance default; an unknown name falls back to the first
// profile so a renamed profile degrades instead of blocking dispatch.
func (c *Client) resolveQualityProfile(ctx context.Context, name string) (int64, error) {
	profiles, err := c.QualityProfiles(ctx)
	if err != nil {
		return 0, err
	}
	if len(profiles) == 0 {
		return 0, fmt.Errorf("no quality profiles on %s", c.instance.Name)
	}

	if name == "" {
		name = c.instance.QualityProfile
	}
	if name != "" {
		for _, p := range profiles {
			if strings.EqualFold(p.Name, name) {
				return p.ID, nil
			}
		}
		c.logger.Warn().Str("profile", name).Msg("unknown quality profile, using first available")
	}
	return profiles[0].ID, nil
}

// Add sends an item to the instance. The target API treats adding an
// already-present title as a conflict, so Add looks the item up first and
// no-ops when it already exists (idempotent at-least-once delivery).
func (c *Client) Add(ctx context.Context, item watchlist.Item, rootFolder, qualityProfile string) error {
	term := lookupTerm(item)

	var path, addPath string
	switch c.instance.Type {
	case store.TargetRadarr:
		path = "/api/v3/movie/lookup?term=" + url.QueryEscape(term)
		addPath = "/api/v3/movie"
	case store.TargetSonarr:
		path = "/api/v3/series/lookup?term=" + url.QueryEscape(term)
		addPath = "/api/v3/series"
	default:
		return fmt.Errorf("unknown instance type %q", c.instance.Type)
	}

	var results []mediaResource
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &results); err != nil {
		return fmt.Errorf("lookup for %q: %w", item.Title, err)
	}
	if len(results) == 0 {
		return fmt.Errorf("no match for %q on %s", item.Title, c.instance.Name)
	}

	resource := results[0]
	if resource.ID != 0 {
		c.logger.Debug().Str("title", item.Title).Msg("already present, skipping add")
		return nil
	}

	resource.Monitored = true
	if rootFolder == "" {
		rootFolder = c.instance.RootFolder
	}
	resource.RootFolderPath = rootFolder
	profileID, err := c.resolveQualityProfile(ctx, qualityProfile)
	if err != nil {
		return fmt.Errorf("adding %q: %w", item.Title, err)
	}
	resource.QualityProfileID = profileID
	if c.instance.Type == store.TargetRadarr {
		resource.AddOptions.SearchForMovie = true
	} else {
		resource.AddOptions.SearchForMissingEpisodes = true
	}

	if err := c.doJSON(ctx, http.MethodPost, addPath, resource, nil); err != nil {
		return fmt.Errorf("adding %q: %w", item.Title, err)
	}

	c.logger.Info().
		Str("title", item.Title).
		Str("rootFolder", rootFolder).
		Int64("qualityProfileID", profileID).
		Msg("item added")
	return nil
}

// lookupTerm prefers a stable external ID over a free-text title search.
func lookupTerm(item watchlist.Item) string {
	for _, guid := range item.GUIDs {
		switch {
		case strings.HasPrefix(guid, "imdb://"):
			return "imdb:" + strings.TrimPrefix(guid, "imdb://")
		case strings.HasPrefix(guid, "tmdb://"):
			return "tmdb:" + strings.TrimPrefix(guid, "tmdb://")
		case strings.HasPrefix(guid, "tvdb://"):
			return "tvdb:" + strings.TrimPrefix(guid, "tvdb://")
		}
	}
	return item.Title
}
