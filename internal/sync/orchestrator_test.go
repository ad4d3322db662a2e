package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmarr/helmarr/internal/arr"
	"github.com/helmarr/helmarr/internal/gate"
	"github.com/helmarr/helmarr/internal/health"
	"github.com/helmarr/helmarr/internal/queue"
	"github.com/helmarr/helmarr/internal/rules"
	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/testutil"
	"github.com/helmarr/helmarr/internal/watchlist"
)

// fakeSource serves scripted feed snapshots.
type fakeSource struct {
	items   []watchlist.Item
	fetches atomic.Int64
}

func (s *fakeSource) Fetch(_ context.Context, feed watchlist.FeedRef, token string) (*watchlist.FetchResult, error) {
	s.fetches.Add(1)
	if token == "current" {
		return &watchlist.FetchResult{Unchanged: true, NewToken: token}, nil
	}
	items := make([]watchlist.Item, len(s.items))
	copy(items, s.items)
	for i := range items {
		items[i].OwnerUserID = feed.UserID
	}
	return &watchlist.FetchResult{NewToken: "current", Items: items}, nil
}

// arrStub is a minimal Radarr lookalike whose health can be toggled.
type arrStub struct {
	srv     *httptest.Server
	healthy atomic.Bool
	added   atomic.Int64
}

func newArrStub(t *testing.T) *arrStub {
	t.Helper()
	stub := &arrStub{}
	stub.healthy.Store(true)
	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !stub.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/api/v3/system/status":
			w.Write([]byte(`{}`))
		case "/api/v3/movie/lookup":
			w.Write([]byte(`[{"title":"Stub Movie","tmdbId":1}]`))
		case "/api/v3/qualityprofile":
			w.Write([]byte(`[{"id":1,"name":"Any"}]`))
		case "/api/v3/movie":
			stub.added.Add(1)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":1}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(stub.srv.Close)
	return stub
}

type testPipeline struct {
	orch  *Orchestrator
	store *store.Store
	stub  *arrStub
	user  store.User
}

func newTestPipeline(t *testing.T, source watchlist.Source) *testPipeline {
	t.Helper()
	ctx := context.Background()
	tdb := testutil.NewTestDB(t)
	logger := zerolog.Nop()

	stub := newArrStub(t)
	_, err := tdb.Store.CreateInstance(ctx, store.Instance{
		Name:      "radarr-main",
		Type:      store.TargetRadarr,
		URL:       stub.srv.URL,
		APIKey:    "key",
		IsDefault: true,
		Enabled:   true,
	})
	require.NoError(t, err)

	registry := arr.NewRegistry(2*time.Second, logger)
	require.NoError(t, registry.Reload(ctx, tdb.Store))

	user, err := tdb.Store.CreateUser(ctx, "alice", "token", true, false)
	require.NoError(t, err)

	dispatcher := arr.NewDispatcher(registry, logger)
	g := gate.New(tdb.Store, dispatcher, nil, gate.Config{}, logger)

	orch := New(Config{
		Store:         tdb.Store,
		Source:        source,
		PollerConfig:  watchlist.DefaultPollerConfig(),
		Rules:         rules.NewService(tdb.Store, logger),
		Gate:          g,
		Registry:      registry,
		Queue:         queue.New(1, logger),
		HealthService: health.NewService(logger),
		Logger:        logger,
	})
	return &testPipeline{orch: orch, store: tdb.Store, stub: stub, user: *user}
}

func TestRunOnceDispatchesAddedItems(t *testing.T) {
	source := &fakeSource{items: []watchlist.Item{
		{Title: "The Thing", Type: watchlist.ContentTypeMovie, PlexKey: "k1"},
	}}
	p := newTestPipeline(t, source)

	require.NoError(t, p.orch.RunOnce(context.Background()))

	status := p.orch.LastStatus()
	assert.Equal(t, 1, status.Added)
	assert.Equal(t, 1, status.Dispatched)
	assert.Equal(t, int64(1), p.stub.added.Load())
}

func TestRunOnceUnchangedFeedIsNoOp(t *testing.T) {
	source := &fakeSource{items: []watchlist.Item{
		{Title: "The Thing", Type: watchlist.ContentTypeMovie, PlexKey: "k1"},
	}}
	p := newTestPipeline(t, source)

	require.NoError(t, p.orch.RunOnce(context.Background()))
	require.NoError(t, p.orch.RunOnce(context.Background()))

	// Second cycle hit the freshness token: nothing new dispatched.
	status := p.orch.LastStatus()
	assert.Zero(t, status.Added)
	assert.Equal(t, int64(1), p.stub.added.Load())
}

func TestUnhealthyInstanceDefersBatch(t *testing.T) {
	source := &fakeSource{items: []watchlist.Item{
		{Title: "The Thing", Type: watchlist.ContentTypeMovie, PlexKey: "k1"},
	}}
	p := newTestPipeline(t, source)
	p.stub.healthy.Store(false)

	require.NoError(t, p.orch.RunOnce(context.Background()))

	status := p.orch.LastStatus()
	assert.Equal(t, 1, status.Deferred)
	assert.Zero(t, status.Dispatched)
	// The batch waits alongside a recheck of the feed it came from.
	assert.Equal(t, 2, p.orch.deferred.Len())
	assert.Zero(t, p.stub.added.Load())

	// Recovery: the drain replays the deferred batch, then the recheck
	// refetches the feed from scratch and re-dispatches what it reports.
	p.stub.healthy.Store(true)
	fetchesBefore := source.fetches.Load()
	p.orch.drainDeferred(context.Background())

	assert.Zero(t, p.orch.deferred.Len())
	assert.Equal(t, int64(2), p.stub.added.Load())
	assert.Greater(t, source.fetches.Load(), fetchesBefore)
}

func TestFeedRecheckEntryForcesFullFetch(t *testing.T) {
	source := &fakeSource{items: []watchlist.Item{
		{Title: "The Thing", Type: watchlist.ContentTypeMovie, PlexKey: "k1"},
	}}
	p := newTestPipeline(t, source)

	require.NoError(t, p.orch.RunOnce(context.Background()))
	require.Equal(t, int64(1), p.stub.added.Load())

	p.orch.deferred.Enqueue(queue.Entry{
		Type: queue.EntryFeedRecheck,
		Feed: watchlist.FeedRef{UserID: p.user.ID, UserName: p.user.Name, Token: "token"},
	})
	p.orch.drainDeferred(context.Background())

	// The recheck dropped the cached snapshot, so the full refetch reports
	// the item as new again and it flows through dispatch a second time.
	assert.Zero(t, p.orch.deferred.Len())
	assert.Equal(t, int64(2), p.stub.added.Load())
	assert.GreaterOrEqual(t, source.fetches.Load(), int64(2))
}

func TestRuleRoutingOverridesDefault(t *testing.T) {
	source := &fakeSource{items: []watchlist.Item{
		{Title: "Oldboy", Type: watchlist.ContentTypeMovie, PlexKey: "k1", Genres: []string{"Thriller"}},
	}}
	p := newTestPipeline(t, source)

	instances, err := p.store.ListEnabledInstances(context.Background())
	require.NoError(t, err)
	_, err = p.store.CreateRule(context.Background(), store.RoutingRule{
		Name:             "thrillers",
		Kind:             store.RuleKindGenre,
		Criteria:         []byte(`{"genres":["thriller"]}`),
		TargetType:       store.TargetRadarr,
		TargetInstanceID: instances[0].ID,
		SortOrder:        10,
		Enabled:          true,
	})
	require.NoError(t, err)

	require.NoError(t, p.orch.RunOnce(context.Background()))
	assert.Equal(t, int64(1), p.stub.added.Load())
}
