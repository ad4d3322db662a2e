package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/arr"
	"github.com/helmarr/helmarr/internal/config"
	"github.com/helmarr/helmarr/internal/gate"
	"github.com/helmarr/helmarr/internal/health"
	"github.com/helmarr/helmarr/internal/notification"
	"github.com/helmarr/helmarr/internal/queue"
	"github.com/helmarr/helmarr/internal/rules"
	"github.com/helmarr/helmarr/internal/scheduler"
	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/sync"
	"github.com/helmarr/helmarr/internal/testutil"
	"github.com/helmarr/helmarr/internal/watchlist"
	"github.com/helmarr/helmarr/internal/websocket"
)

type emptySource struct{}

func (emptySource) Fetch(context.Context, watchlist.FeedRef, string) (*watchlist.FetchResult, error) {
	return &watchlist.FetchResult{NewToken: "tok"}, nil
}

func setupTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	tdb := testutil.NewTestDB(t)
	logger := zerolog.Nop()

	registry := arr.NewRegistry(time.Second, logger)
	dispatcher := arr.NewDispatcher(registry, logger)
	g := gate.New(tdb.Store, dispatcher, nil, gate.Config{}, logger)
	healthService := health.NewService(logger)
	hub := websocket.NewHub()
	notifService := notification.NewService(tdb.Store, logger)

	sched, err := scheduler.New(logger)
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}

	orch := sync.New(sync.Config{
		Store:         tdb.Store,
		Source:        emptySource{},
		PollerConfig:  watchlist.DefaultPollerConfig(),
		Rules:         rules.NewService(tdb.Store, logger),
		Gate:          g,
		Registry:      registry,
		Queue:         queue.New(1, logger),
		HealthService: healthService,
		Logger:        logger,
	})

	server := NewServer(&config.Config{}, Services{
		Store:         tdb.Store,
		Orchestrator:  orch,
		Gate:          g,
		Registry:      registry,
		Health:        healthService,
		Notifications: notifService,
		Scheduler:     sched,
		Hub:           hub,
	}, logger)

	return server, tdb.Store
}

func doRequest(server *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := doRequest(server, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("HealthCheck status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestSyncStatusEmpty(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := doRequest(server, http.MethodGet, "/api/v1/sync/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
	}

	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if status["running"] != false {
		t.Errorf("Expected running=false, got %v", status["running"])
	}
}

func TestRuleCRUD(t *testing.T) {
	server, st := setupTestServer(t)
	ctx := context.Background()

	instID, err := st.CreateInstance(ctx, store.Instance{
		Name: "radarr", Type: store.TargetRadarr, URL: "http://radarr:7878",
		APIKey: "key", Enabled: true,
	})
	if err != nil {
		t.Fatalf("Failed to create instance: %v", err)
	}

	body := `{"name":"anime","kind":"genre","criteria":{"genres":["anime"]},` +
		`"targetType":"radarr","targetInstanceId":` + jsonInt(instID) + `,"order":10,"enabled":true}`
	rec := doRequest(server, http.MethodPost, "/api/v1/rules", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Create status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created store.RoutingRule
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse created rule: %v", err)
	}
	if created.Name != "anime" {
		t.Errorf("Expected name anime, got %q", created.Name)
	}

	rec = doRequest(server, http.MethodGet, "/api/v1/rules", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("List status = %d", rec.Code)
	}
	var listed []store.RoutingRule
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("Failed to parse rule list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("Expected 1 rule, got %d", len(listed))
	}

	rec = doRequest(server, http.MethodDelete, "/api/v1/rules/"+jsonInt(created.ID), "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Delete status = %d", rec.Code)
	}

	rec = doRequest(server, http.MethodGet, "/api/v1/rules/"+jsonInt(created.ID), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Get after delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := doRequest(server, http.MethodPost, "/api/v1/rules",
		`{"name":"","kind":"genre","targetType":"radarr"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Empty name status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = doRequest(server, http.MethodPost, "/api/v1/rules",
		`{"name":"x","kind":"bogus","targetType":"radarr"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Bad kind status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUserLifecycleAndQuota(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := doRequest(server, http.MethodPost, "/api/v1/users",
		`{"name":"alice","plexToken":"secret","canSync":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Create user status = %d, body %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Error("Plex token must not appear in responses")
	}

	var user store.User
	if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
		t.Fatalf("Failed to parse user: %v", err)
	}

	userPath := "/api/v1/users/" + jsonInt(user.ID)
	rec = doRequest(server, http.MethodPut, userPath+"/quotas",
		`{"contentType":"movie","quotaType":"daily","quotaLimit":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Set quota status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(server, http.MethodGet, userPath+"/quotas/movie/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Quota status = %d", rec.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse quota status: %v", err)
	}
	if status["limited"] != true {
		t.Errorf("Expected limited=true, got %v", status["limited"])
	}
	if status["limit"] != float64(5) {
		t.Errorf("Expected limit=5, got %v", status["limit"])
	}

	rec = doRequest(server, http.MethodDelete, userPath, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Delete user status = %d", rec.Code)
	}
}

func TestApprovalNotFound(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := doRequest(server, http.MethodPost, "/api/v1/approvals/nope/approve", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Approve missing request status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestTriggerSync(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := doRequest(server, http.MethodPost, "/api/v1/sync/run", "")
	if rec.Code != http.StatusAccepted {
		t.Errorf("Trigger sync status = %d, want %d", rec.Code, http.StatusAccepted)
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
