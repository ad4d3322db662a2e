// Package sync wires the watchlist pipeline together: feed polling, rule
// evaluation, the approval gate, the deferred queue, and dispatch.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/arr"
	"github.com/helmarr/helmarr/internal/gate"
	"github.com/helmarr/helmarr/internal/health"
	"github.com/helmarr/helmarr/internal/queue"
	"github.com/helmarr/helmarr/internal/router"
	"github.com/helmarr/helmarr/internal/rules"
	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/watchlist"
	"github.com/helmarr/helmarr/internal/websocket"
)

// SyncStatus holds the result of the last sync cycle.
type SyncStatus struct {
	Running    bool      `json:"running"`
	LastRun    time.Time `json:"lastRun,omitzero"`
	Added      int       `json:"added"`
	Removed    int       `json:"removed"`
	Dispatched int       `json:"dispatched"`
	Held       int       `json:"held"`
	Deferred   int       `json:"deferred"`
	QueueDepth int       `json:"queueDepth"`
	ElapsedMs  int       `json:"elapsed"`
	Error      string    `json:"error,omitempty"`
}

// Orchestrator owns the feed cache, the poller, and the deferred queue, and
// drives diffs through router, gate, and dispatch.
type Orchestrator struct {
	store         *store.Store
	cache         *watchlist.Cache
	differ        *watchlist.Differ
	poller        *watchlist.Poller
	deferred      *queue.Queue
	rules         *rules.Service
	gate          *gate.Gate
	registry      *arr.Registry
	healthService *health.Service
	hub           *websocket.Hub
	logger        zerolog.Logger

	running atomic.Bool
	mu      stdsync.RWMutex
	status  SyncStatus

	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// Config bundles the orchestrator's collaborators.
type Config struct {
	Store         *store.Store
	Source        watchlist.Source
	PollerConfig  watchlist.PollerConfig
	Rules         *rules.Service
	Gate          *gate.Gate
	Registry      *arr.Registry
	Queue         *queue.Queue
	HealthService *health.Service
	Hub           *websocket.Hub
	Logger        zerolog.Logger
}

// New creates the orchestrator and its owned cache, differ, and poller.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		store:         cfg.Store,
		cache:         watchlist.NewCache(),
		deferred:      cfg.Queue,
		rules:         cfg.Rules,
		gate:          cfg.Gate,
		registry:      cfg.Registry,
		healthService: cfg.HealthService,
		hub:           cfg.Hub,
		logger:        cfg.Logger.With().Str("component", "orchestrator").Logger(),
	}
	o.differ = watchlist.NewDiffer(o.cache, cfg.Source, cfg.Logger)
	o.poller = watchlist.NewPoller(o.differ, cfg.PollerConfig, o.handleDiff, cfg.Logger)
	return o
}

// Start launches the feed timers and the deferred-queue drain loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	feeds, err := o.loadFeeds(ctx)
	if err != nil {
		return fmt.Errorf("loading sync feeds: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	o.poller.Start(runCtx, feeds)
	for _, feed := range feeds {
		o.healthService.RegisterItem(health.CategoryFeeds, feed.Key(), feed.UserName)
	}
	for _, client := range o.registry.All() {
		inst := client.Instance()
		o.healthService.RegisterItem(health.CategoryInstances, fmt.Sprintf("%d", inst.ID), inst.Name)
	}

	o.wg.Add(1)
	go o.drainLoop(runCtx)

	o.logger.Info().Int("feeds", len(feeds)).Msg("sync pipeline started")
	return nil
}

// Stop cancels all timers and drops the deferred queue. Queued entries are
// lost; the queue is process-lifetime only.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.poller.Stop()
	o.wg.Wait()
	o.deferred.Drop()
	o.logger.Info().Msg("sync pipeline stopped")
}

// IsRunning reports whether a manual sync cycle is in progress.
func (o *Orchestrator) IsRunning() bool {
	return o.running.Load()
}

// LastStatus returns the last sync status.
func (o *Orchestrator) LastStatus() SyncStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st := o.status
	st.Running = o.running.Load()
	st.QueueDepth = o.deferred.Len()
	return st
}

// RunOnce polls every feed immediately and processes the diffs. Used by the
// manual sync trigger; a cycle already in progress makes this a no-op.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return nil
	}
	defer o.running.Store(false)

	start := time.Now()
	o.logger.Info().Msg("manual sync starting")

	feeds, err := o.loadFeeds(ctx)
	if err != nil {
		o.failSync(start, err.Error())
		return err
	}
	o.broadcast(EventStarted, StartedEvent{Feeds: len(feeds)})

	status := SyncStatus{LastRun: start}
	for _, feed := range feeds {
		diff, err := o.differ.Poll(ctx, feed)
		if err != nil {
			o.reportFeedHealth(feed, err)
			o.logger.Warn().Err(err).Str("feed", feed.Key()).Msg("feed poll failed during manual sync")
			continue
		}
		o.reportFeedHealth(feed, nil)

		result := o.processDiff(ctx, feed, diff)
		status.Added += len(diff.Added)
		status.Removed += len(diff.Removed)
		status.Dispatched += result.dispatched
		status.Held += result.held
		status.Deferred += result.deferred
	}

	status.ElapsedMs = int(time.Since(start).Milliseconds())
	o.setStatus(status)
	o.broadcast(EventCompleted, CompletedEvent{
		Added:     status.Added,
		Removed:   status.Removed,
		ElapsedMs: status.ElapsedMs,
	})

	o.logger.Info().
		Int("added", status.Added).
		Int("removed", status.Removed).
		Int("dispatched", status.Dispatched).
		Int("held", status.Held).
		Int("deferred", status.Deferred).
		Dur("elapsed", time.Since(start)).
		Msg("manual sync finished")
	return nil
}

// loadFeeds builds one feed reference per sync-enabled user.
func (o *Orchestrator) loadFeeds(ctx context.Context) ([]watchlist.FeedRef, error) {
	users, err := o.store.ListSyncUsers(ctx)
	if err != nil {
		return nil, err
	}

	feeds := make([]watchlist.FeedRef, 0, len(users))
	for _, u := range users {
		feeds = append(feeds, watchlist.FeedRef{
			UserID:   u.ID,
			UserName: u.Name,
			Token:    u.PlexToken,
		})
	}
	return feeds, nil
}

// handleDiff is the poller's diff callback.
func (o *Orchestrator) handleDiff(ctx context.Context, feed watchlist.FeedRef, diff *watchlist.Diff) {
	o.reportFeedHealth(feed, nil)
	o.processDiff(ctx, feed, diff)
}

type diffResult struct {
	dispatched int
	held       int
	deferred   int
}

// processDiff routes the added items of one diff through the gate, deferring
// the whole batch when a required instance is unhealthy. Removed items are
// observational: downstream managers keep their content.
func (o *Orchestrator) processDiff(ctx context.Context, feed watchlist.FeedRef, diff *watchlist.Diff) diffResult {
	var result diffResult

	for _, ref := range diff.Removed {
		o.logger.Info().
			Str("feed", feed.Key()).
			Str("title", ref.Title).
			Msg("item left watchlist")
		o.broadcast(EventItemRemoved, ItemEvent{
			Title:       ref.Title,
			ContentType: string(ref.Type),
			UserID:      feed.UserID,
		})
	}

	if len(diff.Added) == 0 {
		return result
	}

	user, err := o.store.GetUser(ctx, feed.UserID)
	if err != nil {
		o.logger.Error().Err(err).Int64("userID", feed.UserID).Msg("failed to load feed owner")
		return result
	}
	if !user.CanSync {
		return result
	}

	routed := o.routeItems(ctx, *user, diff.Added)
	if len(routed) == 0 {
		return result
	}

	// One health check per batch across every implicated instance.
	if unavailable := o.registry.CheckInstancesHealth(ctx, implicatedInstances(routed)); len(unavailable) > 0 {
		o.reportInstanceHealth(unavailable)
		o.deferred.Enqueue(queue.Entry{
			Type:  queue.EntryItems,
			User:  *user,
			Items: itemsOf(routed),
		})
		// Diffs during the outage run against the cached snapshot, so a
		// recheck after the batch refetches the feed from scratch once
		// health returns.
		o.deferred.EnqueueRecheck(feed)
		result.deferred = len(routed)
		o.broadcast(EventItemDeferred, ItemEvent{
			Title:       routed[0].item.Title,
			ContentType: string(routed[0].item.Type),
			UserID:      user.ID,
			Outcome:     fmt.Sprintf("deferred batch of %d", len(routed)),
		})
		return result
	}

	for _, r := range routed {
		outcome, err := o.gate.Process(ctx, *user, r.item, r.decisions)
		if err != nil {
			o.logger.Error().Err(err).Str("title", r.item.Title).Msg("gate processing failed")
			continue
		}
		if outcome.Dispatched {
			result.dispatched++
		} else {
			result.held++
		}
		o.broadcast(EventItemRouted, ItemEvent{
			Title:       r.item.Title,
			ContentType: string(r.item.Type),
			UserID:      user.ID,
			Outcome:     outcomeLabel(outcome),
		})
	}
	return result
}

type routedItem struct {
	item      watchlist.Item
	decisions []router.Decision
}

// routeItems evaluates the rule set for each item, falling back to the
// content type's default instance when no rule matches.
func (o *Orchestrator) routeItems(ctx context.Context, user store.User, items []watchlist.Item) []routedItem {
	evaluators, err := o.rules.Evaluators(ctx)
	if err != nil {
		o.logger.Error().Err(err).Msg("failed to load rule evaluators")
		return nil
	}

	var routed []routedItem
	for _, item := range items {
		decisions := router.Evaluate(item, router.Context{User: user}, evaluators)
		if len(decisions) == 0 {
			fallback, ok := o.defaultDecision(item.Type)
			if !ok {
				o.logger.Warn().Str("title", item.Title).Str("type", string(item.Type)).
					Msg("no rule matched and no default instance configured, skipping item")
				continue
			}
			decisions = []router.Decision{fallback}
		}
		router.SortByWeight(decisions)
		routed = append(routed, routedItem{item: item, decisions: decisions})
	}
	return routed
}

// defaultDecision builds the fallback decision for a content type.
func (o *Orchestrator) defaultDecision(contentType watchlist.ContentType) (router.Decision, bool) {
	target := store.TargetRadarr
	if contentType == watchlist.ContentTypeShow {
		target = store.TargetSonarr
	}
	client, ok := o.registry.DefaultFor(target)
	if !ok {
		return router.Decision{}, false
	}
	inst := client.Instance()
	return router.Decision{
		InstanceID:     inst.ID,
		TargetType:     inst.Type,
		QualityProfile: inst.QualityProfile,
		RootFolder:     inst.RootFolder,
	}, true
}

// drainLoop periodically replays the deferred queue.
func (o *Orchestrator) drainLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.drainDeferred(ctx)
		}
	}
}

// drainDeferred replays queued entries once downstream health recovers.
func (o *Orchestrator) drainDeferred(ctx context.Context) {
	processed := o.deferred.Drain(ctx, o.allInstancesHealthy, o.processDeferred)
	if len(processed) > 0 {
		o.broadcast(EventQueueDrained, map[string]int{"processed": len(processed)})
	}
}

// allInstancesHealthy is the queue's per-cycle health check.
func (o *Orchestrator) allInstancesHealthy(ctx context.Context) bool {
	ids := make([]int64, 0)
	for _, client := range o.registry.All() {
		ids = append(ids, client.Instance().ID)
	}
	if len(ids) == 0 {
		return false
	}
	unavailable := o.registry.CheckInstancesHealth(ctx, ids)
	o.reportInstanceHealth(unavailable)
	if len(unavailable) == 0 {
		for _, id := range ids {
			o.healthService.ClearStatus(health.CategoryInstances, fmt.Sprintf("%d", id))
		}
	}
	return len(unavailable) == 0
}

// processDeferred replays one queue entry.
func (o *Orchestrator) processDeferred(ctx context.Context, entry queue.Entry) error {
	switch entry.Type {
	case queue.EntryItems:
		routed := o.routeItems(ctx, entry.User, entry.Items)
		var errs []error
		for _, r := range routed {
			if _, err := o.gate.Process(ctx, entry.User, r.item, r.decisions); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)

	case queue.EntryFeedRecheck:
		// Force a full fetch so changes missed during the outage surface.
		o.cache.Forget(entry.Feed.Key())
		diff, err := o.differ.Poll(ctx, entry.Feed)
		if err != nil {
			return err
		}
		o.processDiff(ctx, entry.Feed, diff)
		return nil
	}
	return fmt.Errorf("unknown deferred entry type %q", entry.Type)
}

func (o *Orchestrator) reportFeedHealth(feed watchlist.FeedRef, err error) {
	if err != nil {
		o.healthService.SetWarning(health.CategoryFeeds, feed.Key(), "feed poll failed: "+err.Error())
	} else {
		o.healthService.ClearStatus(health.CategoryFeeds, feed.Key())
	}
}

func (o *Orchestrator) reportInstanceHealth(unavailable []int64) {
	for _, id := range unavailable {
		o.healthService.SetError(health.CategoryInstances, fmt.Sprintf("%d", id), "instance unreachable")
	}
}

func (o *Orchestrator) setStatus(status SyncStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = status
}

func (o *Orchestrator) failSync(start time.Time, errMsg string) {
	o.setStatus(SyncStatus{LastRun: start, Error: errMsg})
	o.broadcast(EventFailed, FailedEvent{Error: errMsg})
}

func (o *Orchestrator) broadcast(eventType string, payload interface{}) {
	if o.hub == nil {
		return
	}
	if err := o.hub.Broadcast(eventType, payload); err != nil {
		o.logger.Warn().Err(err).Str("event", eventType).Msg("failed to broadcast sync event")
	}
}

func implicatedInstances(routed []routedItem) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, r := range routed {
		for _, d := range r.decisions {
			if _, ok := seen[d.InstanceID]; ok {
				continue
			}
			seen[d.InstanceID] = struct{}{}
			ids = append(ids, d.InstanceID)
		}
	}
	return ids
}

func itemsOf(routed []routedItem) []watchlist.Item {
	items := make([]watchlist.Item, len(routed))
	for i, r := range routed {
		items[i] = r.item
	}
	return items
}

func outcomeLabel(outcome *gate.Outcome) string {
	if outcome.Dispatched {
		return "dispatched"
	}
	return "held for approval"
}
