package watchlist

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DiffHandler consumes the diff produced by one poll cycle.
type DiffHandler func(ctx context.Context, feed FeedRef, diff *Diff)

// PollerConfig configures feed polling behavior.
type PollerConfig struct {
	Interval          time.Duration // base poll interval for every feed
	FallbackInterval  time.Duration // slower interval after repeated soft failures
	RateLimitCooldown time.Duration // pause after a rate-limit error
	FailureThreshold  int           // consecutive soft failures before fallback
}

// DefaultPollerConfig returns sensible polling defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:          10 * time.Minute,
		FallbackInterval:  time.Hour,
		RateLimitCooldown: 20 * time.Minute,
		FailureThreshold:  3,
	}
}

// feedState is the per-feed polling state, owned by that feed's loop.
type feedState struct {
	consecutiveFailures int
	inFlight            atomic.Bool
}

// Poller runs one timer loop per feed. The loops are independent: each feed
// polls on the same base interval with a randomized initial offset so
// concurrent feeds do not hammer the origin simultaneously.
type Poller struct {
	differ  *Differ
	cfg     PollerConfig
	handler DiffHandler
	logger  zerolog.Logger

	mu     sync.Mutex
	states map[string]*feedState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a poller that hands diffs to the given handler.
func NewPoller(differ *Differ, cfg PollerConfig, handler DiffHandler, logger zerolog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollerConfig().Interval
	}
	if cfg.FallbackInterval <= 0 {
		cfg.FallbackInterval = DefaultPollerConfig().FallbackInterval
	}
	if cfg.RateLimitCooldown <= 0 {
		cfg.RateLimitCooldown = DefaultPollerConfig().RateLimitCooldown
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultPollerConfig().FailureThreshold
	}
	return &Poller{
		differ:  differ,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With().Str("component", "watchlist-poller").Logger(),
		states:  make(map[string]*feedState),
	}
}

// Start launches a timer loop for each feed. It returns immediately; loops
// run until Stop is called or the parent context is cancelled.
func (p *Poller) Start(ctx context.Context, feeds []FeedRef) {
	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	for _, feed := range feeds {
		state := &feedState{}
		p.mu.Lock()
		p.states[feed.Key()] = state
		p.mu.Unlock()

		p.wg.Add(1)
		go p.runFeed(runCtx, feed, state)
	}

	p.logger.Info().Int("feeds", len(feeds)).Dur("interval", p.cfg.Interval).Msg("feed polling started")
}

// Stop cancels all feed timers and waits for in-flight polls to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	p.logger.Info().Msg("feed polling stopped")
}

// runFeed is the single timer loop for one feed. Staggered start: the first
// tick fires after a random offset within the base interval.
func (p *Poller) runFeed(ctx context.Context, feed FeedRef, state *feedState) {
	defer p.wg.Done()

	initial := time.Duration(rand.Int63n(int64(p.cfg.Interval)))
	select {
	case <-ctx.Done():
		return
	case <-time.After(initial):
	}

	for {
		delay := p.pollOnce(ctx, feed, state)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// pollOnce executes one poll cycle and returns the delay until the next tick.
func (p *Poller) pollOnce(ctx context.Context, feed FeedRef, state *feedState) time.Duration {
	// A feed whose previous poll is still in flight skips this tick.
	if !state.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug().Str("feed", feed.Key()).Msg("previous poll still in flight, skipping tick")
		return p.cfg.Interval
	}
	defer state.inFlight.Store(false)

	diff, err := p.differ.Poll(ctx, feed)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			p.logger.Warn().Str("feed", feed.Key()).Dur("cooldown", p.cfg.RateLimitCooldown).
				Msg("feed rate limited, pausing")
			return p.cfg.RateLimitCooldown
		}

		state.consecutiveFailures++
		if state.consecutiveFailures >= p.cfg.FailureThreshold {
			p.logger.Warn().Err(err).Str("feed", feed.Key()).
				Int("failures", state.consecutiveFailures).
				Dur("fallbackInterval", p.cfg.FallbackInterval).
				Msg("feed escalated to fallback interval")
			return p.cfg.FallbackInterval
		}

		p.logger.Warn().Err(err).Str("feed", feed.Key()).
			Int("failures", state.consecutiveFailures).
			Msg("feed poll failed, will retry next tick")
		return p.cfg.Interval
	}

	state.consecutiveFailures = 0

	if !diff.Empty() && p.handler != nil {
		p.handler(ctx, feed, diff)
	}

	return p.cfg.Interval
}
