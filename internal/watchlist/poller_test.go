package watchlist

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestPoller(source Source, handler DiffHandler) *Poller {
	cfg := PollerConfig{
		Interval:          time.Minute,
		FallbackInterval:  10 * time.Minute,
		RateLimitCooldown: 5 * time.Minute,
		FailureThreshold:  2,
	}
	differ := NewDiffer(NewCache(), source, zerolog.Nop())
	return NewPoller(differ, cfg, handler, zerolog.Nop())
}

func TestPollOnceDelegatesDiffToHandler(t *testing.T) {
	source := &scriptedSource{results: []*FetchResult{
		snapshot(movie("k1", "Alien")),
	}}

	var handled *Diff
	p := newTestPoller(source, func(_ context.Context, _ FeedRef, diff *Diff) {
		handled = diff
	})

	delay := p.pollOnce(context.Background(), testFeed, &feedState{})
	if delay != time.Minute {
		t.Errorf("Expected base interval after success, got %v", delay)
	}
	if handled == nil || len(handled.Added) != 1 {
		t.Errorf("Handler did not receive the diff: %+v", handled)
	}
}

func TestPollOnceEmptyDiffSkipsHandler(t *testing.T) {
	source := &scriptedSource{results: []*FetchResult{
		snapshot(movie("k1", "Alien")),
		snapshot(movie("k1", "Alien")),
	}}

	calls := 0
	p := newTestPoller(source, func(context.Context, FeedRef, *Diff) { calls++ })

	state := &feedState{}
	p.pollOnce(context.Background(), testFeed, state)
	p.pollOnce(context.Background(), testFeed, state)
	if calls != 1 {
		t.Errorf("Expected handler to fire once, got %d", calls)
	}
}

func TestPollOnceRateLimitReturnsCooldown(t *testing.T) {
	source := &scriptedSource{
		results: []*FetchResult{nil},
		errs:    []error{fmt.Errorf("origin: %w", ErrRateLimited)},
	}
	p := newTestPoller(source, nil)

	delay := p.pollOnce(context.Background(), testFeed, &feedState{})
	if delay != 5*time.Minute {
		t.Errorf("Expected rate-limit cooldown, got %v", delay)
	}
}

func TestPollOnceFailuresEscalateToFallbackInterval(t *testing.T) {
	softErr := errors.New("origin down")
	source := &scriptedSource{
		results: []*FetchResult{nil, nil, nil, snapshot()},
		errs:    []error{softErr, softErr, softErr, nil},
	}
	p := newTestPoller(source, nil)

	state := &feedState{}
	if delay := p.pollOnce(context.Background(), testFeed, state); delay != time.Minute {
		t.Errorf("First failure should keep base interval, got %v", delay)
	}
	if delay := p.pollOnce(context.Background(), testFeed, state); delay != 10*time.Minute {
		t.Errorf("Threshold failure should escalate, got %v", delay)
	}
	if delay := p.pollOnce(context.Background(), testFeed, state); delay != 10*time.Minute {
		t.Errorf("Failures past threshold stay escalated, got %v", delay)
	}

	// A clean poll resets the failure count.
	if delay := p.pollOnce(context.Background(), testFeed, state); delay != time.Minute {
		t.Errorf("Success should restore base interval, got %v", delay)
	}
	if state.consecutiveFailures != 0 {
		t.Errorf("Expected failure count reset, got %d", state.consecutiveFailures)
	}
}

func TestPollOnceSkipsWhileInFlight(t *testing.T) {
	source := &scriptedSource{results: []*FetchResult{snapshot()}}
	p := newTestPoller(source, nil)

	state := &feedState{}
	state.inFlight.Store(true)
	p.pollOnce(context.Background(), testFeed, state)
	if source.calls != 0 {
		t.Errorf("In-flight feed must skip the tick, fetched %d times", source.calls)
	}
}
