package watchlist

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

// scriptedSource returns one canned FetchResult per call.
type scriptedSource struct {
	results []*FetchResult
	errs    []error
	calls   int
	tokens  []string
}

func (s *scriptedSource) Fetch(_ context.Context, _ FeedRef, token string) (*FetchResult, error) {
	i := s.calls
	s.calls++
	s.tokens = append(s.tokens, token)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i], nil
}

func snapshot(items ...Item) *FetchResult {
	return &FetchResult{NewToken: "tok", Items: items}
}

func movie(key, title string) Item {
	return Item{Title: title, Type: ContentTypeMovie, PlexKey: key}
}

var testFeed = FeedRef{UserID: 7, UserName: "alice", Token: "plex-token"}

func TestPollInitialFetchReportsEverythingAdded(t *testing.T) {
	source := &scriptedSource{results: []*FetchResult{
		snapshot(movie("k1", "Alien"), movie("k2", "Aliens")),
	}}
	d := NewDiffer(NewCache(), source, zerolog.Nop())

	diff, err := d.Poll(context.Background(), testFeed)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(diff.Added) != 2 {
		t.Errorf("Expected 2 added items, got %d", len(diff.Added))
	}
	if len(diff.Removed) != 0 {
		t.Errorf("Expected no removals, got %d", len(diff.Removed))
	}
}

func TestPollIsIdempotentForIdenticalSnapshots(t *testing.T) {
	source := &scriptedSource{results: []*FetchResult{
		snapshot(movie("k1", "Alien")),
		snapshot(movie("k1", "Alien")),
	}}
	d := NewDiffer(NewCache(), source, zerolog.Nop())

	if _, err := d.Poll(context.Background(), testFeed); err != nil {
		t.Fatalf("First poll failed: %v", err)
	}
	diff, err := d.Poll(context.Background(), testFeed)
	if err != nil {
		t.Fatalf("Second poll failed: %v", err)
	}
	if !diff.Empty() {
		t.Errorf("Identical snapshot should produce an empty diff, got %+v", diff)
	}
}

func TestPollUnchangedTokenSkipsDiff(t *testing.T) {
	source := &scriptedSource{results: []*FetchResult{
		snapshot(movie("k1", "Alien")),
		{Unchanged: true, NewToken: "tok"},
	}}
	cache := NewCache()
	d := NewDiffer(cache, source, zerolog.Nop())

	if _, err := d.Poll(context.Background(), testFeed); err != nil {
		t.Fatalf("First poll failed: %v", err)
	}
	diff, err := d.Poll(context.Background(), testFeed)
	if err != nil {
		t.Fatalf("Second poll failed: %v", err)
	}
	if !diff.Empty() {
		t.Errorf("Unchanged feed should produce an empty diff, got %+v", diff)
	}
	if got := source.tokens[1]; got != "tok" {
		t.Errorf("Second fetch should carry the stored token, got %q", got)
	}
	if cache.Token(testFeed.Key()) != "tok" {
		t.Errorf("Unchanged response must not clear the stored token")
	}
}

func TestPollDebouncesRemovals(t *testing.T) {
	source := &scriptedSource{results: []*FetchResult{
		snapshot(movie("k1", "Alien"), movie("k2", "Aliens")),
		snapshot(movie("k1", "Alien")),
		snapshot(movie("k1", "Alien")),
	}}
	d := NewDiffer(NewCache(), source, zerolog.Nop())

	ctx := context.Background()
	if _, err := d.Poll(ctx, testFeed); err != nil {
		t.Fatalf("First poll failed: %v", err)
	}

	// First absence is debounced: no removal yet.
	diff, err := d.Poll(ctx, testFeed)
	if err != nil {
		t.Fatalf("Second poll failed: %v", err)
	}
	if len(diff.Removed) != 0 {
		t.Fatalf("Single absence must not report a removal, got %d", len(diff.Removed))
	}

	// Second consecutive absence crosses the threshold.
	diff, err = d.Poll(ctx, testFeed)
	if err != nil {
		t.Fatalf("Third poll failed: %v", err)
	}
	if len(diff.Removed) != 1 || diff.Removed[0].Key != "k2" {
		t.Fatalf("Expected k2 removed after two absences, got %+v", diff.Removed)
	}
}

func TestPollReappearanceCancelsPendingRemoval(t *testing.T) {
	source := &scriptedSource{results: []*FetchResult{
		snapshot(movie("k1", "Alien")),
		snapshot(),
		snapshot(movie("k1", "Alien")),
		snapshot(),
		snapshot(),
	}}
	d := NewDiffer(NewCache(), source, zerolog.Nop())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		diff, err := d.Poll(ctx, testFeed)
		if err != nil {
			t.Fatalf("Poll %d failed: %v", i, err)
		}
		if len(diff.Removed) != 0 {
			t.Fatalf("Poll %d reported an unexpected removal", i)
		}
	}

	// The reappearance reset the absence counter, so a fresh pair of
	// absences is needed before the removal fires.
	diff, err := d.Poll(ctx, testFeed)
	if err != nil {
		t.Fatalf("Fourth poll failed: %v", err)
	}
	if len(diff.Removed) != 0 {
		t.Fatalf("Absence counter was not reset by reappearance")
	}
	diff, err = d.Poll(ctx, testFeed)
	if err != nil {
		t.Fatalf("Fifth poll failed: %v", err)
	}
	if len(diff.Removed) != 1 {
		t.Fatalf("Expected removal after two fresh absences, got %d", len(diff.Removed))
	}
}

func TestPollFetchErrorLeavesCacheUntouched(t *testing.T) {
	fetchErr := errors.New("origin down")
	source := &scriptedSource{
		results: []*FetchResult{
			snapshot(movie("k1", "Alien")),
			nil,
			snapshot(movie("k1", "Alien")),
		},
		errs: []error{nil, fetchErr, nil},
	}
	cache := NewCache()
	d := NewDiffer(cache, source, zerolog.Nop())

	ctx := context.Background()
	if _, err := d.Poll(ctx, testFeed); err != nil {
		t.Fatalf("First poll failed: %v", err)
	}
	if _, err := d.Poll(ctx, testFeed); !errors.Is(err, fetchErr) {
		t.Fatalf("Expected fetch error to propagate, got %v", err)
	}
	if cache.Token(testFeed.Key()) != "tok" {
		t.Errorf("Failed fetch must not disturb the cached snapshot")
	}
	diff, err := d.Poll(ctx, testFeed)
	if err != nil {
		t.Fatalf("Recovery poll failed: %v", err)
	}
	if !diff.Empty() {
		t.Errorf("Recovery poll should be a no-op, got %+v", diff)
	}
}

func TestForgetForcesFullRefetch(t *testing.T) {
	source := &scriptedSource{results: []*FetchResult{
		snapshot(movie("k1", "Alien")),
		snapshot(movie("k1", "Alien")),
	}}
	cache := NewCache()
	d := NewDiffer(cache, source, zerolog.Nop())

	ctx := context.Background()
	if _, err := d.Poll(ctx, testFeed); err != nil {
		t.Fatalf("First poll failed: %v", err)
	}

	cache.Forget(testFeed.Key())

	diff, err := d.Poll(ctx, testFeed)
	if err != nil {
		t.Fatalf("Poll after Forget failed: %v", err)
	}
	if len(diff.Added) != 1 {
		t.Errorf("Forget should make the next poll report everything as added")
	}
	if got := source.tokens[1]; got != "" {
		t.Errorf("Poll after Forget must not send a freshness token, sent %q", got)
	}
}
