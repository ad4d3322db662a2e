package health

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	issues   []string
	restored []string
}

func (n *recordingNotifier) DispatchHealthIssue(_ context.Context, source, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.issues = append(n.issues, source)
}

func (n *recordingNotifier) DispatchHealthRestored(_ context.Context, source, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.restored = append(n.restored, source)
}

func TestStatusTransitionsNotify(t *testing.T) {
	svc := NewService(zerolog.Nop())
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)

	svc.RegisterItem(CategoryInstances, "1", "radarr-main")

	svc.SetError(CategoryInstances, "1", "connection refused")
	require.Len(t, notifier.issues, 1)
	assert.Equal(t, "instances: radarr-main", notifier.issues[0])

	// Same status again is not a transition.
	svc.SetError(CategoryInstances, "1", "connection refused")
	assert.Len(t, notifier.issues, 1)

	svc.ClearStatus(CategoryInstances, "1")
	require.Len(t, notifier.restored, 1)

	item := svc.GetItem(CategoryInstances, "1")
	require.NotNil(t, item)
	assert.Equal(t, StatusOK, item.Status)
	assert.Nil(t, item.Timestamp)
}

func TestSummaryCountsIssues(t *testing.T) {
	svc := NewService(zerolog.Nop())
	svc.RegisterItem(CategoryInstances, "1", "radarr")
	svc.RegisterItem(CategoryInstances, "2", "sonarr")
	svc.RegisterItem(CategoryFeeds, "user:1", "alice")

	svc.SetError(CategoryInstances, "2", "down")
	svc.SetWarning(CategoryFeeds, "user:1", "slow polls")

	summary := svc.GetSummary()
	assert.True(t, summary.HasIssues)

	byCategory := map[HealthCategory]CategorySummary{}
	for _, c := range summary.Categories {
		byCategory[c.Category] = c
	}
	assert.Equal(t, 1, byCategory[CategoryInstances].OK)
	assert.Equal(t, 1, byCategory[CategoryInstances].Error)
	assert.Equal(t, 1, byCategory[CategoryFeeds].Warning)
}

func TestUnregisteredItemIgnored(t *testing.T) {
	svc := NewService(zerolog.Nop())
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)

	svc.SetError(CategoryInstances, "ghost", "nope")
	assert.Empty(t, notifier.issues)
	assert.Nil(t, svc.GetItem(CategoryInstances, "ghost"))
}
