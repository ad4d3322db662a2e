package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/testutil"
	"github.com/helmarr/helmarr/internal/watchlist"
)

func pendingInput(userID int64, contentKey string) store.CreateApprovalInput {
	return store.CreateApprovalInput{
		UserID:      userID,
		ContentKey:  contentKey,
		ContentType: watchlist.ContentTypeMovie,
		Title:       "The Thing",
		TriggeredBy: store.TriggerManualFlag,
	}
}

// seedUser satisfies the FK on approval_requests.user_id.
func seedUser(t *testing.T, tdb *testutil.TestDB, name string) int64 {
	t.Helper()
	u, err := tdb.Store.CreateUser(context.Background(), name, "token", true, false)
	require.NoError(t, err)
	return u.ID
}

func TestCreateApprovalRequestDuplicate(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, tdb, "alice")

	first, err := tdb.Store.CreateApprovalRequest(ctx, pendingInput(alice, "k1"))
	require.NoError(t, err)

	second, err := tdb.Store.CreateApprovalRequest(ctx, pendingInput(alice, "k1"))
	assert.ErrorIs(t, err, store.ErrDuplicateApproval)
	assert.Equal(t, first.ID, second.ID)

	// A different content key for the same user is a fresh request.
	_, err = tdb.Store.CreateApprovalRequest(ctx, pendingInput(alice, "k2"))
	assert.NoError(t, err)
}

func TestResolveApprovalTerminalStates(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, tdb, "alice")

	req, err := tdb.Store.CreateApprovalRequest(ctx, pendingInput(alice, "k1"))
	require.NoError(t, err)

	resolved, err := tdb.Store.ResolveApproval(ctx, req.ID, store.ApprovalApproved)
	require.NoError(t, err)
	assert.Equal(t, store.ApprovalApproved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)

	// Terminal states are final.
	_, err = tdb.Store.ResolveApproval(ctx, req.ID, store.ApprovalRejected)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	// Resolution frees the slot for a new pending request.
	_, err = tdb.Store.CreateApprovalRequest(ctx, pendingInput(alice, "k1"))
	assert.NoError(t, err)
}

func TestResolveApprovalUnknownID(t *testing.T) {
	tdb := testutil.NewTestDB(t)

	_, err := tdb.Store.ResolveApproval(context.Background(), "nope", store.ApprovalApproved)
	assert.ErrorIs(t, err, store.ErrApprovalNotFound)
}

func TestExpirePendingBefore(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, tdb, "alice")

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	overdue := pendingInput(alice, "k1")
	overdue.ExpiresAt = &past
	fresh := pendingInput(alice, "k2")
	fresh.ExpiresAt = &future
	unbounded := pendingInput(alice, "k3")

	req, err := tdb.Store.CreateApprovalRequest(ctx, overdue)
	require.NoError(t, err)
	_, err = tdb.Store.CreateApprovalRequest(ctx, fresh)
	require.NoError(t, err)
	_, err = tdb.Store.CreateApprovalRequest(ctx, unbounded)
	require.NoError(t, err)

	transitioned, err := tdb.Store.ExpirePendingBefore(ctx, time.Now(), store.ApprovalExpired)
	require.NoError(t, err)
	require.Len(t, transitioned, 1)
	assert.Equal(t, req.ID, transitioned[0].ID)
	assert.Equal(t, store.ApprovalExpired, transitioned[0].Status)

	// Requests without an expiry never expire.
	pending, err := tdb.Store.ListApprovals(ctx, store.ApprovalPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestPurgeResolvedBefore(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, tdb, "alice")

	req, err := tdb.Store.CreateApprovalRequest(ctx, pendingInput(alice, "k1"))
	require.NoError(t, err)
	_, err = tdb.Store.ResolveApproval(ctx, req.ID, store.ApprovalRejected)
	require.NoError(t, err)

	keep, err := tdb.Store.CreateApprovalRequest(ctx, pendingInput(alice, "k2"))
	require.NoError(t, err)

	n, err := tdb.Store.PurgeResolvedBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = tdb.Store.GetApproval(ctx, req.ID)
	assert.ErrorIs(t, err, store.ErrApprovalNotFound)

	// Pending requests are never purged.
	got, err := tdb.Store.GetApproval(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ApprovalPending, got.Status)
}

func TestListApprovalsStatusFilter(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, tdb, "alice")
	bob := seedUser(t, tdb, "bob")

	a, err := tdb.Store.CreateApprovalRequest(ctx, pendingInput(alice, "k1"))
	require.NoError(t, err)
	_, err = tdb.Store.CreateApprovalRequest(ctx, pendingInput(bob, "k1"))
	require.NoError(t, err)
	_, err = tdb.Store.ResolveApproval(ctx, a.ID, store.ApprovalApproved)
	require.NoError(t, err)

	pending, err := tdb.Store.ListApprovals(ctx, store.ApprovalPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	all, err := tdb.Store.ListApprovals(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetApprovalUnknownID(t *testing.T) {
	tdb := testutil.NewTestDB(t)

	_, err := tdb.Store.GetApproval(context.Background(), "missing")
	assert.True(t, errors.Is(err, store.ErrApprovalNotFound))
}
