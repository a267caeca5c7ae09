package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/approval-desk/approval"
	"github.com/warp/approval-desk/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T) (*sqlite.Store, *clock) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	c := &clock{now: time.Date(2025, time.March, 21, 9, 0, 0, 0, time.UTC)}
	store.Now = c.Now
	return store, c
}

// =============================================================================
// KEY-VALUE
// =============================================================================

func TestStore_KV_SetGetDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, approval.ErrKeyNotFound)

	require.NoError(t, store.Set(ctx, "k", []byte("v1"), 0))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	// Overwrite
	require.NoError(t, store.Set(ctx, "k", []byte("v2"), 0))
	got, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, approval.ErrKeyNotFound)
}

func TestStore_KV_Expiry(t *testing.T) {
	// GIVEN: A key with a 15 minute TTL and one without
	store, c := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "lock", []byte("1"), 15*time.Minute))
	require.NoError(t, store.Set(ctx, "forever", []byte("1"), 0))

	// WHEN: 14 minutes pass
	c.Advance(14 * time.Minute)

	// THEN: Still visible
	_, err := store.Get(ctx, "lock")
	assert.NoError(t, err)

	// WHEN: The TTL is reached
	c.Advance(time.Minute)

	// THEN: Invisible, then purged
	_, err = store.Get(ctx, "lock")
	assert.ErrorIs(t, err, approval.ErrKeyNotFound)

	n, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, "forever")
	assert.NoError(t, err)
}

// =============================================================================
// JOURNAL
// =============================================================================

func TestStore_Journal_OrderedByCreatedAt(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, time.March, 21, 15, 30, 0, 0, time.UTC)

	// Inserted out of order, with sub-second precision
	require.NoError(t, store.Record(ctx, approval.ActionRecord{
		ID: "b", RequestID: 1, ActorID: 102, Action: approval.ActionApprove,
		Level: 2, Designation: 9, Outcome: approval.OutcomeAccepted,
		CreatedAt: base.Add(500 * time.Millisecond),
	}))
	require.NoError(t, store.Record(ctx, approval.ActionRecord{
		ID: "a", RequestID: 1, ActorID: 102, Action: approval.ActionReject,
		Level: 2, Designation: 9, Text: "too short", Outcome: approval.OutcomeRefused,
		Error: "reason: must be at least 10 characters", CreatedAt: base,
	}))
	require.NoError(t, store.Record(ctx, approval.ActionRecord{
		ID: "other", RequestID: 2, Action: approval.ActionApprove,
		Outcome: approval.OutcomeAccepted, CreatedAt: base,
	}))

	recs, err := store.ListByRequest(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, approval.ActionReject, recs[0].Action)
	assert.Equal(t, "too short", recs[0].Text)
	assert.Equal(t, approval.OutcomeRefused, recs[0].Outcome)
	assert.True(t, base.Equal(recs[0].CreatedAt))

	assert.Equal(t, "b", recs[1].ID)
	assert.Equal(t, approval.UserID(102), recs[1].ActorID)
	assert.Equal(t, approval.DesignationID(9), recs[1].Designation)
	assert.Empty(t, recs[1].Error)
}

func TestStore_Journal_DuplicateID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := approval.ActionRecord{ID: "x", RequestID: 1, Action: approval.ActionApprove, Outcome: approval.OutcomeAccepted}
	require.NoError(t, store.Record(ctx, rec))

	err := store.Record(ctx, rec)
	assert.ErrorIs(t, err, approval.ErrDuplicateRecord)
}
