package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/approval-desk/approval"
	"github.com/warp/approval-desk/approval/store"
)

func TestMemory_KV_Expiry(t *testing.T) {
	// GIVEN: A key with a one minute TTL
	m := store.NewMemory()
	now := time.Date(2025, time.March, 21, 9, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	// WHEN: The TTL passes
	now = now.Add(time.Minute)

	// THEN: Not found, and purged once
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, approval.ErrKeyNotFound)

	n, err := m.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemory_KV_ValuesAreCopied(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", buf, 0))
	buf[0] = 'z'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestMemory_Journal(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	base := time.Date(2025, time.March, 21, 9, 0, 0, 0, time.UTC)

	require.NoError(t, m.Record(ctx, approval.ActionRecord{ID: "2", RequestID: 1, CreatedAt: base.Add(time.Second)}))
	require.NoError(t, m.Record(ctx, approval.ActionRecord{ID: "1", RequestID: 1, CreatedAt: base}))
	require.NoError(t, m.Record(ctx, approval.ActionRecord{ID: "3", RequestID: 1, CreatedAt: base.Add(time.Second)}))

	recs, err := m.ListByRequest(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "1", recs[0].ID)
	assert.Equal(t, "2", recs[1].ID)
	assert.Equal(t, "3", recs[2].ID)

	assert.ErrorIs(t, m.Record(ctx, approval.ActionRecord{ID: "1", RequestID: 1}), approval.ErrDuplicateRecord)

	empty, err := m.ListByRequest(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
