package repositories

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/prudhvinik1/edgeledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSyncQueueRepository_DrainIsFIFO tests that items come back in
// enqueue order even when they share a timestamp
func TestSyncQueueRepository_DrainIsFIFO(t *testing.T) {
	// ARRANGE: a frozen clock makes every createdAt collide
	frozen := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, filepath.Join(t.TempDir(), "mirror.db")).WithClock(func() time.Time { return frozen })
	queue := store.Queue()
	ctx := context.Background()

	var enqueued []string
	for _, id := range []string{"r3", "r1", "r2", "r1"} {
		item := &models.SyncQueueItem{TableName: models.TableSales, RecordID: id, Action: models.ActionUpdate, Payload: map[string]any{"id": id}}
		require.NoError(t, queue.Enqueue(ctx, item))
		enqueued = append(enqueued, item.ID)
	}

	// ACT
	items, err := queue.Drain(ctx)

	// ASSERT
	require.NoError(t, err)
	require.Len(t, items, 4)
	for i, item := range items {
		assert.Equal(t, enqueued[i], item.ID)
		assert.True(t, frozen.Equal(item.CreatedAt))
	}
	assert.Less(t, items[0].Seq, items[3].Seq)
}

// TestSyncQueueRepository_CreatedAtNeverGoesBackwards tests the clamp
// against clock skew
func TestSyncQueueRepository_CreatedAtNeverGoesBackwards(t *testing.T) {
	clock := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, filepath.Join(t.TempDir(), "mirror.db")).WithClock(func() time.Time { return clock })
	queue := store.Queue()
	ctx := context.Background()

	first := &models.SyncQueueItem{TableName: models.TableSales, RecordID: "a", Action: models.ActionInsert}
	require.NoError(t, queue.Enqueue(ctx, first))
	clock = clock.Add(-time.Hour)
	second := &models.SyncQueueItem{TableName: models.TableSales, RecordID: "b", Action: models.ActionInsert}
	require.NoError(t, queue.Enqueue(ctx, second))

	assert.False(t, second.CreatedAt.Before(first.CreatedAt))
	items, err := queue.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", items[0].RecordID)
	assert.Equal(t, "b", items[1].RecordID)
}

func TestSyncQueueRepository_PayloadRoundTrip(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "mirror.db"))
	queue := store.Queue()
	ctx := context.Background()
	item := &models.SyncQueueItem{
		TableName: models.TableSales,
		RecordID:  "s1",
		Action:    models.ActionInsert,
		Payload:   map[string]any{"id": "s1", "total_amount": 210.5, "notes": nil},
	}
	require.NoError(t, queue.Enqueue(ctx, item))

	items, err := queue.Drain(ctx)

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.ActionInsert, items[0].Action)
	assert.Equal(t, json.Number("210.5"), items[0].Payload["total_amount"])
	assert.Contains(t, items[0].Payload, "notes")
}

func TestSyncQueueRepository_RemoveCountHasPending(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "mirror.db"))
	queue := store.Queue()
	ctx := context.Background()
	a := &models.SyncQueueItem{TableName: models.TableSales, RecordID: "s1", Action: models.ActionInsert}
	b := &models.SyncQueueItem{TableName: models.TableSales, RecordID: "s1", Action: models.ActionUpdate}
	require.NoError(t, queue.Enqueue(ctx, a))
	require.NoError(t, queue.Enqueue(ctx, b))

	n, err := queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, queue.Remove(ctx, a.ID))
	pending, err := queue.HasPending(ctx, models.TableSales, "s1")
	require.NoError(t, err)
	assert.True(t, pending)

	require.NoError(t, queue.Remove(ctx, b.ID))
	pending, err = queue.HasPending(ctx, models.TableSales, "s1")
	require.NoError(t, err)
	assert.False(t, pending)

	assert.ErrorIs(t, queue.Remove(ctx, a.ID), ErrNotFound)
}

func TestSyncQueueRepository_Clear(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "mirror.db"))
	queue := store.Queue()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, queue.Enqueue(ctx, &models.SyncQueueItem{TableName: models.TableSales, RecordID: "s", Action: models.ActionDelete}))
	}

	require.NoError(t, queue.Clear(ctx))

	items, err := queue.Drain(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSyncQueueRepository_EnqueueValidates(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "mirror.db"))
	queue := store.Queue()
	ctx := context.Background()

	assert.Error(t, queue.Enqueue(ctx, &models.SyncQueueItem{RecordID: "s1", Action: models.ActionInsert}))
	assert.Error(t, queue.Enqueue(ctx, &models.SyncQueueItem{TableName: models.TableSales, Action: models.ActionInsert}))
	assert.Error(t, queue.Enqueue(ctx, &models.SyncQueueItem{TableName: models.TableSales, RecordID: "s1", Action: "merge"}))
}
