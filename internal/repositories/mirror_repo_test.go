package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/prudhvinik1/edgeledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// TestMirrorRepository_PutGet tests a round trip through the mirror
func TestMirrorRepository_PutGet(t *testing.T) {
	// ARRANGE
	store := newTestStore(t, filepath.Join(t.TempDir(), "mirror.db"))
	repo := store.Mirror()
	ctx := context.Background()
	rec := testSale("s1", "2024-01-15", "cash")

	// ACT
	err := repo.Put(ctx, models.TableSales, rec)

	// ASSERT
	require.NoError(t, err)
	got, err := repo.Get(ctx, models.TableSales, "s1")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", got.Fields["sale_date"])
	assert.Equal(t, json.Number("210"), got.Fields["total_amount"])
	assert.Equal(t, models.SyncStateQueued, got.SyncState)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.SyncedAt)
}

func TestMirrorRepository_PutOverwrites(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "mirror.db"))
	repo := store.Mirror()
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, models.TableSales, testSale("s1", "2024-01-15", "cash")))

	replacement := testSale("s1", "2024-01-20", "card")
	delete(replacement.Fields, "notes")
	require.NoError(t, repo.Put(ctx, models.TableSales, replacement))

	got, err := repo.Get(ctx, models.TableSales, "s1")
	require.NoError(t, err)
	assert.Equal(t, "card", got.Fields["payment_method"])
	assert.NotContains(t, got.Fields, "notes", "last write wins, no merge")
}

// TestMirrorRepository_IndexFollowsWrites tests that index lookups are
// never stale after overwrite, state change and delete
func TestMirrorRepository_IndexFollowsWrites(t *testing.T) {
	// ARRANGE
	store := newTestStore(t, filepath.Join(t.TempDir(), "mirror.db"))
	repo := store.Mirror()
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, models.TableSales, testSale("s1", "2024-01-15T18:30:00Z", "cash")))
	require.NoError(t, repo.Put(ctx, models.TableSales, testSale("s2", "2024-01-15", "cash")))

	// ASSERT: timestamps index by their date
	found, err := repo.QueryByIndex(ctx, models.TableSales, models.IndexByDate, "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, recordIDs(found))

	// ACT: move s1 to another day
	require.NoError(t, repo.Put(ctx, models.TableSales, testSale("s1", "2024-01-16", "cash")))

	found, err = repo.QueryByIndex(ctx, models.TableSales, models.IndexByDate, "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, recordIDs(found))

	// ACT: sync state changes move the sync index
	syncedAt := time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetSyncState(ctx, models.TableSales, "s2", models.SyncStateSynced, &syncedAt, ""))

	synced, err := repo.QueryByIndex(ctx, models.TableSales, models.IndexBySynced, "synced")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, recordIDs(synced))
	require.NotNil(t, synced[0].SyncedAt)
	assert.True(t, syncedAt.Equal(*synced[0].SyncedAt))

	// ACT: delete
	require.NoError(t, repo.Delete(ctx, models.TableSales, "s2"))

	synced, err = repo.QueryByIndex(ctx, models.TableSales, models.IndexBySynced, "synced")
	require.NoError(t, err)
	assert.Empty(t, synced)
}

func TestMirrorRepository_NullFieldsAreNotIndexed(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "mirror.db"))
	repo := store.Mirror()
	ctx := context.Background()
	rec := testSale("s1", "2024-01-15", "cash")
	rec.Fields["customer_id"] = nil
	require.NoError(t, repo.Put(ctx, models.TableSales, rec))

	found, err := repo.QueryByIndex(ctx, models.TableSales, models.IndexByCustomer, "")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestMirrorRepository_SetSyncStateKeepsSyncedAt(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "mirror.db"))
	repo := store.Mirror()
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, models.TableSales, testSale("s1", "2024-01-15", "cash")))
	syncedAt := time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetSyncState(ctx, models.TableSales, "s1", models.SyncStateSynced, &syncedAt, ""))

	require.NoError(t, repo.SetSyncState(ctx, models.TableSales, "s1", models.SyncStateSyncFailed, nil, "check violation"))

	got, err := repo.Get(ctx, models.TableSales, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateSyncFailed, got.SyncState)
	assert.Equal(t, "check violation", got.SyncError)
	require.NotNil(t, got.SyncedAt)
	assert.True(t, syncedAt.Equal(*got.SyncedAt))
}

func TestMirrorRepository_NotFoundAndUnknownTable(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "mirror.db"))
	repo := store.Mirror()
	ctx := context.Background()

	_, err := repo.Get(ctx, models.TableSales, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, models.TableSales, "missing"), ErrNotFound)
	assert.ErrorIs(t, repo.SetSyncState(ctx, models.TableSales, "missing", models.SyncStateSynced, nil, ""), ErrNotFound)

	_, err = repo.GetAll(ctx, "invoices")
	assert.ErrorIs(t, err, ErrUnknownTable)

	_, err = repo.QueryByIndex(ctx, models.TableSales, "by-colour", "red")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, repo.Put(ctx, models.TableSales, &models.Record{}), "id is required")
}

// TestMirrorRepository_SurvivesReopen tests durability across restarts
func TestMirrorRepository_SurvivesReopen(t *testing.T) {
	// ARRANGE
	path := filepath.Join(t.TempDir(), "mirror.db")
	ctx := context.Background()
	store := newTestStore(t, path)
	require.NoError(t, store.Mirror().Put(ctx, models.TableSales, testSale("s1", "2024-01-15", "cash")))
	require.NoError(t, store.Queue().Enqueue(ctx, &models.SyncQueueItem{
		TableName: models.TableSales, RecordID: "s1", Action: models.ActionInsert, Payload: map[string]any{"id": "s1"},
	}))
	require.NoError(t, store.db.Close())

	// ACT
	reopened := newTestStore(t, path)

	// ASSERT
	got, err := reopened.Mirror().Get(ctx, models.TableSales, "s1")
	require.NoError(t, err)
	assert.Equal(t, "cash", got.Fields["payment_method"])
	found, err := reopened.Mirror().QueryByIndex(ctx, models.TableSales, models.IndexByDate, "2024-01-15")
	require.NoError(t, err)
	assert.Len(t, found, 1)
	n, err := reopened.Queue().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMirrorRepository_Clear(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "mirror.db"))
	repo := store.Mirror()
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, models.TableSales, testSale("s1", "2024-01-15", "cash")))
	require.NoError(t, repo.Put(ctx, models.TableCustomers, &models.Record{ID: "c1", Fields: map[string]any{"name": "Mona"}}))

	require.NoError(t, repo.Clear(ctx, models.TableSales))

	all, err := repo.GetAll(ctx, models.TableSales)
	require.NoError(t, err)
	assert.Empty(t, all)
	customers, err := repo.GetAll(ctx, models.TableCustomers)
	require.NoError(t, err)
	assert.Len(t, customers, 1)
}

// TestLocalStore_InTxRollsBack tests that a failing step undoes the
// earlier steps of the same transaction
func TestLocalStore_InTxRollsBack(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "mirror.db"))
	ctx := context.Background()

	err := store.InTx(ctx, func(mirror MirrorRepository, queue SyncQueueRepository) error {
		if err := mirror.Put(ctx, models.TableSales, testSale("s1", "2024-01-15", "cash")); err != nil {
			return err
		}
		return queue.Enqueue(ctx, &models.SyncQueueItem{TableName: models.TableSales, RecordID: "s1", Action: "upsert"})
	})

	require.Error(t, err)
	_, err = store.Mirror().Get(ctx, models.TableSales, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

// Helper functions

func newTestStore(t *testing.T, path string) *SQLiteLocalStore {
	t.Helper()
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteLocalStore(context.Background(), db, models.DefaultSchema())
	require.NoError(t, err)
	return store
}

func testSale(id, date, method string) *models.Record {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	return &models.Record{
		ID: id,
		Fields: map[string]any{
			"sale_date":      date,
			"payment_method": method,
			"total_amount":   210,
			"customer_id":    "cust-1",
			"notes":          "hem",
		},
		CreatedAt: now,
		UpdatedAt: now,
		SyncState: models.SyncStateQueued,
	}
}

func recordIDs(records []*models.Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
