package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prudhvinik1/edgeledger/internal/models"
	"github.com/prudhvinik1/edgeledger/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecordService_AddRecord_SaleDerivesVAT tests the optimistic write
// path: totals are derived, the record is queued and the insert enqueued
func TestRecordService_AddRecord_SaleDerivesVAT(t *testing.T) {
	// ARRANGE
	env := newTestEnv(t)
	ctx := context.Background()

	// ACT
	rec, err := env.records.AddRecord(ctx, models.TableSales, saleFields("2024-01-15", 2, 100))

	// ASSERT
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, models.SyncStateQueued, rec.SyncState)
	assert.Equal(t, json.Number("200"), rec.Fields["subtotal"])
	assert.Equal(t, json.Number("10"), rec.Fields["vat_amount"])
	assert.Equal(t, json.Number("210"), rec.Fields["total_amount"])
	assert.Equal(t, "paid", rec.Fields["payment_status"])

	stored, err := env.records.GetRecord(ctx, models.TableSales, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, json.Number("210"), stored.Fields["total_amount"])

	items, err := env.records.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.ActionInsert, items[0].Action)
	assert.Equal(t, rec.ID, items[0].RecordID)
	assert.Equal(t, rec.ID, items[0].Payload["id"])
	assert.NotContains(t, items[0].Payload, models.FieldSyncState)
}

func TestRecordService_AddRecord_KeepsClientID(t *testing.T) {
	env := newTestEnv(t)

	fields := map[string]any{"id": "cust-1", "name": "Iman"}
	rec, err := env.records.AddRecord(context.Background(), models.TableCustomers, fields)

	require.NoError(t, err)
	assert.Equal(t, "cust-1", rec.ID)
	assert.NotContains(t, rec.Fields, "id")
}

// TestRecordService_AddRecord_ValidationLeavesNoTrace tests that an invalid
// record is neither stored nor queued
func TestRecordService_AddRecord_ValidationLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cases := map[string]map[string]any{
		"missing payment method": func() map[string]any {
			f := saleFields("2024-01-15", 1, 10)
			delete(f, "payment_method")
			return f
		}(),
		"zero quantity":     saleFields("2024-01-15", 0, 10),
		"bad date":          saleFields("15/01/2024", 1, 10),
		"no service or description": func() map[string]any {
			f := saleFields("2024-01-15", 1, 10)
			delete(f, "custom_description")
			return f
		}(),
		"wrong type": func() map[string]any {
			f := saleFields("2024-01-15", 1, 10)
			f["sale_date"] = 20240115
			return f
		}(),
	}

	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.records.AddRecord(ctx, models.TableSales, fields)

			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	all, err := env.records.ListRecords(ctx, models.TableSales)
	require.NoError(t, err)
	assert.Empty(t, all)
	count, err := env.records.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecordService_AddRecord_UnknownTable(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.records.AddRecord(context.Background(), "invoices", map[string]any{"x": 1})

	assert.ErrorIs(t, err, repositories.ErrUnknownTable)
}

func TestRecordService_AddRecord_ExpenseVATIncluded(t *testing.T) {
	env := newTestEnv(t)

	rec, err := env.records.AddRecord(context.Background(), models.TableExpenses, map[string]any{
		"expense_date":   "2024-01-10",
		"amount":         210,
		"payment_method": "card",
		"vat_included":   true,
	})

	require.NoError(t, err)
	assert.Equal(t, json.Number("10"), rec.Fields["vat_amount"])
	assert.Equal(t, json.Number("210"), rec.Fields["total_amount"])
	assert.NotContains(t, rec.Fields, "vat_included", "not a backend column")
}

func TestRecordService_AddRecord_SalaryNetAmount(t *testing.T) {
	env := newTestEnv(t)

	rec, err := env.records.AddRecord(context.Background(), models.TableSalaryPayments, map[string]any{
		"employee_id":  "emp-1",
		"payment_date": "2024-01-31",
		"period_month": 1,
		"period_year":  2024,
		"base_salary":  "5000",
		"deductions":   "250.50",
		"advances":     500,
	})

	require.NoError(t, err)
	assert.Equal(t, json.Number("4249.5"), rec.Fields["net_amount"])
}

// TestRecordService_AddRecord_DerivedAmountsAreRounded tests that derived
// amounts never carry more than two decimals
func TestRecordService_AddRecord_DerivedAmountsAreRounded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	expense, err := env.records.AddRecord(ctx, models.TableExpenses, map[string]any{
		"expense_date": "2024-01-10", "amount": "10.005", "payment_method": "cash",
	})
	require.NoError(t, err)
	salary, err := env.records.AddRecord(ctx, models.TableSalaryPayments, map[string]any{
		"employee_id": "emp-1", "payment_date": "2024-01-31", "period_month": 1, "period_year": 2024,
		"base_salary": "1000.333", "deductions": "0.001", "advances": 0,
	})
	require.NoError(t, err)

	assert.Equal(t, json.Number("10.01"), expense.Fields["total_amount"])
	assert.Equal(t, json.Number("0"), expense.Fields["vat_amount"])
	assert.Equal(t, json.Number("1000.33"), salary.Fields["net_amount"])
}

// TestRecordService_UpdateRecord_MergesAndRequeues tests that updates carry
// the merged snapshot and recompute derived totals
func TestRecordService_UpdateRecord_MergesAndRequeues(t *testing.T) {
	// ARRANGE
	env := newTestEnv(t)
	ctx := context.Background()
	rec, err := env.records.AddRecord(ctx, models.TableSales, saleFields("2024-01-15", 1, 100))
	require.NoError(t, err)
	require.Equal(t, 1, env.engine.Drain(ctx).Applied)

	// ACT
	updated, err := env.records.UpdateRecord(ctx, models.TableSales, rec.ID, map[string]any{"quantity": 3, "id": "ignored"})

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, rec.ID, updated.ID)
	assert.Equal(t, models.SyncStateQueued, updated.SyncState)
	assert.Equal(t, json.Number("315"), updated.Fields["total_amount"])
	assert.Equal(t, "Alterations", updated.Fields["custom_description"])
	assert.True(t, updated.UpdatedAt.After(rec.UpdatedAt) || updated.UpdatedAt.Equal(rec.UpdatedAt))

	items, err := env.records.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.ActionUpdate, items[0].Action)
	assert.Equal(t, json.Number("315"), items[0].Payload["total_amount"])
}

// TestRecordService_UpdateRecord_RecomputesDerivedAmounts tests that
// patching any input of a derived amount brings the stored totals back in
// line with the VAT and payroll formulas
func TestRecordService_UpdateRecord_RecomputesDerivedAmounts(t *testing.T) {
	tests := []struct {
		name   string
		table  string
		fields map[string]any
		patch  map[string]any
		want   map[string]json.Number
	}{
		{
			name:   "sale subtotal",
			table:  models.TableSales,
			fields: saleFields("2024-01-15", 1, 100),
			patch:  map[string]any{"subtotal": 200},
			want:   map[string]json.Number{"vat_amount": "10", "total_amount": "210"},
		},
		{
			name:   "sale unit price",
			table:  models.TableSales,
			fields: saleFields("2024-01-15", 2, 100),
			patch:  map[string]any{"unit_price": 50},
			want:   map[string]json.Number{"subtotal": "100", "vat_amount": "5", "total_amount": "105"},
		},
		{
			name:   "expense amount with flag",
			table:  models.TableExpenses,
			fields: expenseFields(210, true),
			patch:  map[string]any{"amount": 420, "vat_included": true},
			want:   map[string]json.Number{"vat_amount": "20", "total_amount": "420"},
		},
		{
			name:   "expense amount keeps inclusive treatment",
			table:  models.TableExpenses,
			fields: expenseFields(210, true),
			patch:  map[string]any{"amount": 105},
			want:   map[string]json.Number{"vat_amount": "5", "total_amount": "105"},
		},
		{
			name:   "expense amount keeps exclusive treatment",
			table:  models.TableExpenses,
			fields: expenseFields(100, false),
			patch:  map[string]any{"amount": 200},
			want:   map[string]json.Number{"vat_amount": "10", "total_amount": "210"},
		},
		{
			name:   "expense switched to inclusive",
			table:  models.TableExpenses,
			fields: expenseFields(105, false),
			patch:  map[string]any{"vat_included": true},
			want:   map[string]json.Number{"vat_amount": "5", "total_amount": "105"},
		},
		{
			name:   "untaxed expense stays untaxed",
			table:  models.TableExpenses,
			fields: map[string]any{"expense_date": "2024-01-10", "amount": 80, "payment_method": "cash"},
			patch:  map[string]any{"amount": 90},
			want:   map[string]json.Number{"vat_amount": "0", "total_amount": "90"},
		},
		{
			name:  "salary deductions",
			table: models.TableSalaryPayments,
			fields: map[string]any{
				"employee_id": "emp-1", "payment_date": "2024-01-31", "period_month": 1, "period_year": 2024,
				"base_salary": 5000, "deductions": 0, "advances": 0,
			},
			patch: map[string]any{"deductions": "100.255"},
			want:  map[string]json.Number{"net_amount": "4899.75"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// ARRANGE
			env := newTestEnv(t)
			ctx := context.Background()
			rec, err := env.records.AddRecord(ctx, tt.table, tt.fields)
			require.NoError(t, err)

			// ACT
			updated, err := env.records.UpdateRecord(ctx, tt.table, rec.ID, tt.patch)

			// ASSERT
			require.NoError(t, err)
			for field, want := range tt.want {
				assert.Equal(t, want, updated.Fields[field], field)
			}
			assert.NotContains(t, updated.Fields, "vat_included")

			items, err := env.records.Queue(ctx)
			require.NoError(t, err)
			require.Len(t, items, 2)
			for field, want := range tt.want {
				assert.Equal(t, want, items[1].Payload[field], "queued "+field)
			}
		})
	}
}

// TestRecordService_QueuedPayloadMatchesRemoteColumns tests that only
// tables whose remote rows carry updated_at get it in queued payloads
func TestRecordService_QueuedPayloadMatchesRemoteColumns(t *testing.T) {
	// ARRANGE
	env := newTestEnv(t)
	ctx := context.Background()

	// ACT
	expense, err := env.records.AddRecord(ctx, models.TableExpenses, expenseFields(100, false))
	require.NoError(t, err)
	_, err = env.records.UpdateRecord(ctx, models.TableExpenses, expense.ID, map[string]any{"notes": "receipt lost"})
	require.NoError(t, err)
	_, err = env.records.AddRecord(ctx, models.TableSales, saleFields("2024-01-15", 1, 100))
	require.NoError(t, err)

	// ASSERT
	items, err := env.records.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.NotContains(t, items[0].Payload, models.FieldUpdatedAt)
	assert.Contains(t, items[0].Payload, models.FieldCreatedAt)
	assert.NotContains(t, items[1].Payload, models.FieldUpdatedAt)
	assert.Equal(t, "receipt lost", items[1].Payload["notes"])
	assert.Contains(t, items[2].Payload, models.FieldUpdatedAt)
}

func TestRecordService_UpdateRecord_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.records.UpdateRecord(context.Background(), models.TableCustomers, "nope", map[string]any{"name": "x"})

	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestRecordService_DeleteRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ids := env.addCustomers(t, "Jana")

	require.NoError(t, env.records.DeleteRecord(ctx, models.TableCustomers, ids[0]))

	_, err := env.records.GetRecord(ctx, models.TableCustomers, ids[0])
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	items, err := env.records.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, models.ActionDelete, items[1].Action)
	assert.Equal(t, map[string]any{"id": ids[0]}, items[1].Payload)

	assert.ErrorIs(t, env.records.DeleteRecord(ctx, models.TableCustomers, ids[0]), repositories.ErrNotFound)
}

// TestRecordService_WriteIsAtomic tests that a failing enqueue rolls back
// the mirror write
func TestRecordService_WriteIsAtomic(t *testing.T) {
	// ARRANGE
	env := newTestEnv(t)
	ctx := context.Background()
	broken := &brokenQueueStore{SQLiteLocalStore: env.store}
	records := NewRecordService(broken, env.remote, env.records.vatRate, quietLogger())

	// ACT
	_, err := records.AddRecord(ctx, models.TableCustomers, map[string]any{"name": "Karim"})

	// ASSERT
	require.Error(t, err)
	all, err := env.records.ListRecords(ctx, models.TableCustomers)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRecordService_QueryByIndex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.records.AddRecord(ctx, models.TableSales, saleFields("2024-01-15", 1, 10))
	require.NoError(t, err)
	_, err = env.records.AddRecord(ctx, models.TableSales, saleFields("2024-01-16", 1, 10))
	require.NoError(t, err)

	found, err := env.records.QueryByIndex(ctx, models.TableSales, models.IndexByDate, "2024-01-16")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "2024-01-16", found[0].Fields["sale_date"])

	queued, err := env.records.QueryByIndex(ctx, models.TableSales, models.IndexBySynced, string(models.SyncStateQueued))
	require.NoError(t, err)
	assert.Len(t, queued, 2)

	env.engine.Drain(ctx)
	synced, err := env.records.QueryByIndex(ctx, models.TableSales, models.IndexBySynced, string(models.SyncStateSynced))
	require.NoError(t, err)
	assert.Len(t, synced, 2)
}

// TestRecordService_Hydrate_KeepsPendingLocalWrites tests that a pull from
// the remote never clobbers an optimistic write
func TestRecordService_Hydrate_KeepsPendingLocalWrites(t *testing.T) {
	// ARRANGE
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.remote.Insert(ctx, models.TableCustomers, map[string]any{"id": "r1", "name": "Remote One", "created_at": "2024-01-01T08:00:00Z"})
	require.NoError(t, err)
	_, err = env.remote.Insert(ctx, models.TableCustomers, map[string]any{"id": "r2", "name": "Remote Two"})
	require.NoError(t, err)
	_, err = env.records.AddRecord(ctx, models.TableCustomers, map[string]any{"id": "r2", "name": "Local Two"})
	require.NoError(t, err)

	// ACT
	n, err := env.records.Hydrate(ctx, models.TableCustomers)

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	r1, err := env.records.GetRecord(ctx, models.TableCustomers, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateSynced, r1.SyncState)
	assert.Equal(t, "Remote One", r1.Fields["name"])
	assert.Equal(t, 2024, r1.CreatedAt.Year())
	r2, err := env.records.GetRecord(ctx, models.TableCustomers, "r2")
	require.NoError(t, err)
	assert.Equal(t, "Local Two", r2.Fields["name"])
	assert.Equal(t, models.SyncStateQueued, r2.SyncState)
}

func TestRecordService_Hydrate_RemoteFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.records.Hydrate(ctx, models.TableCustomers)

	assert.ErrorIs(t, err, repositories.ErrTransient)
}

// Helper functions

func saleFields(date string, quantity, unitPrice int) map[string]any {
	return map[string]any{
		"sale_date":          date,
		"custom_description": "Alterations",
		"quantity":           quantity,
		"unit_price":         unitPrice,
		"payment_method":     "cash",
	}
}

func expenseFields(amount int, vatIncluded bool) map[string]any {
	return map[string]any{
		"expense_date":   "2024-01-10",
		"amount":         amount,
		"payment_method": "card",
		"vat_included":   vatIncluded,
	}
}

// brokenQueueStore hands out a queue whose Enqueue always fails
type brokenQueueStore struct {
	*repositories.SQLiteLocalStore
}

func (s *brokenQueueStore) InTx(ctx context.Context, fn func(repositories.MirrorRepository, repositories.SyncQueueRepository) error) error {
	return s.SQLiteLocalStore.InTx(ctx, func(mirror repositories.MirrorRepository, queue repositories.SyncQueueRepository) error {
		return fn(mirror, brokenQueue{queue})
	})
}

type brokenQueue struct {
	repositories.SyncQueueRepository
}

func (brokenQueue) Enqueue(ctx context.Context, item *models.SyncQueueItem) error {
	return errors.New("disk full")
}
