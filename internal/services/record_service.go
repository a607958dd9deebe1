package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prudhvinik1/edgeledger/internal/aggregation"
	"github.com/prudhvinik1/edgeledger/internal/models"
	"github.com/prudhvinik1/edgeledger/internal/repositories"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var ErrValidation = errors.New("validation failed")

// LocalMirror is the slice of the local store RecordService needs.
type LocalMirror interface {
	repositories.LocalStore
	Schema() models.Schema
}

// RecordService is the single entry point for reading and writing domain
// records. Writes land in the mirror and the sync queue together; the sync
// engine replays them later.
type RecordService struct {
	store    LocalMirror
	remote   repositories.RemoteGateway
	validate *validator.Validate
	vatRate  decimal.Decimal
	now      func() time.Time
	log      logrus.FieldLogger

	mu      sync.Mutex
	onWrite func()
}

func NewRecordService(store LocalMirror, remote repositories.RemoteGateway, vatRate decimal.Decimal, log logrus.FieldLogger) *RecordService {
	return &RecordService{
		store:    store,
		remote:   remote,
		validate: newValidator(),
		vatRate:  vatRate,
		now:      time.Now,
		log:      log.WithField("module", "records"),
	}
}

// OnWrite registers a callback run after every committed write, typically
// SyncEngine.Kick.
func (s *RecordService) OnWrite(fn func()) {
	s.onWrite = fn
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// AddRecord stores a new record optimistically and queues its insert.
func (s *RecordService) AddRecord(ctx context.Context, table string, fields map[string]any) (*models.Record, error) {
	ts, ok := s.store.Schema().Table(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", repositories.ErrUnknownTable, table)
	}

	fields = copyFields(fields)
	id, _ := fields[models.FieldID].(string)
	if id == "" {
		id = uuid.New().String()
	}
	delete(fields, models.FieldID)
	delete(fields, models.FieldCreatedAt)
	delete(fields, models.FieldUpdatedAt)

	if err := s.deriveTotals(table, fields); err != nil {
		return nil, err
	}
	if err := s.validateFields(table, id, fields); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec := &models.Record{ID: id, Fields: fields, CreatedAt: now, UpdatedAt: now}

	err := s.write(ctx, func(mirror repositories.MirrorRepository, queue repositories.SyncQueueRepository) error {
		rec.SyncState = models.NextSyncState(models.SyncStateLocalOnly, models.EventEnqueued)
		if err := mirror.Put(ctx, table, rec); err != nil {
			return err
		}
		return queue.Enqueue(ctx, &models.SyncQueueItem{
			TableName: table,
			RecordID:  id,
			Action:    models.ActionInsert,
			Payload:   ts.RemoteRow(rec.Snapshot()),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add record: %w", err)
	}
	return rec, nil
}

// UpdateRecord merges patch into the stored record and queues an update
// carrying the full merged snapshot.
func (s *RecordService) UpdateRecord(ctx context.Context, table, id string, patch map[string]any) (*models.Record, error) {
	ts, ok := s.store.Schema().Table(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", repositories.ErrUnknownTable, table)
	}

	var updated *models.Record
	err := s.write(ctx, func(mirror repositories.MirrorRepository, queue repositories.SyncQueueRepository) error {
		current, err := mirror.Get(ctx, table, id)
		if err != nil {
			return err
		}

		updated = current.Clone()
		for k, v := range patch {
			switch k {
			case models.FieldID, models.FieldCreatedAt, models.FieldUpdatedAt, models.FieldSyncedAt, models.FieldSyncState:
				continue
			}
			updated.Fields[k] = v
		}
		if d, ok := derivedFields[table]; ok && hasAny(patch, d.inputs) {
			if table == models.TableExpenses && !has(patch, "vat_included") {
				if included, taxed := expenseVATIncluded(current); taxed {
					updated.Fields["vat_included"] = included
				}
			}
			for _, f := range d.outputs {
				if !has(patch, f) {
					delete(updated.Fields, f)
				}
			}
		}
		if err := s.deriveTotals(table, updated.Fields); err != nil {
			return err
		}
		if err := s.validateFields(table, id, updated.Fields); err != nil {
			return err
		}

		updated.UpdatedAt = s.now().UTC()
		updated.SyncState = models.NextSyncState(current.SyncState, models.EventEnqueued)
		updated.SyncError = ""
		if err := mirror.Put(ctx, table, updated); err != nil {
			return err
		}
		return queue.Enqueue(ctx, &models.SyncQueueItem{
			TableName: table,
			RecordID:  id,
			Action:    models.ActionUpdate,
			Payload:   ts.RemoteRow(updated.Snapshot()),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	return updated, nil
}

func (s *RecordService) DeleteRecord(ctx context.Context, table, id string) error {
	err := s.write(ctx, func(mirror repositories.MirrorRepository, queue repositories.SyncQueueRepository) error {
		if err := mirror.Delete(ctx, table, id); err != nil {
			return err
		}
		return queue.Enqueue(ctx, &models.SyncQueueItem{
			TableName: table,
			RecordID:  id,
			Action:    models.ActionDelete,
			Payload:   map[string]any{models.FieldID: id},
		})
	})
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (s *RecordService) GetRecord(ctx context.Context, table, id string) (*models.Record, error) {
	return s.store.Mirror().Get(ctx, table, id)
}

func (s *RecordService) ListRecords(ctx context.Context, table string) ([]*models.Record, error) {
	return s.store.Mirror().GetAll(ctx, table)
}

func (s *RecordService) QueryByIndex(ctx context.Context, table, index, key string) ([]*models.Record, error) {
	return s.store.Mirror().QueryByIndex(ctx, table, index, key)
}

func (s *RecordService) PendingCount(ctx context.Context) (int, error) {
	return s.store.Queue().Count(ctx)
}

func (s *RecordService) Queue(ctx context.Context) ([]*models.SyncQueueItem, error) {
	return s.store.Queue().Drain(ctx)
}

// Hydrate replaces the local copy of table with the remote rows. Records
// that still have queued mutations keep their local version.
func (s *RecordService) Hydrate(ctx context.Context, table string) (int, error) {
	if _, ok := s.store.Schema().Table(table); !ok {
		return 0, fmt.Errorf("%w: %s", repositories.ErrUnknownTable, table)
	}
	rows, err := s.remote.Query(ctx, table, models.Query{})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch %s: %w", table, err)
	}

	stored := 0
	err = s.write(ctx, func(mirror repositories.MirrorRepository, queue repositories.SyncQueueRepository) error {
		syncedAt := s.now().UTC()
		for _, row := range rows {
			rec := models.RecordFromRow(row)
			if rec.ID == "" {
				continue
			}
			pending, err := queue.HasPending(ctx, table, rec.ID)
			if err != nil {
				return err
			}
			if pending {
				continue
			}
			if rec.CreatedAt.IsZero() {
				rec.CreatedAt = syncedAt
			}
			if rec.UpdatedAt.IsZero() {
				rec.UpdatedAt = rec.CreatedAt
			}
			rec.SyncedAt = &syncedAt
			rec.SyncState = models.NextSyncState(rec.SyncState, models.EventHydrated)
			if err := mirror.Put(ctx, table, rec); err != nil {
				return err
			}
			stored++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to hydrate %s: %w", table, err)
	}

	s.log.WithFields(logrus.Fields{"table": table, "rows": stored}).Info("table hydrated from remote")
	return stored, nil
}

// write serializes local mutations and runs fn in one local transaction.
func (s *RecordService) write(ctx context.Context, fn func(repositories.MirrorRepository, repositories.SyncQueueRepository) error) error {
	s.mu.Lock()
	err := s.store.InTx(ctx, fn)
	s.mu.Unlock()

	if err == nil && s.onWrite != nil {
		s.onWrite()
	}
	return err
}

// deriveTotals fills in the amounts the backend expects but callers may
// leave out.
func (s *RecordService) deriveTotals(table string, fields map[string]any) error {
	switch table {
	case models.TableSales:
		if missing(fields, "subtotal") {
			qty := aggregation.ToDecimal(fields["quantity"])
			price := aggregation.ToDecimal(fields["unit_price"])
			fields["subtotal"] = number(aggregation.Round2(qty.Mul(price)))
		}
		if missing(fields, "vat_amount") || missing(fields, "total_amount") {
			vat := aggregation.ComputeVAT(aggregation.ToDecimal(fields["subtotal"]), s.vatRate)
			fields["vat_amount"] = number(vat.VAT)
			fields["total_amount"] = number(vat.Total)
		}
		if missing(fields, "payment_status") {
			fields["payment_status"] = "paid"
		}
	case models.TableExpenses:
		included, hasFlag := fields["vat_included"].(bool)
		delete(fields, "vat_included")
		if hasFlag && (missing(fields, "vat_amount") || missing(fields, "total_amount")) {
			vat := aggregation.ExpenseVAT(aggregation.ToDecimal(fields["amount"]), included, s.vatRate)
			fields["vat_amount"] = number(vat.VAT)
			fields["total_amount"] = number(vat.Total)
		}
		if missing(fields, "vat_amount") {
			fields["vat_amount"] = number(decimal.Zero)
		}
		if missing(fields, "total_amount") {
			fields["total_amount"] = number(aggregation.Round2(aggregation.ToDecimal(fields["amount"])))
		}
	case models.TableSalaryPayments:
		if missing(fields, "net_amount") {
			net := aggregation.ToDecimal(fields["base_salary"]).
				Sub(aggregation.ToDecimal(fields["deductions"])).
				Sub(aggregation.ToDecimal(fields["advances"]))
			fields["net_amount"] = number(aggregation.Round2(net))
		}
	}
	return nil
}

// validateFields checks fields against the typed shape of table, if any.
func (s *RecordService) validateFields(table, id string, fields map[string]any) error {
	model := models.TypedModel(table)
	if model == nil {
		return nil
	}
	snapshot := copyFields(fields)
	snapshot[models.FieldID] = id

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := json.Unmarshal(data, model); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.validate.Struct(model); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func missing(fields map[string]any, key string) bool {
	v, ok := fields[key]
	return !ok || v == nil
}

func has(fields map[string]any, key string) bool {
	_, ok := fields[key]
	return ok
}

func hasAny(fields map[string]any, keys []string) bool {
	for _, k := range keys {
		if has(fields, k) {
			return true
		}
	}
	return false
}

// derivedFields lists, per table, the computed fields and the inputs they
// are computed from. Patching an input recomputes every output the patch
// does not set itself.
var derivedFields = map[string]struct{ inputs, outputs []string }{
	models.TableSales: {
		inputs:  []string{"quantity", "unit_price", "subtotal"},
		outputs: []string{"subtotal", "vat_amount", "total_amount"},
	},
	models.TableExpenses: {
		inputs:  []string{"amount", "vat_included"},
		outputs: []string{"vat_amount", "total_amount"},
	},
	models.TableSalaryPayments: {
		inputs:  []string{"base_salary", "deductions", "advances"},
		outputs: []string{"net_amount"},
	},
}

// expenseVATIncluded recovers how a stored expense was taxed. taxed is
// false when it carries no VAT at all.
func expenseVATIncluded(rec *models.Record) (included, taxed bool) {
	if aggregation.ToDecimal(rec.Fields["vat_amount"]).IsZero() {
		return false, false
	}
	amount := aggregation.ToDecimal(rec.Fields["amount"])
	return aggregation.ToDecimal(rec.Fields["total_amount"]).Equal(amount), true
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
