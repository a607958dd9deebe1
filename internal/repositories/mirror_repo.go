package repositories

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prudhvinik1/edgeledger/internal/models"
)

type SQLiteMirrorRepository struct {
	conn   dbtx
	schema models.Schema
}

func (r *SQLiteMirrorRepository) table(name string) (models.TableSchema, error) {
	t, ok := r.schema.Table(name)
	if !ok {
		return models.TableSchema{}, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t, nil
}

func (r *SQLiteMirrorRepository) Get(ctx context.Context, table, id string) (*models.Record, error) {
	if _, err := r.table(table); err != nil {
		return nil, err
	}
	query := `SELECT id, data, created_at, updated_at, synced_at, sync_state, sync_error
	          FROM mirror_records
	          WHERE table_name = ? AND id = ?`

	rec, err := scanRecord(r.conn.QueryRowContext(ctx, query, table, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func (r *SQLiteMirrorRepository) GetAll(ctx context.Context, table string) ([]*models.Record, error) {
	if _, err := r.table(table); err != nil {
		return nil, err
	}
	query := `SELECT id, data, created_at, updated_at, synced_at, sync_state, sync_error
	          FROM mirror_records
	          WHERE table_name = ?
	          ORDER BY id ASC`

	return r.queryRecords(ctx, query, table)
}

// Put stores record, replacing any previous version with the same id.
// Index rows are rewritten in the same transaction.
func (r *SQLiteMirrorRepository) Put(ctx context.Context, table string, record *models.Record) error {
	ts, err := r.table(table)
	if err != nil {
		return err
	}
	if record.ID == "" {
		return errors.New("record id is required")
	}
	if record.SyncState == "" {
		record.SyncState = models.SyncStateLocalOnly
	}
	data, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	var syncedAt any
	if record.SyncedAt != nil {
		syncedAt = toMillis(*record.SyncedAt)
	}

	return atomically(ctx, r.conn, func(conn dbtx) error {
		query := `INSERT INTO mirror_records (table_name, id, data, created_at, updated_at, synced_at, sync_state, sync_error)
		          VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		          ON CONFLICT (table_name, id) DO UPDATE SET
		              data = excluded.data,
		              created_at = excluded.created_at,
		              updated_at = excluded.updated_at,
		              synced_at = excluded.synced_at,
		              sync_state = excluded.sync_state,
		              sync_error = excluded.sync_error`

		_, err := conn.ExecContext(ctx, query,
			table,
			record.ID,
			string(data),
			toMillis(record.CreatedAt),
			toMillis(record.UpdatedAt),
			syncedAt,
			string(record.SyncState),
			record.SyncError,
		)
		if err != nil {
			return fmt.Errorf("failed to put record: %w", err)
		}
		return reindex(ctx, conn, ts, record)
	})
}

func (r *SQLiteMirrorRepository) Delete(ctx context.Context, table, id string) error {
	if _, err := r.table(table); err != nil {
		return err
	}
	return atomically(ctx, r.conn, func(conn dbtx) error {
		result, err := conn.ExecContext(ctx, `DELETE FROM mirror_records WHERE table_name = ? AND id = ?`, table, id)
		if err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if _, err := conn.ExecContext(ctx, `DELETE FROM mirror_index WHERE table_name = ? AND record_id = ?`, table, id); err != nil {
			return fmt.Errorf("failed to delete index entries: %w", err)
		}
		return nil
	})
}

func (r *SQLiteMirrorRepository) QueryByIndex(ctx context.Context, table, indexName, key string) ([]*models.Record, error) {
	ts, err := r.table(table)
	if err != nil {
		return nil, err
	}
	if _, ok := ts.Index(indexName); !ok {
		return nil, fmt.Errorf("%w: index %s on %s", ErrNotFound, indexName, table)
	}
	query := `SELECT m.id, m.data, m.created_at, m.updated_at, m.synced_at, m.sync_state, m.sync_error
	          FROM mirror_index i
	          JOIN mirror_records m ON m.table_name = i.table_name AND m.id = i.record_id
	          WHERE i.table_name = ? AND i.index_name = ? AND i.index_key = ?
	          ORDER BY m.id ASC`

	return r.queryRecords(ctx, query, table, indexName, key)
}

// SetSyncState updates the sync bookkeeping of a record and its
// sync-state index entry.
func (r *SQLiteMirrorRepository) SetSyncState(ctx context.Context, table, id string, state models.SyncState, syncedAt *time.Time, syncErr string) error {
	ts, err := r.table(table)
	if err != nil {
		return err
	}
	return atomically(ctx, r.conn, func(conn dbtx) error {
		var synced any
		if syncedAt != nil {
			synced = toMillis(*syncedAt)
		}
		query := `UPDATE mirror_records
		          SET sync_state = ?, synced_at = COALESCE(?, synced_at), sync_error = ?
		          WHERE table_name = ? AND id = ?`

		result, err := conn.ExecContext(ctx, query, string(state), synced, syncErr, table, id)
		if err != nil {
			return fmt.Errorf("failed to set sync state: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		for _, idx := range ts.Indexes {
			if idx.Field != models.FieldSyncState {
				continue
			}
			if _, err := conn.ExecContext(ctx,
				`UPDATE mirror_index SET index_key = ? WHERE table_name = ? AND index_name = ? AND record_id = ?`,
				string(state), table, idx.Name, id,
			); err != nil {
				return fmt.Errorf("failed to update sync index: %w", err)
			}
		}
		return nil
	})
}

func (r *SQLiteMirrorRepository) Clear(ctx context.Context, table string) error {
	if _, err := r.table(table); err != nil {
		return err
	}
	return atomically(ctx, r.conn, func(conn dbtx) error {
		if _, err := conn.ExecContext(ctx, `DELETE FROM mirror_records WHERE table_name = ?`, table); err != nil {
			return fmt.Errorf("failed to clear table: %w", err)
		}
		if _, err := conn.ExecContext(ctx, `DELETE FROM mirror_index WHERE table_name = ?`, table); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
		return nil
	})
}

func (r *SQLiteMirrorRepository) queryRecords(ctx context.Context, query string, args ...any) ([]*models.Record, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

func reindex(ctx context.Context, conn dbtx, ts models.TableSchema, record *models.Record) error {
	if _, err := conn.ExecContext(ctx, `DELETE FROM mirror_index WHERE table_name = ? AND record_id = ?`, ts.Name, record.ID); err != nil {
		return fmt.Errorf("failed to clear index entries: %w", err)
	}
	for _, idx := range ts.Indexes {
		key, ok := indexKey(record.Value(idx.Field), idx.Field == ts.DateField)
		if !ok {
			continue
		}
		_, err := conn.ExecContext(ctx,
			`INSERT INTO mirror_index (table_name, index_name, index_key, record_id) VALUES (?, ?, ?, ?)`,
			ts.Name, idx.Name, key, record.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to write index %s: %w", idx.Name, err)
		}
	}
	return nil
}

// indexKey renders a field value as an index key. Null values are not
// indexed. Date fields are cut down to YYYY-MM-DD.
func indexKey(v any, isDate bool) (string, bool) {
	var key string
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		key = t
	case json.Number:
		key = t.String()
	case float64:
		key = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		key = strconv.FormatBool(t)
	default:
		key = fmt.Sprint(t)
	}
	if isDate && len(key) >= 10 {
		if parsed, err := time.Parse(time.RFC3339Nano, key); err == nil {
			key = parsed.Format("2006-01-02")
		} else {
			key = key[:10]
		}
	}
	return key, true
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rec       models.Record
		data      string
		createdAt int64
		updatedAt int64
		syncedAt  sql.NullInt64
		state     string
	)
	if err := row.Scan(&rec.ID, &data, &createdAt, &updatedAt, &syncedAt, &state, &rec.SyncError); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	if err := dec.Decode(&rec.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode record data: %w", err)
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	if syncedAt.Valid {
		t := fromMillis(syncedAt.Int64)
		rec.SyncedAt = &t
	}
	rec.SyncState = models.SyncState(state)
	return &rec, nil
}
