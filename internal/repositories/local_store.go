package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prudhvinik1/edgeledger/internal/models"
)

const localSchema = `
CREATE TABLE IF NOT EXISTS mirror_records (
	table_name TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	synced_at  INTEGER,
	sync_state TEXT NOT NULL,
	sync_error TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (table_name, id)
);
CREATE TABLE IF NOT EXISTS mirror_index (
	table_name TEXT NOT NULL,
	index_name TEXT NOT NULL,
	index_key  TEXT NOT NULL,
	record_id  TEXT NOT NULL,
	PRIMARY KEY (table_name, index_name, record_id)
);
CREATE INDEX IF NOT EXISTS idx_mirror_index_lookup ON mirror_index (table_name, index_name, index_key);
CREATE TABLE IF NOT EXISTS sync_queue (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	table_name TEXT NOT NULL,
	record_id  TEXT NOT NULL,
	action     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_queue_created ON sync_queue (created_at, seq);
CREATE INDEX IF NOT EXISTS idx_sync_queue_record ON sync_queue (table_name, record_id);
`

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteLocalStore owns the embedded database that holds the mirror tables
// and the sync queue.
type SQLiteLocalStore struct {
	db     *sql.DB
	schema models.Schema
	now    func() time.Time
}

func NewSQLiteLocalStore(ctx context.Context, db *sql.DB, schema models.Schema) (*SQLiteLocalStore, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mirror schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, localSchema); err != nil {
		return nil, fmt.Errorf("failed to create local schema: %w", err)
	}
	return &SQLiteLocalStore{db: db, schema: schema, now: time.Now}, nil
}

// WithClock replaces the clock used to stamp queue items. Tests use it to
// force timestamp collisions.
func (s *SQLiteLocalStore) WithClock(now func() time.Time) *SQLiteLocalStore {
	s.now = now
	return s
}

func (s *SQLiteLocalStore) Schema() models.Schema {
	return s.schema
}

func (s *SQLiteLocalStore) Mirror() MirrorRepository {
	return &SQLiteMirrorRepository{conn: s.db, schema: s.schema}
}

func (s *SQLiteLocalStore) Queue() SyncQueueRepository {
	return &SQLiteSyncQueueRepository{conn: s.db, now: s.now}
}

func (s *SQLiteLocalStore) InTx(ctx context.Context, fn func(mirror MirrorRepository, queue SyncQueueRepository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin local transaction: %w", err)
	}
	mirror := &SQLiteMirrorRepository{conn: tx, schema: s.schema}
	queue := &SQLiteSyncQueueRepository{conn: tx, now: s.now}

	if err := fn(mirror, queue); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit local transaction: %w", err)
	}
	return nil
}

// atomically runs fn inside a transaction unless conn already is one.
func atomically(ctx context.Context, conn dbtx, fn func(dbtx) error) error {
	db, ok := conn.(*sql.DB)
	if !ok {
		return fn(conn)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
