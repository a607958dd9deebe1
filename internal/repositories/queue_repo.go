package repositories

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/edgeledger/internal/models"
)

type SQLiteSyncQueueRepository struct {
	conn dbtx
	now  func() time.Time
}

// Enqueue assigns the item an id, a sequence number and a creation time,
// then persists it. The creation time never goes backwards relative to the
// newest queued item, so the drain order always matches enqueue order.
func (r *SQLiteSyncQueueRepository) Enqueue(ctx context.Context, item *models.SyncQueueItem) error {
	if item.TableName == "" || item.RecordID == "" {
		return errors.New("sync queue item needs a table and a record id")
	}
	if _, err := models.ParseSyncAction(string(item.Action)); err != nil {
		return err
	}
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal queue payload: %w", err)
	}

	return atomically(ctx, r.conn, func(conn dbtx) error {
		createdAt := toMillis(r.now())

		var newest sql.NullInt64
		if err := conn.QueryRowContext(ctx, `SELECT MAX(created_at) FROM sync_queue`).Scan(&newest); err != nil {
			return fmt.Errorf("failed to read queue head: %w", err)
		}
		if newest.Valid && newest.Int64 > createdAt {
			createdAt = newest.Int64
		}

		id := item.ID
		if id == "" {
			id = uuid.New().String()
		}

		query := `INSERT INTO sync_queue (id, table_name, record_id, action, payload, created_at)
		          VALUES (?, ?, ?, ?, ?, ?)`

		result, err := conn.ExecContext(ctx, query, id, item.TableName, item.RecordID, string(item.Action), string(payload), createdAt)
		if err != nil {
			return fmt.Errorf("failed to enqueue item: %w", err)
		}
		seq, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read queue sequence: %w", err)
		}

		item.ID = id
		item.Seq = seq
		item.CreatedAt = fromMillis(createdAt)
		return nil
	})
}

// Drain returns every queued item, oldest first. It does not remove them.
func (r *SQLiteSyncQueueRepository) Drain(ctx context.Context) ([]*models.SyncQueueItem, error) {
	query := `SELECT seq, id, table_name, record_id, action, payload, created_at
	          FROM sync_queue
	          ORDER BY created_at ASC, seq ASC`

	rows, err := r.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}
	defer rows.Close()

	var items []*models.SyncQueueItem
	for rows.Next() {
		var (
			item      models.SyncQueueItem
			action    string
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&item.Seq, &item.ID, &item.TableName, &item.RecordID, &action, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		item.Action = models.SyncAction(action)
		item.CreatedAt = fromMillis(createdAt)

		dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
		dec.UseNumber()
		if err := dec.Decode(&item.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode queue payload: %w", err)
		}
		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync queue: %w", err)
	}
	return items, nil
}

func (r *SQLiteSyncQueueRepository) Remove(ctx context.Context, id string) error {
	result, err := r.conn.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove queue item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteSyncQueueRepository) Clear(ctx context.Context) error {
	if _, err := r.conn.ExecContext(ctx, `DELETE FROM sync_queue`); err != nil {
		return fmt.Errorf("failed to clear sync queue: %w", err)
	}
	return nil
}

func (r *SQLiteSyncQueueRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sync queue: %w", err)
	}
	return n, nil
}

func (r *SQLiteSyncQueueRepository) HasPending(ctx context.Context, table, recordID string) (bool, error) {
	var n int
	err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_queue WHERE table_name = ? AND record_id = ?`,
		table, recordID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check pending items: %w", err)
	}
	return n > 0, nil
}
