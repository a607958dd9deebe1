package repositories

import (
	"context"
	"time"

	"github.com/prudhvinik1/edgeledger/internal/models"
)

// MirrorRepository is the local durable copy of the server tables.
type MirrorRepository interface {
	Get(ctx context.Context, table, id string) (*models.Record, error)
	GetAll(ctx context.Context, table string) ([]*models.Record, error)
	Put(ctx context.Context, table string, record *models.Record) error
	Delete(ctx context.Context, table, id string) error
	QueryByIndex(ctx context.Context, table, indexName, key string) ([]*models.Record, error)
	SetSyncState(ctx context.Context, table, id string, state models.SyncState, syncedAt *time.Time, syncErr string) error
	Clear(ctx context.Context, table string) error
}

type SyncQueueRepository interface {
	Enqueue(ctx context.Context, item *models.SyncQueueItem) error
	Drain(ctx context.Context) ([]*models.SyncQueueItem, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	HasPending(ctx context.Context, table, recordID string) (bool, error)
}

// LocalStore runs multi-step local mutations atomically across the mirror
// and the queue.
type LocalStore interface {
	Mirror() MirrorRepository
	Queue() SyncQueueRepository
	InTx(ctx context.Context, fn func(mirror MirrorRepository, queue SyncQueueRepository) error) error
}

// RemoteGateway is the table-level CRUD surface of the hosted backend.
// Insert is an upsert keyed by the record id so that replaying an insert
// is harmless.
type RemoteGateway interface {
	Insert(ctx context.Context, table string, record map[string]any) (map[string]any, error)
	Update(ctx context.Context, table, id string, patch map[string]any) error
	Delete(ctx context.Context, table, id string) error
	Query(ctx context.Context, table string, q models.Query) ([]map[string]any, error)
	Ping(ctx context.Context) error
}

type PresenceRepository interface {
	SetPresence(ctx context.Context, presence *models.Presence) error
	GetPresence(ctx context.Context, nodeID string) (*models.Presence, error)
	DeletePresence(ctx context.Context, nodeID string) error
	GetBulkPresence(ctx context.Context, nodeIDs []string) (map[string]models.Presence, error)
}
