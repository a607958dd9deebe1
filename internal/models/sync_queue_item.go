package models

import (
	"fmt"
	"time"
)

type SyncAction string

const (
	ActionInsert SyncAction = "insert"
	ActionUpdate SyncAction = "update"
	ActionDelete SyncAction = "delete"
)

func ParseSyncAction(s string) (SyncAction, error) {
	switch SyncAction(s) {
	case ActionInsert, ActionUpdate, ActionDelete:
		return SyncAction(s), nil
	}
	return "", fmt.Errorf("unknown sync action %q", s)
}

// SyncQueueItem is one pending mutation waiting to be replayed against the
// remote backend. Payload holds the full record snapshot for inserts and
// updates and only the id for deletes.
type SyncQueueItem struct {
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	TableName string         `json:"table_name"`
	RecordID  string         `json:"record_id"`
	Action    SyncAction     `json:"action"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}
