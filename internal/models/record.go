package models

import (
	"time"
)

type SyncState string

const (
	SyncStateLocalOnly  SyncState = "local_only"
	SyncStateQueued     SyncState = "queued"
	SyncStateSynced     SyncState = "synced"
	SyncStateSyncFailed SyncState = "sync_failed"
)

// SyncEvent drives a record through its sync lifecycle.
type SyncEvent int

const (
	EventEnqueued SyncEvent = iota
	EventConfirmed
	EventConfirmedWithPending
	EventRejected
	EventHydrated
)

// NextSyncState returns the state a record moves to when ev happens in
// state cur. Unknown combinations leave the state unchanged.
func NextSyncState(cur SyncState, ev SyncEvent) SyncState {
	if ev == EventHydrated {
		return SyncStateSynced
	}
	switch cur {
	case "", SyncStateLocalOnly, SyncStateSynced, SyncStateSyncFailed:
		if ev == EventEnqueued {
			return SyncStateQueued
		}
	case SyncStateQueued:
		switch ev {
		case EventEnqueued, EventConfirmedWithPending:
			return SyncStateQueued
		case EventConfirmed:
			return SyncStateSynced
		case EventRejected:
			return SyncStateSyncFailed
		}
	}
	if cur == "" {
		return SyncStateLocalOnly
	}
	return cur
}

// Record is one row of any mirrored domain table.
type Record struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	SyncedAt  *time.Time     `json:"synced_at,omitempty"`
	SyncState SyncState      `json:"sync_state"`
	SyncError string         `json:"sync_error,omitempty"`
}

// Field names owned by Record itself rather than by the domain payload.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
	FieldSyncedAt  = "synced_at"
	FieldSyncState = "_sync_state"
)

func (r *Record) Value(field string) any {
	switch field {
	case FieldID:
		return r.ID
	case FieldSyncState:
		return string(r.SyncState)
	}
	if r.Fields == nil {
		return nil
	}
	return r.Fields[field]
}

func (r *Record) String(field string) string {
	s, _ := r.Value(field).(string)
	return s
}

// Snapshot flattens the record into the row shape the remote backend
// stores. Local sync bookkeeping is not included.
func (r *Record) Snapshot() map[string]any {
	out := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		if k == FieldSyncState || k == FieldSyncedAt {
			continue
		}
		out[k] = v
	}
	out[FieldID] = r.ID
	if !r.CreatedAt.IsZero() {
		out[FieldCreatedAt] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !r.UpdatedAt.IsZero() {
		out[FieldUpdatedAt] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// RecordFromRow builds a Record from a row returned by the remote backend.
func RecordFromRow(row map[string]any) *Record {
	rec := &Record{Fields: make(map[string]any, len(row))}
	for k, v := range row {
		switch k {
		case FieldID:
			rec.ID = stringify(v)
		case FieldCreatedAt:
			rec.CreatedAt = parseTimestamp(v)
		case FieldUpdatedAt:
			rec.UpdatedAt = parseTimestamp(v)
		case FieldSyncedAt, FieldSyncState:
		default:
			rec.Fields[k] = v
		}
	}
	return rec
}

func (r *Record) Clone() *Record {
	c := *r
	c.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		c.Fields[k] = v
	}
	if r.SyncedAt != nil {
		t := *r.SyncedAt
		c.SyncedAt = &t
	}
	return &c
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case fmtStringer:
		return t.String()
	}
	return ""
}

type fmtStringer interface{ String() string }

func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999-07", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}
