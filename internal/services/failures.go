package services

import (
	"sync"
	"time"

	"github.com/prudhvinik1/edgeledger/internal/config"
	"github.com/sirupsen/logrus"
)

// SyncFailure describes a queued mutation the remote backend refused for
// good. The item has been dropped from the queue and the record marked
// sync_failed.
type SyncFailure struct {
	ItemID   string    `json:"item_id"`
	Table    string    `json:"table"`
	RecordID string    `json:"record_id"`
	Action   string    `json:"action"`
	Error    string    `json:"error"`
	At       time.Time `json:"at"`
}

type FailureReporter interface {
	ReportFailure(f SyncFailure)
}

const DefaultFailureLogSize = 100

// FailureLog keeps the most recent permanent sync failures for the
// operator and logs each one.
type FailureLog struct {
	mu      sync.Mutex
	entries []SyncFailure
	limit   int
	log     logrus.FieldLogger
}

func NewFailureLog(limit int, log logrus.FieldLogger) *FailureLog {
	if limit <= 0 {
		limit = DefaultFailureLogSize
	}
	return &FailureLog{limit: limit, log: log}
}

func (l *FailureLog) ReportFailure(f SyncFailure) {
	config.LogError(l.log, "sync", "ReportFailure", "mutation rejected by remote", f, errorString(f.Error))

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, f)
	if over := len(l.entries) - l.limit; over > 0 {
		l.entries = append([]SyncFailure(nil), l.entries[over:]...)
	}
}

// List returns the retained failures, newest first.
func (l *FailureLog) List() []SyncFailure {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SyncFailure, len(l.entries))
	for i, f := range l.entries {
		out[len(l.entries)-1-i] = f
	}
	return out
}

type errorString string

func (e errorString) Error() string { return string(e) }
