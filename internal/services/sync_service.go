package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prudhvinik1/edgeledger/internal/models"
	"github.com/prudhvinik1/edgeledger/internal/repositories"
	"github.com/sirupsen/logrus"
)

// DrainResult summarizes one pass over the sync queue.
type DrainResult struct {
	Skipped    bool   `json:"skipped"`
	Attempted  int    `json:"attempted"`
	Applied    int    `json:"applied"`
	Failed     int    `json:"failed"`
	Remaining  int    `json:"remaining"`
	Halted     bool   `json:"halted"`
	HaltReason string `json:"halt_reason,omitempty"`
}

// SyncEngine replays queued mutations against the remote backend in
// enqueue order.
type SyncEngine struct {
	store    repositories.LocalStore
	remote   repositories.RemoteGateway
	failures FailureReporter
	timeout  time.Duration
	online   func() bool
	now      func() time.Time
	log      logrus.FieldLogger

	draining atomic.Bool
	kick     chan struct{}

	mu        sync.Mutex
	onDrained []func(DrainResult)
}

func NewSyncEngine(
	store repositories.LocalStore,
	remote repositories.RemoteGateway,
	failures FailureReporter,
	timeout time.Duration,
	online func() bool,
	log logrus.FieldLogger,
) *SyncEngine {
	if online == nil {
		online = func() bool { return true }
	}
	return &SyncEngine{
		store:    store,
		remote:   remote,
		failures: failures,
		timeout:  timeout,
		online:   online,
		now:      time.Now,
		log:      log.WithField("module", "sync"),
		kick:     make(chan struct{}, 1),
	}
}

// OnDrained registers fn to run after every drain that was not skipped.
func (e *SyncEngine) OnDrained(fn func(DrainResult)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDrained = append(e.onDrained, fn)
}

// Kick asks Run for a drain soon. It never blocks.
func (e *SyncEngine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run drains on every trigger, every kick and every interval tick while
// the backend is reachable, until ctx is cancelled.
func (e *SyncEngine) Run(ctx context.Context, trigger <-chan struct{}, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-trigger:
		case <-e.kick:
		case <-ticker.C:
		}
		if !e.online() {
			continue
		}
		e.Drain(ctx)
	}
}

// Drain replays the queue once. Items are sent one at a time and in
// order. A transient failure stops the pass and leaves the item and
// everything after it queued; a permanent failure drops the item, marks
// its record sync_failed and moves on. Concurrent calls return
// immediately with Skipped set.
func (e *SyncEngine) Drain(ctx context.Context) DrainResult {
	if !e.draining.CompareAndSwap(false, true) {
		return DrainResult{Skipped: true}
	}
	defer e.draining.Store(false)

	var res DrainResult
	defer func() { e.notify(res) }()

	items, err := e.store.Queue().Drain(ctx)
	if err != nil {
		e.log.WithError(err).Error("failed to read sync queue")
		res.Halted = true
		res.HaltReason = err.Error()
		return res
	}

	for i, item := range items {
		res.Attempted++
		entry := e.log.WithFields(logrus.Fields{
			"item_id":   item.ID,
			"table":     item.TableName,
			"record_id": item.RecordID,
			"action":    string(item.Action),
		})

		remoteErr := e.apply(ctx, item)
		switch {
		case remoteErr == nil:
			if err := e.acknowledge(ctx, item); err != nil {
				entry.WithError(err).Error("failed to acknowledge synced item")
				res.Halted = true
				res.HaltReason = err.Error()
			} else {
				res.Applied++
				entry.Debug("item synced")
			}
		case repositories.IsPermanent(remoteErr):
			if err := e.reject(ctx, item, remoteErr); err != nil {
				entry.WithError(err).Error("failed to drop rejected item")
				res.Halted = true
				res.HaltReason = err.Error()
			} else {
				res.Failed++
			}
		default:
			entry.WithError(remoteErr).Warn("transient sync failure, halting drain")
			res.Halted = true
			res.HaltReason = remoteErr.Error()
		}

		if res.Halted {
			res.Remaining = len(items) - i
			break
		}
	}

	e.log.WithFields(logrus.Fields{
		"applied":   res.Applied,
		"failed":    res.Failed,
		"remaining": res.Remaining,
		"halted":    res.Halted,
	}).Info("sync drain finished")
	return res
}

func (e *SyncEngine) apply(ctx context.Context, item *models.SyncQueueItem) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	switch item.Action {
	case models.ActionInsert:
		_, err := e.remote.Insert(ctx, item.TableName, item.Payload)
		return err
	case models.ActionUpdate:
		return e.remote.Update(ctx, item.TableName, item.RecordID, item.Payload)
	case models.ActionDelete:
		err := e.remote.Delete(ctx, item.TableName, item.RecordID)
		// A replayed delete finds the row already gone.
		if errors.Is(err, repositories.ErrNotFound) && !errors.Is(err, repositories.ErrTransient) {
			return nil
		}
		return err
	}
	return fmt.Errorf("%w: unknown action %q", repositories.ErrRejected, item.Action)
}

// acknowledge removes a synced item and stamps its record in one local
// transaction. The record stays queued while later items for it remain.
func (e *SyncEngine) acknowledge(ctx context.Context, item *models.SyncQueueItem) error {
	return e.store.InTx(ctx, func(mirror repositories.MirrorRepository, queue repositories.SyncQueueRepository) error {
		if err := queue.Remove(ctx, item.ID); err != nil {
			return fmt.Errorf("failed to remove queue item: %w", err)
		}
		if item.Action == models.ActionDelete {
			return nil
		}

		pending, err := queue.HasPending(ctx, item.TableName, item.RecordID)
		if err != nil {
			return err
		}
		ev := models.EventConfirmed
		if pending {
			ev = models.EventConfirmedWithPending
		}
		syncedAt := e.now().UTC()
		state := models.NextSyncState(models.SyncStateQueued, ev)

		err = mirror.SetSyncState(ctx, item.TableName, item.RecordID, state, &syncedAt, "")
		if errors.Is(err, repositories.ErrNotFound) {
			// Deleted locally after this item was queued.
			return nil
		}
		return err
	})
}

func (e *SyncEngine) reject(ctx context.Context, item *models.SyncQueueItem, cause error) error {
	err := e.store.InTx(ctx, func(mirror repositories.MirrorRepository, queue repositories.SyncQueueRepository) error {
		if err := queue.Remove(ctx, item.ID); err != nil {
			return fmt.Errorf("failed to remove queue item: %w", err)
		}
		state := models.NextSyncState(models.SyncStateQueued, models.EventRejected)
		err := mirror.SetSyncState(ctx, item.TableName, item.RecordID, state, nil, cause.Error())
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}

	if e.failures != nil {
		e.failures.ReportFailure(SyncFailure{
			ItemID:   item.ID,
			Table:    item.TableName,
			RecordID: item.RecordID,
			Action:   string(item.Action),
			Error:    cause.Error(),
			At:       e.now().UTC(),
		})
	}
	return nil
}

func (e *SyncEngine) notify(res DrainResult) {
	e.mu.Lock()
	fns := make([]func(DrainResult), len(e.onDrained))
	copy(fns, e.onDrained)
	e.mu.Unlock()

	for _, fn := range fns {
		fn(res)
	}
}
