package repositories

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnknownTable = errors.New("unknown table")

	// ErrTransient marks remote failures that may succeed when retried:
	// the backend was unreachable, timed out or asked us to retry.
	ErrTransient = errors.New("transient remote failure")

	// ErrRejected marks remote failures that will fail again on retry:
	// validation, constraint or conflict errors.
	ErrRejected = errors.New("remote rejected mutation")
)

// IsPermanent reports whether a remote failure cannot succeed by retrying.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return false
	}
	return errors.Is(err, ErrRejected) || errors.Is(err, ErrNotFound)
}

// classifyRemoteError wraps err with ErrTransient or ErrRejected.
// Anything we cannot positively identify as a rejection is transient so
// the mutation stays queued.
func classifyRemoteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrRejected) || errors.Is(err, ErrNotFound) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if isRetryableSQLState(pgErr.Code) {
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

func isRetryableSQLState(code string) bool {
	if len(code) < 2 {
		return true
	}
	switch code[:2] {
	case "08", // connection exception
		"53", // insufficient resources
		"57", // operator intervention (shutdown, query canceled)
		"58": // system error
		return true
	}
	switch code {
	case "40001", "40P01": // serialization failure, deadlock
		return true
	}
	return false
}
