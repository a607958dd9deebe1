package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const (
	MaxConns        = 10
	MinConns        = 2
	MaxConnLifetime = 10 * time.Minute
	MaxConnIdleTime = 5 * time.Minute
)

// NewPostgresPool connects to the hosted backend the sync engine replays
// mutations against.
func NewPostgresPool(ctx context.Context, databaseURL string, log *logrus.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing postgres config: %w", err)
	}

	// Configure the pool
	config.MaxConns = MaxConns
	config.MinConns = MinConns
	config.MaxConnLifetime = MaxConnLifetime
	config.MaxConnIdleTime = MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error creating postgres pool: %w", err)
	}

	// An unreachable backend is not fatal for an offline-first node: the
	// pool reconnects lazily and the sync queue holds mutations meanwhile.
	if err := pool.Ping(ctx); err != nil {
		log.WithError(err).Warn("postgres not reachable at startup, continuing offline")
		return pool, nil
	}

	log.Info("Postgres pool created successfully")

	return pool, nil
}
