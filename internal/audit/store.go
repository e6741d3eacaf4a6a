// Package audit provides an optional, disabled-by-default outcome log for
// batch deliveries, kept outside the durability/checkpoint contract: losing
// this table loses nothing the ingestion pipeline requires, it only loses
// post-hoc debugging context.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BatchOutcome is one row of the audit trail.
type BatchOutcome struct {
	Topic           string
	PartitionOffset int64
	SurvivorCount   int
	FailedCount     int
	Duration        time.Duration
	RecordedAt      time.Time
}

// Store appends batch outcomes to Postgres. A nil pool makes every method a
// no-op, so callers can leave the audit trail disabled by default without
// branching on configuration at every call site.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. Pass nil to disable the audit trail.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewFromURL connects to the given database URL. Used when the audit trail
// is explicitly enabled in configuration.
func NewFromURL(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to audit database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Enabled reports whether this store is backed by a live pool.
func (s *Store) Enabled() bool {
	return s.pool != nil
}

// RecordBatch appends one outcome row. A no-op when the audit trail is
// disabled.
func (s *Store) RecordBatch(ctx context.Context, o BatchOutcome) error {
	if s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO batch_outcomes (topic, partition_offset, survivor_count, failed_count, duration_ms, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, o.Topic, o.PartitionOffset, o.SurvivorCount, o.FailedCount, o.Duration.Milliseconds(), o.RecordedAt)
	return err
}

// Ping verifies database connectivity. A no-op when the audit trail is
// disabled.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close releases the pool, if any.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
