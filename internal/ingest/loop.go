// Package ingest wires the bus consumer, transformation pipeline, and
// delivery engine into the batch consumption & acknowledgement loop
// described by the spec's Consumer Loop component.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/pilot-net/icmp-mon/internal/audit"
	"github.com/pilot-net/icmp-mon/internal/bus"
	"github.com/pilot-net/icmp-mon/internal/delivery"
	"github.com/pilot-net/icmp-mon/internal/monitoring"
	"github.com/pilot-net/icmp-mon/internal/transform"
	"github.com/pilot-net/icmp-mon/pkg/types"
)

// BusConsumer is the subset of internal/bus.Consumer the loop depends on.
type BusConsumer interface {
	Run(ctx context.Context, handler bus.BatchHandler) error
}

// Loop drives one batch through transform -> delivery -> checkpoint and
// updates monitoring state at each step.
type Loop struct {
	consumer BusConsumer
	pipeline *transform.Pipeline
	engine   *delivery.Engine
	state    *monitoring.State
	audit    *audit.Store

	slowBatchThreshold time.Duration
	logger             *slog.Logger
}

// Config configures a Loop.
type Config struct {
	Consumer           BusConsumer
	Pipeline           *transform.Pipeline
	Engine             *delivery.Engine
	State              *monitoring.State
	Audit              *audit.Store  // optional; nil disables audit logging
	SlowBatchThreshold time.Duration // default 1200ms
	Logger             *slog.Logger
}

// New creates a Loop.
func New(cfg Config) *Loop {
	if cfg.SlowBatchThreshold <= 0 {
		cfg.SlowBatchThreshold = 1200 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		consumer:           cfg.Consumer,
		pipeline:           cfg.Pipeline,
		engine:             cfg.Engine,
		state:              cfg.State,
		audit:              cfg.Audit,
		slowBatchThreshold: cfg.SlowBatchThreshold,
		logger:             cfg.Logger,
	}
}

// Run blocks, driving batches through the loop until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	return l.consumer.Run(ctx, l.handleBatch)
}

// handleBatch implements steps 1-7 of the consumer loop. It returns false
// when delivery of the batch's survivors fails and true otherwise. Under the
// acknowledge-on-failure policy (spec §7) the bus consumer commits offsets
// regardless of the outcome, so it does not act on this return value.
func (l *Loop) handleBatch(ctx context.Context, batch []types.ScanRecord) bool {
	l.state.RecordPoll(len(batch))

	if len(batch) == 0 {
		return true
	}

	raw := make([][]byte, len(batch))
	for i, r := range batch {
		raw[i] = r.Value
	}

	start := time.Now()
	survivors := l.pipeline.Transform(raw)

	if len(survivors) == 0 {
		return true
	}

	ok := l.engine.DeliverBatch(ctx, survivors)
	elapsed := time.Since(start)

	last := batch[len(batch)-1]
	outcome := audit.BatchOutcome{
		Topic:           last.Topic,
		PartitionOffset: last.Offset,
		Duration:        elapsed,
		RecordedAt:      time.Now(),
	}

	if ok {
		l.state.RecordProcessed(len(survivors), elapsed)
		if elapsed > l.slowBatchThreshold {
			l.logger.Warn("slow batch", "records", len(survivors), "elapsed", elapsed)
		}
		outcome.SurvivorCount = len(survivors)
		l.recordAudit(ctx, outcome)
		return true
	}

	l.state.RecordFailed(len(survivors))
	l.logger.Warn("batch delivery failed", "records", len(survivors), "elapsed", elapsed)
	outcome.FailedCount = len(survivors)
	l.recordAudit(ctx, outcome)
	return false
}

func (l *Loop) recordAudit(ctx context.Context, o audit.BatchOutcome) {
	if l.audit == nil {
		return
	}
	if err := l.audit.RecordBatch(ctx, o); err != nil {
		l.logger.Warn("audit log write failed", "error", err)
	}
}
