// Package delivery implements the sub-batching, retry, and backpressure
// logic that sits between the transformation pipeline and the downstream
// delivery stream.
//
// # Design
//
// Encoded records are greedily partitioned into sub-batches that respect the
// downstream's per-request record-count and byte caps, then submitted
// sequentially. A sub-batch that comes back with a partial or whole-request
// retryable failure is resubmitted — only the still-failing records — after
// an exponential backoff, up to a fixed retry budget. The engine never
// throws: deliverBatch always resolves to a single success/failure verdict.
package delivery

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/pilot-net/icmp-mon/pkg/types"
)

// Publisher is the downstream collaborator. A single call may report a
// partial failure by returning the subset of records that failed, all of
// which are treated as retryable; implementations never need to retry
// internally — the Engine owns retry/backoff.
type Publisher interface {
	// PutRecordBatch submits records to streamName. It returns the records
	// that the downstream rejected, in input order. A non-nil err means the
	// whole request failed (network, throttle, etc.) and is retryable
	// unless it is a *PermanentError.
	PutRecordBatch(ctx context.Context, streamName string, records []types.EncodedRecord) (failed []types.EncodedRecord, err error)
}

// PermanentError marks a downstream rejection that must not be retried
// (schema/validation/credential failures).
type PermanentError struct {
	Err error
}

func (p *PermanentError) Error() string { return p.Err.Error() }
func (p *PermanentError) Unwrap() error { return p.Err }

func isPermanent(err error) bool {
	_, ok := err.(*PermanentError)
	return ok
}

// Config configures an Engine.
type Config struct {
	DeliveryStreamName string
	MaxBatchSize       int           // records per sub-batch, default 500
	MaxBatchSizeBytes  int           // bytes per sub-batch, default 4 MiB
	MaxRetries         int           // default 3
	RetryBackoff       time.Duration // base backoff, default 1s, doubled per attempt
	Jitter             float64       // fraction of backoff to randomize, default 0 (deterministic)
	RateLimit          float64       // records/sec across submissions (burst MaxBatchSize), 0 disables throttling

	Publisher Publisher
	Logger    *slog.Logger
}

// Engine partitions and delivers encoded records to the downstream.
type Engine struct {
	streamName        string
	maxBatchSize      int
	maxBatchSizeBytes int
	maxRetries        int
	retryBackoff      time.Duration
	jitter            float64

	limiter   *rate.Limiter
	publisher Publisher
	logger    *slog.Logger
}

// New creates an Engine with defaults applied to unset fields.
func New(cfg Config) *Engine {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 500
	}
	if cfg.MaxBatchSizeBytes <= 0 {
		cfg.MaxBatchSizeBytes = 4 * 1024 * 1024
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.MaxBatchSize)
	}

	return &Engine{
		streamName:        cfg.DeliveryStreamName,
		maxBatchSize:      cfg.MaxBatchSize,
		maxBatchSizeBytes: cfg.MaxBatchSizeBytes,
		maxRetries:        cfg.MaxRetries,
		retryBackoff:      cfg.RetryBackoff,
		jitter:            cfg.Jitter,
		limiter:           limiter,
		publisher:         cfg.Publisher,
		logger:            cfg.Logger,
	}
}

// Partition greedily splits records into sub-batches respecting both the
// record-count and byte caps. A record too large to ever fit a sub-batch by
// itself is dropped with a warning (should not happen: the transformation
// pipeline enforces max-record-size-bytes <= max-batch-size-bytes).
func (e *Engine) Partition(records []types.EncodedRecord) []types.SubBatch {
	var batches []types.SubBatch
	var cur types.SubBatch

	for _, r := range records {
		if len(r.Text) > e.maxBatchSizeBytes {
			e.logger.Warn("dropping record exceeding max batch size bytes",
				"encoded_size", len(r.Text),
				"max_batch_size_bytes", e.maxBatchSizeBytes)
			continue
		}

		fitsCount := len(cur.Records)+1 <= e.maxBatchSize
		fitsBytes := cur.Bytes+len(r.Text) <= e.maxBatchSizeBytes

		if len(cur.Records) > 0 && (!fitsCount || !fitsBytes) {
			batches = append(batches, cur)
			cur = types.SubBatch{}
		}

		cur.Records = append(cur.Records, r)
		cur.Bytes += len(r.Text)
	}

	if len(cur.Records) > 0 {
		batches = append(batches, cur)
	}

	return batches
}

// DeliverBatch partitions records and submits each sub-batch sequentially,
// retrying partial or whole-request failures with exponential backoff. It
// returns true iff every input record is ultimately accepted.
func (e *Engine) DeliverBatch(ctx context.Context, records []types.EncodedRecord) bool {
	if len(records) == 0 {
		return true
	}

	batches := e.Partition(records)
	allOK := true

	// Records Partition dropped as oversized are never accepted.
	kept := 0
	for _, batch := range batches {
		kept += len(batch.Records)
	}
	if kept < len(records) {
		allOK = false
	}

	for _, batch := range batches {
		if !e.deliverSubBatch(ctx, batch.Records) {
			allOK = false
		}
	}

	return allOK
}

// deliverSubBatch submits one sub-batch, retrying failed records (and only
// failed records) up to the configured retry budget.
func (e *Engine) deliverSubBatch(ctx context.Context, records []types.EncodedRecord) bool {
	attemptID := uuid.NewString()
	pending := records
	backoff := e.retryBackoff

	for attempt := 1; ; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.WaitN(ctx, len(pending)); err != nil {
				e.logger.Warn("rate limiter wait aborted", "attempt_id", attemptID, "error", err)
				return false
			}
		}

		failed, err := e.publisher.PutRecordBatch(ctx, e.streamName, pending)

		if err != nil {
			if isPermanent(err) {
				e.logger.Error("non-retryable downstream error, failing sub-batch",
					"attempt_id", attemptID, "records", len(pending), "error", err)
				return false
			}
			failed = pending
		}

		if len(failed) == 0 {
			return true
		}

		if attempt > e.maxRetries {
			e.logger.Warn("retry budget exhausted, records remain failed",
				"attempt_id", attemptID, "failed", len(failed), "attempts", attempt)
			return false
		}

		wait := e.backoffFor(backoff)
		e.logger.Warn("retrying failed records after backoff",
			"attempt_id", attemptID, "failed", len(failed), "attempt", attempt, "backoff", wait)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}

		pending = failed
		backoff *= 2
	}
}

func (e *Engine) backoffFor(base time.Duration) time.Duration {
	if e.jitter <= 0 {
		return base
	}
	delta := float64(base) * e.jitter * (rand.Float64()*2 - 1)
	return time.Duration(math.Max(0, float64(base)+delta))
}
