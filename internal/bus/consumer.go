// Package bus wraps a Kafka-compatible consumer group client in the batch,
// manual-acknowledgement mode the ingestion loop needs: fetch a bounded
// batch of records, hand it to a callback, and commit offsets once the
// callback returns, whatever it reports.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/pilot-net/icmp-mon/pkg/types"
)

// BatchHandler processes one polled batch and reports whether it was
// delivered. The Consumer commits offsets after the handler returns either
// way. It must not panic; any error should be folded into a false return
// plus a log line by the caller.
type BatchHandler func(ctx context.Context, batch []types.ScanRecord) (ok bool)

// Config configures a Consumer.
type Config struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	BatchSize     int
	PollInterval  time.Duration

	Logger *slog.Logger
}

// Consumer polls a topic in consumer-group, manual-ack batch mode.
type Consumer struct {
	client       *kgo.Client
	topic        string
	batchSize    int
	pollInterval time.Duration
	logger       *slog.Logger

	paused func() bool
}

// New connects a Consumer to the configured brokers and group.
func New(cfg Config, opts ...kgo.Opt) (*Consumer, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 150
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	base := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			cfg.Logger.Info("partitions assigned", "assignment", assigned)
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			cfg.Logger.Info("partitions revoked", "assignment", revoked)
		}),
	}
	base = append(base, opts...)

	client, err := kgo.NewClient(base...)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		client:       client,
		topic:        cfg.Topic,
		batchSize:    cfg.BatchSize,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
		paused:       func() bool { return false },
	}, nil
}

// SetPausedFunc wires a predicate the poll loop consults before each fetch,
// letting internal/control suspend polling without tearing down the client
// or losing the current offset position.
func (c *Consumer) SetPausedFunc(f func() bool) {
	c.paused = f
}

// Run polls batches and invokes handler until ctx is cancelled. Exactly one
// batch callback runs at a time for this client.
func (c *Consumer) Run(ctx context.Context, handler BatchHandler) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if c.paused() {
				continue
			}
			if err := c.pollOnce(ctx, handler); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				c.logger.Error("poll batch failed", "error", err)
			}
		}
	}
}

func (c *Consumer) pollOnce(ctx context.Context, handler BatchHandler) error {
	fetches := c.client.PollRecords(ctx, c.batchSize)
	if fetches.IsClientClosed() {
		return errors.New("bus client closed")
	}

	if errs := fetches.Errors(); len(errs) > 0 {
		for _, e := range errs {
			c.logger.Error("fetch error", "topic", e.Topic, "partition", e.Partition, "error", e.Err)
		}
	}

	var batch []types.ScanRecord
	fetches.EachRecord(func(r *kgo.Record) {
		batch = append(batch, types.ScanRecord{
			Topic:     r.Topic,
			Partition: r.Partition,
			Offset:    r.Offset,
			Key:       r.Key,
			Value:     r.Value,
		})
	})

	ok := handler(ctx, batch)
	_ = ok // commit is unconditional per the acknowledge-on-failure policy (spec §7)

	if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
		return err
	}

	return nil
}

// Close shuts down the underlying client.
func (c *Consumer) Close() {
	c.client.Close()
}

// Connected reports whether the client currently holds a live connection to
// the brokers (used by the readiness arbiter).
func (c *Consumer) Connected() bool {
	return c.client.Ping(context.Background()) == nil
}
