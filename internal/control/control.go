// Package control implements pause/resume of the consumer loop, broadcast
// over Redis pub/sub so multiple ingestor replicas stay in sync. The Redis
// wiring is repurposed from a durable write-ahead queue into an ephemeral
// signal channel: it carries no record data and is never a durability
// boundary, so it sits outside the no-persistent-buffering constraint that
// rules out using Redis as a queue elsewhere in this pipeline.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// channelName is the Redis pub/sub channel carrying control signals.
const channelName = "wifiscan:consumer:control"

// State is the observable pause/resume state.
type State string

const (
	Running State = "running"
	Paused  State = "paused"
)

type signal struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

// Control tracks local pause state and optionally mirrors transitions to
// other replicas over Redis pub/sub.
type Control struct {
	paused atomic.Bool

	client *redis.Client
	logger *slog.Logger
}

// Config configures a Control. Redis wiring is optional: a nil client
// yields a purely local, single-process pause/resume switch.
type Config struct {
	RedisURL string
	Logger   *slog.Logger
}

// New creates a Control. If cfg.RedisURL is empty, pause/resume stays
// local to this process.
func New(cfg Config) (*Control, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Control{logger: cfg.Logger}

	if cfg.RedisURL == "" {
		return c, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	c.client = client
	return c, nil
}

// Pause stops further poll callbacks from being dispatched. Idempotent.
func (c *Control) Pause(ctx context.Context) error {
	if !c.paused.CompareAndSwap(false, true) {
		return nil // already paused
	}
	return c.publish(ctx, Paused)
}

// Resume restores normal polling. Idempotent.
func (c *Control) Resume(ctx context.Context) error {
	if !c.paused.CompareAndSwap(true, false) {
		return nil // already running
	}
	return c.publish(ctx, Running)
}

// IsPaused reports the current state. Wired as the bus consumer's paused
// predicate.
func (c *Control) IsPaused() bool {
	return c.paused.Load()
}

// GetState returns the observable state string.
func (c *Control) GetState() State {
	if c.paused.Load() {
		return Paused
	}
	return Running
}

func (c *Control) publish(ctx context.Context, s State) error {
	if c.client == nil {
		return nil
	}
	payload, err := json.Marshal(signal{State: s, At: time.Now()})
	if err != nil {
		return err
	}
	if err := c.client.Publish(ctx, channelName, payload).Err(); err != nil {
		c.logger.Warn("control broadcast failed", "state", s, "error", err)
		return err
	}
	return nil
}

// Subscribe starts a background listener that applies control signals
// published by other replicas to this process's local pause state. It
// returns immediately; the listener runs until ctx is cancelled.
func (c *Control) Subscribe(ctx context.Context) {
	if c.client == nil {
		return
	}

	sub := c.client.Subscribe(ctx, channelName)
	ch := sub.Channel()

	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var sig signal
				if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
					c.logger.Warn("invalid control signal", "error", err)
					continue
				}
				c.paused.Store(sig.State == Paused)
			}
		}
	}()
}

// Close releases the Redis client, if any.
func (c *Control) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
