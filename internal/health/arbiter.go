// Package health derives liveness and readiness verdicts from the
// monitoring state and bus connectivity, in the teacher's single-JSON-body
// handler idiom generalized into the liveness/readiness split.
package health

import (
	"time"
)

// Status is the UP/DOWN verdict string used on the wire.
type Status string

const (
	Up   Status = "UP"
	Down Status = "DOWN"
)

// Verdict is a health check result with a machine-checkable status and a
// human-readable detail map, matching the `{status, details}` wire shape.
type Verdict struct {
	Status  Status                 `json:"status"`
	Details map[string]interface{} `json:"details"`
}

// Heartbeat reports process liveness from the time of the last observed
// beat (the composition root wires monitoring.State.LastPoll); if that time
// stops advancing, the liveness timeout trips.
type Heartbeat struct {
	last func() time.Time
}

// NewHeartbeat wraps a function returning the time of the last observed
// beat, so the arbiter never needs direct access to shared mutable state.
func NewHeartbeat(last func() time.Time) *Heartbeat {
	return &Heartbeat{last: last}
}

// ConsumptionState is the subset of monitoring.State the readiness check
// needs, kept as an interface so tests can fake it without constructing a
// full monitoring.State. The three connectivity flags are set on the real
// State by the composition root's periodic bus connectivity check.
type ConsumptionState interface {
	IsConsumptionHealthy(timeout time.Duration, minRate float64) bool
	TotalConsumed() int64
	Connected() bool
	GroupActive() bool
	TopicsAccessible() bool
}

// Arbiter computes liveness and readiness verdicts.
type Arbiter struct {
	heartbeat *Heartbeat
	state     ConsumptionState

	livenessTimeout    time.Duration
	consumptionTimeout time.Duration
	minConsumptionRate float64
}

// Config configures an Arbiter.
type Config struct {
	Heartbeat *Heartbeat
	State     ConsumptionState

	LivenessTimeout    time.Duration // default 30s
	ConsumptionTimeout time.Duration // consumptionTimeoutMinutes
	MinConsumptionRate float64       // minimumConsumptionRate
}

// New creates an Arbiter.
func New(cfg Config) *Arbiter {
	if cfg.LivenessTimeout <= 0 {
		cfg.LivenessTimeout = 30 * time.Second
	}
	return &Arbiter{
		heartbeat:          cfg.Heartbeat,
		state:              cfg.State,
		livenessTimeout:    cfg.LivenessTimeout,
		consumptionTimeout: cfg.ConsumptionTimeout,
		minConsumptionRate: cfg.MinConsumptionRate,
	}
}

// Liveness reports whether the process is alive and its heartbeat hasn't
// stalled.
func (a *Arbiter) Liveness() Verdict {
	stalledFor := time.Since(a.heartbeat.last())
	if stalledFor > a.livenessTimeout {
		return Verdict{
			Status: Down,
			Details: map[string]interface{}{
				"reason":    "heartbeat stalled",
				"stalledMs": stalledFor.Milliseconds(),
			},
		}
	}
	return Verdict{Status: Up, Details: map[string]interface{}{}}
}

// Readiness implements the truth table from spec §8: UP iff connected ∧
// groupActive ∧ topicsAccessible ∧ (consumptionHealthy ∨ totalConsumed==0).
// Any false element yields a specific reason.
func (a *Arbiter) Readiness() Verdict {
	if !a.state.Connected() {
		return down("bus not connected")
	}
	if !a.state.GroupActive() {
		return down("consumer group not active")
	}
	if !a.state.TopicsAccessible() {
		return down("topics not accessible")
	}

	coldStart := a.state.TotalConsumed() == 0
	if !coldStart && !a.state.IsConsumptionHealthy(a.consumptionTimeout, a.minConsumptionRate) {
		return down("consumption rate below threshold or stalled")
	}

	return Verdict{Status: Up, Details: map[string]interface{}{}}
}

func down(reason string) Verdict {
	return Verdict{Status: Down, Details: map[string]interface{}{"reason": reason}}
}
