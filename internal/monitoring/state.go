// Package monitoring tracks the counters, rates, and timestamps that back
// both the metrics snapshot and the health arbiter. All mutations are plain
// atomic updates; no mutating operation requires a critical section longer
// than a single counter bump, so the HTTP surface can read concurrently with
// worker goroutines writing without contention.
package monitoring

import (
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/pilot-net/icmp-mon/pkg/types"
)

// ewmaHalfLife is the half-life used to smooth the consumption rate.
const ewmaHalfLife = 60 * time.Second

// State holds process-lifetime counters and derived rates.
type State struct {
	totalConsumed  atomic.Int64
	totalProcessed atomic.Int64
	totalFailed    atomic.Int64

	firstMessageTs atomic.Int64
	lastMessageTs  atomic.Int64
	lastPollTs     atomic.Int64
	isPolling      atomic.Bool

	sumProcessingMs atomic.Int64
	countProcessed  atomic.Int64
	minProcessingMs atomic.Int64
	maxProcessingMs atomic.Int64

	consumptionRateBits atomic.Uint64 // math.Float64bits
	lastRateUpdateNanos atomic.Int64

	consumerConnected   atomic.Bool
	consumerGroupActive atomic.Bool
	topicsAccessible    atomic.Bool

	startedAt time.Time
}

// New creates a State. now is injected so tests can control timestamps.
func New(now time.Time) *State {
	s := &State{startedAt: now}
	s.minProcessingMs.Store(math.MaxInt64)
	return s
}

// RecordPoll is called once per poll invocation with the size of the
// fetched batch, per consumer loop step 1.
func (s *State) RecordPoll(batchSize int) {
	now := time.Now()
	s.lastPollTs.Store(now.UnixMilli())
	s.isPolling.Store(true)

	if batchSize == 0 {
		return
	}

	s.totalConsumed.Add(int64(batchSize))
	if s.firstMessageTs.Load() == 0 {
		s.firstMessageTs.Store(now.UnixMilli())
	}
	s.lastMessageTs.Store(now.UnixMilli())
	s.updateConsumptionRate(now, batchSize)
}

// RecordProcessed records a successful delivery of n survivor records that
// took elapsed to process.
func (s *State) RecordProcessed(n int, elapsed time.Duration) {
	s.totalProcessed.Add(int64(n))
	s.recordProcessingTime(elapsed)
}

// RecordFailed records n survivor records whose delivery failed.
func (s *State) RecordFailed(n int) {
	s.totalFailed.Add(int64(n))
}

func (s *State) recordProcessingTime(elapsed time.Duration) {
	ms := elapsed.Milliseconds()
	s.sumProcessingMs.Add(ms)
	s.countProcessed.Add(1)

	for {
		cur := s.minProcessingMs.Load()
		if ms >= cur {
			break
		}
		if s.minProcessingMs.CompareAndSwap(cur, ms) {
			break
		}
	}
	for {
		cur := s.maxProcessingMs.Load()
		if ms <= cur {
			break
		}
		if s.maxProcessingMs.CompareAndSwap(cur, ms) {
			break
		}
	}
}

// updateConsumptionRate folds batchSize messages into an EWMA of
// messages/second with a 1-minute half-life.
func (s *State) updateConsumptionRate(now time.Time, batchSize int) {
	nowNanos := now.UnixNano()
	lastNanos := s.lastRateUpdateNanos.Swap(nowNanos)

	instantRate := float64(batchSize) // at least one sample's worth
	if lastNanos != 0 {
		dt := time.Duration(nowNanos - lastNanos)
		if dt > 0 {
			instantRate = float64(batchSize) / dt.Seconds()
		}
	}

	prevBits := s.consumptionRateBits.Load()
	prev := math.Float64frombits(prevBits)
	if prevBits == 0 {
		s.consumptionRateBits.Store(math.Float64bits(instantRate))
		return
	}

	dt := time.Duration(nowNanos - lastNanos)
	alpha := 1 - math.Exp(-float64(dt)/float64(ewmaHalfLife)*math.Ln2)
	next := prev + alpha*(instantRate-prev)
	s.consumptionRateBits.Store(math.Float64bits(next))
}

// SetConsumerConnected, SetConsumerGroupActive, SetTopicsAccessible record
// the health-relevant bus connectivity flags.
func (s *State) SetConsumerConnected(v bool)   { s.consumerConnected.Store(v) }
func (s *State) SetConsumerGroupActive(v bool) { s.consumerGroupActive.Store(v) }
func (s *State) SetTopicsAccessible(v bool)    { s.topicsAccessible.Store(v) }

// Connected, GroupActive, TopicsAccessible read back the flags above for
// the readiness arbiter.
func (s *State) Connected() bool        { return s.consumerConnected.Load() }
func (s *State) GroupActive() bool      { return s.consumerGroupActive.Load() }
func (s *State) TopicsAccessible() bool { return s.topicsAccessible.Load() }

// IsConsumptionHealthy implements the cold-start-tolerant freshness check
// from spec §4.E.
func (s *State) IsConsumptionHealthy(timeout time.Duration, minRate float64) bool {
	if s.totalConsumed.Load() == 0 {
		return true
	}
	lastPoll := time.UnixMilli(s.lastPollTs.Load())
	if time.Since(lastPoll) > timeout {
		return false
	}
	return s.ConsumptionRate() >= minRate
}

// ConsumptionRate returns the current EWMA messages/sec estimate.
func (s *State) ConsumptionRate() float64 {
	return math.Float64frombits(s.consumptionRateBits.Load())
}

// TotalConsumed returns the lifetime count of consumed messages, used by
// the readiness arbiter's cold-start check.
func (s *State) TotalConsumed() int64 {
	return s.totalConsumed.Load()
}

// LastPoll returns the time of the most recent poll, used as the liveness
// heartbeat source: as long as the loop keeps polling (even empty batches),
// the process is considered alive.
func (s *State) LastPoll() time.Time {
	ms := s.lastPollTs.Load()
	if ms == 0 {
		return s.startedAt
	}
	return time.UnixMilli(ms)
}

// Reset zeroes all counters, per POST /metrics/kafka/reset.
func (s *State) Reset() {
	s.totalConsumed.Store(0)
	s.totalProcessed.Store(0)
	s.totalFailed.Store(0)
	s.firstMessageTs.Store(0)
	s.lastMessageTs.Store(0)
	s.lastPollTs.Store(0)
	s.sumProcessingMs.Store(0)
	s.countProcessed.Store(0)
	s.minProcessingMs.Store(math.MaxInt64)
	s.maxProcessingMs.Store(0)
	s.consumptionRateBits.Store(0)
	s.lastRateUpdateNanos.Store(0)
}

// Snapshot builds the JSON wire snapshot published at GET /metrics/kafka.
func (s *State) Snapshot() types.MonitoringSnapshot {
	processed := s.totalProcessed.Load()
	failed := s.totalFailed.Load()
	// processed / max(1, processed+failed): 0 when nothing has completed.
	denom := processed + failed
	if denom < 1 {
		denom = 1
	}
	successRate := float64(processed) / float64(denom)

	minMs := s.minProcessingMs.Load()
	if minMs == math.MaxInt64 {
		minMs = 0
	}
	avgMs := 0.0
	if count := s.countProcessed.Load(); count > 0 {
		avgMs = float64(s.sumProcessingMs.Load()) / float64(count)
	}

	memUsed, memTotal, memMax := readMemoryMB()

	return types.MonitoringSnapshot{
		TotalConsumed:       s.totalConsumed.Load(),
		TotalProcessed:      processed,
		TotalFailed:         failed,
		FirstMessageTs:      s.firstMessageTs.Load(),
		LastMessageTs:       s.lastMessageTs.Load(),
		LastPollTs:          s.lastPollTs.Load(),
		AvgProcessingMs:     avgMs,
		MinProcessingMs:     float64(minMs),
		MaxProcessingMs:     float64(s.maxProcessingMs.Load()),
		ConsumptionRate:     s.ConsumptionRate(),
		IsPolling:           s.isPolling.Load(),
		ConsumerConnected:   s.consumerConnected.Load(),
		ConsumerGroupActive: s.consumerGroupActive.Load(),
		TopicsAccessible:    s.topicsAccessible.Load(),
		MemoryUsedMB:        memUsed,
		MemoryTotalMB:       memTotal,
		MemoryMaxMB:         memMax,
		SuccessRate:         successRate,
		ErrorRate:           1 - successRate,
		Timestamp:           time.Now().UnixMilli(),
		MetricsVersion:      "1",
	}
}

// readMemoryMB reports the process's current RSS, the host's total memory,
// and a configured maximum (cgroup limit when available, otherwise total),
// all in megabytes.
func readMemoryMB() (usedMB, totalMB, maxMB float64) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, 0, 0
	}

	if mem, err := proc.MemoryInfo(); err == nil {
		usedMB = float64(mem.RSS) / (1024 * 1024)
	}

	if vm, err := memTotalBytes(); err == nil {
		totalMB = float64(vm) / (1024 * 1024)
	}

	maxMB = totalMB
	if limit, ok := cgroupMemoryLimitBytes(); ok {
		maxMB = float64(limit) / (1024 * 1024)
	}

	return usedMB, totalMB, maxMB
}
