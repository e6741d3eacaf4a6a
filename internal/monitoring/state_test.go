package monitoring

import (
	"testing"
	"time"
)

func TestRecordPollEmptyBatchDoesNotTouchMessageTimestamps(t *testing.T) {
	s := New(time.Now())
	s.RecordPoll(0)

	snap := s.Snapshot()
	if snap.TotalConsumed != 0 {
		t.Errorf("expected totalConsumed=0, got %d", snap.TotalConsumed)
	}
	if snap.FirstMessageTs != 0 || snap.LastMessageTs != 0 {
		t.Errorf("expected message timestamps untouched by an empty poll")
	}
	if !snap.IsPolling {
		t.Errorf("expected isPolling=true after any poll, including an empty one")
	}
}

func TestRecordPollAccumulatesConsumedAndTimestamps(t *testing.T) {
	s := New(time.Now())
	s.RecordPoll(10)
	s.RecordPoll(5)

	snap := s.Snapshot()
	if snap.TotalConsumed != 15 {
		t.Errorf("expected totalConsumed=15, got %d", snap.TotalConsumed)
	}
	if snap.FirstMessageTs == 0 {
		t.Error("expected firstMessageTs to be set")
	}
	if snap.LastMessageTs == 0 {
		t.Error("expected lastMessageTs to be set")
	}
}

func TestRecordProcessedUpdatesSuccessRateAndLatencyStats(t *testing.T) {
	s := New(time.Now())
	s.RecordProcessed(5, 100*time.Millisecond)
	s.RecordProcessed(5, 300*time.Millisecond)

	snap := s.Snapshot()
	if snap.TotalProcessed != 10 {
		t.Errorf("expected totalProcessed=10, got %d", snap.TotalProcessed)
	}
	if snap.SuccessRate != 1 {
		t.Errorf("expected successRate=1 with zero failures, got %f", snap.SuccessRate)
	}
	if snap.MinProcessingMs != 100 {
		t.Errorf("expected minProcessingMs=100, got %f", snap.MinProcessingMs)
	}
	if snap.MaxProcessingMs != 300 {
		t.Errorf("expected maxProcessingMs=300, got %f", snap.MaxProcessingMs)
	}
	if snap.AvgProcessingMs != 200 {
		t.Errorf("expected avgProcessingMs=200, got %f", snap.AvgProcessingMs)
	}
}

func TestRecordFailedLowersSuccessRate(t *testing.T) {
	s := New(time.Now())
	s.RecordProcessed(3, time.Millisecond)
	s.RecordFailed(1)

	snap := s.Snapshot()
	if snap.TotalFailed != 1 {
		t.Errorf("expected totalFailed=1, got %d", snap.TotalFailed)
	}
	want := 0.75
	if snap.SuccessRate != want {
		t.Errorf("expected successRate=%f, got %f", want, snap.SuccessRate)
	}
	if snap.ErrorRate != 1-want {
		t.Errorf("expected errorRate=%f, got %f", 1-want, snap.ErrorRate)
	}
}

func TestSnapshotWithNoActivityHasZeroSuccessRate(t *testing.T) {
	s := New(time.Now())
	snap := s.Snapshot()
	if snap.SuccessRate != 0 {
		t.Errorf("expected successRate=0 on a fresh state (max(1, 0) denominator), got %f", snap.SuccessRate)
	}
	if snap.MinProcessingMs != 0 {
		t.Errorf("expected minProcessingMs=0 on a fresh state, got %f", snap.MinProcessingMs)
	}
}

func TestIsConsumptionHealthyColdStartTolerant(t *testing.T) {
	s := New(time.Now())
	if !s.IsConsumptionHealthy(time.Minute, 1.0) {
		t.Error("expected a fresh state with zero consumed messages to be healthy regardless of rate/timeout")
	}
}

func TestIsConsumptionHealthyStaleLastPoll(t *testing.T) {
	s := New(time.Now())
	s.RecordPoll(1)
	// Force the last poll far enough in the past to exceed a tiny timeout.
	s.lastPollTs.Store(time.Now().Add(-time.Hour).UnixMilli())

	if s.IsConsumptionHealthy(time.Minute, 0) {
		t.Error("expected unhealthy once lastPoll exceeds the timeout")
	}
}

func TestResetZeroesCounters(t *testing.T) {
	s := New(time.Now())
	s.RecordPoll(10)
	s.RecordProcessed(5, 10*time.Millisecond)
	s.RecordFailed(2)

	s.Reset()

	snap := s.Snapshot()
	if snap.TotalConsumed != 0 || snap.TotalProcessed != 0 || snap.TotalFailed != 0 {
		t.Error("expected all counters reset to zero")
	}
	if snap.FirstMessageTs != 0 || snap.LastMessageTs != 0 || snap.LastPollTs != 0 {
		t.Error("expected all timestamps reset to zero")
	}
}

func TestConnectivityFlagsObservable(t *testing.T) {
	s := New(time.Now())
	s.SetConsumerConnected(true)
	s.SetConsumerGroupActive(true)
	s.SetTopicsAccessible(true)

	snap := s.Snapshot()
	if !snap.ConsumerConnected || !snap.ConsumerGroupActive || !snap.TopicsAccessible {
		t.Error("expected all three connectivity flags reflected in the snapshot")
	}
}
