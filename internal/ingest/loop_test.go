package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/pilot-net/icmp-mon/internal/audit"
	"github.com/pilot-net/icmp-mon/internal/bus"
	"github.com/pilot-net/icmp-mon/internal/delivery"
	"github.com/pilot-net/icmp-mon/internal/monitoring"
	"github.com/pilot-net/icmp-mon/internal/transform"
	"github.com/pilot-net/icmp-mon/pkg/types"
)

// fakeConsumer invokes handler once with a fixed batch, then blocks until
// ctx is cancelled, mirroring bus.Consumer.Run's contract.
type fakeConsumer struct {
	batch []types.ScanRecord
}

func (f *fakeConsumer) Run(ctx context.Context, handler bus.BatchHandler) error {
	handler(ctx, f.batch)
	<-ctx.Done()
	return ctx.Err()
}

func newLoop(t *testing.T, batch []types.ScanRecord, publisher delivery.Publisher) (*Loop, *monitoring.State) {
	t.Helper()
	state := monitoring.New(time.Now())
	pipeline := transform.New(transform.Config{MaxRecordSizeBytes: 1024})
	engine := delivery.New(delivery.Config{
		DeliveryStreamName: "test-stream",
		Publisher:          publisher,
	})
	loop := New(Config{
		Consumer: &fakeConsumer{batch: batch},
		Pipeline: pipeline,
		Engine:   engine,
		State:    state,
		Audit:    audit.New(nil),
	})
	return loop, state
}

func wellFormedRecord(value string) types.ScanRecord {
	return types.ScanRecord{Topic: "wifi-scan-events", Partition: 0, Offset: 42, Value: []byte(value)}
}

func TestHandleBatchEmptyBatchOnlyRecordsPoll(t *testing.T) {
	loop, state := newLoop(t, nil, &delivery.FakePublisher{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	if got := state.TotalConsumed(); got != 0 {
		t.Errorf("expected totalConsumed=0 for an empty batch, got %d", got)
	}
}

func TestHandleBatchDeliversSurvivors(t *testing.T) {
	batch := []types.ScanRecord{wellFormedRecord(`{"ssid":"net1"}`), wellFormedRecord(`{"ssid":"net2"}`)}
	pub := &delivery.FakePublisher{}
	loop, state := newLoop(t, batch, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	if got := state.TotalConsumed(); got != 2 {
		t.Errorf("expected totalConsumed=2, got %d", got)
	}
	snap := state.Snapshot()
	if snap.TotalProcessed != 2 {
		t.Errorf("expected totalProcessed=2, got %d", snap.TotalProcessed)
	}
	if snap.TotalFailed != 0 {
		t.Errorf("expected totalFailed=0, got %d", snap.TotalFailed)
	}
}

func TestHandleBatchMalformedRecordsNeverReachDelivery(t *testing.T) {
	batch := []types.ScanRecord{{Topic: "wifi-scan-events", Value: []byte("not-json")}}
	pub := &delivery.FakePublisher{}
	loop, state := newLoop(t, batch, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	if pub.CallCount() != 0 {
		t.Errorf("expected no delivery attempt for an all-malformed batch, got %d calls", pub.CallCount())
	}
	if got := state.TotalConsumed(); got != 1 {
		t.Errorf("expected totalConsumed=1 (polled, even if rejected downstream), got %d", got)
	}
}

func TestHandleBatchFailedDeliveryRecordsFailure(t *testing.T) {
	batch := []types.ScanRecord{wellFormedRecord(`{"ssid":"net1"}`)}
	pub := &delivery.FakePublisher{Reject: func(string) (bool, error) { return true, nil }}
	state := monitoring.New(time.Now())
	loop := New(Config{
		Consumer: &fakeConsumer{batch: batch},
		Pipeline: transform.New(transform.Config{MaxRecordSizeBytes: 1024}),
		Engine: delivery.New(delivery.Config{
			DeliveryStreamName: "test-stream",
			Publisher:          pub,
			MaxRetries:         0,
			RetryBackoff:       time.Millisecond,
		}),
		State: state,
		Audit: audit.New(nil),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	snap := state.Snapshot()
	if snap.TotalFailed != 1 {
		t.Errorf("expected totalFailed=1, got %d", snap.TotalFailed)
	}
}
