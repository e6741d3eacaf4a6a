package audit

import (
	"context"
	"testing"
	"time"
)

func TestNilPoolStoreIsDisabled(t *testing.T) {
	s := New(nil)
	if s.Enabled() {
		t.Fatal("expected a nil-pool store to report disabled")
	}
}

func TestNilPoolStoreMethodsAreNoOps(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	if err := s.RecordBatch(ctx, BatchOutcome{
		Topic:         "wifi-scan-events",
		SurvivorCount: 3,
		RecordedAt:    time.Now(),
	}); err != nil {
		t.Errorf("expected RecordBatch on a disabled store to be a no-op, got %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("expected Ping on a disabled store to be a no-op, got %v", err)
	}

	s.Close() // must not panic
}
