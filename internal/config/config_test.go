package config

import (
	"os"
	"testing"
)

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Processing.MaxBatchSize != 500 {
		t.Errorf("expected MaxBatchSize=500, got %d", cfg.Processing.MaxBatchSize)
	}
	if cfg.Processing.MaxBatchSizeBytes != 4<<20 {
		t.Errorf("expected MaxBatchSizeBytes=4MiB, got %d", cfg.Processing.MaxBatchSizeBytes)
	}
	if cfg.Processing.MaxRecordSizeBytes != 1_024_000 {
		t.Errorf("expected MaxRecordSizeBytes=1024000, got %d", cfg.Processing.MaxRecordSizeBytes)
	}
	if cfg.Processing.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", cfg.Processing.MaxRetries)
	}
	if cfg.Processing.RetryBackoffMs != 1000 {
		t.Errorf("expected RetryBackoffMs=1000, got %d", cfg.Processing.RetryBackoffMs)
	}
	if cfg.Processing.SlowBatchThresholdMs != 1200 {
		t.Errorf("expected SlowBatchThresholdMs=1200, got %d", cfg.Processing.SlowBatchThresholdMs)
	}
}

func TestValidateRequiresBusAndDeliveryFieldsWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error on a config missing topic/brokers/stream")
	}

	cfg.Bus.Topic = "wifi-scan-events"
	cfg.Bus.ConsumerGroup = "wifi-scan-ingestor"
	cfg.Bus.Brokers = []string{"broker-1:9092"}
	cfg.Delivery.StreamName = "wifi-scan-events-stream"

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected a fully-populated config to validate, got %v", err)
	}
}

func TestValidateSkippedWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Processing.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected no validation error when disabled, got %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	os.Setenv("WIFISCAN_BUS_TOPIC", "env-topic")
	os.Setenv("WIFISCAN_BUS_BROKERS", "b1:9092,b2:9092")
	os.Setenv("WIFISCAN_DELIVERY_STREAM_NAME", "env-stream")
	defer func() {
		os.Unsetenv("WIFISCAN_BUS_TOPIC")
		os.Unsetenv("WIFISCAN_BUS_BROKERS")
		os.Unsetenv("WIFISCAN_DELIVERY_STREAM_NAME")
	}()

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Bus.Topic != "env-topic" {
		t.Errorf("expected topic overridden from env, got %q", cfg.Bus.Topic)
	}
	if len(cfg.Bus.Brokers) != 2 || cfg.Bus.Brokers[0] != "b1:9092" || cfg.Bus.Brokers[1] != "b2:9092" {
		t.Errorf("expected brokers split from CSV env var, got %v", cfg.Bus.Brokers)
	}
	if cfg.Delivery.StreamName != "env-stream" {
		t.Errorf("expected stream name overridden from env, got %q", cfg.Delivery.StreamName)
	}
}

func TestDerivedDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	if got, want := cfg.RetryBackoff().Milliseconds(), int64(1000); got != want {
		t.Errorf("RetryBackoff() = %dms, want %dms", got, want)
	}
	if got, want := cfg.SlowBatchThreshold().Milliseconds(), int64(1200); got != want {
		t.Errorf("SlowBatchThreshold() = %dms, want %dms", got, want)
	}
}
