// Package config handles ingestor configuration loading and validation.
//
// # Configuration Sources
//
// Configuration is loaded from (in order of precedence):
// 1. Command-line flags
// 2. Environment variables (WIFISCAN_*)
// 3. Config file (YAML)
// 4. Defaults
//
// # Example Config File
//
//	bus:
//	  brokers: [broker-1:9092, broker-2:9092]
//	  topic: wifi-scan-events
//	  consumer_group: wifi-scan-ingestor
//
//	delivery:
//	  stream_name: wifi-scan-events-stream
//	  region: us-east-1
//
//	processing:
//	  max_batch_size: 500
//	  max_retries: 3
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete ingestor configuration.
type Config struct {
	Bus        BusConfig        `yaml:"bus"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Processing ProcessingConfig `yaml:"processing"`
	Readiness  ReadinessConfig  `yaml:"readiness"`
	Control    ControlConfig    `yaml:"control,omitempty"`
	Audit      AuditConfig      `yaml:"audit,omitempty"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// BusConfig defines how to connect to the upstream message bus.
type BusConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	ConsumerGroup string        `yaml:"consumer_group"`
	BatchSize     int           `yaml:"batch_size,omitempty"`
	PollInterval  time.Duration `yaml:"poll_interval,omitempty"`
}

// DeliveryConfig defines the downstream delivery stream.
type DeliveryConfig struct {
	StreamName  string `yaml:"stream_name"`
	Region      string `yaml:"region"`
	EndpointURL string `yaml:"endpoint_url,omitempty"` // local test double override
}

// ProcessingConfig holds the numeric contracts from the processing pipeline.
type ProcessingConfig struct {
	Enabled              bool    `yaml:"enabled"`
	MaxBatchSize         int     `yaml:"max_batch_size,omitempty"`
	MaxBatchSizeBytes    int     `yaml:"max_batch_size_bytes,omitempty"`
	MaxRecordSizeBytes   int     `yaml:"max_record_size_bytes,omitempty"`
	MaxRetries           int     `yaml:"max_retries,omitempty"`
	RetryBackoffMs       int     `yaml:"retry_backoff_ms,omitempty"`
	RetryJitter          float64 `yaml:"retry_jitter,omitempty"`
	SlowBatchThresholdMs int     `yaml:"slow_batch_threshold_ms,omitempty"`
}

// ReadinessConfig tunes the readiness arbiter's consumption-health check.
type ReadinessConfig struct {
	ConsumptionTimeoutMinutes int     `yaml:"consumption_timeout_minutes,omitempty"`
	MinimumConsumptionRate    float64 `yaml:"minimum_consumption_rate,omitempty"`
}

// ControlConfig configures cross-replica pause/resume signaling.
type ControlConfig struct {
	RedisURL string `yaml:"redis_url,omitempty"`
}

// AuditConfig configures the optional, disabled-by-default audit trail.
type AuditConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DatabaseURL string `yaml:"database_url,omitempty"`
}

// HTTPConfig configures the operational HTTP surface.
type HTTPConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// DefaultConfig returns a config with the spec's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			BatchSize:    150,
			PollInterval: time.Second,
		},
		Processing: ProcessingConfig{
			Enabled:              true,
			MaxBatchSize:         500,
			MaxBatchSizeBytes:    4 << 20,
			MaxRecordSizeBytes:   1_024_000,
			MaxRetries:           3,
			RetryBackoffMs:       1000,
			SlowBatchThresholdMs: 1200,
		},
		Readiness: ReadinessConfig{
			ConsumptionTimeoutMinutes: 5,
			MinimumConsumptionRate:    0,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// LoadFromFile loads configuration from a YAML file, starting from defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if !c.Processing.Enabled {
		return nil
	}
	if c.Bus.Topic == "" {
		return fmt.Errorf("bus.topic is required")
	}
	if c.Bus.ConsumerGroup == "" {
		return fmt.Errorf("bus.consumer_group is required")
	}
	if len(c.Bus.Brokers) == 0 {
		return fmt.Errorf("bus.brokers is required")
	}
	if c.Delivery.StreamName == "" {
		return fmt.Errorf("delivery.stream_name is required")
	}
	return nil
}

// RetryBackoff returns the configured base backoff as a time.Duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Processing.RetryBackoffMs) * time.Millisecond
}

// SlowBatchThreshold returns the configured slow-batch warn threshold.
func (c *Config) SlowBatchThreshold() time.Duration {
	return time.Duration(c.Processing.SlowBatchThresholdMs) * time.Millisecond
}

// ConsumptionTimeout returns the readiness idle tolerance.
func (c *Config) ConsumptionTimeout() time.Duration {
	return time.Duration(c.Readiness.ConsumptionTimeoutMinutes) * time.Minute
}

// ApplyEnvOverrides applies environment variable overrides.
// Environment variables use the WIFISCAN_ prefix:
//   - WIFISCAN_BUS_BROKERS (comma-separated)
//   - WIFISCAN_BUS_TOPIC
//   - WIFISCAN_BUS_CONSUMER_GROUP
//   - WIFISCAN_DELIVERY_STREAM_NAME
//   - WIFISCAN_DELIVERY_REGION
//   - WIFISCAN_DELIVERY_ENDPOINT_URL
//   - WIFISCAN_CONTROL_REDIS_URL
//   - WIFISCAN_AUDIT_DATABASE_URL
//   - WIFISCAN_PROCESSING_ENABLED (JSON bool)
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("WIFISCAN_BUS_BROKERS"); v != "" {
		c.Bus.Brokers = splitCSV(v)
	}
	if v := os.Getenv("WIFISCAN_BUS_TOPIC"); v != "" {
		c.Bus.Topic = v
	}
	if v := os.Getenv("WIFISCAN_BUS_CONSUMER_GROUP"); v != "" {
		c.Bus.ConsumerGroup = v
	}
	if v := os.Getenv("WIFISCAN_DELIVERY_STREAM_NAME"); v != "" {
		c.Delivery.StreamName = v
	}
	if v := os.Getenv("WIFISCAN_DELIVERY_REGION"); v != "" {
		c.Delivery.Region = v
	}
	if v := os.Getenv("WIFISCAN_DELIVERY_ENDPOINT_URL"); v != "" {
		c.Delivery.EndpointURL = v
	}
	if v := os.Getenv("WIFISCAN_CONTROL_REDIS_URL"); v != "" {
		c.Control.RedisURL = v
	}
	if v := os.Getenv("WIFISCAN_AUDIT_DATABASE_URL"); v != "" {
		c.Audit.DatabaseURL = v
		c.Audit.Enabled = true
	}
	if v := os.Getenv("WIFISCAN_PROCESSING_ENABLED"); v != "" {
		var enabled bool
		if err := json.Unmarshal([]byte(v), &enabled); err == nil {
			c.Processing.Enabled = enabled
		}
	}
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
