// Package types defines the data model shared across the ingestion pipeline.
//
// # Design Principles
//
// 1. Simplicity: types represent the domain model directly, no ORM abstractions.
// 2. Serialization: snapshot/status types are JSON-serializable for the
//    operational HTTP surface; their field names follow the wire contract
//    the operator endpoints publish, not Go naming convention.
package types

import "time"

// ScanRecord is a raw WiFi scan record as pulled off the bus. The pipeline
// treats the payload as an opaque JSON blob beyond a structural
// well-formedness check; it never parses the contents.
type ScanRecord struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
}

// EncodedRecord is the base64-of-gzip wire form of a single accepted
// ScanRecord, plus the sizes needed for reporting compression ratio.
type EncodedRecord struct {
	Text         string
	OriginalSize int
	EncodedSize  int
}

// SubBatch is an ordered slice of encoded records sized to respect the
// downstream's per-request record-count and byte caps.
type SubBatch struct {
	Records []EncodedRecord
	Bytes   int
}

// DeliveryAttempt tracks one submission of a sub-batch (or the records that
// survived a prior partial failure) to the downstream.
type DeliveryAttempt struct {
	Records      []EncodedRecord
	Attempt      int
	BackoffSoFar time.Duration
}

// MonitoringSnapshot mirrors the wire contract published at
// GET /metrics/kafka. Field names are fixed by that contract.
type MonitoringSnapshot struct {
	TotalConsumed        int64   `json:"totalConsumed"`
	TotalProcessed       int64   `json:"totalProcessed"`
	TotalFailed          int64   `json:"totalFailed"`
	FirstMessageTs       int64   `json:"firstMessageTs"`
	LastMessageTs        int64   `json:"lastMessageTs"`
	LastPollTs           int64   `json:"lastPollTs"`
	AvgProcessingMs      float64 `json:"avgProcessingMs"`
	MinProcessingMs      float64 `json:"minProcessingMs"`
	MaxProcessingMs      float64 `json:"maxProcessingMs"`
	ConsumptionRate      float64 `json:"consumptionRate"`
	IsPolling            bool    `json:"isPolling"`
	ConsumerConnected    bool    `json:"consumerConnected"`
	ConsumerGroupActive  bool    `json:"consumerGroupActive"`
	TopicsAccessible     bool    `json:"topicsAccessible"`
	MemoryUsedMB         float64 `json:"memoryUsedMB"`
	MemoryTotalMB        float64 `json:"memoryTotalMB"`
	MemoryMaxMB          float64 `json:"memoryMaxMB"`
	SuccessRate          float64 `json:"successRate"`
	ErrorRate            float64 `json:"errorRate"`
	Timestamp            int64   `json:"timestamp"`
	MetricsVersion       string  `json:"metricsVersion"`
}
