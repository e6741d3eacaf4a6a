// Package transform implements the per-record validation and encoding
// pipeline between the bus and the delivery engine.
//
// # Design
//
// Each raw record is trimmed, checked for structural well-formedness (must
// be non-empty and start/end with the brace pair — no full JSON parse), and
// handed to the codec. Survivors whose encoded size exceeds the configured
// per-record cap are dropped. A single bad record never aborts the batch;
// the result may simply be shorter than the input.
package transform

import (
	"bytes"
	"log/slog"

	"github.com/pilot-net/icmp-mon/internal/codec"
	"github.com/pilot-net/icmp-mon/pkg/types"
)

// Pipeline filters and encodes raw scan records.
type Pipeline struct {
	maxRecordSizeBytes int
	logger             *slog.Logger
}

// Config configures a Pipeline.
type Config struct {
	MaxRecordSizeBytes int
	Logger             *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		maxRecordSizeBytes: cfg.MaxRecordSizeBytes,
		logger:             cfg.Logger,
	}
}

// Transform validates and encodes raw records, preserving survivor order.
// The result may be shorter than raw, including empty.
func (p *Pipeline) Transform(raw [][]byte) []types.EncodedRecord {
	out := make([]types.EncodedRecord, 0, len(raw))

	for _, rec := range raw {
		trimmed := bytes.TrimSpace(rec)

		if !isWellFormed(trimmed) {
			p.logger.Warn("dropping malformed record", "preview", preview(trimmed))
			continue
		}

		text, err := codec.Encode(trimmed)
		if err != nil {
			p.logger.Warn("codec failure, dropping record", "error", err)
			continue
		}

		if p.maxRecordSizeBytes > 0 && len(text) > p.maxRecordSizeBytes {
			p.logger.Warn("dropping oversized encoded record",
				"encoded_size", len(text),
				"max_record_size_bytes", p.maxRecordSizeBytes)
			continue
		}

		out = append(out, types.EncodedRecord{
			Text:         text,
			OriginalSize: len(trimmed),
			EncodedSize:  len(text),
		})
	}

	return out
}

// isWellFormed reports whether b is non-empty and structurally begins and
// ends with the JSON object brace pair. It performs no further parsing.
func isWellFormed(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	return b[0] == '{' && b[len(b)-1] == '}'
}

func preview(b []byte) string {
	const max = 64
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
