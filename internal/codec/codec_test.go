package codec

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"simple object", []byte(`{"a":1}`)},
		{"empty object", []byte(`{}`)},
		{"nested", []byte(`{"scan":{"ssid":"home","rssi":-52}}`)},
		{"large repetitive", bytes.Repeat([]byte(`{"x":1},`), 5000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Encode(tt.in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			if !bytes.Equal(decoded, tt.in) {
				t.Errorf("round trip mismatch: got %q, want %q", decoded, tt.in)
			}
		})
	}
}

func TestEncodeDeterministic(t *testing.T) {
	in := []byte(`{"a":1,"b":2}`)

	first, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	second, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if first != second {
		t.Errorf("encode is not deterministic: %q != %q", first, second)
	}
}

func TestEncodeInjective(t *testing.T) {
	a, err := Encode([]byte(`{"id":1}`))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, err := Encode([]byte(`{"id":2}`))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if a == b {
		t.Errorf("distinct inputs encoded to the same text")
	}
}

func TestDecodeInvalidBase64(t *testing.T) {
	if _, err := Decode("not valid base64!!!"); err == nil {
		t.Error("expected error decoding invalid base64")
	}
}

func TestDecodeInvalidGzip(t *testing.T) {
	// Valid base64, but not gzip data underneath.
	notGzip := "aGVsbG8gd29ybGQ="
	if _, err := Decode(notGzip); err == nil {
		t.Error("expected error decoding non-gzip payload")
	}
}
