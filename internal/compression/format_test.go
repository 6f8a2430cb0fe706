package compression

import (
	"bytes"
	"testing"
)

func samplePayload() []byte {
	// Repetitive enough that both formats actually shrink it
	payload := make([]byte, 0, 4096)
	for i := 0; i < 256; i++ {
		payload = append(payload, []byte("landblock record ")...)
	}
	return payload
}

func TestCompressRoundTrip(t *testing.T) {
	for _, format := range []string{FormatZstd, FormatGzip} {
		t.Run(format, func(t *testing.T) {
			payload := samplePayload()

			envelope, err := Compress(payload, format)
			if err != nil {
				t.Fatalf("Compress() failed: %v", err)
			}

			if envelope.Format != format {
				t.Errorf("Expected format %s, got %s", format, envelope.Format)
			}
			if envelope.UncompressedSize != len(payload) {
				t.Errorf("Expected uncompressed size %d, got %d", len(payload), envelope.UncompressedSize)
			}
			if envelope.Size >= len(payload) {
				t.Errorf("Expected compression to shrink %d bytes, got %d", len(payload), envelope.Size)
			}

			raw, err := Decompress(envelope)
			if err != nil {
				t.Fatalf("Decompress() failed: %v", err)
			}
			if !bytes.Equal(raw, payload) {
				t.Error("Round trip did not reproduce the payload")
			}
		})
	}
}

func TestCompressUnknownFormat(t *testing.T) {
	if _, err := Compress([]byte("data"), "lz4"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestDecompressUnknownFormat(t *testing.T) {
	envelope := &CompressedPayload{Format: "lz4", Data: ""}
	if _, err := Decompress(envelope); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestDecompressBadBase64(t *testing.T) {
	envelope := &CompressedPayload{Format: FormatZstd, Data: "not base64!!!"}
	if _, err := Decompress(envelope); err == nil {
		t.Error("Expected error for invalid base64 data")
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	envelope, err := Compress(samplePayload(), FormatZstd)
	if err != nil {
		t.Fatalf("Compress() failed: %v", err)
	}
	envelope.UncompressedSize++

	if _, err := Decompress(envelope); err == nil {
		t.Error("Expected error for declared-size mismatch")
	}
}

func TestCompressEmptyPayload(t *testing.T) {
	envelope, err := Compress(nil, FormatGzip)
	if err != nil {
		t.Fatalf("Compress() failed: %v", err)
	}

	raw, err := Decompress(envelope)
	if err != nil {
		t.Fatalf("Decompress() failed: %v", err)
	}
	if len(raw) != 0 {
		t.Errorf("Expected empty payload, got %d bytes", len(raw))
	}
}
