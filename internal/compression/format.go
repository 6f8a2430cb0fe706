// Package compression wraps record payloads in a compressed wire envelope
// for the export endpoint and websocket tile pushes. Two formats are
// supported: zstd (the default) and gzip for clients without a zstd
// decoder.
package compression

import (
	"encoding/base64"
	"fmt"
)

const (
	FormatZstd = "zstd"
	FormatGzip = "gzip"
)

// CompressedPayload is the JSON envelope carrying a compressed record blob.
type CompressedPayload struct {
	Format           string `json:"format"`            // "zstd" or "gzip"
	Data             string `json:"data"`              // Base64-encoded compressed data
	Size             int    `json:"size"`              // Compressed size in bytes
	UncompressedSize int    `json:"uncompressed_size"` // Uncompressed size in bytes (for progress tracking)
}

// Compress compresses raw payload bytes into a wire envelope using the given
// format.
func Compress(payload []byte, format string) (*CompressedPayload, error) {
	var compressed []byte
	var err error

	switch format {
	case FormatZstd:
		compressed, err = zstdCompress(payload)
	case FormatGzip:
		compressed, err = gzipCompress(payload, DefaultGzipLevel)
	default:
		return nil, fmt.Errorf("unknown compression format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}

	return &CompressedPayload{
		Format:           format,
		Data:             base64.StdEncoding.EncodeToString(compressed),
		Size:             len(compressed),
		UncompressedSize: len(payload),
	}, nil
}

// Decompress unwraps an envelope back into the raw payload bytes.
func Decompress(payload *CompressedPayload) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload data: %w", err)
	}

	var raw []byte
	switch payload.Format {
	case FormatZstd:
		raw, err = zstdDecompress(compressed)
	case FormatGzip:
		raw, err = gzipDecompress(compressed)
	default:
		return nil, fmt.Errorf("unknown compression format %q", payload.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %w", err)
	}

	if payload.UncompressedSize != 0 && len(raw) != payload.UncompressedSize {
		return nil, fmt.Errorf("decompressed size %d does not match declared size %d",
			len(raw), payload.UncompressedSize)
	}
	return raw, nil
}
