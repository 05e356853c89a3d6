package blockstore

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Blocks on disk and in S3 carry a one-byte header so that compression can be
// toggled without rewriting existing blocks.
const (
	headerRaw  byte = 0
	headerZstd byte = 1

	// minCompressSize is the smallest block worth compressing.
	minCompressSize = 128
)

type compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	enabled bool
}

func newCompressor(level int, enabled bool) (*compressor, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	c := &compressor{decoder: decoder, enabled: enabled}
	if !enabled {
		return c, nil
	}

	var encoderLevel zstd.EncoderLevel
	switch level {
	case 1:
		encoderLevel = zstd.SpeedFastest
	case 3:
		encoderLevel = zstd.SpeedBetterCompression
	case 4:
		encoderLevel = zstd.SpeedBestCompression
	default:
		encoderLevel = zstd.SpeedDefault
	}

	c.encoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		decoder.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return c, nil
}

func (c *compressor) encode(data []byte) []byte {
	if c.enabled && len(data) >= minCompressSize {
		out := c.encoder.EncodeAll(data, []byte{headerZstd})
		if len(out) < len(data)+1 {
			return out
		}
	}
	return append([]byte{headerRaw}, data...)
}

func (c *compressor) decode(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, fmt.Errorf("empty block file")
	}
	switch stored[0] {
	case headerRaw:
		return stored[1:], nil
	case headerZstd:
		data, err := c.decoder.DecodeAll(stored[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing block: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown block header 0x%02x", stored[0])
	}
}

func (c *compressor) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	c.decoder.Close()
}
