package sqlite

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Payload columns carry a one-byte marker so rows written with and without
// compression can be mixed in the same table.
const (
	markerRaw  byte = 0x00
	markerZstd byte = 0x01

	// Below this size the zstd frame overhead outweighs the savings.
	minCompressSize = 256
)

// errUnmarked reports a payload without a known marker byte, such as a row
// written before markers existed.
var errUnmarked = errors.New("unknown payload marker")

type payloadCodec struct {
	enabled bool
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

func newPayloadCodec() (*payloadCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &payloadCodec{enabled: true, enc: enc, dec: dec}, nil
}

// encode returns nil for an empty payload so the column stays NULL.
func (c *payloadCodec) encode(payload string) []byte {
	if payload == "" {
		return nil
	}
	if !c.enabled || len(payload) < minCompressSize {
		out := make([]byte, 0, len(payload)+1)
		out = append(out, markerRaw)
		return append(out, payload...)
	}
	out := make([]byte, 1, len(payload)/2+1)
	out[0] = markerZstd
	return c.enc.EncodeAll([]byte(payload), out)
}

func (c *payloadCodec) decode(stored []byte) (string, error) {
	if len(stored) == 0 {
		return "", nil
	}
	switch stored[0] {
	case markerRaw:
		return string(stored[1:]), nil
	case markerZstd:
		plain, err := c.dec.DecodeAll(stored[1:], nil)
		if err != nil {
			return "", fmt.Errorf("zstd decode: %w", err)
		}
		return string(plain), nil
	default:
		return "", fmt.Errorf("%w 0x%02x", errUnmarked, stored[0])
	}
}

func (c *payloadCodec) close() {
	c.enc.Close()
	c.dec.Close()
}
