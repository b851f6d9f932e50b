package frame

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// NewDecoder returns a new length-prefix framing decoder reading from input,
// configured with any options provided.
func NewDecoder(input io.Reader, opts ...DecoderOption) *Decoder {
	d := &Decoder{Input: input}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decoder reads length-prefixed frames from an underlying reader. Each frame
// is a four byte big-endian unsigned payload length followed by that many
// payload bytes.
type Decoder struct {
	// Input is the underlying Reader supplying framed input.
	Input io.Reader
	// MaxFrameSize bounds the payload length the decoder will accept. If
	// zero, any length representable in the prefix is accepted.
	MaxFrameSize uint32

	header [4]byte
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMaximumFrameSize sets the largest payload length the decoder will
// accept. A longer prefix is treated as a framing error.
func WithMaximumFrameSize(max uint32) DecoderOption {
	return func(d *Decoder) { d.MaxFrameSize = max }
}

// Decode reads the next frame and returns its payload. It returns io.EOF when
// the input is exhausted on a frame boundary; an input that ends part way
// through a frame is an error.
func (d *Decoder) Decode() ([]byte, error) {
	if _, err := io.ReadFull(d.Input, d.header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "failed to read frame header")
	}

	length := binary.BigEndian.Uint32(d.header[:])
	if d.MaxFrameSize != 0 && length > d.MaxFrameSize {
		return nil, errors.Errorf("frame length %d exceeds maximum %d", length, d.MaxFrameSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(d.Input, payload); err != nil {
		return nil, errors.Wrap(err, "failed to read frame payload")
	}
	return payload, nil
}
