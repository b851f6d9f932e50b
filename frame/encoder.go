package frame

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// MaxPayloadSize is the largest payload length representable by the four byte
// length prefix.
const MaxPayloadSize = math.MaxUint32

// NewEncoder returns a new length-prefix framing encoder with underlying
// writer output.
func NewEncoder(output io.Writer) *Encoder {
	return &Encoder{Output: output}
}

// Encoder writes length-prefixed frames to an underlying writer.
type Encoder struct {
	// Output is the underlying Writer to receive framed output.
	Output io.Writer

	header [4]byte
}

// Encode writes the length prefix for payload followed by the payload itself.
// Payloads longer than MaxPayloadSize cannot be represented in the prefix and
// are rejected.
func (e *Encoder) Encode(payload []byte) error {
	if uint64(len(payload)) > MaxPayloadSize {
		return errors.Errorf("payload length %d exceeds maximum frame size", len(payload))
	}

	binary.BigEndian.PutUint32(e.header[:], uint32(len(payload)))
	if _, err := e.Output.Write(e.header[:]); err != nil {
		return errors.Wrap(err, "failed to write frame header")
	}
	if _, err := e.Output.Write(payload); err != nil {
		return errors.Wrap(err, "failed to write frame payload")
	}
	return nil
}
