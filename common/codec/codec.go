package codec

import (
	"io"

	"github.com/damianoneill/msgrpc/common"
	"github.com/damianoneill/msgrpc/frame"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Defines encoder and decoder that combine MessagePack serialization (for
// payload en/decoding) with a length-prefix framing codec (for message
// delimiting).

// Decoder decodes MessagePack-RPC messages from framed input.
type Decoder struct {
	framer *frame.Decoder
}

// NewDecoder delivers a new decoder.
func NewDecoder(t io.Reader, opts ...frame.DecoderOption) *Decoder {
	return &Decoder{framer: frame.NewDecoder(t, opts...)}
}

// Decode reads the next message from the input. It returns io.EOF when the
// input is exhausted on a frame boundary. A payload that is not valid
// MessagePack, or that does not match the MessagePack-RPC grammar, is an
// error; the caller is expected to tear the connection down rather than
// resynchronize.
func (d *Decoder) Decode() (common.Message, error) {
	payload, err := d.framer.Decode()
	if err != nil {
		return nil, err
	}

	var v common.Value
	if err := msgpack.Unmarshal(payload, &v); err != nil {
		return nil, errors.Wrap(err, "failed to decode message payload")
	}

	msg, err := common.MessageFromValue(v)
	if err != nil {
		return nil, errors.Wrap(err, "invalid msgpack-rpc message")
	}
	return msg, nil
}

// Encoder encodes MessagePack-RPC messages as framed output.
type Encoder struct {
	framer *frame.Encoder
}

// NewEncoder delivers a new encoder.
func NewEncoder(t io.Writer) *Encoder {
	return &Encoder{framer: frame.NewEncoder(t)}
}

// Encode writes msg to the output as a single frame.
func (e *Encoder) Encode(msg common.Message) error {
	payload, err := msgpack.Marshal(msg.ToValue())
	if err != nil {
		return errors.Wrap(err, "failed to encode message payload")
	}
	return e.framer.Encode(payload)
}
