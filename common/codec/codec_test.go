package codec

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/damianoneill/msgrpc/common"
	"github.com/damianoneill/msgrpc/frame"
	"github.com/damianoneill/msgrpc/mocks"

	"github.com/stretchr/testify/mock"
	assert "github.com/stretchr/testify/require"
)

func TestEncodeDecodeSequence(t *testing.T) {

	messages := []common.Message{
		&common.Request{ID: 1, Method: "sayHello", Params: []common.Value{"World"}},
		&common.Notification{Method: "tick", Params: []common.Value{}},
		&common.Response{ID: 1, Result: common.Result{Value: "Hello World!"}},
		&common.Response{ID: 2, Result: common.Result{Err: "boom"}},
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, msg := range messages {
		assert.NoError(t, enc.Encode(msg), "Not expecting encode to fail")
	}

	// Messages decode in encode order, and only then the clean EOF.
	dec := NewDecoder(&buf)
	for _, msg := range messages {
		decoded, err := dec.Decode()
		assert.NoError(t, err, "Not expecting decode to fail")
		assert.Equal(t, msg, decoded, "Expected decoded message to match")
	}

	_, err := dec.Decode()
	assert.Equal(t, io.EOF, err, "Expected EOF on the frame boundary")
}

func TestDecodeRequestIDNormalisation(t *testing.T) {

	// The serializer is free to hand back any integer representation for the
	// id position; the decoder maps them all onto u32.
	var buf bytes.Buffer
	assert.NoError(t, NewEncoder(&buf).Encode(&common.Request{ID: 300, Method: "m", Params: []common.Value{}}))

	msg, err := NewDecoder(&buf).Decode()
	assert.NoError(t, err, "Not expecting decode to fail")
	assert.Equal(t, uint32(300), msg.(*common.Request).ID, "Expected id to survive the round trip")
}

func TestDecodeInvalidPayload(t *testing.T) {

	// 0xc1 is never used in valid MessagePack.
	var buf bytes.Buffer
	assert.NoError(t, frame.NewEncoder(&buf).Encode([]byte{0xc1}))

	_, err := NewDecoder(&buf).Decode()
	assert.Error(t, err, "Expect failure")
}

func TestDecodeInvalidMessage(t *testing.T) {

	// A frame whose payload is valid MessagePack but not a valid message.
	var buf bytes.Buffer
	assert.NoError(t, frame.NewEncoder(&buf).Encode([]byte{0xa5, 'h', 'e', 'l', 'l', 'o'}))

	_, err := NewDecoder(&buf).Decode()
	assert.Error(t, err, "Expect failure")
	assert.Contains(t, err.Error(), "invalid msgpack-rpc message", "Expected the grammar violation to be reported")
}

func TestDecoderFrameSizeCeiling(t *testing.T) {

	var buf bytes.Buffer
	assert.NoError(t, NewEncoder(&buf).Encode(&common.Request{ID: 1, Method: "m", Params: []common.Value{"0123456789"}}))

	_, err := NewDecoder(&buf, frame.WithMaximumFrameSize(4)).Decode()
	assert.Error(t, err, "Expect failure")
}

func TestEncoderFailures(t *testing.T) {

	mockt := &mocks.Transport{}
	mockt.On("Write", mock.Anything).Return(0, errors.New("Failed"))

	err := NewEncoder(mockt).Encode(&common.Notification{Method: "tick"})
	assert.Error(t, err, "Expect failure")
}
