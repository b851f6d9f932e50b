package frame

import (
	"bytes"
	"io"
	"testing"

	assert "github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	assert.NoError(t, enc.Encode([]byte("hello")))
	assert.NoError(t, enc.Encode([]byte{}))
	assert.NoError(t, enc.Encode([]byte("world")))

	dec := NewDecoder(&buf)

	payload, err := dec.Decode()
	assert.NoError(t, err, "Not expecting decode to fail")
	assert.Equal(t, []byte("hello"), payload, "Expected first payload")

	payload, err = dec.Decode()
	assert.NoError(t, err, "Not expecting decode to fail")
	assert.Empty(t, payload, "Expected empty payload")

	payload, err = dec.Decode()
	assert.NoError(t, err, "Not expecting decode to fail")
	assert.Equal(t, []byte("world"), payload, "Expected second payload")

	_, err = dec.Decode()
	assert.Equal(t, io.EOF, err, "Expected EOF on the frame boundary")
}

func TestDecodeTruncatedHeader(t *testing.T) {

	dec := NewDecoder(bytes.NewReader([]byte{0, 0}))
	_, err := dec.Decode()
	assert.Error(t, err, "Expect failure")
	assert.NotEqual(t, io.EOF, err, "A partial header is not a clean end of stream")
}

func TestDecodeTruncatedPayload(t *testing.T) {

	dec := NewDecoder(bytes.NewReader([]byte{0, 0, 0, 9, 'a', 'b'}))
	_, err := dec.Decode()
	assert.Error(t, err, "Expect failure")
	assert.NotEqual(t, io.EOF, err, "A partial payload is not a clean end of stream")
}

func TestDecodeMaximumFrameSize(t *testing.T) {

	var buf bytes.Buffer
	assert.NoError(t, NewEncoder(&buf).Encode([]byte("hello")))

	dec := NewDecoder(&buf, WithMaximumFrameSize(4))
	_, err := dec.Decode()
	assert.Error(t, err, "Expect failure")
	assert.Contains(t, err.Error(), "exceeds maximum", "Expected the ceiling to be reported")

	buf.Reset()
	assert.NoError(t, NewEncoder(&buf).Encode([]byte("hell")))
	payload, err := NewDecoder(&buf, WithMaximumFrameSize(4)).Decode()
	assert.NoError(t, err, "Not expecting decode to fail")
	assert.Equal(t, []byte("hell"), payload, "Expected payload at the ceiling to be accepted")
}
