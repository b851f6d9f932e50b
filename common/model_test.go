package common

import (
	"testing"

	assert "github.com/stretchr/testify/require"
)

func TestRequestFromValue(t *testing.T) {

	msg, err := MessageFromValue([]Value{0, 7, "ping", []Value{}})
	assert.NoError(t, err, "Not expecting conversion to fail")
	assert.Equal(t, &Request{ID: 7, Method: "ping", Params: []Value{}}, msg, "Expected request")
}

func TestNotificationFromValue(t *testing.T) {

	msg, err := MessageFromValue([]Value{2, "tick", []Value{"a", "b"}})
	assert.NoError(t, err, "Not expecting conversion to fail")
	assert.Equal(t, &Notification{Method: "tick", Params: []Value{"a", "b"}}, msg, "Expected notification")
}

func TestResponseFromValue(t *testing.T) {

	// A nil error position decodes as success.
	msg, err := MessageFromValue([]Value{1, 9, nil, "done"})
	assert.NoError(t, err, "Not expecting conversion to fail")
	assert.Equal(t, &Response{ID: 9, Result: Result{Value: "done"}}, msg, "Expected success response")

	// Both positions nil decodes as a success with a nil value.
	msg, err = MessageFromValue([]Value{1, 9, nil, nil})
	assert.NoError(t, err, "Not expecting conversion to fail")
	assert.Equal(t, &Response{ID: 9}, msg, "Expected nil success response")

	// A non-nil error position decodes as the error branch, and the result
	// position is ignored.
	msg, err = MessageFromValue([]Value{1, 9, "boom", "ignored"})
	assert.NoError(t, err, "Not expecting conversion to fail")
	assert.Equal(t, &Response{ID: 9, Result: Result{Err: "boom"}}, msg, "Expected error response")
}

func TestResponseToValue(t *testing.T) {

	v := (&Response{ID: 42}).ToValue()
	assert.Equal(t, []Value{responseMessage, uint32(42), nil, nil}, v, "Expected nil success encoding")

	v = (&Response{ID: 3, Result: Result{Err: "boom"}}).ToValue()
	assert.Equal(t, []Value{responseMessage, uint32(3), "boom", nil}, v, "Expected error encoding")
}

func TestRoundTrip(t *testing.T) {

	messages := []Message{
		&Request{ID: 1, Method: "get", Params: []Value{"a", "b"}},
		&Request{ID: 4294967295, Method: "max", Params: []Value{}},
		&Response{ID: 42, Result: Result{Value: "Hello World!"}},
		&Response{ID: 43},
		&Response{ID: 44, Result: Result{Err: "boom"}},
		&Notification{Method: "tick", Params: []Value{}},
	}

	for _, msg := range messages {
		decoded, err := MessageFromValue(msg.ToValue())
		assert.NoError(t, err, "Not expecting conversion to fail")
		assert.Equal(t, msg, decoded, "Expected conversion round trip to be lossless")
	}
}

func TestFromValueFailures(t *testing.T) {

	tests := []struct {
		name string
		in   Value
	}{
		{"not an array", "hello"},
		{"too short", []Value{0, 1}},
		{"tag not an integer", []Value{"0", 1, "m", []Value{}}},
		{"tag negative", []Value{-1, 1, "m", []Value{}}},
		{"tag unknown", []Value{7, 1, "m", []Value{}}},
		{"request with three elements", []Value{0, 1, "m"}},
		{"request with five elements", []Value{0, 1, "m", []Value{}, nil}},
		{"request id not an integer", []Value{0, "1", "m", []Value{}}},
		{"request id negative", []Value{0, -1, "m", []Value{}}},
		{"request id out of range", []Value{0, uint64(1) << 40, "m", []Value{}}},
		{"request method not a string", []Value{0, 1, 2, []Value{}}},
		{"request method not utf8", []Value{0, 1, string([]byte{0xff, 0xfe}), []Value{}}},
		{"request params not an array", []Value{0, 1, "m", "nope"}},
		{"response with three elements", []Value{1, 1, nil}},
		{"response id not an integer", []Value{1, nil, nil, nil}},
		{"notification with four elements", []Value{2, "m", []Value{}, nil}},
		{"notification method not a string", []Value{2, 2, []Value{}}},
		{"notification params not an array", []Value{2, "m", nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MessageFromValue(tt.in)
			assert.Error(t, err, "Expect conversion to fail")
		})
	}
}

func TestParamsNeverEncodeAsNil(t *testing.T) {

	v := (&Request{ID: 1, Method: "m"}).ToValue()
	assert.Equal(t, []Value{requestMessage, uint32(1), "m", []Value{}}, v, "Expected nil params to encode as an empty array")

	v = (&Notification{Method: "m"}).ToValue()
	assert.Equal(t, []Value{notificationMessage, "m", []Value{}}, v, "Expected nil params to encode as an empty array")
}

func TestRPCError(t *testing.T) {

	err := &RPCError{Cause: "boom"}
	assert.Equal(t, "msgrpc [error] 'boom'", err.Error(), "Expected error string")
}
