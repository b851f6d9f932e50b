package common

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Defines structs representing MessagePack-RPC messages.

// Value is a dynamic MessagePack value as produced and consumed by the
// serializer: nil, bool, an integer or float type, string, []byte, []Value or
// a map. The RPC layer treats it as opaque apart from the envelope positions
// it matches on while decoding.
type Value = interface{}

// Message is implemented by the three MessagePack-RPC message kinds.
type Message interface {
	// ToValue converts the message to its generic wire form.
	ToValue() Value
}

// Request represents a MessagePack-RPC request.
type Request struct {
	ID     uint32
	Method string
	Params []Value
}

// Response represents a MessagePack-RPC response.
type Response struct {
	ID     uint32
	Result Result
}

// Notification represents a MessagePack-RPC notification.
type Notification struct {
	Method string
	Params []Value
}

// Result holds the outcome conveyed by a response: either a result value or
// an error value. A nil Err is a success; a non-nil Err is the error branch,
// and Value is ignored on that path.
type Result struct {
	Value Value
	Err   Value
}

// IsError reports whether the result carries the error branch.
func (r Result) IsError() bool {
	return r.Err != nil
}

// RPCError adapts the error branch of a result to the error interface.
type RPCError struct {
	Cause Value
}

// Error generates a string representation of the RPC error.
func (e *RPCError) Error() string {
	return fmt.Sprintf("msgrpc [error] '%v'", e.Cause)
}

// Message type tags defined by the MessagePack-RPC specification.
const (
	requestMessage      uint32 = 0
	responseMessage     uint32 = 1
	notificationMessage uint32 = 2
)

// MessageFromValue converts a decoded MessagePack value to a message.
// The conversion fails if the value does not match the MessagePack-RPC
// envelope grammar: an array of three or four elements whose first element is
// an integer message type tag.
func MessageFromValue(v Value) (Message, error) {
	array, ok := asArray(v)
	if !ok {
		return nil, errors.New("message is not an array")
	}
	if len(array) < 3 {
		return nil, errors.New("message does not have at least three array elements")
	}
	msgType, ok := asUint32(array[0])
	if !ok {
		return nil, errors.New("message type is not an integer")
	}
	switch msgType {
	case requestMessage:
		return requestFromValue(array)
	case responseMessage:
		return responseFromValue(array)
	case notificationMessage:
		return notificationFromValue(array)
	default:
		return nil, errors.Errorf("unknown message type %d", msgType)
	}
}

func requestFromValue(array []Value) (Message, error) {
	if len(array) != 4 {
		return nil, errors.New("request does not have four array elements")
	}
	id, ok := asUint32(array[1])
	if !ok {
		return nil, errors.New("request id is not an unsigned 32 bit integer")
	}
	method, ok := asString(array[2])
	if !ok {
		return nil, errors.New("request method is not a string")
	}
	params, ok := asArray(array[3])
	if !ok {
		return nil, errors.New("request params is not an array")
	}
	return &Request{ID: id, Method: method, Params: params}, nil
}

func responseFromValue(array []Value) (Message, error) {
	if len(array) != 4 {
		return nil, errors.New("response does not have four array elements")
	}
	id, ok := asUint32(array[1])
	if !ok {
		return nil, errors.New("response id is not an unsigned 32 bit integer")
	}
	// A nil error position means success, with the result at the final
	// position. Anything else is the error branch and the final position is
	// ignored.
	if array[2] == nil {
		return &Response{ID: id, Result: Result{Value: array[3]}}, nil
	}
	return &Response{ID: id, Result: Result{Err: array[2]}}, nil
}

func notificationFromValue(array []Value) (Message, error) {
	if len(array) != 3 {
		return nil, errors.New("notification does not have three array elements")
	}
	method, ok := asString(array[1])
	if !ok {
		return nil, errors.New("notification method is not a string")
	}
	params, ok := asArray(array[2])
	if !ok {
		return nil, errors.New("notification params is not an array")
	}
	return &Notification{Method: method, Params: params}, nil
}

// ToValue converts the request to its wire form,
// [0, id, method, params].
func (r *Request) ToValue() Value {
	return []Value{requestMessage, r.ID, r.Method, paramsValue(r.Params)}
}

// ToValue converts the response to its wire form,
// [1, id, error, result]. A success places nil at the error position; an
// error places nil at the result position.
func (r *Response) ToValue() Value {
	if r.Result.IsError() {
		return []Value{responseMessage, r.ID, r.Result.Err, nil}
	}
	return []Value{responseMessage, r.ID, nil, r.Result.Value}
}

// ToValue converts the notification to its wire form,
// [2, method, params].
func (n *Notification) ToValue() Value {
	return []Value{notificationMessage, n.Method, paramsValue(n.Params)}
}

// paramsValue ensures the params position is encoded as an array rather than
// nil when no params were supplied.
func paramsValue(params []Value) []Value {
	if params == nil {
		return []Value{}
	}
	return params
}

// asUint32 matches any integer representation the serializer may produce,
// rejecting values outside the unsigned 32 bit range.
func asUint32(v Value) (uint32, bool) {
	switch i := v.(type) {
	case int:
		if i >= 0 && uint64(i) <= uint64(^uint32(0)) {
			return uint32(i), true
		}
	case int8:
		if i >= 0 {
			return uint32(i), true
		}
	case int16:
		if i >= 0 {
			return uint32(i), true
		}
	case int32:
		if i >= 0 {
			return uint32(i), true
		}
	case int64:
		if i >= 0 && uint64(i) <= uint64(^uint32(0)) {
			return uint32(i), true
		}
	case uint:
		if uint64(i) <= uint64(^uint32(0)) {
			return uint32(i), true
		}
	case uint8:
		return uint32(i), true
	case uint16:
		return uint32(i), true
	case uint32:
		return i, true
	case uint64:
		if i <= uint64(^uint32(0)) {
			return uint32(i), true
		}
	}
	return 0, false
}

func asString(v Value) (string, bool) {
	s, ok := v.(string)
	if !ok || !utf8.ValidString(s) {
		return "", false
	}
	return s, true
}

func asArray(v Value) ([]Value, bool) {
	a, ok := v.([]Value)
	return a, ok
}
