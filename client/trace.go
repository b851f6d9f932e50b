package client

import (
	"context"
	"time"

	"github.com/damianoneill/msgrpc/common"

	"github.com/imdario/mergo"
	"github.com/pion/logging"
)

// unique type to prevent assignment.
type clientEventContextKey struct{}

// ContextClientTrace returns the ClientTrace associated with the
// provided context. If none, it returns the no-op hooks.
func ContextClientTrace(ctx context.Context) *ClientTrace {
	trace, _ := ctx.Value(clientEventContextKey{}).(*ClientTrace)
	if trace == nil {
		trace = NoOpLoggingHooks
	} else {
		_ = mergo.Merge(trace, NoOpLoggingHooks)
	}
	return trace
}

// WithClientTrace returns a new context based on the provided parent
// ctx. RPC sessions created with the returned context will use
// the provided trace hooks.
func WithClientTrace(ctx context.Context, trace *ClientTrace) context.Context {
	ctx = context.WithValue(ctx, clientEventContextKey{}, trace)
	return ctx
}

// ClientTrace defines a structure for handling trace events
// nolint: golint
type ClientTrace struct {
	// ConnectStart is called when starting to create a transport connection
	// to a remote server.
	ConnectStart func(target string)

	// ConnectDone is called when the transport connection attempt completes,
	// with err indicating whether it was successful.
	ConnectDone func(target string, err error, d time.Duration)

	// DialStart is called when starting to dial a remote server.
	DialStart func(target string)

	// DialDone is called when dial completes.
	DialDone func(target string, err error, d time.Duration)

	// ConnectionClosed is called after a transport connection has been
	// closed, with err indicating any error condition.
	ConnectionClosed func(target string, err error)

	// ReadStart is called before a read from the underlying transport.
	ReadStart func(buf []byte)

	// ReadDone is called after a read from the underlying transport.
	ReadDone func(buf []byte, c int, err error, d time.Duration)

	// WriteStart is called before a write to the underlying transport.
	WriteStart func(buf []byte)

	// WriteDone is called after a write to the underlying transport.
	WriteDone func(buf []byte, c int, err error, d time.Duration)

	// Error is called after an error condition has been detected.
	Error func(context, target string, err error)

	// ExecuteStart is called before the execution of an RPC request.
	ExecuteStart func(req *common.Request, async bool)

	// ExecuteDone is called after the execution of an RPC request.
	ExecuteDone func(req *common.Request, async bool, res *common.Response, err error, d time.Duration)

	// NotifyStart is called before a notification is sent.
	NotifyStart func(n *common.Notification)

	// NotifyDone is called after a notification has been written to the
	// transport.
	NotifyDone func(n *common.Notification, err error, d time.Duration)

	// ResponseDropped is called when a response is dropped because no request
	// with its id is pending.
	ResponseDropped func(res *common.Response)

	// MessageDropped is called when an inbound request or notification is
	// dropped because a client session does not serve them.
	MessageDropped func(msg common.Message)
}

var defaultLog = logging.NewDefaultLoggerFactory().NewLogger("msgrpc")

// DefaultLoggingHooks provides a default logging hook to report errors.
var DefaultLoggingHooks = &ClientTrace{
	Error: func(context, target string, err error) {
		defaultLog.Errorf("context:%s target:%s err:%v", context, target, err)
	},
}

// MetricLoggingHooks provides a set of hooks that will log network metrics.
var MetricLoggingHooks = &ClientTrace{
	ConnectDone: func(target string, err error, d time.Duration) {
		defaultLog.Infof("ConnectDone target:%s err:%v took:%dms", target, err, d.Milliseconds())
	},
	DialDone: func(target string, err error, d time.Duration) {
		defaultLog.Infof("DialDone target:%s err:%v took:%dms", target, err, d.Milliseconds())
	},
	ReadDone: func(p []byte, c int, err error, d time.Duration) {
		defaultLog.Infof("ReadDone len:%d err:%v took:%dms", c, err, d.Milliseconds())
	},
	WriteDone: func(p []byte, c int, err error, d time.Duration) {
		defaultLog.Infof("WriteDone len:%d err:%v took:%dms", c, err, d.Milliseconds())
	},

	Error: DefaultLoggingHooks.Error,

	ExecuteDone: func(req *common.Request, async bool, res *common.Response, err error, d time.Duration) {
		defaultLog.Infof("ExecuteDone method:%s async:%v err:%v took:%dms", req.Method, async, err, d.Milliseconds())
	},
	NotifyDone: func(n *common.Notification, err error, d time.Duration) {
		defaultLog.Infof("NotifyDone method:%s err:%v took:%dms", n.Method, err, d.Milliseconds())
	},
}

// DiagnosticLoggingHooks provides a set of default diagnostic hooks
var DiagnosticLoggingHooks = &ClientTrace{
	ConnectStart: func(target string) {
		defaultLog.Debugf("ConnectStart target:%s", target)
	},
	ConnectDone: MetricLoggingHooks.ConnectDone,
	DialStart: func(target string) {
		defaultLog.Debugf("DialStart target:%s", target)
	},
	DialDone: MetricLoggingHooks.DialDone,
	ConnectionClosed: func(target string, err error) {
		defaultLog.Debugf("ConnectionClosed target:%s err:%v", target, err)
	},
	ReadStart: func(p []byte) {
		defaultLog.Debugf("ReadStart capacity:%d", len(p))
	},
	ReadDone: MetricLoggingHooks.ReadDone,
	WriteStart: func(p []byte) {
		defaultLog.Debugf("WriteStart len:%d", len(p))
	},
	WriteDone: MetricLoggingHooks.WriteDone,

	Error: DefaultLoggingHooks.Error,

	ExecuteStart: func(req *common.Request, async bool) {
		defaultLog.Debugf("ExecuteStart method:%s async:%v", req.Method, async)
	},
	ExecuteDone: MetricLoggingHooks.ExecuteDone,
	NotifyStart: func(n *common.Notification) {
		defaultLog.Debugf("NotifyStart method:%s", n.Method)
	},
	NotifyDone: MetricLoggingHooks.NotifyDone,
	ResponseDropped: func(res *common.Response) {
		defaultLog.Debugf("ResponseDropped id:%d", res.ID)
	},
	MessageDropped: func(msg common.Message) {
		defaultLog.Debugf("MessageDropped %T", msg)
	},
}

// NoOpLoggingHooks provides a set of hooks that do nothing.
var NoOpLoggingHooks = &ClientTrace{
	ConnectStart:     func(target string) {},
	ConnectDone:      func(target string, err error, d time.Duration) {},
	DialStart:        func(target string) {},
	DialDone:         func(target string, err error, d time.Duration) {},
	ConnectionClosed: func(target string, err error) {},
	ReadStart:        func(p []byte) {},
	ReadDone:         func(p []byte, c int, err error, d time.Duration) {},

	WriteStart: func(p []byte) {},
	WriteDone:  func(p []byte, c int, err error, d time.Duration) {},

	Error:           func(context, target string, err error) {},
	ExecuteStart:    func(req *common.Request, async bool) {},
	ExecuteDone:     func(req *common.Request, async bool, res *common.Response, err error, d time.Duration) {},
	NotifyStart:     func(n *common.Notification) {},
	NotifyDone:      func(n *common.Notification, err error, d time.Duration) {},
	ResponseDropped: func(res *common.Response) {},
	MessageDropped:  func(msg common.Message) {},
}
