package server

import (
	"context"
	"time"

	"github.com/damianoneill/msgrpc/common"

	"github.com/imdario/mergo"
	"github.com/pion/logging"
)

// unique type to prevent assignment.
type serverEventContextKey struct{}

// ContextTrace returns the Trace associated with the provided context. If
// none, it returns the no-op hooks.
func ContextTrace(ctx context.Context) *Trace {
	trace, _ := ctx.Value(serverEventContextKey{}).(*Trace)
	if trace == nil {
		trace = NoOpLoggingHooks
	} else {
		_ = mergo.Merge(trace, NoOpLoggingHooks)
	}
	return trace
}

// WithTrace returns a new context based on the provided parent ctx. Servers
// created with the returned context will use the provided trace hooks.
func WithTrace(ctx context.Context, trace *Trace) context.Context {
	ctx = context.WithValue(ctx, serverEventContextKey{}, trace)
	return ctx
}

// Trace defines a structure for handling trace events
type Trace struct {
	// StartSession is called when a connection has been accepted.
	StartSession func(s *SessionHandler)

	// EndSession is called when a connection has terminated, with e
	// indicating any error condition and d the session lifetime.
	EndSession func(s *SessionHandler, e error, d time.Duration)

	// RequestReceived is called when a request has been decoded.
	RequestReceived func(s *SessionHandler, req *common.Request)

	// NotificationReceived is called when a notification has been decoded.
	NotificationReceived func(s *SessionHandler, n *common.Notification)

	// NotificationDone is called after the handler has processed a
	// notification, with e indicating any handler failure.
	NotificationDone func(s *SessionHandler, n *common.Notification, e error, d time.Duration)

	// ResponseSent is called after a response has been written, with e
	// indicating any encoding error and d the time since the request was
	// received.
	ResponseSent func(s *SessionHandler, res *common.Response, e error, d time.Duration)

	// MessageDropped is called when an inbound response is dropped because a
	// server does not act as a client.
	MessageDropped func(s *SessionHandler, msg common.Message)
}

var defaultLog = logging.NewDefaultLoggerFactory().NewLogger("msgrpc-server")

// DefaultLoggingHooks provides a default logging hook to report errors.
var DefaultLoggingHooks = &Trace{
	EndSession: func(s *SessionHandler, e error, d time.Duration) {
		if e != nil {
			defaultLog.Errorf("EndSession sid:%d uid:%s error:%v", s.sid, s.uid, e)
		}
	},
	NotificationDone: func(s *SessionHandler, n *common.Notification, e error, d time.Duration) {
		if e != nil {
			defaultLog.Errorf("NotificationDone sid:%d uid:%s method:%s error:%v", s.sid, s.uid, n.Method, e)
		}
	},
	ResponseSent: func(s *SessionHandler, res *common.Response, e error, d time.Duration) {
		if e != nil {
			defaultLog.Errorf("ResponseSent sid:%d uid:%s id:%d error:%v", s.sid, s.uid, res.ID, e)
		}
	},
}

// MetricLoggingHooks provides a set of hooks that will log handler metrics.
var MetricLoggingHooks = &Trace{
	EndSession: func(s *SessionHandler, e error, d time.Duration) {
		defaultLog.Infof("EndSession sid:%d uid:%s err:%v took:%dms", s.sid, s.uid, e, d.Milliseconds())
	},
	NotificationDone: func(s *SessionHandler, n *common.Notification, e error, d time.Duration) {
		defaultLog.Infof("NotificationDone sid:%d method:%s err:%v took:%dms", s.sid, n.Method, e, d.Milliseconds())
	},
	ResponseSent: func(s *SessionHandler, res *common.Response, e error, d time.Duration) {
		defaultLog.Infof("ResponseSent sid:%d id:%d err:%v took:%dms", s.sid, res.ID, e, d.Milliseconds())
	},
}

// DiagnosticLoggingHooks provides a set of default diagnostic hooks
var DiagnosticLoggingHooks = &Trace{
	StartSession: func(s *SessionHandler) {
		defaultLog.Debugf("StartSession sid:%d uid:%s remote:%s", s.sid, s.uid, s.conn.RemoteAddr())
	},
	EndSession: MetricLoggingHooks.EndSession,
	RequestReceived: func(s *SessionHandler, req *common.Request) {
		defaultLog.Debugf("RequestReceived sid:%d id:%d method:%s", s.sid, req.ID, req.Method)
	},
	NotificationReceived: func(s *SessionHandler, n *common.Notification) {
		defaultLog.Debugf("NotificationReceived sid:%d method:%s", s.sid, n.Method)
	},
	NotificationDone: MetricLoggingHooks.NotificationDone,
	ResponseSent:     MetricLoggingHooks.ResponseSent,
	MessageDropped: func(s *SessionHandler, msg common.Message) {
		defaultLog.Debugf("MessageDropped sid:%d %T", s.sid, msg)
	},
}

// NoOpLoggingHooks provides a set of hooks that do nothing.
var NoOpLoggingHooks = &Trace{
	StartSession:         func(s *SessionHandler) {},
	EndSession:           func(s *SessionHandler, e error, d time.Duration) {},
	RequestReceived:      func(s *SessionHandler, req *common.Request) {},
	NotificationReceived: func(s *SessionHandler, n *common.Notification) {},
	NotificationDone:     func(s *SessionHandler, n *common.Notification, e error, d time.Duration) {},
	ResponseSent:         func(s *SessionHandler, res *common.Response, e error, d time.Duration) {},
	MessageDropped:       func(s *SessionHandler, msg common.Message) {},
}
