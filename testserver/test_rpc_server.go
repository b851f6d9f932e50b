package testserver

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/damianoneill/msgrpc/common"
	"github.com/damianoneill/msgrpc/server"

	assert "github.com/stretchr/testify/require"
)

// Defines an on-board RPC server that can be used for testing clients.

// RequestHandler is a function type that will be invoked by the test server
// to produce the outcome of a request.
type RequestHandler func(req *common.Request) *common.Result

// NotificationHandler is a function type that will be invoked by the test
// server when a notification arrives.
type NotificationHandler func(n *common.Notification)

// TestRPCServer represents an RPC server that can be used for 'on-board'
// testing. It listens on an ephemeral localhost port and records the requests
// and notifications it receives.
type TestRPCServer struct {
	svr  *server.Server
	tctx assert.TestingT

	lock             sync.Mutex
	reqHandler       RequestHandler
	noteHandler      NotificationHandler
	reqCount         int
	notifyCount      int
	lastReq          *common.Request
	lastNotification *common.Notification

	notifych chan struct{}
}

// NewTestRPCServer creates a new TestRPCServer accepting localhost
// connections on an ephemeral port (available via Port()).
// tctx will be used for handling failures; if the supplied value is nil, a
// default test context will be used.
// The behaviour of the server can be configured using the WithRequestHandler
// and WithNotificationHandler methods.
func NewTestRPCServer(tctx assert.TestingT) *TestRPCServer {
	ts := &TestRPCServer{
		reqHandler: EchoRequestHandler,
		notifych:   make(chan struct{}, 64),
	}

	if tctx == nil {
		// Default test context to built-in implementation.
		tctx = ts
	}
	ts.tctx = tctx

	svr, err := server.NewServer(context.Background(), "127.0.0.1", 0, nil, ts.newFactory())
	assert.NoError(tctx, err, "Failed to start test server")
	ts.svr = svr

	return ts
}

func (ts *TestRPCServer) newFactory() server.HandlerFactory {
	return func(sh *server.SessionHandler) server.Handler {
		return &testHandler{ts: ts}
	}
}

// WithRequestHandler replaces the handler invoked for each request. The
// default handler echoes the request params as a success result.
func (ts *TestRPCServer) WithRequestHandler(rh RequestHandler) *TestRPCServer {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	ts.reqHandler = rh
	return ts
}

// WithNotificationHandler sets a handler invoked for each notification.
func (ts *TestRPCServer) WithNotificationHandler(nh NotificationHandler) *TestRPCServer {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	ts.noteHandler = nh
	return ts
}

// Port delivers the port the server is listening on.
func (ts *TestRPCServer) Port() int {
	return ts.svr.Port()
}

// Target delivers the address clients should dial.
func (ts *TestRPCServer) Target() string {
	return fmt.Sprintf("127.0.0.1:%d", ts.Port())
}

// Close closes any active connections and prevents subsequent ones.
func (ts *TestRPCServer) Close() {
	ts.svr.Close()
}

// ReqCount delivers the number of requests received.
func (ts *TestRPCServer) ReqCount() int {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	return ts.reqCount
}

// LastReq delivers the most recently received request.
func (ts *TestRPCServer) LastReq() *common.Request {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	return ts.lastReq
}

// NotifyCount delivers the number of notifications received.
func (ts *TestRPCServer) NotifyCount() int {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	return ts.notifyCount
}

// LastNotification delivers the most recently received notification.
func (ts *TestRPCServer) LastNotification() *common.Notification {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	return ts.lastNotification
}

// WaitNotification blocks until the server has received a notification that
// has not already been waited for, reporting false on timeout.
func (ts *TestRPCServer) WaitNotification(timeout time.Duration) bool {
	select {
	case <-ts.notifych:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Errorf provides testing.T compatibility if a test context is not provided
// when the test server is created.
func (ts *TestRPCServer) Errorf(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// FailNow provides testing.T compatibility if a test context is not provided
// when the test server is created.
func (ts *TestRPCServer) FailNow() {
	runtime.Goexit()
}

type testHandler struct {
	ts *TestRPCServer
}

func (h *testHandler) HandleRequest(req *common.Request) (*common.Result, error) {
	ts := h.ts
	ts.lock.Lock()
	ts.reqCount++
	ts.lastReq = req
	rh := ts.reqHandler
	ts.lock.Unlock()

	return rh(req), nil
}

func (h *testHandler) HandleNotification(n *common.Notification) error {
	ts := h.ts
	ts.lock.Lock()
	ts.notifyCount++
	ts.lastNotification = n
	nh := ts.noteHandler
	ts.lock.Unlock()

	if nh != nil {
		nh(n)
	}

	select {
	case ts.notifych <- struct{}{}:
	default:
	}
	return nil
}

// EchoRequestHandler responds with the request's own params as the result.
var EchoRequestHandler = func(req *common.Request) *common.Result {
	return &common.Result{Value: req.Params}
}

// FailingRequestHandler responds with an error result.
var FailingRequestHandler = func(req *common.Request) *common.Result {
	return &common.Result{Err: "oops"}
}

// HelloRequestHandler serves the sayHello method, greeting the name supplied
// as its single param. Any other method gets an error result.
var HelloRequestHandler = func(req *common.Request) *common.Result {
	if req.Method != "sayHello" {
		return &common.Result{Err: fmt.Sprintf("Unknown method '%s'", req.Method)}
	}
	if len(req.Params) != 1 {
		return &common.Result{Err: fmt.Sprintf("Expected 1 argument for method 'sayHello', got %d", len(req.Params))}
	}
	name, ok := req.Params[0].(string)
	if !ok {
		return &common.Result{Err: "Invalid argument"}
	}
	return &common.Result{Value: fmt.Sprintf("Hello %s!", name)}
}
