package client

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/damianoneill/msgrpc/common"
	"github.com/damianoneill/msgrpc/common/codec"
	"github.com/damianoneill/msgrpc/frame"
)

// The session layer drives MessagePack-RPC requests and notifications over a
// framed transport, correlating responses to callers by request id.

// Session represents a MessagePack-RPC client session.
type Session interface {
	// Execute sends a request to the server and returns the response. The
	// returned error reflects submission failures, loss of the session before
	// the response arrived, and an error result conveyed by the response (as
	// an *common.RPCError, with the response also returned).
	Execute(req *common.Request) (*common.Response, error)

	// ExecuteAsync submits a request for execution on the server, arranging
	// for the response to be sent to the supplied channel. The channel will
	// be closed without a response if the session terminates before the
	// response arrives.
	ExecuteAsync(req *common.Request, rchan chan *common.Response) error

	// Notify sends a notification to the server. It returns once the frame
	// has been written to the transport; the server sends no response.
	Notify(n *common.Notification) error

	// Close closes the session and releases any associated resources.
	// Outstanding execute requests will fail with io.ErrUnexpectedEOF.
	Close()

	// Target delivers the address of the remote endpoint.
	Target() string
}

type sesImpl struct {
	cfg   *Config
	t     Transport
	dec   *codec.Decoder
	enc   *codec.Encoder
	trace *ClientTrace

	// Serialises id allocation, pending bookkeeping and the message write, so
	// requests submitted by one goroutine appear on the wire in submission
	// order.
	reqLock sync.Mutex

	pchLock sync.Mutex
	pending map[uint32]chan *common.Response
	nextID  uint32
	closed  bool

	target string
}

// NewSession creates a new client session, using the supplied Transport.
func NewSession(ctx context.Context, t Transport, cfg *Config) (Session, error) {
	si := &sesImpl{
		cfg:     cfg,
		t:       t,
		dec:     codec.NewDecoder(t, frame.WithMaximumFrameSize(cfg.MaxInboundFrameSize)),
		enc:     codec.NewEncoder(t),
		trace:   ContextClientTrace(ctx),
		pending: make(map[uint32]chan *common.Response),
	}
	if ti, ok := t.(*tImpl); ok {
		si.target = ti.target
	}

	// Launch goroutine to handle incoming messages from the server.
	go si.handleIncomingMessages()

	return si, nil
}

func (si *sesImpl) Execute(req *common.Request) (resp *common.Response, err error) {

	si.trace.ExecuteStart(req, false)

	defer func(begin time.Time) {
		si.trace.ExecuteDone(req, false, resp, err, time.Since(begin))
	}(time.Now())

	rchan := make(chan *common.Response)
	if err = si.execute(req, rchan); err != nil {
		return nil, err
	}

	// Wait for the response.
	resp = <-rchan

	err = mapError(resp)
	return resp, err
}

func (si *sesImpl) ExecuteAsync(req *common.Request, rchan chan *common.Response) (err error) {

	si.trace.ExecuteStart(req, true)
	defer func(begin time.Time) {
		si.trace.ExecuteDone(req, true, nil, err, time.Since(begin))
	}(time.Now())

	return si.execute(req, rchan)
}

func (si *sesImpl) execute(req *common.Request, rchan chan *common.Response) (err error) {

	// Lock the request path, so that id allocation, the pending entry and the
	// message write are atomic per request.
	si.reqLock.Lock()
	defer si.reqLock.Unlock()

	// The session stamps the id; any value supplied by the caller is
	// ignored.
	msg := *req
	if msg.ID, err = si.addPending(rchan); err != nil {
		return
	}

	// Take the entry off again if the request was not written successfully.
	if err = si.enc.Encode(&msg); err != nil {
		si.removePending(msg.ID)
	}
	return
}

func (si *sesImpl) Notify(n *common.Notification) (err error) {

	si.trace.NotifyStart(n)
	defer func(begin time.Time) {
		si.trace.NotifyDone(n, err, time.Since(begin))
	}(time.Now())

	si.reqLock.Lock()
	defer si.reqLock.Unlock()

	// Once the write has returned, the frame has been handed to the
	// transport; that is the acknowledgement contract - written, not
	// received.
	err = si.enc.Encode(n)
	return
}

func (si *sesImpl) Close() {
	// Refuse new submissions before the transport goes away, so the reader
	// goroutine can tell a local close from a transport failure.
	si.pchLock.Lock()
	si.closed = true
	si.pchLock.Unlock()

	err := si.t.Close()
	if err != nil {
		si.trace.Error("Session close failed", si.target, err)
	}
}

func (si *sesImpl) Target() string {
	return si.target
}

func (si *sesImpl) handleIncomingMessages() {

	// When this goroutine finishes, make sure anybody waiting for a response
	// gets informed.
	defer si.closeChannels()

	for {
		msg, err := si.dec.Decode()
		if err != nil {
			if err != io.EOF && !si.isClosed() {
				si.trace.Error("Failed to read message", si.target, err)
			}
			return
		}
		si.handleMsg(msg)
	}
}

func (si *sesImpl) handleMsg(msg common.Message) {
	switch m := msg.(type) {
	case *common.Response:
		si.handleResponse(m)
	default:
		// A client session is outbound-only; inbound requests and
		// notifications are dropped, staying lenient with symmetric peers.
		si.trace.MessageDropped(msg)
	}
}

func (si *sesImpl) handleResponse(resp *common.Response) {
	rchan := si.removePending(resp.ID)
	if rchan == nil {
		// Duplicate or late response; there is no caller to inform.
		si.trace.ResponseDropped(resp)
		return
	}

	// Deliver on a separate goroutine, so an async caller that is slow to
	// read its channel does not stall response dispatch.
	go func(ch chan *common.Response, r *common.Response) {
		ch <- r
	}(rchan, resp)
}

// addPending allocates the next request id and registers the response
// channel against it. Ids increase by one per request, starting at 1 and
// wrapping through zero; a candidate id that is still awaiting its response
// is skipped, so a wrapped id can never collide with an in-flight request.
func (si *sesImpl) addPending(rchan chan *common.Response) (uint32, error) {
	si.pchLock.Lock()
	defer si.pchLock.Unlock()

	if si.closed {
		return 0, io.ErrClosedPipe
	}

	for {
		si.nextID++
		if _, inflight := si.pending[si.nextID]; !inflight {
			break
		}
	}
	si.pending[si.nextID] = rchan
	return si.nextID, nil
}

func (si *sesImpl) removePending(id uint32) (ch chan *common.Response) {
	si.pchLock.Lock()
	defer si.pchLock.Unlock()

	ch = si.pending[id]
	delete(si.pending, id)
	return
}

func (si *sesImpl) isClosed() bool {
	si.pchLock.Lock()
	defer si.pchLock.Unlock()
	return si.closed
}

// closeChannels refuses further submissions and releases every pending
// caller. A caller blocked on its response channel sees it close, and maps
// that to an unexpected EOF.
func (si *sesImpl) closeChannels() {
	si.pchLock.Lock()
	defer si.pchLock.Unlock()

	si.closed = true
	for id, ch := range si.pending {
		delete(si.pending, id)
		close(ch)
	}
}

// Map a response to an error, if the response is either nil (the session died
// before the response arrived) or carries an error result.
func mapError(r *common.Response) (err error) {
	if r == nil {
		err = io.ErrUnexpectedEOF
	} else if r.Result.IsError() {
		err = &common.RPCError{Cause: r.Result.Err}
	}
	return
}
