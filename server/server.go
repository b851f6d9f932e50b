package server

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/damianoneill/msgrpc/common"
	"github.com/damianoneill/msgrpc/common/codec"
	"github.com/damianoneill/msgrpc/frame"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Server represents a MessagePack-RPC server.
// It encapsulates a TCP listener and the session handlers that will be
// invoked to handle decoded messages on each accepted connection.
type Server struct {
	listener net.Listener
	sf       HandlerFactory
	cfg      *Config
	trace    *Trace

	group     *errgroup.Group
	closed    chan struct{}
	closeOnce sync.Once

	shLock          sync.Mutex
	sessionHandlers map[uint64]*SessionHandler
	nextSid         uint64
}

// Handler defines the caller-supplied callback functions.
//
// A connection dispatches each inbound request and notification on its own
// goroutine, so implementations must be safe for concurrent use. Responses
// are emitted in handler completion order; peers correlate by id.
type Handler interface {
	// HandleRequest is called to handle a request, returning the RPC outcome
	// that will be conveyed to the peer as a response. A nil result with a
	// nil error is sent as a success with a nil value. A non-nil error is a
	// host-level failure, fatal to the connection.
	HandleRequest(req *common.Request) (*common.Result, error)

	// HandleNotification is called to handle a notification. No response is
	// sent to the peer. A non-nil error is a host-level failure, fatal to
	// the connection.
	HandleNotification(n *common.Notification) error
}

// HandlerFactory creates the Handler for a new connection.
type HandlerFactory func(s *SessionHandler) Handler

// NewServer creates a new Server that will accept connections on the
// supplied address and port. A port of zero selects an ephemeral port,
// available via Port().
func NewServer(ctx context.Context, address string, port int, cfg *Config, sf HandlerFactory) (svr *Server, err error) {
	if cfg == nil {
		cfg = DefaultConfig
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s:%d", address, port)
	}

	svr = &Server{
		listener:        listener,
		sf:              sf,
		cfg:             cfg,
		trace:           ContextTrace(ctx),
		closed:          make(chan struct{}),
		sessionHandlers: make(map[uint64]*SessionHandler),
	}
	svr.group, _ = errgroup.WithContext(ctx)

	svr.group.Go(svr.acceptConnections)
	return svr, nil
}

// Port delivers the port the server is listening on.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Close stops the listener, tears down any active connections and waits for
// their handlers to finish.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.listener.Close()

		s.shLock.Lock()
		for _, sh := range s.sessionHandlers {
			_ = sh.conn.Close()
		}
		s.shLock.Unlock()
	})

	_ = s.group.Wait()
}

// SessionHandler delivers the session handler associated with the specified
// session id, or nil if there is none.
func (s *Server) SessionHandler(sid uint64) *SessionHandler {
	s.shLock.Lock()
	defer s.shLock.Unlock()
	return s.sessionHandlers[sid]
}

func (s *Server) acceptConnections() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
				return err
			}
		}

		sh := s.newSessionHandler(conn)
		s.group.Go(sh.run)
	}
}

func (s *Server) newSessionHandler(conn net.Conn) *SessionHandler {
	sh := &SessionHandler{
		server: s,
		conn:   conn,
		dec:    codec.NewDecoder(conn, frame.WithMaximumFrameSize(s.cfg.MaxInboundFrameSize)),
		enc:    codec.NewEncoder(conn),
		sid:    atomic.AddUint64(&s.nextSid, 1),
		uid:    uuid.New().String(),
	}
	sh.cb = s.sf(sh)

	s.shLock.Lock()
	s.sessionHandlers[sh.sid] = sh
	s.shLock.Unlock()
	return sh
}

func (s *Server) removeSessionHandler(sh *SessionHandler) {
	s.shLock.Lock()
	defer s.shLock.Unlock()
	delete(s.sessionHandlers, sh.sid)
}

// SessionHandler represents the server side of an active RPC connection.
type SessionHandler struct {
	// server references the Server that accepted the connection.
	server *Server

	// conn is the underlying transport connection.
	conn net.Conn

	// The codecs used to handle client i/o.
	dec *codec.Decoder
	enc *codec.Encoder

	// Serialises access to the encoder (responses are written as their
	// handlers complete, from multiple goroutines).
	encLock sync.Mutex

	// The session id reported to traces.
	sid uint64
	// Correlation id reported to traces and logs.
	uid string

	// In-flight handler invocations.
	inflight sync.WaitGroup

	abortLock sync.Mutex
	abortErr  error

	// Caller supplied callbacks.
	cb Handler
}

// ID delivers the server-allocated id of the session.
func (h *SessionHandler) ID() uint64 {
	return h.sid
}

// UID delivers the correlation id of the session.
func (h *SessionHandler) UID() string {
	return h.uid
}

// RemoteAddr delivers the address of the connected peer.
func (h *SessionHandler) RemoteAddr() net.Addr {
	return h.conn.RemoteAddr()
}

func (h *SessionHandler) run() (err error) {
	h.server.trace.StartSession(h)

	defer func(begin time.Time) {
		h.server.trace.EndSession(h, err, time.Since(begin))
	}(time.Now())

	err = h.handleMessages()

	// Let in-flight handlers finish and their responses drain before the
	// connection goes away.
	h.inflight.Wait()
	_ = h.conn.Close()
	h.server.removeSessionHandler(h)

	return err
}

func (h *SessionHandler) handleMessages() error {
	for {
		msg, err := h.dec.Decode()
		if err != nil {
			if aerr := h.aborted(); aerr != nil {
				// The decode failure is fallout from tearing the connection
				// down; the abort cause is the interesting error.
				return aerr
			}
			if err == io.EOF {
				// Peer closed cleanly.
				return nil
			}
			select {
			case <-h.server.closed:
				return nil
			default:
			}
			return err
		}

		switch m := msg.(type) {
		case *common.Request:
			h.dispatchRequest(m)
		case *common.Notification:
			h.dispatchNotification(m)
		default:
			// A server never acts as a client on the same connection; an
			// inbound response has no pending entry here and is dropped.
			h.server.trace.MessageDropped(h, msg)
		}
	}
}

func (h *SessionHandler) dispatchRequest(req *common.Request) {
	h.server.trace.RequestReceived(h, req)

	h.inflight.Add(1)
	go func(begin time.Time) {
		defer h.inflight.Done()

		result, err := h.cb.HandleRequest(req)
		if err != nil {
			h.abort(err)
			return
		}
		if result == nil {
			result = &common.Result{}
		}
		// The response reflects the request's id; ids are never minted here.
		h.sendResponse(&common.Response{ID: req.ID, Result: *result}, begin)
	}(time.Now())
}

func (h *SessionHandler) dispatchNotification(n *common.Notification) {
	h.server.trace.NotificationReceived(h, n)

	h.inflight.Add(1)
	go func(begin time.Time) {
		defer h.inflight.Done()

		err := h.cb.HandleNotification(n)
		h.server.trace.NotificationDone(h, n, err, time.Since(begin))
		if err != nil {
			h.abort(err)
		}
	}(time.Now())
}

func (h *SessionHandler) sendResponse(res *common.Response, begin time.Time) {
	h.encLock.Lock()
	defer h.encLock.Unlock()

	err := h.enc.Encode(res)
	h.server.trace.ResponseSent(h, res, err, time.Since(begin))
	if err != nil {
		h.abort(err)
	}
}

// abort records the first fatal error and tears the connection down, which
// unblocks the message loop.
func (h *SessionHandler) abort(err error) {
	h.abortLock.Lock()
	if h.abortErr == nil {
		h.abortErr = err
	}
	h.abortLock.Unlock()

	_ = h.conn.Close()
}

func (h *SessionHandler) aborted() error {
	h.abortLock.Lock()
	defer h.abortLock.Unlock()
	return h.abortErr
}
