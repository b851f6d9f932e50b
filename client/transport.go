package client

import (
	"context"
	"io"
	"net"
	"time"
)

// The transport layer provides the reliable byte stream between the client
// and the server, in practice TCP. Any ordered lossless stream that signals
// EOF on peer close will serve.

// Transport interface defines what characteristics make up an RPC transport
// layer object.
type Transport interface {
	io.ReadWriteCloser
}

type tImpl struct {
	reader      io.Reader
	writeCloser io.WriteCloser
	conn        net.Conn
	trace       *ClientTrace
	target      string
	dialer      ConnFactory
}

// ConnFactory defines a factory that provides the underlying network
// connection.
type ConnFactory interface {
	Dial(ctx context.Context) (net.Conn, error)
	// Close will close the connection (assumed to have been returned by an
	// earlier call to the Dial method), if appropriate.
	Close(net.Conn) error
}

// NewTransport creates a new transport, obtaining a connection to the target
// from the supplied factory.
func NewTransport(ctx context.Context, dialer ConnFactory, target string) (rt Transport, err error) {
	impl := tImpl{target: target, dialer: dialer}
	impl.trace = ContextClientTrace(ctx)

	impl.trace.ConnectStart(target)

	defer func(begin time.Time) {
		impl.trace.ConnectDone(target, err, time.Since(begin))
	}(time.Now())

	defer func() {
		if err != nil {
			_ = dialer.Close(impl.conn)
		}
	}()

	impl.conn, err = dialer.Dial(ctx)
	if err != nil {
		return
	}

	impl.reader = impl.conn
	impl.writeCloser = impl.conn

	impl.injectTraceReader()
	impl.injectTraceWriter()

	rt = &impl
	return rt, err
}

func (t *tImpl) Read(p []byte) (n int, err error) {
	return t.reader.Read(p)
}

func (t *tImpl) Write(p []byte) (n int, err error) {
	return t.writeCloser.Write(p)
}

// Close closes the underlying connection through the factory, so a
// pre-existing connection that the factory merely adopted is handled
// appropriately.
func (t *tImpl) Close() (err error) {
	defer func() {
		t.trace.ConnectionClosed(t.target, err)
	}()

	err = t.dialer.Close(t.conn)
	return err
}

type traceReader struct {
	r     io.Reader
	trace *ClientTrace
}

func (t *tImpl) injectTraceReader() {
	t.reader = &traceReader{r: t.reader, trace: t.trace}
}

func (tr *traceReader) Read(p []byte) (c int, err error) {
	tr.trace.ReadStart(p)
	defer func(begin time.Time) {
		tr.trace.ReadDone(p, c, err, time.Since(begin))
	}(time.Now())

	c, err = tr.r.Read(p)

	return
}

type traceWriter struct {
	w     io.WriteCloser
	trace *ClientTrace
}

func (t *tImpl) injectTraceWriter() {
	t.writeCloser = &traceWriter{w: t.writeCloser, trace: t.trace}
}

func (tw *traceWriter) Write(p []byte) (c int, err error) {
	tw.trace.WriteStart(p)
	defer func(begin time.Time) {
		tw.trace.WriteDone(p, c, err, time.Since(begin))
	}(time.Now())

	c, err = tw.w.Write(p)

	return
}

func (tw *traceWriter) Close() (err error) {
	return tw.w.Close()
}
