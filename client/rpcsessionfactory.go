package client

import (
	"context"
	"net"
	"time"

	"github.com/imdario/mergo"
)

// Defines factory methods for instantiating RPC sessions.

// NewRPCSession connects to the target and establishes an RPC session with
// default configuration.
func NewRPCSession(ctx context.Context, target string) (s Session, err error) {
	return NewRPCSessionWithConfig(ctx, target, DefaultConfig)
}

// NewRPCSessionWithConfig connects to the target and establishes an RPC
// session with the supplied configuration.
func NewRPCSessionWithConfig(ctx context.Context, target string, cfg *Config) (s Session, err error) {
	resolvedConfig := resolveConfig(cfg)

	var t Transport
	dialer := NewDialer(target, time.Duration(resolvedConfig.DialTimeoutSecs)*time.Second)
	if t, err = NewTransport(ctx, dialer, target); err != nil {
		return
	}

	if s, err = NewSession(ctx, t, resolvedConfig); err != nil {
		_ = t.Close()
	}
	return
}

// NewRPCSessionFromConn establishes an RPC session over the supplied
// connection with default configuration. The session takes ownership of the
// connection and closes it when the session is closed.
func NewRPCSessionFromConn(ctx context.Context, conn net.Conn) (s Session, err error) {
	return NewRPCSessionFromConnWithConfig(ctx, conn, DefaultConfig)
}

// NewRPCSessionFromConnWithConfig establishes an RPC session over the
// supplied connection with the supplied configuration.
func NewRPCSessionFromConnWithConfig(ctx context.Context, conn net.Conn, cfg *Config) (s Session, err error) {
	resolvedConfig := resolveConfig(cfg)

	var t Transport
	if t, err = NewTransport(ctx, newConnDialer(conn), conn.RemoteAddr().String()); err != nil {
		return
	}

	if s, err = NewSession(ctx, t, resolvedConfig); err != nil {
		_ = t.Close()
	}
	return
}

// Use supplied config, but apply any defaults to unspecified values.
func resolveConfig(cfg *Config) *Config {
	resolvedConfig := *cfg
	_ = mergo.Merge(&resolvedConfig, DefaultConfig)
	return &resolvedConfig
}

func NewDialer(target string, timeout time.Duration) *RealDialer { //nolint: golint
	return &RealDialer{target: target, timeout: timeout}
}

type RealDialer struct {
	target  string
	timeout time.Duration
}

func (rd *RealDialer) Dial(ctx context.Context) (conn net.Conn, err error) {
	tracer := ContextClientTrace(ctx)

	tracer.DialStart(rd.target)
	defer func(begin time.Time) {
		tracer.DialDone(rd.target, err, time.Since(begin))
	}(time.Now())

	d := net.Dialer{Timeout: rd.timeout}
	return d.DialContext(ctx, "tcp", rd.target)
}

func (rd *RealDialer) Close(conn net.Conn) (err error) {
	if conn != nil {
		err = conn.Close()
	}
	return err
}

func newConnDialer(conn net.Conn) *connDialer {
	return &connDialer{conn: conn}
}

// connDialer adopts a pre-existing connection. The session owns the
// connection once adopted, so Close closes it.
type connDialer struct {
	conn net.Conn
}

func (cd *connDialer) Dial(ctx context.Context) (net.Conn, error) {
	return cd.conn, nil
}

func (cd *connDialer) Close(conn net.Conn) (err error) {
	if conn != nil {
		err = conn.Close()
	}
	return err
}
