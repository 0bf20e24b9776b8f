package gorpc

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"
)

// defaultBacklog is the default listen backlog.
const defaultBacklog = 100

// defaultPollTimeout is the default accept/read poll timeout.
const defaultPollTimeout = time.Second

// NotifyEvent is emitted before each iteration of the accept loop and the
// per-connection loop.
type NotifyEvent int

const (
	WaitingForConnection NotifyEvent = iota
	WaitingForCall
)

func (e NotifyEvent) String() string {
	if e == WaitingForConnection {
		return "WAITING_FOR_CONNECTION"
	}
	return "WAITING_FOR_CALL"
}

// ConnDecision is a connection strategy's three-way verdict.
type ConnDecision int

const (
	// Reject: the acceptor closes the socket and loops.
	Reject ConnDecision = iota
	// ServeInline: the acceptor runs HandleConnection itself before looping.
	ServeInline
	// Adopted: ownership has moved elsewhere; the acceptor loops immediately.
	Adopted
)

// Strategy decides the fate of a freshly accepted connection: a plain
// function value rather than a virtual method, so new policies compose
// without subclassing.
type Strategy func(s *GoRPCServer, conn net.Conn) ConnDecision

// OnCallFunc handles procedure 1. It returns the reply payload and whether
// the call succeeded; a false ok yields a system-error reply to the caller.
type OnCallFunc func(in Param) (out Param, ok bool)

// OnCleanupFunc is invoked after a reply has been sent: the place where
// application-allocated reply payloads would be released. Since OnCallFunc
// returns an owning byte slice rather than a manually-managed buffer, this
// hook exists for observability rather than a manual free. It takes out by
// pointer so it can zero the payload once the reply is safely on the wire.
type OnCleanupFunc func(out *Param)

// OnNotifyFunc observes accept-loop and per-connection-loop notifications.
type OnNotifyFunc func(event NotifyEvent)

// ServerMiddleware runs before OnCall for procedure 1; returning an error
// short-circuits the call with a system-error reply.
type ServerMiddleware func(in Param) error

// ServerFinalizer observes the outcome of every procedure-1 call.
type ServerFinalizer func(err error, in Param, out Param)

// RPCServerOption configures a GoRPCServer at construction.
type RPCServerOption func(*GoRPCServer)

func WithClientCA(cert []byte) RPCServerOption {
	return func(s *GoRPCServer) {
		if s.tls == nil {
			s.tls = &tls.Config{}
		}
		if s.tls.ClientCAs == nil {
			s.tls.ClientCAs = x509.NewCertPool()
			s.tls.ClientAuth = tls.RequireAndVerifyClientCert
		}
		s.tls.ClientCAs.AppendCertsFromPEM(cert)
	}
}

func WithServerCert(cert tls.Certificate) RPCServerOption {
	return func(s *GoRPCServer) {
		if s.tls == nil {
			s.tls = &tls.Config{}
		}
		s.tls.Certificates = append(s.tls.Certificates, cert)
	}
}

func WithTLSConfig(c *tls.Config) RPCServerOption {
	return func(s *GoRPCServer) { s.tls = c }
}

func WithPollTimeout(d time.Duration) RPCServerOption {
	return func(s *GoRPCServer) {
		if d > 0 {
			s.pollTimeout = d
		}
	}
}

func WithBacklog(n int) RPCServerOption {
	return func(s *GoRPCServer) {
		if n > 0 {
			s.backlog = n
		}
	}
}

// WithMaxFragmentSize bounds decoded fragment size; 0 (the default) means
// unbounded.
func WithMaxFragmentSize(n uint32) RPCServerOption {
	return func(s *GoRPCServer) { s.maxFragmentSize = n }
}

// WithStrategy selects the concurrency policy applied to each accepted
// connection. Defaults to InlineStrategy().
func WithStrategy(strat Strategy) RPCServerOption {
	return func(s *GoRPCServer) { s.strategy = strat }
}

func WithOnCall(f OnCallFunc) RPCServerOption {
	return func(s *GoRPCServer) { s.onCall = f }
}

func WithOnCleanup(f OnCleanupFunc) RPCServerOption {
	return func(s *GoRPCServer) { s.onCleanup = f }
}

func WithOnNotify(f OnNotifyFunc) RPCServerOption {
	return func(s *GoRPCServer) { s.onNotify = f }
}

func WithServerMiddleware(m ServerMiddleware) RPCServerOption {
	return func(s *GoRPCServer) { s.middlewares = append(s.middlewares, m) }
}

func WithServerFinalizer(f ServerFinalizer) RPCServerOption {
	return func(s *GoRPCServer) { s.finalizers = append(s.finalizers, f) }
}

// GoRPCServer owns a listening socket, the continueRunning flag, poll
// timeout, and backlog bound, plus the strategy that decides where each
// accepted connection is handled.
type GoRPCServer struct {
	tls *tls.Config

	pollTimeout     time.Duration
	backlog         int
	maxFragmentSize uint32
	strategy        Strategy

	onCall      OnCallFunc
	onCleanup   OnCleanupFunc
	onNotify    OnNotifyFunc
	middlewares []ServerMiddleware
	finalizers  []ServerFinalizer

	continueRunning atomic.Bool
	listener        net.Listener

	pool *WorkerPool
	reg  *registry
}

// NewGoRPCServer builds a server with sensible defaults: pollTimeout=1s,
// backlog=100, unbounded fragments, InlineStrategy.
func NewGoRPCServer(opts ...RPCServerOption) *GoRPCServer {
	s := &GoRPCServer{
		pollTimeout: defaultPollTimeout,
		backlog:     defaultBacklog,
	}
	s.strategy = InlineStrategy()
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *GoRPCServer) AddCert(cert []byte) {
	if s.tls == nil || s.tls.ClientCAs == nil {
		return
	}
	s.tls.ClientCAs.AppendCertsFromPEM(cert)
}

func (s *GoRPCServer) notify(event NotifyEvent) {
	if s.onNotify != nil {
		s.onNotify(event)
	}
}

// Stop sets continueRunning=false. Every loop observes it at its next
// timeout boundary, worst-case latency = pollTimeout.
func (s *GoRPCServer) Stop() {
	s.continueRunning.Store(false)
	if s.reg != nil {
		s.reg.closeAll()
	}
	if s.pool != nil {
		s.pool.Destroy(false)
	}
}

// Run binds a TCP listener to INADDR_ANY:port with the configured backlog
// and enters the accept loop.
func (s *GoRPCServer) Run(port int) error {
	lis, err := newListener(port, s.backlog)
	if err != nil {
		return err
	}
	return s.Accept(lis)
}

// Accept runs the bind/listen/accept loop: a WAITING_FOR_CONNECTION
// notification, a continueRunning re-check, and a bounded-timeout readiness
// poll (SetDeadline+Accept standing in for select/poll, since net.Listener
// exposes no separate readiness primitive) before every accept.
func (s *GoRPCServer) Accept(lis net.Listener) error {
	s.listener = lis
	s.continueRunning.Store(true)
	defer lis.Close()

	type deadliner interface {
		SetDeadline(time.Time) error
	}

	for {
		s.notify(WaitingForConnection)
		if !s.continueRunning.Load() {
			return nil
		}

		if dl, ok := lis.(deadliner); ok {
			_ = dl.SetDeadline(time.Now().Add(s.pollTimeout))
		}

		conn, err := lis.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if isEINTR(err) {
				continue
			}
			log.Printf("gorpc: accept: %v", err)
			return err
		}

		applySockOpts(conn)

		decision := s.strategy(s, conn)
		switch decision {
		case Reject:
			conn.Close()
		case ServeInline:
			s.serveConn(conn)
		case Adopted:
			// ownership transferred to the strategy; nothing to do.
		}
	}
}

// serveConn drives one connection to completion through its
// READY -> WAITING -> SERVING -> CLOSING states. There is no separate
// transport object to destroy beyond the socket: conn is closed exactly
// once, via defer, on every exit path.
func (s *GoRPCServer) serveConn(conn net.Conn) {
	defer conn.Close()

	if s.tls != nil {
		conn = tls.Server(conn, s.tls)
	}

	for {
		s.notify(WaitingForCall)
		if !s.continueRunning.Load() {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(s.pollTimeout))
		call, err := decodeCall(conn, s.maxFragmentSize)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if isEINTR(err) {
				continue
			}
			// Peer closed, or a malformed frame: exit cleanly.
			return
		}
		_ = conn.SetWriteDeadline(time.Time{})

		reply, cleanup := s.dispatch(call)
		if err := encodeReply(conn, reply); err != nil {
			return
		}
		if cleanup != nil {
			cleanup()
		}
	}
}

// dispatch routes by procedure number: procedure 0 replies empty
// (null-probe), procedure 1 carries user data through OnCall, and any
// other procedure is "no such procedure". The returned cleanup, if
// non-nil, must only run once the reply has actually reached the wire:
// out.Data may alias a buffer OnCleanup reuses, so running it any earlier
// risks corrupting a reply still in flight.
func (s *GoRPCServer) dispatch(call callEnvelope) (replyEnvelope, func()) {
	switch call.Proc {
	case ProcNull:
		return replyEnvelope{Stat: acceptSuccess}, nil
	case ProcCall:
		return s.dispatchCall(call.In)
	default:
		return replyEnvelope{Stat: acceptProcUnavail}, nil
	}
}

func (s *GoRPCServer) dispatchCall(in Param) (replyEnvelope, func()) {
	for _, m := range s.middlewares {
		if err := m(in); err != nil {
			s.runFinalizers(err, in, Param{})
			return replyEnvelope{Stat: acceptSystemErr}, nil
		}
	}

	// Default reply type mirrors the request's; the handler may overwrite it
	// by returning any Type other than the reserved 0, and still owns Data.
	out := Param{Type: in.Type}
	ok := false
	if s.onCall != nil {
		out, ok = s.onCall(in)
	}
	if out.Type == TypeReserved {
		out.Type = in.Type
	}
	if !ok {
		s.runFinalizers(fmt.Errorf("gorpc: handler declined call"), in, out)
		return replyEnvelope{Stat: acceptSystemErr}, nil
	}

	cleanup := func() {
		if s.onCleanup != nil {
			s.onCleanup(&out)
		}
		s.runFinalizers(nil, in, out)
		out = Param{}
	}
	return replyEnvelope{Stat: acceptSuccess, Out: out}, cleanup
}

func (s *GoRPCServer) runFinalizers(err error, in, out Param) {
	for _, f := range s.finalizers {
		f(err, in, out)
	}
}
