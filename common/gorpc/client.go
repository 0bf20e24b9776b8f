package gorpc

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vkardon/proto-rpc/adapter"
)

// defaultCallTimeout is the effectively-unbounded default applied when a
// caller passes a zero timeout to CallBytes/CallStructured.
const defaultCallTimeout = 365 * 24 * time.Hour

type RPCClientOption func(*GoRPCClient)

func WithCACert(cert []byte) RPCClientOption {
	return func(gr *GoRPCClient) {
		if gr.tls == nil {
			gr.tls = &tls.Config{}
		}
		if gr.tls.RootCAs == nil {
			gr.tls.RootCAs = x509.NewCertPool()
		}
		gr.tls.RootCAs.AppendCertsFromPEM(cert)
	}
}

func WithClientCert(cert tls.Certificate) RPCClientOption {
	return func(gr *GoRPCClient) {
		if gr.tls == nil {
			gr.tls = &tls.Config{}
		}
		gr.tls.Certificates = append(gr.tls.Certificates, cert)
	}
}

func WithClientTLSConfig(c *tls.Config) RPCClientOption {
	return func(gr *GoRPCClient) { gr.tls = c }
}

func WithClientDialer(dialer adapter.DialerFunc) RPCClientOption {
	return func(gr *GoRPCClient) { gr.customDialer = dialer }
}

func WithDefaultTimeout(d time.Duration) RPCClientOption {
	return func(gr *GoRPCClient) {
		if d > 0 {
			gr.defaultTimeout = d
		}
	}
}

func DefaultDialerFunc(address string) adapter.DialerFunc {
	return func() (net.Conn, error) {
		return net.DialTimeout("tcp", address, 30*time.Second)
	}
}

func DefaultTLSDialerFunc(address string, c *tls.Config) adapter.DialerFunc {
	return func() (net.Conn, error) {
		return tls.DialWithDialer(&net.Dialer{Timeout: 30 * time.Second}, "tcp", address, c)
	}
}

// rpcConn is one pooled, framed connection. It speaks the
// callEnvelope/replyEnvelope protocol directly over a raw net.Conn so
// per-call deadlines can be set.
type rpcConn struct {
	id  int
	raw net.Conn
	err error
	sync.Mutex
}

func newRPCConn(c net.Conn) *rpcConn {
	cc := &rpcConn{}
	if c != nil {
		cc.SetConn(c)
	}
	runtime.SetFinalizer(cc, func(rc *rpcConn) {
		if rc.raw != nil {
			rc.raw.Close()
		}
	})
	return cc
}

func (c *rpcConn) SetConn(cc net.Conn) {
	c.raw = cc
	c.err = nil
}

func (c *rpcConn) Reconnect(dialer adapter.DialerFunc, onFail func(*rpcConn)) error {
	cc, err := dialer()
	if err != nil {
		c.err = err
		if onFail != nil {
			onFail(c)
		}
		return err
	}
	c.SetConn(cc)
	return nil
}

// call sends one callEnvelope and awaits one replyEnvelope, bounded by
// timeout. It neither retries nor reconnects; that is connPool/GoRPCClient's
// job.
func (c *rpcConn) call(proc int32, in Param, maxFragmentSize uint32, timeout time.Duration) (Param, Status, error) {
	if c.raw == nil {
		return Param{}, StatusCantSend, ErrNotConnected
	}

	deadline := time.Now().Add(timeout)
	if err := c.raw.SetWriteDeadline(deadline); err != nil {
		c.err = err
		return Param{}, StatusCantSend, err
	}
	if err := encodeCall(c.raw, callEnvelope{Proc: proc, In: in}); err != nil {
		c.err = err
		return Param{}, StatusCantSend, fmt.Errorf("%w: %w", ErrIO, err)
	}

	if err := c.raw.SetReadDeadline(deadline); err != nil {
		c.err = err
		return Param{}, StatusCantRecv, err
	}
	reply, err := decodeReply(c.raw, maxFragmentSize)
	if err != nil {
		c.err = err
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return Param{}, StatusTimedOut, err
		}
		return Param{}, StatusCantRecv, err
	}

	switch reply.Stat {
	case acceptSuccess:
		return reply.Out, StatusSuccess, nil
	case acceptProcUnavail:
		return Param{}, StatusFailed, fmt.Errorf("gorpc: no such procedure")
	default:
		return Param{}, StatusFailed, fmt.Errorf("gorpc: handler error")
	}
}

// connPool is a thread-safe FIFO-ish set of reusable rpcConns: enqueue at
// the tail via append-and-grow, dequeue via a linear scan for a free,
// healthy entry.
type connPool struct {
	updateMu sync.RWMutex
	resizeMu sync.RWMutex
	seq      atomic.Int64
	dialer   adapter.DialerFunc
	conns    []*rpcConn
}

func newConnPool(dialer adapter.DialerFunc) (*connPool, error) {
	cp := &connPool{dialer: dialer, conns: make([]*rpcConn, 128)}

	newc, err := dialer()
	if err != nil {
		return nil, err
	}
	cp.conns[0] = newRPCConn(newc)
	return cp, nil
}

func (c *connPool) dial() (net.Conn, error) {
	c.updateMu.RLock()
	dialer := c.dialer
	c.updateMu.RUnlock()
	return dialer()
}

func (c *connPool) new() (id int, cn *rpcConn, err error) {
	id = int(c.seq.Add(1))
	cn = newRPCConn(nil)
	cn.id = id
	cn.Lock()
	resize := false
	if id >= cap(c.conns) {
		c.resizeMu.Lock()
		if id >= cap(c.conns) {
			// let append call growslice() to resize the slice.
			c.conns = append(c.conns, cn)
			c.conns = c.conns[:cap(c.conns)]
			resize = true
		}
		c.resizeMu.Unlock()
	}
	if !resize {
		c.conns[id] = cn
	}
	newc, err := c.dial()
	if err != nil {
		cn.err = err
		cn.Unlock()
		return
	}
	cn.SetConn(newc)
	return
}

func (c *connPool) forEach(f func(int, *rpcConn) bool) {
	c.resizeMu.RLock()
	defer c.resizeMu.RUnlock()
	// don't use range: range would do a large copy of the slice header.
	for id := 0; id < len(c.conns); id++ {
		current := c.conns[id]
		if current == nil || !f(id, current) {
			return
		}
	}
}

// Get returns a locked, healthy connection the caller must Put back.
func (c *connPool) Get() (ok bool, id int, cn *rpcConn) {
	c.forEach(func(i int, cur *rpcConn) bool {
		if cur.TryLock() {
			if cur.err != nil || cur.raw == nil {
				if err := cur.Reconnect(c.dial, func(cnn *rpcConn) { cnn.Unlock() }); err != nil {
					return true
				}
			}
			id = i
			cn = cur
			ok = true
			return false
		}
		return true
	})
	if ok {
		return
	}
	// no free connection: grow the pool.
	var err error
	id, cn, err = c.new()
	ok = err == nil
	if !ok {
		cn.Unlock()
	}
	return
}

func (c *connPool) Put(id int, failure ...error) {
	if id >= cap(c.conns) {
		return
	}
	cn := c.conns[id]
	if cn == nil {
		return
	}
	if len(failure) > 0 && failure[0] != nil {
		cn.err = failure[0]
		if cn.raw != nil {
			cn.raw.Close()
		}
		cn.raw = nil
	}
	cn.Unlock()
}

func (c *connPool) setServer(dialer adapter.DialerFunc) {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()
	c.dialer = dialer
}

func (c *connPool) Close() error {
	var err error
	c.forEach(func(_ int, cn *rpcConn) bool {
		if cn.raw != nil {
			if e := cn.raw.Close(); e != nil {
				err = e
			}
		}
		return true
	})
	return err
}

// MarshalFunc/UnmarshalFunc are the user-supplied serializer pair
// CallStructured composes over CallBytes.
type MarshalFunc func(v any) ([]byte, error)
type UnmarshalFunc func(data []byte, v any) error

// GoRPCClient is the blocking client transport: one rpcConn is held at a
// time per call, drawn from a pool so concurrent callers each get their own
// connection rather than serializing on one.
type GoRPCClient struct {
	conn           *connPool
	tls            *tls.Config
	customDialer   adapter.DialerFunc
	defaultTimeout time.Duration

	maxFragmentSize uint32
}

func NewGoRPCClient(opts ...RPCClientOption) *GoRPCClient {
	cc := &GoRPCClient{defaultTimeout: defaultCallTimeout}
	for _, o := range opts {
		o(cc)
	}
	return cc
}

func (g *GoRPCClient) dialerFor(address string) adapter.DialerFunc {
	if g.customDialer != nil {
		return g.customDialer
	}
	if g.tls != nil {
		return DefaultTLSDialerFunc(address, g.tls)
	}
	return DefaultDialerFunc(address)
}

// Connect resolves host:port, opens a pool of TCP connections to it, and
// performs the client-create handshake: a procedure-0 null-probe. No
// program number or version is sent; the probe only checks that the
// server answers.
func (g *GoRPCClient) Connect(host string, port int) error {
	if host == "" || port <= 0 {
		return ErrInvalidArg
	}
	if g.conn != nil {
		return ErrAlreadyConnected
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	if _, err := net.ResolveTCPAddr("tcp", address); err != nil {
		return fmt.Errorf("%w: %v", ErrResolve, err)
	}

	pool, err := newConnPool(g.dialerFor(address))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	ok, id, cn := pool.Get()
	if !ok {
		pool.Close()
		return fmt.Errorf("%w: handshake failed to acquire connection", ErrConnectFailed)
	}
	// Deliberately probes with ProcNull (procedure 0) rather than ProcCall
	// (procedure 1): a liveness check has no payload to carry, and this way
	// a server that rejects procedure 1 for some other reason doesn't fail
	// the handshake.
	_, status, cerr := cn.call(ProcNull, Param{}, g.maxFragmentSize, 30*time.Second)
	pool.Put(id)
	if status != StatusSuccess {
		pool.Close()
		return fmt.Errorf("%w: handshake failed: %v", ErrConnectFailed, cerr)
	}

	g.conn = pool
	return nil
}

// CallBytes sends Param{msgType, req} as procedure 1 and awaits one reply,
// On CANT_SEND/CANT_RECV the client destroys its whole handle so the next
// call requires an explicit, fresh Connect.
func (g *GoRPCClient) CallBytes(msgType int32, req []byte, timeout time.Duration) ([]byte, Status, error) {
	if g.conn == nil {
		return nil, StatusFailed, ErrNotConnected
	}
	if timeout <= 0 {
		timeout = g.defaultTimeout
	}

	ok, id, cn := g.conn.Get()
	if !ok {
		g.Destroy()
		return nil, StatusCantSend, ErrConnectFailed
	}

	out, status, err := cn.call(ProcCall, Param{Type: msgType, Data: req}, g.maxFragmentSize, timeout)
	g.conn.Put(id, err)

	if status == StatusCantSend || status == StatusCantRecv {
		g.Destroy()
		return nil, status, err
	}
	if status != StatusSuccess {
		return nil, status, err
	}
	return out.Data, StatusSuccess, nil
}

// CallStructured marshals reqMsg, calls CallBytes, and unmarshals the
// reply. A nil respMsg asserts the reply is empty; a non-nil respMsg treats
// an empty reply as an error.
func (g *GoRPCClient) CallStructured(
	msgType int32,
	reqMsg any,
	respMsg any,
	marshal MarshalFunc,
	unmarshal UnmarshalFunc,
	timeout time.Duration,
) (Status, error) {
	var req []byte
	if reqMsg != nil {
		b, err := marshal(reqMsg)
		if err != nil {
			return StatusFailed, err
		}
		req = b
	}

	resp, status, err := g.CallBytes(msgType, req, timeout)
	if status != StatusSuccess {
		return status, err
	}

	if respMsg == nil {
		if len(resp) != 0 {
			return StatusDecodeError, ErrEmptyReplyWanted
		}
		return StatusSuccess, nil
	}
	if len(resp) == 0 {
		return StatusDecodeError, ErrReplyRequired
	}
	if err := unmarshal(resp, respMsg); err != nil {
		return StatusDecodeError, err
	}
	return StatusSuccess, nil
}

// Destroy releases the transport handle. Idempotent.
func (g *GoRPCClient) Destroy() error {
	if g.conn == nil {
		return nil
	}
	err := g.conn.Close()
	g.conn = nil
	return err
}

// Close aliases Destroy, satisfying adapter.Client and the high-level
// client/ package's io.Closer-shaped usage.
func (g *GoRPCClient) Close() error { return g.Destroy() }

func (g *GoRPCClient) SetDialer(dialer adapter.DialerFunc) {
	g.customDialer = dialer
	if g.conn != nil {
		g.conn.setServer(dialer)
	}
}

func (g *GoRPCClient) SetRPCServer(address string) error {
	if address == "" {
		return ErrInvalidArg
	}
	var dialer adapter.DialerFunc
	if g.tls != nil {
		dialer = DefaultTLSDialerFunc(address, g.tls)
	} else {
		dialer = DefaultDialerFunc(address)
	}
	g.customDialer = dialer
	if g.conn != nil {
		g.conn.setServer(dialer)
	}
	return nil
}
