package adapter

import (
	"net"
	"time"
)

// DialerFunc opens a fresh transport connection. Unlike a generic
// io.ReadWriteCloser, it returns a net.Conn so callers can set
// per-call read/write deadlines, which CallBytes's timeout contract
// requires.
type DialerFunc func() (net.Conn, error)

// Client is the high-level call surface the client/ package's async/retry
// wrapper depends on, kept decoupled from the concrete gorpc.GoRPCClient
// so the wrapper can be tested against a fake.
type Client interface {
	Connect(host string, port int) error
	CallBytes(msgType int32, req []byte, timeout time.Duration) (resp []byte, status Status, err error)
	SetDialer(dialer DialerFunc)
	SetRPCServer(address string) error
	Close() error
}

// Server is the accept-loop surface cmd/server drives.
type Server interface {
	AddCert(cert []byte)
	Run(port int) error
	Accept(lis net.Listener) error
	Stop()
}
