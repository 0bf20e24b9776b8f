//go:build unix

package gorpc

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// newListener binds a TCP listener to INADDR_ANY:port with SO_REUSEADDR
// and an explicit listen(2) backlog. net.Listen does not expose backlog
// control, so we go around it with a raw socket via golang.org/x/sys/unix,
// matching the server's configurable backlog bound (default 100).
func newListener(port int, backlog int) (net.Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("gorpc: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("gorpc: setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("gorpc: bind: %w", err)
	}
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("gorpc: listen: %w", err)
	}
	f := os.NewFile(uintptr(fd), fmt.Sprintf("tcp-listener-%d", port))
	defer f.Close()
	l, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("gorpc: file listener: %w", err)
	}
	return l, nil
}

// applySockOpts sets SO_REUSEADDR (already applied at listen time),
// TCP_NODELAY, and any platform socket options on a freshly accepted
// connection.
func applySockOpts(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	applyPlatformSockOpts(conn)
}
