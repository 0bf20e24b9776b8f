//go:build !unix

package gorpc

import (
	"fmt"
	"net"
)

// newListener falls back to the standard library on platforms without a
// listen(2) backlog knob exposed via golang.org/x/sys/unix (e.g. Windows).
// The OS default backlog is used there; the configured bound is
// best-effort on these platforms.
func newListener(port int, _ int) (net.Listener, error) {
	return net.Listen("tcp", fmt.Sprintf(":%d", port))
}

func applySockOpts(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}
