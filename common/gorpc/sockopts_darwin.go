//go:build darwin

package gorpc

import (
	"net"

	"golang.org/x/sys/unix"
)

// applyPlatformSockOpts sets SO_NOSIGPIPE, which only exists on BSD-family
// kernels; on Linux nothing is set (see sockopts_linux.go).
func applyPlatformSockOpts(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_NOSIGPIPE, 1)
	})
}
