//go:build linux

package gorpc

import "net"

// SO_NOSIGPIPE has no Linux equivalent. The Go runtime already masks
// SIGPIPE on sockets it owns, turning a write to a closed connection into
// an EPIPE error instead of a process-killing signal, so there is nothing
// to set here.
func applyPlatformSockOpts(conn net.Conn) {}
