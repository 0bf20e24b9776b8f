//go:build unix && !darwin && !linux

package gorpc

import "net"

func applyPlatformSockOpts(conn net.Conn) {}
