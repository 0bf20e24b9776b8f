//go:build unix

package gorpc

import (
	"os/signal"

	"golang.org/x/sys/unix"
)

// ignoreSIGCHLD is called once by ForkStrategy so forked worker processes
// are auto-reaped without an explicit wait loop.
func ignoreSIGCHLD() {
	signal.Ignore(unix.SIGCHLD)
}
