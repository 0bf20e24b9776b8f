//go:build unix

package gorpc

import (
	"errors"
	"syscall"
)

// isEINTR reports whether err is an interrupted-syscall error. Go's
// netpoller already retries EINTR internally for most operations, but
// the accept and per-connection loops check for it explicitly rather than
// treat it as a fatal poll failure.
func isEINTR(err error) bool {
	return errors.Is(err, syscall.EINTR)
}
