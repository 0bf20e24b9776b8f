package gorpc

import (
	"net"
	"sync/atomic"

	"github.com/alphadose/haxmap"
	"github.com/google/uuid"
)

// registry is a dynamic, unbounded replacement for an FD-indexed thread
// table. Handles are opaque uuid strings rather than socket file
// descriptors, so nothing in this package assumes a bounded or low FD
// value.
type registry struct {
	conns *haxmap.Map[string, net.Conn]
	count atomic.Int64
}

func newRegistry() *registry {
	return &registry{conns: haxmap.New[string, net.Conn]()}
}

// register hands the registry ownership tracking for conn and returns the
// opaque handle it was filed under. The caller is still the one that must
// eventually close conn; the registry only tracks liveness for
// diagnostics and orderly shutdown accounting.
func (r *registry) register(conn net.Conn) string {
	handle := uuid.NewString()
	r.conns.Set(handle, conn)
	r.count.Add(1)
	return handle
}

func (r *registry) unregister(handle string) {
	if _, ok := r.conns.Get(handle); ok {
		r.conns.Del(handle)
		r.count.Add(-1)
	}
}

// Len reports the number of in-flight handlers currently tracked.
func (r *registry) Len() int64 {
	return r.count.Load()
}

// closeAll force-closes every tracked connection; used by Stop() to bound
// shutdown latency for straggling thread-per-connection handlers.
func (r *registry) closeAll() {
	r.conns.ForEach(func(handle string, conn net.Conn) bool {
		conn.Close()
		return true
	})
}
