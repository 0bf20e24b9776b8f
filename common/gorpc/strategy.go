package gorpc

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
)

// InlineStrategy serves one connection at a time in the acceptor's own
// loop. No concurrency; trivially correct; useful as a baseline and for
// tests.
func InlineStrategy() Strategy {
	return func(s *GoRPCServer, conn net.Conn) ConnDecision {
		return ServeInline
	}
}

// ThreadStrategy spawns one goroutine per connection, tracked in the
// registry's unbounded, opaque-handle-keyed map rather than a
// fixed-capacity, FD-indexed thread table.
func ThreadStrategy() Strategy {
	return func(s *GoRPCServer, conn net.Conn) ConnDecision {
		if s.reg == nil {
			s.reg = newRegistry()
		}
		handle := s.reg.register(conn)
		go func() {
			defer s.reg.unregister(handle)
			s.serveConn(conn)
		}()
		return Adopted
	}
}

// PoolStrategy posts the accepted connection's handle to a bounded worker
// pool created with n workers. The pool is created lazily on first use and
// torn down by Stop().
func PoolStrategy(n int) Strategy {
	return func(s *GoRPCServer, conn net.Conn) ConnDecision {
		if s.pool == nil {
			if s.reg == nil {
				s.reg = newRegistry()
			}
			s.pool = NewWorkerPool(func(idx int, w Work) {
				c, ok := w.Handle.(net.Conn)
				if !ok {
					return
				}
				handle := s.reg.register(c)
				defer s.reg.unregister(handle)
				s.serveConn(c)
			})
			if err := s.pool.Create(n); err != nil {
				log.Printf("gorpc: pool: create: %v", err)
				s.pool = nil
				return Reject
			}
		}
		if !s.pool.PostRequest(conn, false) {
			return Reject
		}
		return Adopted
	}
}

// forkEnvVar names the environment variable a self-exec'd fork worker uses
// to learn which inherited file descriptor carries its one connection.
const forkEnvVar = "GORPC_FORK_FD"

// ForkStrategy hands each accepted connection to a separate OS process
// rather than raw fork(): the Go runtime cannot safely fork() a process
// that already has goroutines and background threads running. Instead, the
// accepted connection's file descriptor is duplicated and handed to a
// freshly exec'd copy of the same binary via ExtraFiles; the parent
// immediately closes its own copies and returns to Accept. The child side
// of the contract is realized by ServeForkedConnection, which a re-exec'd
// process's main() calls instead of Run when it detects forkEnvVar — see
// cmd/server.
//
// SIGCHLD is ignored process-wide on construction so exited children are
// auto-reaped without an explicit Wait4 loop.
func ForkStrategy() Strategy {
	ignoreSIGCHLD()
	return func(s *GoRPCServer, conn net.Conn) ConnDecision {
		tc, ok := conn.(*net.TCPConn)
		if !ok {
			// Not a real TCP socket (e.g. under test with an in-process
			// pipe): fall back to inline service rather than fail.
			return ServeInline
		}

		f, err := tc.File()
		if err != nil {
			log.Printf("gorpc: fork: dup: %v", err)
			return Reject
		}
		defer f.Close()

		exe, err := os.Executable()
		if err != nil {
			log.Printf("gorpc: fork: os.Executable: %v", err)
			return Reject
		}

		cmd := exec.Command(exe, os.Args[1:]...)
		cmd.ExtraFiles = []*os.File{f}
		cmd.Env = append(os.Environ(), fmt.Sprintf("%s=3", forkEnvVar))
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Start(); err != nil {
			log.Printf("gorpc: fork: start: %v", err)
			return Reject
		}
		// The parent's job for this connection ends here: close its copy
		// of the socket and return to accepting.
		return Reject
	}
}

// ForkWorkerFD returns the inherited file descriptor number a re-exec'd
// fork worker should serve, and whether this process was launched as one.
func ForkWorkerFD() (fd uintptr, isForkWorker bool) {
	if os.Getenv(forkEnvVar) != "3" {
		return 0, false
	}
	return 3, true
}

// ServeForkedConnection serves exactly the one connection inherited on fd,
// then returns. A re-exec'd fork worker's main() should call this instead
// of Run/Accept.
func ServeForkedConnection(s *GoRPCServer, fd uintptr) error {
	f := os.NewFile(fd, "gorpc-fork-conn")
	if f == nil {
		return fmt.Errorf("gorpc: fork worker: invalid fd %d", fd)
	}
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("gorpc: fork worker: %w", err)
	}
	s.continueRunning.Store(true)
	s.serveConn(conn)
	return nil
}
