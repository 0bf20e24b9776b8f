// Command servermt runs a gorpc server bound to a fixed-size worker pool,
// sized by an optional second argument giving the thread count.
package main

import (
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/vkardon/proto-rpc/common/gorpc"
)

const (
	defaultPort    = 9999
	defaultThreads = 8
)

func handleCall(in gorpc.Param) (gorpc.Param, bool) {
	switch in.Type {
	case gorpc.TypePing:
		return gorpc.Param{Type: gorpc.TypePing}, true
	case gorpc.TypeEcho:
		return gorpc.Param{Type: gorpc.TypeEcho, Data: in.Data}, true
	case gorpc.TypeData:
		return gorpc.Param{Type: gorpc.TypeData, Data: in.Data}, true
	default:
		return gorpc.Param{}, false
	}
}

func main() {
	port := defaultPort
	threads := defaultThreads
	if len(os.Args) > 1 {
		if p, err := strconv.Atoi(os.Args[1]); err == nil {
			port = p
		}
	}
	if len(os.Args) > 2 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			threads = n
		}
	}

	srv := gorpc.NewGoRPCServer(
		gorpc.WithOnCall(handleCall),
		gorpc.WithStrategy(gorpc.PoolStrategy(threads)),
	)

	lis, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		log.Fatalf("servermt: listen: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("servermt: shutting down")
		srv.Stop()
	}()

	log.Printf("servermt: listening on %s with %d workers", lis.Addr(), threads)
	if err := srv.Accept(lis); err != nil {
		log.Fatalf("servermt: accept: %v", err)
	}
	log.Println("servermt: stopped")
}
