// Command server runs a gorpc server with the fork-per-connection strategy:
// each accepted connection is served by a re-exec'd copy of this binary
// (see strategy.go's ForkStrategy), which serves only that connection.
// It is illustrative: no flag parsing beyond an optional port, startup/
// shutdown lines printed to stdout.
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

const defaultPort = 9999

func handleCall(in gorpc.Param) (gorpc.Param, bool) {
	switch in.Type {
	case gorpc.TypePing:
		return gorpc.Param{Type: gorpc.TypePing}, true
	case gorpc.TypeEcho:
		return gorpc.Param{Type: gorpc.TypeEcho, Data: in.Data}, true
	case gorpc.TypeData:
		return gorpc.Param{Type: gorpc.TypeData, Data: []byte("Hello from RPC server!")}, true
	default:
		return gorpc.Param{}, false
	}
}

func main() {
	log.SetOutput(os.Stdout)
	port := defaultPort
	if len(os.Args) > 1 {
		if p, err := strconv.Atoi(os.Args[1]); err == nil {
			port = p
		}
	}

	srv := gorpc.NewGoRPCServer(
		gorpc.WithOnCall(handleCall),
		gorpc.WithStrategy(gorpc.ForkStrategy()),
	)

	if fd, isForkWorker := gorpc.ForkWorkerFD(); isForkWorker {
		if err := gorpc.ServeForkedConnection(srv, fd); err != nil {
			log.Fatalf("server: fork worker: %v", err)
		}
		return
	}

	lis, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		log.Fatalf("server: listen: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("server: shutting down")
		srv.Stop()
	}()

	log.Printf("server: listening on %s", lis.Addr())
	if err := srv.Accept(lis); err != nil {
		log.Fatalf("server: accept: %v", err)
	}
	log.Println("server: stopped")
}
