package client

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/MeteorsLiu/simpleMQ/queue"
	"github.com/vkardon/proto-rpc/common/gorpc"
)

const msgTypeEcho int32 = 3

func startEchoServer(t *testing.T) (addr string, stop func()) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := gorpc.NewGoRPCServer(gorpc.WithOnCall(func(in gorpc.Param) (gorpc.Param, bool) {
		return gorpc.Param{Type: in.Type, Data: in.Data}, true
	}))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		wg.Done()
		srv.Accept(l)
	}()
	wg.Wait()
	return l.Addr().String(), func() { srv.Stop(); l.Close() }
}

func dialClient(t *testing.T, addr string) *gorpc.GoRPCClient {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	cli := gorpc.NewGoRPCClient()
	if err := cli.Connect(tcpAddr.IP.String(), tcpAddr.Port); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return cli
}

func TestClientCallSync(t *testing.T) {
	addr, stop := startEchoServer(t)
	defer stop()

	cli := dialClient(t, addr)
	defer cli.Close()

	c := NewClient(cli, WithCallTimeout(5*time.Second))
	defer c.Close()

	var resp []byte
	if err := c.Call(msgTypeEcho, []byte("hello"), &resp); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(resp) != "hello" {
		t.Fatalf("got %q, want %q", resp, "hello")
	}
}

func TestClientCallOnce(t *testing.T) {
	addr, stop := startEchoServer(t)
	defer stop()

	cli := dialClient(t, addr)
	defer cli.Close()

	c := NewClient(cli, WithCallTimeout(5*time.Second))
	defer c.Close()

	var resp []byte
	if err := c.CallOnce(msgTypeEcho, []byte("once"), &resp); err != nil {
		t.Fatalf("CallOnce: %v", err)
	}
	if string(resp) != "once" {
		t.Fatalf("got %q, want %q", resp, "once")
	}
}

func TestClientCallAsync(t *testing.T) {
	addr, stop := startEchoServer(t)
	defer stop()

	cli := dialClient(t, addr)
	defer cli.Close()

	var mu sync.Mutex
	var gotMsgType int32
	c := NewClient(cli, WithCallTimeout(5*time.Second), WithMiddleware(func(task queue.Task, msgType int32, req []byte) {
		mu.Lock()
		gotMsgType = msgType
		mu.Unlock()
	}))
	defer c.Close()

	var resp []byte
	if err := c.CallAsync(msgTypeEcho, []byte("async"), &resp); err != nil {
		t.Fatalf("CallAsync: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	got := gotMsgType
	mu.Unlock()
	if got != msgTypeEcho {
		t.Fatalf("middleware saw msgType %d, want %d", got, msgTypeEcho)
	}
}
