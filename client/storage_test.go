package client

import (
	"encoding/json"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vkardon/proto-rpc/common/gorpc"
	"github.com/vkardon/proto-rpc/storage/boltdb"
)

// TestClientRecoversPersistedJobOnStartup drives the crash-recovery path
// end to end: a job is persisted to a real boltdb file as if a prior
// process had died mid-call, and NewClient's doRecoverJob must redeliver
// it against a live server before returning.
func TestClientRecoversPersistedJobOnStartup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "pending_calls.db")
	store, err := boltdb.NewBoltDB(dbPath)
	if err != nil {
		t.Fatalf("NewBoltDB: %v", err)
	}
	defer store.Close()

	job := Job{ID: "job-1", RunMethod: ONCE, MsgType: msgTypeEcho, Req: []byte("recovered")}
	b, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	if err := store.Store(job.ID, b); err != nil {
		t.Fatalf("store job: %v", err)
	}

	var mu sync.Mutex
	var gotReq []byte
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := gorpc.NewGoRPCServer(gorpc.WithOnCall(func(in gorpc.Param) (gorpc.Param, bool) {
		mu.Lock()
		gotReq = append([]byte(nil), in.Data...)
		mu.Unlock()
		return gorpc.Param{Type: in.Type, Data: in.Data}, true
	}))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		wg.Done()
		srv.Accept(l)
	}()
	wg.Wait()
	defer func() { srv.Stop(); l.Close() }()

	cli := dialClient(t, l.Addr().String())
	defer cli.Close()

	// NewClient runs doRecoverJob synchronously before returning, so the
	// recovered call has already reached the server by the time this
	// returns.
	c := NewClient(cli, WithCallTimeout(5*time.Second), WithStorage(store))
	defer c.Close()

	mu.Lock()
	got := string(gotReq)
	mu.Unlock()
	if got != "recovered" {
		t.Fatalf("recovered job was not delivered: got %q, want %q", got, "recovered")
	}

	if _, err := store.Get(job.ID); err == nil {
		t.Fatalf("recovered job should have been removed from storage")
	}
}
