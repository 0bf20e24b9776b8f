package boltdb

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestBoltStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending_calls.db")
	store, err := NewBoltDB(path)
	if err != nil {
		t.Fatalf("NewBoltDB: %v", err)
	}
	defer store.Close()

	if err := store.Store("job-1", []byte("payload-1")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := store.Get("job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "payload-1" {
		t.Fatalf("got %q, want %q", got, "payload-1")
	}

	if err := store.Delete("job-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get("job-1"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("Get after Delete: got err %v, want ErrJobNotFound", err)
	}
}

func TestBoltStoreForEachDrainsOnAccept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending_calls.db")
	store, err := NewBoltDB(path)
	if err != nil {
		t.Fatalf("NewBoltDB: %v", err)
	}
	defer store.Close()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Store(id, []byte(id)); err != nil {
			t.Fatalf("Store(%s): %v", id, err)
		}
	}

	var seen []string
	store.ForEach(func(id string, info []byte) bool {
		seen = append(seen, id)
		return true
	})
	if len(seen) != 3 {
		t.Fatalf("ForEach visited %d entries, want 3", len(seen))
	}

	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Get(id); !errors.Is(err, ErrJobNotFound) {
			t.Fatalf("Get(%s) after ForEach: got err %v, want ErrJobNotFound", id, err)
		}
	}
}
