package boltdb

import (
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/vkardon/proto-rpc/adapter"
	"github.com/vkardon/proto-rpc/storage/common"
)

// jobsBucket holds one entry per client.Job awaiting delivery confirmation,
// keyed by the job's ID. ForEach prunes an entry as soon as it hands it
// back to the caller, so a job is handed off at most once per process run.
const jobsBucket = "pending_calls"

var (
	ErrBucketMissing = fmt.Errorf("boltdb: %s bucket doesn't exist", jobsBucket)
	ErrJobNotFound   = fmt.Errorf("boltdb: job not found")
)

// BoltStore is an adapter.Storage backed by a local boltdb file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltDB opens (creating if absent) the boltdb file at saveTo, or
// "pending_calls.db" in the working directory if saveTo is omitted.
func NewBoltDB(saveTo ...string) (adapter.Storage, error) {
	fileName := "pending_calls.db"
	if len(saveTo) > 0 && saveTo[0] != "" {
		fileName = saveTo[0]
	}
	db, err := bolt.Open(fileName, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(jobsBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db}, nil
}

func (s *BoltStore) Store(id string, info []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(jobsBucket))
		if b == nil {
			return ErrBucketMissing
		}
		return b.Put([]byte(id), info)
	})
}

func (s *BoltStore) ForEach(f func(id string, info []byte) bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(jobsBucket))
		if b == nil {
			return ErrBucketMissing
		}
		return b.ForEach(func(k, v []byte) error {
			if !f(string(k), v) {
				return common.ErrIterStop
			}
			return b.Delete(k)
		})
	})
}

func (s *BoltStore) Get(id string) (info []byte, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(jobsBucket))
		if b == nil {
			return ErrBucketMissing
		}
		v := b.Get([]byte(id))
		if v == nil {
			return ErrJobNotFound
		}
		// v is only valid for the life of this transaction; copy it out.
		info = append([]byte(nil), v...)
		return nil
	})
	return
}

func (s *BoltStore) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(jobsBucket))
		if b == nil {
			return ErrBucketMissing
		}
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) Close() {
	s.db.Close()
}
