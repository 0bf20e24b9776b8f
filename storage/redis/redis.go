package redis

import (
	"context"
	"time"

	r "github.com/redis/go-redis/v9"
	"github.com/vkardon/proto-rpc/adapter"
	"github.com/vkardon/proto-rpc/storage/common"
)

// jobsKey is the single Redis hash holding one field per client.Job
// awaiting delivery confirmation, keyed by the job's ID.
const jobsKey = "pending_calls"

var cb = context.Background()

type Options func(*r.Options)

// RedisStore is an adapter.Storage backed by a Redis hash.
type RedisStore struct {
	db *r.Client
}

func WithDB(n int) Options {
	return func(o *r.Options) { o.DB = n }
}

func WithAddr(addr string) Options {
	return func(o *r.Options) { o.Addr = addr }
}

func WithPassword(password string) Options {
	return func(o *r.Options) { o.Password = password }
}

func ping(c *r.Client) error {
	ctx, cancel := context.WithTimeout(cb, 10*time.Second)
	defer cancel()
	return c.Ping(ctx).Err()
}

func NewRedis(opts ...Options) (adapter.Storage, error) {
	ro := &r.Options{}
	for _, o := range opts {
		o(ro)
	}
	c := r.NewClient(ro)
	if err := ping(c); err != nil {
		c.Close()
		return nil, err
	}
	return &RedisStore{c}, nil
}

func (s *RedisStore) Store(id string, info []byte) error {
	return s.db.HSet(cb, jobsKey, id, string(info)).Err()
}

func (s *RedisStore) ForEach(f func(id string, info []byte) bool) error {
	jobs, err := s.db.HGetAll(cb, jobsKey).Result()
	if err != nil {
		return err
	}
	for id, info := range jobs {
		if !f(id, []byte(info)) {
			return common.ErrIterStop
		}
		s.db.HDel(cb, jobsKey, id)
	}
	return nil
}

func (s *RedisStore) Get(id string) (info []byte, err error) {
	return s.db.HGet(cb, jobsKey, id).Bytes()
}

func (s *RedisStore) Delete(id string) error {
	return s.db.HDel(cb, jobsKey, id).Err()
}

func (s *RedisStore) Close() {
	s.db.Close()
}
