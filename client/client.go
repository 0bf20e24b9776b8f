package client

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/MeteorsLiu/simpleMQ/queue"
	"github.com/MeteorsLiu/simpleMQ/worker"
	"github.com/vkardon/proto-rpc/adapter"
	"github.com/vkardon/proto-rpc/common/gorpc"
)

type Options func(*Client)
type Middleware func(task queue.Task, msgType int32, req []byte)

type RunMethod int

const (
	SYNC RunMethod = iota
	ASYNC
	ONCE
)

// Job is the persisted shape of a call that hasn't been confirmed
// delivered, re-submitted by doRecoverJob on the next NewClient.
type Job struct {
	ID        string
	RunMethod RunMethod
	MsgType   int32
	Req       []byte
}

// Client layers async dispatch, retry, and crash-recovery persistence over
// a blocking adapter.Client: a small "nq" worker runs synchronous/once
// calls inline, a bounded "mq" worker runs the backlog of async calls,
// and any Call or CallAsync that never confirms delivery is journaled to
// storage and resubmitted on the next startup. CallOnce calls are not
// journaled.
type Client struct {
	block       bool
	noretry     bool
	timeout     time.Duration
	finalizers  []queue.Finalizer
	middlewares []Middleware
	nq          *worker.Worker
	mq          *worker.Worker
	rpc         adapter.Client
	storage     adapter.Storage
}

func WithStorage(storage adapter.Storage) Options {
	return func(c *Client) { c.storage = storage }
}

func WithWorker(w *worker.Worker) Options {
	return func(c *Client) { c.mq = w }
}

func WithMiddleware(m Middleware) Options {
	return func(c *Client) { c.middlewares = append(c.middlewares, m) }
}

func WithCallTimeout(d time.Duration) Options {
	return func(c *Client) { c.timeout = d }
}

func DisableRetry() Options {
	return func(c *Client) { c.noretry = true }
}

func EnableNonBlocking() Options {
	return func(c *Client) { c.block = false }
}

func WithFinalizer(f queue.Finalizer) Options {
	return func(c *Client) { c.finalizers = append(c.finalizers, f) }
}

func NewClient(rpc adapter.Client, opts ...Options) *Client {
	c := &Client{
		block: true,
		nq:    worker.NewWorker(0, 0, nil, true),
		// limit the worker number
		mq:  worker.NewWorker(10000, 1, queue.NewSimpleQueue(queue.WithSimpleQueueCap(10000)), true),
		rpc: rpc,
	}
	for _, o := range opts {
		o(c)
	}
	c.doRecoverJob()
	return c
}

func (c *Client) doMiddleware(task queue.Task, msgType int32, req []byte) {
	for _, m := range c.middlewares {
		m(task, msgType, req)
	}
}

func (c *Client) runMethod() RunMethod {
	if c.block {
		return SYNC
	}
	return ASYNC
}

func (c *Client) doRecoverJob() {
	if c.storage == nil {
		return
	}
	c.storage.ForEach(func(id string, info []byte) bool {
		var job Job
		json.Unmarshal(info, &job)
		if job.ID == "" {
			return true
		}
		switch job.RunMethod {
		case SYNC:
			c.Call(job.MsgType, job.Req, nil)
		case ASYNC:
			c.CallAsync(job.MsgType, job.Req, nil)
		case ONCE:
			c.CallOnce(job.MsgType, job.Req, nil)
		}
		return true
	})
}

func (c *Client) doSaveJob(task queue.Task, runMethod RunMethod, msgType int32, req []byte) {
	if c.storage == nil {
		return
	}
	job := &Job{ID: task.ID(), RunMethod: runMethod, MsgType: msgType, Req: req}
	b, _ := json.Marshal(job)
	c.storage.Store(job.ID, b)
}

// doCall issues one CallBytes and writes its payload into resp. A
// StatusFailed reply means the remote declined the call (no such
// procedure, or the handler errored), not that the transport is broken,
// so it's treated as terminal rather than retried. A StatusFailed that
// carries ErrNotConnected (the handle was torn down after a transport
// failure) is returned as an error like any other transport failure.
func (c *Client) doCall(msgType int32, req []byte, resp *[]byte) error {
	out, status, err := c.rpc.CallBytes(msgType, req, c.timeout)
	if resp != nil {
		*resp = out
	}
	if status == gorpc.StatusFailed && !errors.Is(err, gorpc.ErrNotConnected) {
		return nil
	}
	return err
}

func (c *Client) newTask(msgType int32, req []byte, resp *[]byte, opts ...queue.TaskOptions) queue.Task {
	if c.noretry {
		opts = append(opts, queue.WithNoRetryFunc())
	}
	task := queue.NewTask(func() error {
		return c.doCall(msgType, req, resp)
	}, opts...)
	c.doMiddleware(task, msgType, req)
	task.OnDone(c.finalizers...)
	return task
}

func (c *Client) CallAsync(msgType int32, req []byte, resp *[]byte, finalizer ...queue.Finalizer) error {
	task := c.newTask(msgType, req, resp)
	task.OnDone(func(ok bool, task queue.Task) {
		if !ok {
			c.doSaveJob(task, ASYNC, msgType, req)
		}
	})
	c.mq.Publish(task, finalizer...)
	return nil
}

func (c *Client) Call(msgType int32, req []byte, resp *[]byte, finalizer ...queue.Finalizer) error {
	task := c.newTask(msgType, req, resp)
	task.OnDone(func(ok bool, task queue.Task) {
		if !ok {
			c.doSaveJob(task, c.runMethod(), msgType, req)
		}
	})
	if !c.block {
		c.mq.Publish(task, finalizer...)
		return nil
	}
	return c.nq.PublishSync(task, finalizer...)
}

func (c *Client) CallOnce(msgType int32, req []byte, resp *[]byte, finalizer ...queue.Finalizer) error {
	task := c.newTask(msgType, req, resp, queue.WithNoRetryFunc())
	if !c.block {
		c.nq.Publish(task, finalizer...)
		return nil
	}
	return c.nq.PublishSync(task, finalizer...)
}

func (c *Client) Close() error {
	c.nq.Stop()
	c.mq.Stop()
	return c.rpc.Close()
}
