// Package outbox serializes concurrently submitted frames onto a single
// writer so that at most one write is in flight per connection.
package outbox

import (
	"context"
	"io"
	"sync"

	"github.com/ledzpl/fchat/internal/frame"
)

// Outbox queues messages for one connection and drains them in order.
// Enqueue never blocks on I/O.
type Outbox struct {
	w       io.Writer
	onError func(error)

	mu       sync.Mutex
	queue    []frame.Message
	draining bool
	closed   bool
	failed   bool

	inflight sync.WaitGroup
	failOnce sync.Once
}

// New returns an Outbox writing to w. onError, if set, is called once with the
// first write error; queued messages are discarded at that point.
func New(w io.Writer, onError func(error)) *Outbox {
	return &Outbox{w: w, onError: onError}
}

// Enqueue appends msg and starts a drain if none is running. It reports false
// when the outbox no longer accepts messages.
func (o *Outbox) Enqueue(msg frame.Message) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, msg)
	start := !o.draining
	if start {
		o.draining = true
		o.inflight.Add(1)
	}
	o.mu.Unlock()

	if start {
		go o.drain()
	}
	return true
}

func (o *Outbox) drain() {
	defer o.inflight.Done()

	for {
		o.mu.Lock()
		if len(o.queue) == 0 || o.failed {
			o.draining = false
			o.mu.Unlock()
			return
		}
		msg := o.queue[0]
		o.queue[0] = frame.Message{}
		o.queue = o.queue[1:]
		o.mu.Unlock()

		if _, err := o.w.Write(msg.Encode()); err != nil {
			o.fail(err)
			return
		}
	}
}

func (o *Outbox) fail(err error) {
	o.mu.Lock()
	o.closed = true
	o.failed = true
	o.draining = false
	o.queue = nil
	o.mu.Unlock()

	o.failOnce.Do(func() {
		if o.onError != nil {
			o.onError(err)
		}
	})
}

// Len returns the number of messages waiting to be written.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Shutdown stops accepting messages and waits until everything already queued
// has been written, the writer fails, or ctx ends.
func (o *Outbox) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages and drops anything not yet written. A write
// already in flight is allowed to finish.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closed = true
	o.queue = nil
	o.mu.Unlock()
}
