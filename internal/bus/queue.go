package bus

import (
	"context"
	"sync/atomic"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var (
	ErrQueueFull   = errors.New("fill queue full")
	ErrQueueClosed = errors.New("fill queue closed")
)

// FillQueue is a bounded, non-blocking queue delivering fills to one
// strategy instance. One consumer per queue keeps position updates
// single-writer.
type FillQueue struct {
	ch     chan schema.Fill
	closed uint32
}

// NewFillQueue allocates a queue with the given capacity.
func NewFillQueue(capacity int) *FillQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &FillQueue{ch: make(chan schema.Fill, capacity)}
}

// TryPublish enqueues a fill without blocking.
func (q *FillQueue) TryPublish(fill schema.Fill) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- fill:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new fills.
func (q *FillQueue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Drain consumes all currently buffered fills without blocking.
func (q *FillQueue) Drain(handler func(schema.Fill)) {
	for {
		select {
		case fill, ok := <-q.ch:
			if !ok {
				return
			}
			handler(fill)
		default:
			return
		}
	}
}

// Run consumes fills until the context is done or the queue is closed.
func (q *FillQueue) Run(ctx context.Context, handler func(schema.Fill)) {
	for {
		select {
		case <-ctx.Done():
			return
		case fill, ok := <-q.ch:
			if !ok {
				return
			}
			handler(fill)
		}
	}
}
