// Package queue provides a generic bounded FIFO work queue with a single
// consumer goroutine. It decouples fast producers (ingestion handlers) from
// the slower snapshot processor while preserving delivery order.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrQueueFull is returned when the queue bound is reached and the caller
// is unwilling (or unable) to keep waiting. Producers should surface it as
// backpressure and retry later.
var ErrQueueFull = errors.New("queue full")

// ErrStopped is returned for enqueues after Stop.
var ErrStopped = errors.New("queue stopped")

// Handler processes one item. A returned error is logged and the item is
// not retried; ordering must never stall on one bad item.
type Handler[T any] func(ctx context.Context, item T) error

type Queue[T any] struct {
	items   chan T
	handler Handler[T]
	logger  zerolog.Logger

	// items is never closed: producers may race Stop, and a send on a
	// closed channel would panic the process. Shutdown is signalled
	// through stopping instead.
	stopping chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
}

func New[T any](capacity int, handler Handler[T], logger zerolog.Logger) *Queue[T] {
	return &Queue[T]{
		items:    make(chan T, capacity),
		handler:  handler,
		logger:   logger,
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Enqueue adds an item, blocking for backpressure while the queue is at
// capacity. It returns ErrQueueFull once ctx expires.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	select {
	case <-q.stopping:
		return ErrStopped
	default:
	}

	select {
	case q.items <- item:
		return nil
	case <-q.stopping:
		return ErrStopped
	case <-ctx.Done():
		return ErrQueueFull
	}
}

// TryEnqueue adds an item without blocking, returning ErrQueueFull when the
// bound is reached.
func (q *Queue[T]) TryEnqueue(item T) error {
	select {
	case <-q.stopping:
		return ErrStopped
	default:
	}

	select {
	case q.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len reports how many items are waiting.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Start launches the single consumer goroutine. Items are handed to the
// handler strictly in FIFO order; handler failures are logged and the item
// is dropped.
func (q *Queue[T]) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	q.mu.Lock()
	q.cancel = cancel
	q.mu.Unlock()

	go func() {
		defer close(q.done)
		for {
			select {
			case item := <-q.items:
				q.process(ctx, item)
			case <-q.stopping:
				// Drain everything buffered before exiting.
				for {
					select {
					case item := <-q.items:
						q.process(ctx, item)
					default:
						return
					}
				}
			}
		}
	}()
}

func (q *Queue[T]) process(ctx context.Context, item T) {
	if err := q.handler(ctx, item); err != nil {
		q.logger.Error().Err(err).Msg("queue handler failed, item skipped")
	}
}

// Stop rejects further enqueues, drains the remaining items through the
// handler, and waits for the consumer to exit.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.stopped = true
	close(q.stopping)
	q.mu.Unlock()

	<-q.done
	q.mu.Lock()
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()
}
