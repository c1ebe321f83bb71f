package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/josh-kwaku/points-ledger/internal/logging"
)

var (
	ErrQueueFull = errors.New("event queue full")
	ErrClosed    = errors.New("event dispatcher closed")
)

// Publisher delivers one event to the broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type queuedEvent struct {
	event Event
	log   *slog.Logger
}

// Dispatcher hands events to a Publisher on a single background goroutine so
// callers never wait on the broker. Each delivery is bounded by timeout;
// failures are logged and dropped.
type Dispatcher struct {
	next    Publisher
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan queuedEvent
	done   chan struct{}
}

func NewDispatcher(next Publisher, buffer int, timeout time.Duration) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	d := &Dispatcher{
		next:    next,
		timeout: timeout,
		queue:   make(chan queuedEvent, buffer),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish enqueues e and returns at once. It fails with ErrQueueFull when the
// buffer is exhausted and ErrClosed after Close.
func (d *Dispatcher) Publish(ctx context.Context, e Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- queuedEvent{event: e, log: logging.FromContext(ctx)}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for the queued ones to be attempted.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for q := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.next.Publish(ctx, q.event)
		cancel()
		if err != nil {
			q.log.Warn("failed to publish ledger event",
				"event_type", q.event.Type,
				"transaction_id", q.event.TransactionID,
				"error", err,
			)
		}
	}
}
