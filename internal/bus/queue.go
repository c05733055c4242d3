// Package bus is the pipeline's side channel. Stages raise structured
// events instead of writing output; callers subscribe to route them to
// logging or a UI.
package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/titisda/trading-algorithum/internal/schema"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Level classifies a side-channel event.
type Level uint8

const (
	LevelDebug Level = iota
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Event is the unit passed through the side channel.
type Event struct {
	Level      Level
	SecurityID schema.SecurityID
	Time       time.Time
	Message    string
	Err        error
}

// Queue is a bounded, non-blocking event queue.
type Queue struct {
	ch     chan Event
	closed uint32
	drops  uint64
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Event, capacity)}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e Event) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		atomic.AddUint64(&q.drops, 1)
		return ErrQueueFull
	}
}

// Debug publishes a debug message for a security.
func (q *Queue) Debug(id schema.SecurityID, message string) {
	_ = q.TryPublish(Event{Level: LevelDebug, SecurityID: id, Time: time.Now().UTC(), Message: message})
}

// Error publishes a recoverable error for a security.
func (q *Queue) Error(id schema.SecurityID, message string, err error) {
	_ = q.TryPublish(Event{Level: LevelError, SecurityID: id, Time: time.Now().UTC(), Message: message, Err: err})
}

// Fatal publishes a fatal error for a security.
func (q *Queue) Fatal(id schema.SecurityID, message string, err error) {
	_ = q.TryPublish(Event{Level: LevelFatal, SecurityID: id, Time: time.Now().UTC(), Message: message, Err: err})
}

// Drops returns the number of events rejected because the queue was full.
func (q *Queue) Drops() uint64 {
	return atomic.LoadUint64(&q.drops)
}

// Close stops the queue from accepting new events.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes events until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}

// Drain returns every event currently buffered without blocking.
func (q *Queue) Drain() []Event {
	var out []Event
	for {
		select {
		case e, ok := <-q.ch:
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}
