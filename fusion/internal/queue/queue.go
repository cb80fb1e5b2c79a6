// Package queue is the bounded hand-off between host callback threads and
// the single writer goroutine.
package queue

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
)

var (
	// ErrQueueFull is returned when an event was dropped by the overflow policy.
	ErrQueueFull = errors.New("event queue full")

	// ErrClosed is returned by Enqueue once Close has been called.
	ErrClosed = errors.New("event queue closed")
)

// Policy decides what happens to an event that arrives at a full queue.
type Policy string

const (
	// PolicyBlock makes the producer wait for space, up to the block timeout
	// if one is set.
	PolicyBlock Policy = "block"
	// PolicyDropNewest rejects the arriving event.
	PolicyDropNewest Policy = "drop_newest"
	// PolicyDropOldest evicts the oldest queued event to make room.
	PolicyDropOldest Policy = "drop_oldest"
)

// ParsePolicy converts a configured policy name. Empty means PolicyBlock.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "":
		return PolicyBlock, nil
	case PolicyBlock, PolicyDropNewest, PolicyDropOldest:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Option configures a Queue.
type Option func(*Queue)

// WithBlockTimeout caps how long PolicyBlock waits. Zero waits until
// there is room or the queue is closed.
func WithBlockTimeout(d time.Duration) Option {
	return func(q *Queue) {
		q.blockTimeout = d
	}
}

// WithOnDrop registers fn to be called for every dropped or evicted event.
// fn runs on the producer's goroutine and must not block.
func WithOnDrop(fn func(event.Event)) Option {
	return func(q *Queue) {
		q.onDrop = fn
	}
}

// Stats is a point-in-time view of the queue counters.
type Stats struct {
	Len      int
	Cap      int
	Enqueued uint64
	Dropped  uint64
}

// Queue is a bounded multi-producer single-consumer queue of events.
// Events from one producer are received in the order they were enqueued.
type Queue struct {
	ch           chan event.Event
	policy       Policy
	blockTimeout time.Duration
	onDrop       func(event.Event)

	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	inflight  sync.WaitGroup
	closeOnce sync.Once

	enqueued atomic.Uint64
	dropped  atomic.Uint64
}

// New creates a queue holding at most capacity events.
func New(capacity int, policy Policy, opts ...Option) *Queue {
	if capacity <= 0 {
		panic(fmt.Sprintf("queue: capacity must be positive, got %d", capacity))
	}
	if policy == "" {
		policy = PolicyBlock
	}

	q := &Queue{
		ch:     make(chan event.Event, capacity),
		policy: policy,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue hands ev to the consumer. It never waits on I/O; under
// PolicyBlock it waits only for queue space.
func (q *Queue) Enqueue(ev event.Event) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrClosed
	}
	q.inflight.Add(1)
	q.mu.RUnlock()
	defer q.inflight.Done()

	// Fast path
	select {
	case q.ch <- ev:
		q.enqueued.Add(1)
		return nil
	default:
	}

	switch q.policy {
	case PolicyDropNewest:
		q.drop(ev)
		return ErrQueueFull
	case PolicyDropOldest:
		return q.evictAndSend(ev)
	default:
		return q.blockAndSend(ev)
	}
}

func (q *Queue) blockAndSend(ev event.Event) error {
	var timeout <-chan time.Time
	if q.blockTimeout > 0 {
		timer := time.NewTimer(q.blockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case q.ch <- ev:
		q.enqueued.Add(1)
		return nil
	case <-q.done:
		return ErrClosed
	case <-timeout:
		q.drop(ev)
		return ErrQueueFull
	}
}

func (q *Queue) evictAndSend(ev event.Event) error {
	for {
		select {
		case q.ch <- ev:
			q.enqueued.Add(1)
			return nil
		default:
		}

		select {
		case old := <-q.ch:
			q.drop(old)
		case <-q.done:
			return ErrClosed
		default:
			// The consumer took one; retry the send.
		}
	}
}

func (q *Queue) drop(ev event.Event) {
	q.dropped.Add(1)
	if q.onDrop != nil {
		q.onDrop(ev)
	}
}

// C returns the consumer side. It is closed after Close once every
// in-flight Enqueue has returned, so ranging over it drains the queue.
func (q *Queue) C() <-chan event.Event {
	return q.ch
}

// Close stops accepting events and wakes producers blocked on a full
// queue. Events already queued stay readable from C. Safe to call more
// than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.done)
		q.mu.Unlock()

		q.inflight.Wait()
		close(q.ch)
	})
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

func (q *Queue) Len() int { return len(q.ch) }

func (q *Queue) Cap() int { return cap(q.ch) }

func (q *Queue) Policy() Policy { return q.policy }

func (q *Queue) Stats() Stats {
	return Stats{
		Len:      len(q.ch),
		Cap:      cap(q.ch),
		Enqueued: q.enqueued.Load(),
		Dropped:  q.dropped.Load(),
	}
}
