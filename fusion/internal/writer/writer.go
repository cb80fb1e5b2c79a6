// Package writer drains the ingestion queue into the storage streams.
package writer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telhawk-systems/fusion-engine/common/logging"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/metrics"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/queue"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/storage"
)

const defaultFlushInterval = time.Second

// Option configures a Writer.
type Option func(*Writer)

// WithOnFatal registers fn to run once when the writer stops on an error.
func WithOnFatal(fn func(error)) Option {
	return func(w *Writer) {
		w.onFatal = fn
	}
}

// WithFlushInterval bounds how long appended records may sit in buffers
// while the queue never runs empty. Zero disables the timer; records are
// then flushed only when the queue is idle.
func WithFlushInterval(d time.Duration) Option {
	return func(w *Writer) {
		w.flushInterval = d
	}
}

// Writer is the single consumer of the ingestion queue. It appends each
// event to the stream of its kind in dequeue order.
type Writer struct {
	q             *queue.Queue
	streams       *storage.Streams
	logger        *logging.Logger
	onFatal       func(error)
	flushInterval time.Duration

	dirty bool
	done  chan struct{}

	mu  sync.Mutex
	err error

	accounts     atomic.Uint64
	transactions atomic.Uint64
}

func New(q *queue.Queue, streams *storage.Streams, logger *logging.Logger, opts ...Option) *Writer {
	w := &Writer{
		q:             q,
		streams:       streams,
		logger:        logger,
		flushInterval: defaultFlushInterval,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains the queue until it is closed and empty, then flushes and
// returns nil. A storage or encoding failure stops the loop and is
// returned; there is no retry. Cancelling ctx abandons whatever is still
// queued. Run must be called once.
func (w *Writer) Run(ctx context.Context) error {
	defer close(w.done)
	defer metrics.WriterUp.Set(0)
	metrics.WriterUp.Set(1)

	var tick <-chan time.Time
	if w.flushInterval > 0 {
		ticker := time.NewTicker(w.flushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	w.logger.InfoContext(ctx, "writer started")

	for {
		var (
			ev event.Event
			ok bool
		)

		select {
		case ev, ok = <-w.q.C():
		case <-ctx.Done():
			w.logger.WarnContext(ctx, "writer cancelled", logging.QueueDepth(w.q.Len()))
			return ctx.Err()
		default:
			// Queue is idle; make everything written so far visible.
			if err := w.flush(ctx); err != nil {
				return w.fail(ctx, err)
			}
			select {
			case ev, ok = <-w.q.C():
			case <-tick:
				continue
			case <-ctx.Done():
				w.logger.WarnContext(ctx, "writer cancelled", logging.QueueDepth(w.q.Len()))
				return ctx.Err()
			}
		}

		if !ok {
			if err := w.flush(ctx); err != nil {
				return w.fail(ctx, err)
			}
			w.logger.InfoContext(ctx, "writer drained",
				"accounts", w.accounts.Load(),
				"transactions", w.transactions.Load())
			return nil
		}

		if err := w.write(ctx, ev); err != nil {
			return w.fail(ctx, err)
		}

		select {
		case <-tick:
			if err := w.flush(ctx); err != nil {
				return w.fail(ctx, err)
			}
		default:
		}
	}
}

func (w *Writer) write(ctx context.Context, ev event.Event) error {
	kind := ev.Kind()
	sink := w.streams.For(kind)
	if sink == nil {
		return fmt.Errorf("no stream for %w %q", event.ErrUnknownKind, kind)
	}

	payload, err := event.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Key(), err)
	}

	if err := sink.Append(ctx, ev, payload); err != nil {
		return err
	}
	w.dirty = true

	switch kind {
	case event.KindAccount:
		w.accounts.Add(1)
	case event.KindTransaction:
		w.transactions.Add(1)
	}
	metrics.EventsWritten.WithLabelValues(string(kind)).Inc()
	metrics.BytesWritten.WithLabelValues(string(kind)).Add(float64(len(payload) + 1))
	metrics.QueueDepth.Set(float64(w.q.Len()))
	return nil
}

func (w *Writer) flush(ctx context.Context) error {
	if !w.dirty {
		return nil
	}
	w.dirty = false
	metrics.QueueDepth.Set(float64(w.q.Len()))
	return w.streams.FlushAll(ctx)
}

func (w *Writer) fail(ctx context.Context, err error) error {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()

	w.logger.ErrorContext(ctx, "writer stopped; no further events will be persisted",
		logging.Error(err),
		logging.QueueDepth(w.q.Len()))

	if w.onFatal != nil {
		w.onFatal(err)
	}
	return err
}

// Done is closed when Run returns.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// Err returns the error that stopped the writer, or nil.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Written returns how many events of kind have been appended.
func (w *Writer) Written(kind event.Kind) uint64 {
	switch kind {
	case event.KindAccount:
		return w.accounts.Load()
	case event.KindTransaction:
		return w.transactions.Load()
	default:
		return 0
	}
}
