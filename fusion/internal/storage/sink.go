// Package storage provides the per-kind output streams the writer appends
// encoded records to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/metrics"
)

// Sink is an append-only destination for the records of one event kind.
// A sink is owned by a single writer goroutine and is not safe for
// concurrent use.
type Sink interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Append persists one encoded record. payload has no trailing
	// delimiter; sinks that need one add it. Sinks may keep payload until
	// the next Flush, so callers must not reuse it.
	Append(ctx context.Context, ev event.Event, payload []byte) error

	// Flush pushes buffered records to the backend.
	Flush(ctx context.Context) error

	Close() error
}

// Streams holds one sink per event kind.
type Streams struct {
	sinks   map[event.Kind]Sink
	closers []func() error
}

// NewStreams pairs the account and transaction sinks. closers release
// resources shared by both sinks (connections, pools) and run after the
// sinks are closed, in reverse order.
func NewStreams(accounts, transactions Sink, closers ...func() error) *Streams {
	return &Streams{
		sinks: map[event.Kind]Sink{
			event.KindAccount:     accounts,
			event.KindTransaction: transactions,
		},
		closers: closers,
	}
}

// For returns the sink for kind, or nil for an unknown kind.
func (s *Streams) For(kind event.Kind) Sink {
	return s.sinks[kind]
}

// FlushAll flushes every stream and reports all failures.
func (s *Streams) FlushAll(ctx context.Context) error {
	var errs []error
	for _, kind := range event.Kinds {
		if err := s.sinks[kind].Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush %s stream: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes and closes every stream, then releases shared resources.
func (s *Streams) Close() error {
	var errs []error
	for _, kind := range event.Kinds {
		if err := s.sinks[kind].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s stream: %w", kind, err))
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tee fans every call out to sinks in order. The first Append error
// aborts the fan-out and is returned wrapped with the failing backend name.
func Tee(sinks ...Sink) Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return tee(sinks)
}

type tee []Sink

func (t tee) Name() string {
	names := make([]string, len(t))
	for i, s := range t {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (t tee) Append(ctx context.Context, ev event.Event, payload []byte) error {
	for _, s := range t {
		if err := s.Append(ctx, ev, payload); err != nil {
			return err
		}
	}
	return nil
}

func (t tee) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range t {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t tee) Close() error {
	var errs []error
	for _, s := range t {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// instrumented records per-backend latency and errors, and prefixes errors
// with the backend name.
type instrumented struct {
	Sink
}

func instrument(s Sink) Sink {
	return instrumented{Sink: s}
}

func (s instrumented) Append(ctx context.Context, ev event.Event, payload []byte) error {
	start := time.Now()
	err := s.Sink.Append(ctx, ev, payload)
	metrics.AppendDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageErrors.WithLabelValues(s.Name()).Inc()
		return fmt.Errorf("%s: append %s: %w", s.Name(), ev.Kind(), err)
	}
	return nil
}

func (s instrumented) Flush(ctx context.Context) error {
	start := time.Now()
	err := s.Sink.Flush(ctx)
	metrics.FlushDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageErrors.WithLabelValues(s.Name()).Inc()
		return fmt.Errorf("%s: flush: %w", s.Name(), err)
	}
	return nil
}

func (s instrumented) Close() error {
	if err := s.Sink.Close(); err != nil {
		return fmt.Errorf("%s: close: %w", s.Name(), err)
	}
	return nil
}
