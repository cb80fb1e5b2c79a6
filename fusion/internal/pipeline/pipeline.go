// Package pipeline owns the ingestion queue, the storage streams and the
// writer goroutine for one plugin activation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/telhawk-systems/fusion-engine/common/logging"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/config"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/metrics"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/queue"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/storage"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/writer"
)

// ErrWriterFailed is returned by Submit once the writer has stopped on an
// error. Nothing submitted afterwards can be persisted.
var ErrWriterFailed = errors.New("writer failed")

// Stats is a point-in-time view of the pipeline.
type Stats struct {
	RunID               string
	QueueLen            int
	QueueCap            int
	Enqueued            uint64
	Dropped             uint64
	WrittenAccounts     uint64
	WrittenTransactions uint64
	WriterErr           error
}

// Pipeline is the process-wide context: exactly one queue and one writer
// per instance. Submit is safe for concurrent use.
type Pipeline struct {
	runID   string
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *logging.Logger
	queue   *queue.Queue
	streams *storage.Streams
	writer  *writer.Writer

	failed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New opens the configured storage streams and starts the writer. ctx
// bounds only the setup; the writer runs until Close.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Pipeline, error) {
	policy, err := queue.ParsePolicy(cfg.Queue.Overflow)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)

	streams, err := storage.Open(ctx, cfg.Storage, runID, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return start(ctx, cfg, policy, runID, streams, logger), nil
}

func start(ctx context.Context, cfg *config.Config, policy queue.Policy, runID string, streams *storage.Streams, logger *logging.Logger) *Pipeline {
	runCtx, cancel := context.WithCancel(logging.ContextWithRunID(context.Background(), runID))
	p := &Pipeline{
		runID:   runID,
		ctx:     runCtx,
		cancel:  cancel,
		logger:  logger,
		streams: streams,
	}

	dropReason := metrics.ReasonQueueFull
	if policy == queue.PolicyDropOldest {
		dropReason = metrics.ReasonEvicted
	}
	blockTimeout := cfg.Queue.BlockTimeout
	if blockTimeout <= 0 {
		blockTimeout = config.DefaultBlockTimeout
	}
	p.queue = queue.New(cfg.Queue.Capacity, policy,
		queue.WithBlockTimeout(blockTimeout),
		queue.WithOnDrop(func(ev event.Event) {
			metrics.EventsDropped.WithLabelValues(string(ev.Kind()), dropReason).Inc()
		}),
	)
	metrics.QueueCapacity.Set(float64(p.queue.Cap()))

	p.writer = writer.New(p.queue, streams, logger, writer.WithOnFatal(p.writerFailed))
	go func() {
		_ = p.writer.Run(runCtx)
	}()

	logger.InfoContext(ctx, "pipeline started",
		"queue_capacity", p.queue.Cap(),
		"overflow", string(policy),
		"backends", cfg.Storage.Backends)

	return p
}

// writerFailed runs on the writer goroutine. Closing the queue releases
// producers blocked on a queue nobody drains any more.
func (p *Pipeline) writerFailed(error) {
	p.failed.Store(true)
	p.queue.Close()
}

// Submit hands ev to the writer without waiting on I/O. It returns
// queue.ErrQueueFull when the overflow policy dropped the event,
// ErrWriterFailed after a writer failure and queue.ErrClosed after Close.
func (p *Pipeline) Submit(ev event.Event) error {
	kind := string(ev.Kind())

	if p.failed.Load() {
		metrics.EventsDropped.WithLabelValues(kind, metrics.ReasonWriterFailed).Inc()
		return ErrWriterFailed
	}

	err := p.queue.Enqueue(ev)
	switch {
	case err == nil:
		metrics.EventsEnqueued.WithLabelValues(kind).Inc()
		return nil
	case errors.Is(err, queue.ErrClosed):
		if p.failed.Load() {
			metrics.EventsDropped.WithLabelValues(kind, metrics.ReasonWriterFailed).Inc()
			return ErrWriterFailed
		}
		metrics.EventsDropped.WithLabelValues(kind, metrics.ReasonClosed).Inc()
		return err
	default:
		return err
	}
}

// Close stops intake and waits for the writer to drain until ctx expires,
// then closes the storage streams. Events still queued at the deadline are
// lost. Safe to call more than once; later calls return the first result.
func (p *Pipeline) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.queue.Close()

		var errs []error
		select {
		case <-p.writer.Done():
		case <-ctx.Done():
			p.logger.WarnContext(p.ctx, "shutdown deadline reached before the queue drained",
				logging.QueueDepth(p.queue.Len()))
			p.cancel()
			<-p.writer.Done()
			errs = append(errs, fmt.Errorf("drain: %w", ctx.Err()))
		}
		p.cancel()

		if err := p.writer.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrWriterFailed, err))
		}
		if err := p.streams.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
		p.closeErr = errors.Join(errs...)

		stats := p.Stats()
		p.logger.InfoContext(p.ctx, "pipeline stopped",
			"enqueued", stats.Enqueued,
			logging.Dropped(stats.Dropped),
			"written_accounts", stats.WrittenAccounts,
			"written_transactions", stats.WrittenTransactions)
	})
	return p.closeErr
}

// RunID identifies this activation in logs, headers and stored rows.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Failed reports whether the writer stopped on an error.
func (p *Pipeline) Failed() bool {
	return p.failed.Load()
}

func (p *Pipeline) Stats() Stats {
	qs := p.queue.Stats()
	return Stats{
		RunID:               p.runID,
		QueueLen:            qs.Len,
		QueueCap:            qs.Cap,
		Enqueued:            qs.Enqueued,
		Dropped:             qs.Dropped,
		WrittenAccounts:     p.writer.Written(event.KindAccount),
		WrittenTransactions: p.writer.Written(event.KindTransaction),
		WriterErr:           p.writer.Err(),
	}
}
