package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/fusion-engine/common/logging"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/metrics"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/queue"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/storage"
)

// recordingSink keeps appended records and counts flushes. Safe for the
// test goroutine to inspect while the writer runs.
type recordingSink struct {
	mu        sync.Mutex
	records   []event.Event
	payloads  [][]byte
	flushed   int
	flushes   int
	appendErr error
	flushErr  error
	closed    bool
}

func (s *recordingSink) Name() string { return "memory" }

func (s *recordingSink) Append(_ context.Context, ev event.Event, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.records = append(s.records, ev)
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *recordingSink) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	s.flushed = len(s.records)
	return s.flushErr
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) snapshot() (records []event.Event, flushed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.records...), s.flushed
}

func setup(t *testing.T, opts ...Option) (*queue.Queue, *recordingSink, *recordingSink, *Writer) {
	t.Helper()
	q := queue.New(64, queue.PolicyBlock)
	accounts := &recordingSink{}
	transactions := &recordingSink{}
	streams := storage.NewStreams(accounts, transactions)
	return q, accounts, transactions, New(q, streams, logging.Discard(), opts...)
}

func TestWriter_RoutesByKindInOrder(t *testing.T) {
	q, accounts, transactions, w := setup(t)

	for slot := uint64(1); slot <= 3; slot++ {
		require.NoError(t, q.Enqueue(&event.AccountEvent{Pubkey: event.Pubkey{1}, Slot: slot}))
		require.NoError(t, q.Enqueue(&event.TransactionEvent{Slot: slot}))
	}
	q.Close()

	require.NoError(t, w.Run(context.Background()))

	accts, _ := accounts.snapshot()
	txs, _ := transactions.snapshot()
	require.Len(t, accts, 3)
	require.Len(t, txs, 3)
	for i := range accts {
		assert.Equal(t, uint64(i+1), accts[i].AtSlot())
		assert.Equal(t, event.KindAccount, accts[i].Kind())
		assert.Equal(t, uint64(i+1), txs[i].AtSlot())
		assert.Equal(t, event.KindTransaction, txs[i].Kind())
	}

	assert.Equal(t, uint64(3), w.Written(event.KindAccount))
	assert.Equal(t, uint64(3), w.Written(event.KindTransaction))
	assert.Zero(t, w.Written(event.Kind("block")))
	assert.NoError(t, w.Err())

	select {
	case <-w.Done():
	default:
		t.Fatal("Done not closed after Run returned")
	}
}

func TestWriter_PayloadIsEncodedRecord(t *testing.T) {
	q, accounts, _, w := setup(t)

	ev := &event.AccountEvent{Pubkey: event.Pubkey{1, 2, 3}, Lamports: 500, Slot: 10, IsStartup: true}
	require.NoError(t, q.Enqueue(ev))
	q.Close()
	require.NoError(t, w.Run(context.Background()))

	want, err := event.Marshal(ev)
	require.NoError(t, err)
	require.Len(t, accounts.payloads, 1)
	assert.Equal(t, want, accounts.payloads[0])
}

func TestWriter_FlushesWhenIdle(t *testing.T) {
	q, accounts, _, w := setup(t, WithFlushInterval(0))

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(context.Background()) }()

	require.NoError(t, q.Enqueue(&event.AccountEvent{Slot: 1}))
	require.NoError(t, q.Enqueue(&event.AccountEvent{Slot: 2}))

	// Without closing the queue, everything written so far must be flushed
	// once the writer runs out of work.
	assert.Eventually(t, func() bool {
		_, flushed := accounts.snapshot()
		return flushed == 2
	}, time.Second, 5*time.Millisecond)

	q.Close()
	require.NoError(t, <-errCh)
}

func TestWriter_DrainsBeforeReturning(t *testing.T) {
	q, accounts, _, w := setup(t)

	for slot := uint64(0); slot < 50; slot++ {
		require.NoError(t, q.Enqueue(&event.AccountEvent{Slot: slot}))
	}
	q.Close()

	require.NoError(t, w.Run(context.Background()))

	records, flushed := accounts.snapshot()
	assert.Len(t, records, 50)
	assert.Equal(t, 50, flushed)
}

func TestWriter_AppendFailureIsFatal(t *testing.T) {
	boom := errors.New("no space left on device")

	var fatal error
	q, accounts, _, w := setup(t, WithOnFatal(func(err error) { fatal = err }))
	accounts.appendErr = boom

	require.NoError(t, q.Enqueue(&event.AccountEvent{Slot: 1}))
	require.NoError(t, q.Enqueue(&event.AccountEvent{Slot: 2}))

	err := w.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, w.Err(), boom)
	assert.ErrorIs(t, fatal, boom)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.WriterUp))

	// The writer stopped at the first failure.
	assert.Equal(t, 1, q.Len())
	assert.Zero(t, w.Written(event.KindAccount))
}

func TestWriter_FlushFailureIsFatal(t *testing.T) {
	boom := errors.New("fsync failed")
	q, _, transactions, w := setup(t)
	transactions.flushErr = boom

	require.NoError(t, q.Enqueue(&event.TransactionEvent{Slot: 7}))

	err := w.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, w.Err(), boom)
}

func TestWriter_Cancelled(t *testing.T) {
	_, _, _, w := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("writer did not stop on cancellation")
	}
	assert.NoError(t, w.Err(), "cancellation is not a writer failure")
}

func TestWriter_PeriodicFlushUnderLoad(t *testing.T) {
	q, accounts, _, w := setup(t, WithFlushInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	// Keep the queue busy for a while; the ticker must still flush.
	stop := time.After(100 * time.Millisecond)
	slot := uint64(0)
loop:
	for {
		select {
		case <-stop:
			break loop
		default:
			slot++
			_ = q.Enqueue(&event.AccountEvent{Slot: slot})
		}
	}

	accounts.mu.Lock()
	flushes := accounts.flushes
	accounts.mu.Unlock()
	assert.Greater(t, flushes, 0)

	q.Close()
	<-w.Done()
}
