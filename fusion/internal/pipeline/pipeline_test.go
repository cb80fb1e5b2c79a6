package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/fusion-engine/common/logging"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/config"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/queue"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/storage"
)

func fileConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Backends = []string{config.BackendFile}
	cfg.Storage.File.Dir = t.TempDir()
	return cfg
}

func readStream(t *testing.T, path string) []event.Event {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []event.Event
	dec := event.NewDecoder(f)
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

// stubSink is an in-memory sink whose Append can be made to fail or to
// block until released.
type stubSink struct {
	mu      sync.Mutex
	records []event.Event
	err     error

	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stubSink) Name() string { return "stub" }

func (s *stubSink) Append(ctx context.Context, ev event.Event, _ []byte) error {
	if s.started != nil {
		s.once.Do(func() { close(s.started) })
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, ev)
	return nil
}

func (s *stubSink) Flush(context.Context) error { return nil }
func (s *stubSink) Close() error { return nil }

func (s *stubSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func startWith(t *testing.T, cfg *config.Config, accounts, transactions storage.Sink) *Pipeline {
	t.Helper()
	policy, err := queue.ParsePolicy(cfg.Queue.Overflow)
	require.NoError(t, err)
	return start(context.Background(), cfg, policy, uuid.NewString(),
		storage.NewStreams(accounts, transactions), logging.Discard())
}

func TestNew_AccountScenario(t *testing.T) {
	cfg := fileConfig(t)
	p, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)

	require.NoError(t, p.Submit(&event.AccountEvent{
		Pubkey:    event.Pubkey{1, 2, 3},
		Lamports:  500,
		Slot:      10,
		IsStartup: true,
	}))
	require.NoError(t, p.Close(context.Background()))

	accounts := readStream(t, filepath.Join(cfg.Storage.File.Dir, cfg.Storage.File.Accounts))
	require.Len(t, accounts, 1)
	got := accounts[0].(*event.AccountEvent)
	assert.Equal(t, event.Pubkey{1, 2, 3}, got.Pubkey)
	assert.Equal(t, uint64(500), got.Lamports)
	assert.Equal(t, uint64(10), got.Slot)
	assert.True(t, got.IsStartup)
	assert.Nil(t, got.OriginSignature)

	assert.Empty(t, readStream(t, filepath.Join(cfg.Storage.File.Dir, cfg.Storage.File.Transactions)))
}

func TestNew_TransactionScenario(t *testing.T) {
	cfg := fileConfig(t)
	p, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)

	index := uint64(3)
	require.NoError(t, p.Submit(&event.TransactionEvent{
		Slot:  7,
		Index: &index,
	}))
	require.NoError(t, p.Close(context.Background()))

	txs := readStream(t, filepath.Join(cfg.Storage.File.Dir, cfg.Storage.File.Transactions))
	require.Len(t, txs, 1)
	got := txs[0].(*event.TransactionEvent)
	assert.Equal(t, uint64(7), got.Slot)
	assert.Equal(t, event.Signature{}, got.Signature)
	assert.False(t, got.IsVote)
	require.NotNil(t, got.Index)
	assert.Equal(t, uint64(3), *got.Index)

	assert.Empty(t, readStream(t, filepath.Join(cfg.Storage.File.Dir, cfg.Storage.File.Accounts)))
}

func TestNew_InvalidOverflow(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Queue.Overflow = "spill"

	_, err := New(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}

func TestNew_StorageError(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Storage.Backends = []string{"tape"}

	_, err := New(context.Background(), cfg, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open storage")
}

func TestSubmit_SingleProducerOrder(t *testing.T) {
	cfg := fileConfig(t)
	p, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)

	const n = 500
	for i := uint64(0); i < n; i++ {
		require.NoError(t, p.Submit(&event.AccountEvent{Pubkey: event.Pubkey{7}, Slot: i}))
	}
	require.NoError(t, p.Close(context.Background()))

	got := readStream(t, filepath.Join(cfg.Storage.File.Dir, cfg.Storage.File.Accounts))
	require.Len(t, got, n)
	for i, ev := range got {
		assert.Equal(t, uint64(i), ev.AtSlot())
	}
}

func TestSubmit_ConcurrentProducers(t *testing.T) {
	const (
		producers   = 8
		perProducer = 500
	)
	cfg := fileConfig(t)
	cfg.Queue.Capacity = 32
	p, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < producers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := uint64(0); i < perProducer; i++ {
				var err error
				if i%2 == 0 {
					err = p.Submit(&event.AccountEvent{Pubkey: event.Pubkey{byte(w)}, WriteVersion: uint64(w), Slot: i})
				} else {
					idx := uint64(w)
					err = p.Submit(&event.TransactionEvent{Slot: i, Index: &idx})
				}
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, p.Close(context.Background()))

	stats := p.Stats()
	assert.Equal(t, uint64(producers*perProducer), stats.Enqueued)
	assert.Equal(t, uint64(producers*perProducer/2), stats.WrittenAccounts)
	assert.Equal(t, uint64(producers*perProducer/2), stats.WrittenTransactions)

	// Every event exactly once, in submission order per producer.
	next := make([]uint64, producers)
	for _, ev := range readStream(t, filepath.Join(cfg.Storage.File.Dir, cfg.Storage.File.Accounts)) {
		a := ev.(*event.AccountEvent)
		require.Equal(t, next[a.WriteVersion], a.Slot, "producer %d", a.WriteVersion)
		next[a.WriteVersion] += 2
	}
	for w := range next {
		assert.Equal(t, uint64(perProducer), next[w])
	}

	next = make([]uint64, producers)
	for w := range next {
		next[w] = 1
	}
	for _, ev := range readStream(t, filepath.Join(cfg.Storage.File.Dir, cfg.Storage.File.Transactions)) {
		tx := ev.(*event.TransactionEvent)
		require.Equal(t, next[*tx.Index], tx.Slot, "producer %d", *tx.Index)
		next[*tx.Index] += 2
	}
	for w := range next {
		assert.Equal(t, uint64(perProducer+1), next[w])
	}
}

func TestSubmit_WriterFailure(t *testing.T) {
	cfg := config.Default()
	failing := &stubSink{err: errors.New("disk full")}
	p := startWith(t, cfg, failing, &stubSink{})

	require.NoError(t, p.Submit(&event.AccountEvent{Pubkey: event.Pubkey{1}, Slot: 1}))
	require.Eventually(t, p.Failed, time.Second, 5*time.Millisecond)

	err := p.Submit(&event.AccountEvent{Pubkey: event.Pubkey{1}, Slot: 2})
	assert.ErrorIs(t, err, ErrWriterFailed)
	err = p.Submit(&event.TransactionEvent{Slot: 2})
	assert.ErrorIs(t, err, ErrWriterFailed)

	assert.EqualError(t, p.Stats().WriterErr, "disk full")

	err = p.Close(context.Background())
	assert.ErrorIs(t, err, ErrWriterFailed)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSubmit_DropNewest(t *testing.T) {
	cfg := config.Default()
	cfg.Queue.Capacity = 1
	cfg.Queue.Overflow = config.OverflowDropNewest

	sink := &stubSink{started: make(chan struct{}), release: make(chan struct{})}
	p := startWith(t, cfg, sink, &stubSink{})

	// The writer picks up the first event and blocks in Append.
	require.NoError(t, p.Submit(&event.AccountEvent{Slot: 1}))
	<-sink.started

	require.NoError(t, p.Submit(&event.AccountEvent{Slot: 2}))
	err := p.Submit(&event.AccountEvent{Slot: 3})
	assert.ErrorIs(t, err, queue.ErrQueueFull)
	assert.Equal(t, uint64(1), p.Stats().Dropped)

	close(sink.release)
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, 2, sink.len())
}

func TestSubmit_StalledSinkDoesNotHangProducer(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "defaults", mutate: func(*config.Config) {}},
		{name: "zero block timeout", mutate: func(c *config.Config) { c.Queue.BlockTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Queue.Capacity = 1
			tt.mutate(cfg)
			require.Equal(t, config.OverflowBlock, cfg.Queue.Overflow)

			sink := &stubSink{started: make(chan struct{}), release: make(chan struct{})}
			p := startWith(t, cfg, sink, &stubSink{})
			defer func() {
				close(sink.release)
				_ = p.Close(context.Background())
			}()

			require.NoError(t, p.Submit(&event.AccountEvent{Slot: 1}))
			<-sink.started
			require.NoError(t, p.Submit(&event.AccountEvent{Slot: 2}))

			done := make(chan error, 1)
			go func() {
				done <- p.Submit(&event.AccountEvent{Slot: 3})
			}()

			select {
			case err := <-done:
				assert.ErrorIs(t, err, queue.ErrQueueFull)
			case <-time.After(2 * time.Second):
				t.Fatal("Submit still waiting on a stalled sink")
			}
			assert.Equal(t, uint64(1), p.Stats().Dropped)
		})
	}
}

func TestClose_Deadline(t *testing.T) {
	cfg := config.Default()
	sink := &stubSink{started: make(chan struct{}), release: make(chan struct{})}
	p := startWith(t, cfg, sink, &stubSink{})

	require.NoError(t, p.Submit(&event.AccountEvent{Slot: 1}))
	require.NoError(t, p.Submit(&event.AccountEvent{Slot: 2}))
	<-sink.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose_Idempotent(t *testing.T) {
	cfg := fileConfig(t)
	p, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)

	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))

	err = p.Submit(&event.AccountEvent{Slot: 1})
	assert.ErrorIs(t, err, queue.ErrClosed)
	assert.False(t, p.Failed())
}

func TestRunIDAndStats(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Queue.Capacity = 128
	p, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer p.Close(context.Background())

	_, err = uuid.Parse(p.RunID())
	require.NoError(t, err)

	stats := p.Stats()
	assert.Equal(t, p.RunID(), stats.RunID)
	assert.Equal(t, 128, stats.QueueCap)
	assert.Zero(t, stats.Enqueued)
	assert.NoError(t, stats.WriterErr)
}
