package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/telhawk-systems/fusion-engine/common/logging"
	natsclient "github.com/telhawk-systems/fusion-engine/common/messaging/nats"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/config"
)

// pair is the account and transaction sink of one backend.
type pair struct {
	accounts     Sink
	transactions Sink
}

// Open builds the configured backends in the order they are listed and
// combines them into one stream per kind. On failure everything opened so
// far is closed again.
func Open(ctx context.Context, cfg config.StorageConfig, runID string, logger *logging.Logger) (*Streams, error) {
	var (
		pairs   []pair
		closers []func() error
	)
	cleanup := func() {
		for _, p := range pairs {
			_ = p.accounts.Close()
			_ = p.transactions.Close()
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	for _, backend := range cfg.Backends {
		p, closer, err := openBackend(ctx, backend, cfg, runID)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("open %s backend: %w", backend, err)
		}
		pairs = append(pairs, pair{
			accounts:     instrument(p.accounts),
			transactions: instrument(p.transactions),
		})
		if closer != nil {
			closers = append(closers, closer)
		}
		logger.Info("storage backend opened", logging.Backend(backend))
	}

	if len(pairs) == 0 {
		return nil, errors.New("no storage backends configured")
	}

	accounts := make([]Sink, len(pairs))
	transactions := make([]Sink, len(pairs))
	for i, p := range pairs {
		accounts[i] = p.accounts
		transactions[i] = p.transactions
	}
	return NewStreams(Tee(accounts...), Tee(transactions...), closers...), nil
}

func openBackend(ctx context.Context, backend string, cfg config.StorageConfig, runID string) (pair, func() error, error) {
	switch backend {
	case config.BackendFile:
		return openFiles(cfg.File)

	case config.BackendRedis:
		rc := cfg.Redis
		client, err := newRedisClient(ctx, rc.Addr, rc.Username, rc.Password, rc.DB)
		if err != nil {
			return pair{}, nil, err
		}
		return pair{
			accounts:     NewRedisStreamSink(client, rc.AccountsStream, rc.MaxLen),
			transactions: NewRedisStreamSink(client, rc.TransactionsStream, rc.MaxLen),
		}, client.Close, nil

	case config.BackendJetStream:
		jc := cfg.JetStream
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = jc.URL
		natsCfg.Name = jc.Name
		js, err := natsclient.NewJetStreamClient(natsCfg)
		if err != nil {
			return pair{}, nil, err
		}
		stream := natsclient.GeyserEventsStream
		stream.Name = jc.Stream
		stream.Subjects = []string{jc.AccountsSubject, jc.TransactionsSubject}
		if _, err := js.CreateOrUpdateStream(ctx, stream); err != nil {
			_ = js.Close()
			return pair{}, nil, err
		}
		return pair{
			accounts:     NewJetStreamSink(js, jc.AccountsSubject, runID, jc.Timeout),
			transactions: NewJetStreamSink(js, jc.TransactionsSubject, runID, jc.Timeout),
		}, js.Drain, nil

	case config.BackendPostgres:
		pc := cfg.Postgres
		if pc.Migrate {
			if err := Migrate(pc.DSN); err != nil {
				return pair{}, nil, err
			}
		}
		pool, err := newPostgresPool(ctx, pc.DSN)
		if err != nil {
			return pair{}, nil, err
		}
		return pair{
			accounts:     NewPostgresSink(pool, runID),
			transactions: NewPostgresSink(pool, runID),
		}, func() error { pool.Close(); return nil }, nil

	case config.BackendOpenSearch:
		oc := cfg.OpenSearch
		client, err := newOpenSearchClient(oc)
		if err != nil {
			return pair{}, nil, err
		}
		return pair{
			accounts:     NewOpenSearchSink(client, oc.IndexPrefix+"-accounts"),
			transactions: NewOpenSearchSink(client, oc.IndexPrefix+"-transactions"),
		}, nil, nil

	default:
		return pair{}, nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func openFiles(fc config.FileConfig) (pair, func() error, error) {
	opts := FileOptions{
		Truncate:   fc.Truncate,
		BufferSize: fc.BufferSize,
		Sync:       fc.Sync,
	}

	accounts, err := NewFileSink(filepath.Join(fc.Dir, fc.Accounts), opts)
	if err != nil {
		return pair{}, nil, err
	}
	transactions, err := NewFileSink(filepath.Join(fc.Dir, fc.Transactions), opts)
	if err != nil {
		_ = accounts.Close()
		return pair{}, nil, err
	}
	return pair{accounts: accounts, transactions: transactions}, nil, nil
}
