package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"math/big"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultPostgresBatch = 256

const (
	insertAccountSQL = `INSERT INTO account_events
		(event_key, pubkey, owner, slot, write_version, lamports, is_startup, payload, run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_key) DO NOTHING`

	insertTransactionSQL = `INSERT INTO transaction_events
		(event_key, signature, slot, tx_index, is_vote, payload, run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_key) DO NOTHING`
)

// BatchSender is the part of *pgxpool.Pool the sink uses.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresSink inserts records into the per-kind event tables. Rows are
// batched and sent on Flush or when the batch fills. Re-inserting a key
// is a no-op.
type PostgresSink struct {
	db    BatchSender
	runID string
	batch *pgx.Batch
	limit int
}

func NewPostgresSink(db BatchSender, runID string) *PostgresSink {
	return &PostgresSink{
		db:    db,
		runID: runID,
		batch: &pgx.Batch{},
		limit: defaultPostgresBatch,
	}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Append(ctx context.Context, ev event.Event, payload []byte) error {
	switch e := ev.(type) {
	case *event.AccountEvent:
		s.batch.Queue(insertAccountSQL,
			e.Key(), e.Pubkey.String(), e.Owner.String(),
			numeric(e.Slot), numeric(e.WriteVersion), numeric(e.Lamports), e.IsStartup,
			payload, s.runID)
	case *event.TransactionEvent:
		var index pgtype.Numeric
		if e.Index != nil {
			index = numeric(*e.Index)
		}
		s.batch.Queue(insertTransactionSQL,
			e.Key(), e.Signature.String(), numeric(e.Slot), index, e.IsVote,
			payload, s.runID)
	default:
		return fmt.Errorf("%w: %T", event.ErrUnknownKind, ev)
	}

	if s.batch.Len() >= s.limit {
		return s.Flush(ctx)
	}
	return nil
}

func (s *PostgresSink) Flush(ctx context.Context) error {
	if s.batch.Len() == 0 {
		return nil
	}
	b := s.batch
	s.batch = &pgx.Batch{}

	if err := s.db.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("insert batch of %d: %w", b.Len(), err)
	}
	return nil
}

// numeric maps a u64 onto the NUMERIC(20,0) columns; BIGINT cannot hold
// the upper half of the range.
func numeric(v uint64) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).SetUint64(v), Valid: true}
}

// Close sends anything still pending. The pool is shared between the kind
// streams and closed by the owner.
func (s *PostgresSink) Close() error {
	return s.Flush(context.Background())
}

// Migrate applies the embedded schema migrations to the database at dsn.
func Migrate(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// newPostgresPool creates a pool and verifies the connection.
func newPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}
