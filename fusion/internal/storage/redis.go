package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
)

const defaultRedisBatch = 512

// RedisStreamSink mirrors records into a Redis stream with XADD. Commands
// are pipelined and sent on Flush or when the batch fills.
type RedisStreamSink struct {
	pipe    redis.Pipeliner
	stream  string
	maxLen  int64
	batch   int
	pending int
}

// NewRedisStreamSink creates a sink appending to stream. maxLen > 0 caps
// the stream length approximately (MAXLEN ~).
func NewRedisStreamSink(client redis.Cmdable, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{
		pipe:   client.Pipeline(),
		stream: stream,
		maxLen: maxLen,
		batch:  defaultRedisBatch,
	}
}

func (s *RedisStreamSink) Name() string { return "redis" }

func (s *RedisStreamSink) Append(ctx context.Context, ev event.Event, payload []byte) error {
	s.pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: []any{
			"kind", string(ev.Kind()),
			"slot", ev.AtSlot(),
			"key", ev.Key(),
			"payload", payload,
		},
	})
	s.pending++

	if s.pending >= s.batch {
		return s.Flush(ctx)
	}
	return nil
}

func (s *RedisStreamSink) Flush(ctx context.Context) error {
	if s.pending == 0 {
		return nil
	}
	s.pending = 0
	if _, err := s.pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// Close sends anything still pending. The client is shared between the
// kind streams and closed by the owner.
func (s *RedisStreamSink) Close() error {
	return s.Flush(context.Background())
}

// newRedisClient connects and verifies the server is reachable.
func newRedisClient(ctx context.Context, addr, username, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}
