package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/telhawk-systems/fusion-engine/common/messaging"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
)

// JetStreamSink publishes each record to a JetStream subject and waits for
// the stream acknowledgment. The event key is sent as Nats-Msg-Id so the
// server drops duplicates inside its dedupe window.
type JetStreamSink struct {
	pub     messaging.Publisher
	subject string
	runID   string
	timeout time.Duration
}

// NewJetStreamSink creates a sink publishing to subject. timeout bounds a
// single publish; 0 relies on ctx alone.
func NewJetStreamSink(pub messaging.Publisher, subject, runID string, timeout time.Duration) *JetStreamSink {
	return &JetStreamSink{
		pub:     pub,
		subject: subject,
		runID:   runID,
		timeout: timeout,
	}
}

func (s *JetStreamSink) Name() string { return "jetstream" }

func (s *JetStreamSink) Append(ctx context.Context, ev event.Event, payload []byte) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	msg := messaging.NewMessage(s.subject, payload,
		messaging.WithHeader(messaging.HeaderMsgID, ev.Key()),
		messaging.WithHeader(messaging.HeaderRunID, s.runID),
		messaging.WithHeader(messaging.HeaderKind, string(ev.Kind())),
		messaging.WithHeader(messaging.HeaderSlot, strconv.FormatUint(ev.AtSlot(), 10)),
	)
	return s.pub.PublishMsg(ctx, msg)
}

// Flush is a no-op; every Append is acknowledged before it returns.
func (s *JetStreamSink) Flush(context.Context) error { return nil }

// Close is a no-op; the connection is shared and closed by the owner.
func (s *JetStreamSink) Close() error { return nil }
