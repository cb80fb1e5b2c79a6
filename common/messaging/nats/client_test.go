package nats

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"

	"github.com/telhawk-systems/fusion-engine/common/messaging"
)

func TestToNATS(t *testing.T) {
	msg := messaging.NewMessage(messaging.SubjectGeyserAccounts, []byte(`{"kind":"account"}`),
		messaging.WithHeader(messaging.HeaderMsgID, "account:Ldp:10:4"),
	)

	got := toNATS(msg)
	assert.Equal(t, messaging.SubjectGeyserAccounts, got.Subject)
	assert.Equal(t, []byte(`{"kind":"account"}`), got.Data)
	assert.Equal(t, "account:Ldp:10:4", got.Header.Get(nats.MsgIdHdr))
}

func TestToNATS_NoHeaders(t *testing.T) {
	got := toNATS(messaging.NewMessage("geyser.transactions", nil))
	assert.Nil(t, got.Header)
}

func TestFromHeaders(t *testing.T) {
	assert.Nil(t, fromHeaders(nil))

	h := nats.Header{}
	h.Set(messaging.HeaderRunID, "run-1")
	h.Add(messaging.HeaderKind, "account")
	h.Add(messaging.HeaderKind, "ignored")

	got := fromHeaders(h)
	assert.Equal(t, map[string]string{
		messaging.HeaderRunID: "run-1",
		messaging.HeaderKind:  "account",
	}, got)
}

func TestGeyserEventsStream(t *testing.T) {
	assert.Equal(t, "GEYSER_EVENTS", GeyserEventsStream.Name)
	assert.Equal(t, []string{"geyser.>"}, GeyserEventsStream.Subjects)
	assert.Equal(t, jetstream.LimitsPolicy, GeyserEventsStream.Retention)
	assert.Positive(t, GeyserEventsStream.Duplicates)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, nats.DefaultURL, cfg.URL)
	assert.Equal(t, -1, cfg.MaxReconnects)
	assert.Nil(t, cfg.Logger)
}
