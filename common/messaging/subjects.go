package messaging

// Subjects carrying geyser events, one per event kind.
// Follow the pattern: {domain}.{resource}
const (
	SubjectGeyserAccounts     = "geyser.accounts"
	SubjectGeyserTransactions = "geyser.transactions"

	// SubjectGeyserAll matches every geyser subject.
	SubjectGeyserAll = "geyser.>"
)

// Header keys set on published events.
const (
	// HeaderMsgID is the JetStream deduplication header.
	HeaderMsgID = "Nats-Msg-Id"
	HeaderRunID = "Fusion-Run-Id"
	HeaderKind  = "Fusion-Kind"
	HeaderSlot  = "Fusion-Slot"
)

// GeyserSubject returns the default subject for an event kind
// ("account" or "transaction"). Unknown kinds map under geyser.other.
func GeyserSubject(kind string) string {
	switch kind {
	case "account":
		return SubjectGeyserAccounts
	case "transaction":
		return SubjectGeyserTransactions
	default:
		return "geyser.other." + kind
	}
}
