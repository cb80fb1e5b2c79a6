// Package event defines the canonical representation of the notifications
// the plugin receives from the host, the translation from every supported
// host payload version, and the newline-delimited JSON record format used
// by the storage streams.
package event

import (
	"fmt"
	"strconv"
)

// Kind identifies the variant of an Event. Each kind is persisted to its
// own output stream.
type Kind string

const (
	KindAccount     Kind = "account"
	KindTransaction Kind = "transaction"
)

// Kinds lists every event kind in stream order.
var Kinds = []Kind{KindAccount, KindTransaction}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindAccount, KindTransaction:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Event is either an *AccountEvent or a *TransactionEvent. Events are
// immutable once constructed.
type Event interface {
	Kind() Kind
	// AtSlot returns the slot the host reported with the event.
	AtSlot() uint64
	// Key identifies the event for deduplication by downstream stores.
	Key() string

	sealed()
}

// AccountEvent is a snapshot of an account after a write.
type AccountEvent struct {
	Pubkey       Pubkey `json:"pubkey"`
	Lamports     uint64 `json:"lamports"`
	Owner        Pubkey `json:"owner"`
	Executable   bool   `json:"executable"`
	RentEpoch    uint64 `json:"rent_epoch"`
	Data         []byte `json:"data"`
	WriteVersion uint64 `json:"write_version"`
	// OriginSignature is nil when the host payload does not carry it or
	// the account was loaded during snapshot replay.
	OriginSignature *Signature `json:"origin_signature,omitempty"`
	Slot            uint64     `json:"slot"`
	IsStartup       bool       `json:"is_startup"`
}

func (*AccountEvent) Kind() Kind { return KindAccount }
func (e *AccountEvent) AtSlot() uint64 { return e.Slot }
func (*AccountEvent) sealed() {}

func (e *AccountEvent) Key() string {
	return string(KindAccount) + ":" + e.Pubkey.String() + ":" +
		strconv.FormatUint(e.Slot, 10) + ":" + strconv.FormatUint(e.WriteVersion, 10)
}

// TransactionEvent is a processed transaction. Transaction and StatusMeta
// are passed through from the host untouched.
type TransactionEvent struct {
	Slot        uint64    `json:"slot"`
	Signature   Signature `json:"signature"`
	IsVote      bool      `json:"is_vote"`
	Transaction []byte    `json:"transaction"`
	StatusMeta  []byte    `json:"status_meta"`
	// Index is the position of the transaction within its slot, nil when
	// the host payload does not carry it.
	Index *uint64 `json:"index,omitempty"`
}

func (*TransactionEvent) Kind() Kind { return KindTransaction }
func (e *TransactionEvent) AtSlot() uint64 { return e.Slot }
func (*TransactionEvent) sealed() {}

func (e *TransactionEvent) Key() string {
	return string(KindTransaction) + ":" + e.Signature.String()
}
