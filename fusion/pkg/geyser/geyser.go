// Package geyser defines the callback surface a validator host uses to
// drive an account and transaction notification plugin, together with the
// versioned payloads it passes on each callback.
package geyser

import "fmt"

// SignatureLen is the byte length of a transaction signature.
const SignatureLen = 64

// Signature is a transaction signature as produced by the host.
type Signature [SignatureLen]byte

// SlotStatus is the commitment level reported for a slot.
type SlotStatus int

const (
	SlotProcessed SlotStatus = iota
	SlotConfirmed
	SlotRooted
)

func (s SlotStatus) String() string {
	switch s {
	case SlotProcessed:
		return "processed"
	case SlotConfirmed:
		return "confirmed"
	case SlotRooted:
		return "rooted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Plugin is implemented by plugins loaded into the host. Every method is
// invoked synchronously on a host thread and must return quickly.
type Plugin interface {
	// Name identifies the plugin in host logs.
	Name() string

	// OnLoad is called once after the plugin is loaded. configFile is the
	// path the operator configured for the plugin. A returned error aborts
	// plugin activation.
	OnLoad(configFile string) error

	// OnUnload is advisory; the host does not call it on abrupt termination.
	OnUnload()

	UpdateAccount(account AccountInfoVersions, slot uint64, isStartup bool) error
	NotifyTransaction(transaction TransactionInfoVersions, slot uint64) error
	NotifyBlockMetadata(block BlockInfoVersions) error
	UpdateSlotStatus(slot uint64, parent *uint64, status SlotStatus) error
	NotifyEndOfStartup() error

	AccountDataNotificationsEnabled() bool
	TransactionNotificationsEnabled() bool
}
