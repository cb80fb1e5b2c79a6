package event

import (
	"bytes"
	"fmt"

	"github.com/telhawk-systems/fusion-engine/fusion/pkg/geyser"
)

// Host payload versions are only known to this file. Supporting a new
// version means adding a case here.

// FromAccountUpdate builds an AccountEvent from any supported host account
// payload. Byte slices are copied because the host reuses its buffers once
// the callback returns.
func FromAccountUpdate(slot uint64, isStartup bool, account geyser.AccountInfoVersions) *AccountEvent {
	switch v := account.(type) {
	case *geyser.ReplicaAccountInfoV1:
		return &AccountEvent{
			Pubkey:       pubkeyOf(v.Pubkey),
			Lamports:     v.Lamports,
			Owner:        pubkeyOf(v.Owner),
			Executable:   v.Executable,
			RentEpoch:    v.RentEpoch,
			Data:         bytes.Clone(v.Data),
			WriteVersion: v.WriteVersion,
			Slot:         slot,
			IsStartup:    isStartup,
		}
	case *geyser.ReplicaAccountInfoV2:
		var origin *Signature
		if v.TxnSignature != nil {
			sig := Signature(*v.TxnSignature)
			origin = &sig
		}
		return &AccountEvent{
			Pubkey:          pubkeyOf(v.Pubkey),
			Lamports:        v.Lamports,
			Owner:           pubkeyOf(v.Owner),
			Executable:      v.Executable,
			RentEpoch:       v.RentEpoch,
			Data:            bytes.Clone(v.Data),
			WriteVersion:    v.WriteVersion,
			OriginSignature: origin,
			Slot:            slot,
			IsStartup:       isStartup,
		}
	default:
		// The version interface is sealed in the geyser package, so this is
		// only reachable with a nil payload or a build mixing geyser versions.
		panic(fmt.Sprintf("event: unsupported account payload %T", account))
	}
}

// FromTransactionUpdate builds a TransactionEvent from any supported host
// transaction payload.
func FromTransactionUpdate(slot uint64, transaction geyser.TransactionInfoVersions) *TransactionEvent {
	switch v := transaction.(type) {
	case *geyser.ReplicaTransactionInfoV1:
		return &TransactionEvent{
			Slot:        slot,
			Signature:   Signature(v.Signature),
			IsVote:      v.IsVote,
			Transaction: bytes.Clone(v.Transaction),
			StatusMeta:  bytes.Clone(v.TransactionStatusMeta),
		}
	case *geyser.ReplicaTransactionInfoV2:
		index := v.Index
		return &TransactionEvent{
			Slot:        slot,
			Signature:   Signature(v.Signature),
			IsVote:      v.IsVote,
			Transaction: bytes.Clone(v.Transaction),
			StatusMeta:  bytes.Clone(v.TransactionStatusMeta),
			Index:       &index,
		}
	default:
		panic(fmt.Sprintf("event: unsupported transaction payload %T", transaction))
	}
}
