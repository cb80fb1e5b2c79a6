package geyser

// AccountInfoVersions is one of the account payload versions the host can
// send: *ReplicaAccountInfoV1 or *ReplicaAccountInfoV2.
type AccountInfoVersions interface {
	accountInfoVersion()
}

// ReplicaAccountInfoV1 is the original account update payload. The byte
// slices are only valid for the duration of the callback.
type ReplicaAccountInfoV1 struct {
	Pubkey       []byte
	Lamports     uint64
	Owner        []byte
	Executable   bool
	RentEpoch    uint64
	Data         []byte
	WriteVersion uint64
}

// ReplicaAccountInfoV2 adds the signature of the transaction that caused
// the write. TxnSignature is nil for accounts loaded from a snapshot.
type ReplicaAccountInfoV2 struct {
	Pubkey       []byte
	Lamports     uint64
	Owner        []byte
	Executable   bool
	RentEpoch    uint64
	Data         []byte
	WriteVersion uint64
	TxnSignature *Signature
}

func (*ReplicaAccountInfoV1) accountInfoVersion() {}
func (*ReplicaAccountInfoV2) accountInfoVersion() {}

// TransactionInfoVersions is one of *ReplicaTransactionInfoV1 or
// *ReplicaTransactionInfoV2.
type TransactionInfoVersions interface {
	transactionInfoVersion()
}

// ReplicaTransactionInfoV1 describes a processed transaction. Transaction
// and TransactionStatusMeta are host-serialized and opaque to plugins.
type ReplicaTransactionInfoV1 struct {
	Signature             Signature
	IsVote                bool
	Transaction           []byte
	TransactionStatusMeta []byte
}

// ReplicaTransactionInfoV2 adds the transaction's position within its slot.
type ReplicaTransactionInfoV2 struct {
	Signature             Signature
	IsVote                bool
	Transaction           []byte
	TransactionStatusMeta []byte
	Index                 uint64
}

func (*ReplicaTransactionInfoV1) transactionInfoVersion() {}
func (*ReplicaTransactionInfoV2) transactionInfoVersion() {}

// BlockInfoVersions is one of *ReplicaBlockInfoV1 or *ReplicaBlockInfoV2.
type BlockInfoVersions interface {
	blockInfoVersion()
}

type ReplicaBlockInfoV1 struct {
	Slot         uint64
	Blockhash    string
	RewardsCount int
	BlockTime    *int64
	BlockHeight  *uint64
}

type ReplicaBlockInfoV2 struct {
	ParentSlot               uint64
	ParentBlockhash          string
	Slot                     uint64
	Blockhash                string
	RewardsCount             int
	BlockTime                *int64
	BlockHeight              *uint64
	ExecutedTransactionCount uint64
}

func (*ReplicaBlockInfoV1) blockInfoVersion() {}
func (*ReplicaBlockInfoV2) blockInfoVersion() {}
