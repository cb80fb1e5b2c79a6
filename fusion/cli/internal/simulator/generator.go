package simulator

import (
	"sync/atomic"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/fusion-engine/fusion/pkg/geyser"
)

const (
	pubkeyLen = 32

	// Generated accounts are spread over this many owner programs so owner
	// filters have something to match.
	ownerPool = 8
)

// Generator produces host payloads with plausible shapes. Safe for
// concurrent use.
type Generator struct {
	faker        *gofakeit.Faker
	owners       [][]byte
	writeVersion atomic.Uint64
	txIndex      atomic.Uint64
}

// NewGenerator returns a generator seeded with seed; 0 picks a random seed.
func NewGenerator(seed int64) *Generator {
	g := &Generator{faker: gofakeit.New(seed)}
	g.owners = make([][]byte, ownerPool)
	for i := range g.owners {
		g.owners[i] = g.bytes(pubkeyLen)
	}
	return g
}

// Owners returns the program keys generated accounts are assigned to.
func (g *Generator) Owners() [][]byte {
	return g.owners
}

func (g *Generator) bytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = g.faker.Uint8()
	}
	return b
}

func (g *Generator) signature() geyser.Signature {
	var sig geyser.Signature
	for i := range sig {
		sig[i] = g.faker.Uint8()
	}
	return sig
}

// Account returns a V1 or V2 account payload. Startup accounts never
// carry an origin signature.
func (g *Generator) Account(isStartup bool) geyser.AccountInfoVersions {
	pubkey := g.bytes(pubkeyLen)
	owner := g.owners[g.faker.Number(0, len(g.owners)-1)]
	data := []byte(g.faker.Sentence(g.faker.Number(0, 24)))
	lamports := uint64(g.faker.Number(890880, 50_000_000_000))
	rentEpoch := uint64(g.faker.Number(0, 800))
	executable := g.faker.Number(1, 50) == 1
	wv := g.writeVersion.Add(1)

	if g.faker.Bool() {
		return &geyser.ReplicaAccountInfoV1{
			Pubkey:       pubkey,
			Lamports:     lamports,
			Owner:        owner,
			Executable:   executable,
			RentEpoch:    rentEpoch,
			Data:         data,
			WriteVersion: wv,
		}
	}

	info := &geyser.ReplicaAccountInfoV2{
		Pubkey:       pubkey,
		Lamports:     lamports,
		Owner:        owner,
		Executable:   executable,
		RentEpoch:    rentEpoch,
		Data:         data,
		WriteVersion: wv,
	}
	if !isStartup {
		sig := g.signature()
		info.TxnSignature = &sig
	}
	return info
}

// Transaction returns a V1 or V2 transaction payload. Roughly a third are
// votes.
func (g *Generator) Transaction() geyser.TransactionInfoVersions {
	sig := g.signature()
	isVote := g.faker.Number(1, 3) == 1
	tx := g.bytes(g.faker.Number(64, 512))
	meta := []byte(g.faker.Sentence(g.faker.Number(2, 12)))

	if g.faker.Bool() {
		return &geyser.ReplicaTransactionInfoV1{
			Signature:             sig,
			IsVote:                isVote,
			Transaction:           tx,
			TransactionStatusMeta: meta,
		}
	}
	return &geyser.ReplicaTransactionInfoV2{
		Signature:             sig,
		IsVote:                isVote,
		Transaction:           tx,
		TransactionStatusMeta: meta,
		Index:                 g.txIndex.Add(1) - 1,
	}
}
