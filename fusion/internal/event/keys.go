package event

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/telhawk-systems/fusion-engine/fusion/pkg/geyser"
)

// Pubkey is an account or program address. It is rendered as base58. An
// empty key is always nil, so a key survives an encode and decode unchanged.
type Pubkey []byte

// pubkeyOf copies b into a Pubkey, mapping an empty slice to nil.
func pubkeyOf(b []byte) Pubkey {
	if len(b) == 0 {
		return nil
	}
	return Pubkey(bytes.Clone(b))
}

// ParsePubkey decodes a base58 address. The empty string decodes to nil.
func ParsePubkey(s string) (Pubkey, error) {
	if s == "" {
		return nil, nil
	}
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey %q: %w", s, err)
	}
	return Pubkey(b), nil
}

func (p Pubkey) String() string {
	if len(p) == 0 {
		return ""
	}
	return base58.Encode(p)
}

func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pubkey) UnmarshalText(text []byte) error {
	v, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Signature is a transaction signature. It is rendered as base58.
type Signature geyser.Signature

// ParseSignature decodes a base58 signature of exactly geyser.SignatureLen bytes.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	if s == "" {
		return sig, fmt.Errorf("invalid signature: empty")
	}
	b, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("invalid signature %q: %w", s, err)
	}
	if len(b) != geyser.SignatureLen {
		return sig, fmt.Errorf("invalid signature %q: %d bytes, want %d", s, len(b), geyser.SignatureLen)
	}
	copy(sig[:], b)
	return sig, nil
}

func (s Signature) String() string {
	return base58.Encode(s[:])
}

func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Signature) UnmarshalText(text []byte) error {
	v, err := ParseSignature(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
