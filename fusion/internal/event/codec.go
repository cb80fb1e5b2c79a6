package event

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrUnknownKind is returned for records whose kind is not recognized.
	ErrUnknownKind = errors.New("unknown event kind")

	// ErrMalformedRecord is returned for records that do not decode into
	// exactly one event variant.
	ErrMalformedRecord = errors.New("malformed event record")
)

// RecordDelimiter terminates every record in a stream. Encoded records
// never contain it because JSON escapes control characters in strings.
const RecordDelimiter = '\n'

// DefaultMaxRecordSize bounds a single record accepted by a Decoder.
// Account data is base64 encoded, so this covers the largest accounts the
// host allows (10 MiB) with headroom.
const DefaultMaxRecordSize = 16 << 20

type record struct {
	Kind        Kind              `json:"kind"`
	Account     *AccountEvent     `json:"account,omitempty"`
	Transaction *TransactionEvent `json:"transaction,omitempty"`
}

// Marshal encodes ev as a single JSON object without a trailing delimiter.
func Marshal(ev Event) ([]byte, error) {
	rec := record{}
	switch v := ev.(type) {
	case *AccountEvent:
		if v == nil {
			return nil, fmt.Errorf("marshal: nil account event")
		}
		rec.Kind = KindAccount
		rec.Account = v
	case *TransactionEvent:
		if v == nil {
			return nil, fmt.Errorf("marshal: nil transaction event")
		}
		rec.Kind = KindTransaction
		rec.Transaction = v
	default:
		return nil, fmt.Errorf("marshal: %w: %T", ErrUnknownKind, ev)
	}
	return json.Marshal(rec)
}

// AppendRecord appends the delimited record for ev to dst.
func AppendRecord(dst []byte, ev Event) ([]byte, error) {
	b, err := Marshal(ev)
	if err != nil {
		return dst, err
	}
	dst = append(dst, b...)
	return append(dst, RecordDelimiter), nil
}

// Unmarshal decodes a single record. A trailing delimiter is allowed.
func Unmarshal(data []byte) (Event, error) {
	data = bytes.TrimRight(data, "\r\n")

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	switch rec.Kind {
	case KindAccount:
		if rec.Account == nil || rec.Transaction != nil {
			return nil, fmt.Errorf("%w: account record without account payload", ErrMalformedRecord)
		}
		return rec.Account, nil
	case KindTransaction:
		if rec.Transaction == nil || rec.Account != nil {
			return nil, fmt.Errorf("%w: transaction record without transaction payload", ErrMalformedRecord)
		}
		return rec.Transaction, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, rec.Kind)
	}
}

// Decoder reads delimited records from a stream.
type Decoder struct {
	scanner *bufio.Scanner
	line    int
	last    int
}

// NewDecoder returns a Decoder reading from r with DefaultMaxRecordSize.
func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderSize(r, DefaultMaxRecordSize)
}

// NewDecoderSize returns a Decoder that rejects records larger than maxSize.
func NewDecoderSize(r io.Reader, maxSize int) *Decoder {
	s := bufio.NewScanner(r)
	initial := 64 * 1024
	if maxSize < initial {
		initial = maxSize
	}
	s.Buffer(make([]byte, 0, initial), maxSize)
	return &Decoder{scanner: s}
}

// Next returns the next event, or io.EOF once the stream is exhausted.
// Blank lines are skipped.
func (d *Decoder) Next() (Event, error) {
	for d.scanner.Scan() {
		d.line++
		line := d.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		ev, err := Unmarshal(line)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", d.line, err)
		}
		d.last = d.line
		return ev, nil
	}
	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("record %d: %w", d.line+1, err)
	}
	return nil, io.EOF
}

// Line returns the line number of the last record returned by Next.
func (d *Decoder) Line() int {
	return d.last
}
