package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
)

// readEvents decodes the records in path. An empty kind keeps every
// record; limit <= 0 means no limit.
func readEvents(path string, kind event.Kind, limit int) ([]event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []event.Event
	dec := event.NewDecoder(f)
	for limit <= 0 || len(events) < limit {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return events, fmt.Errorf("%s: %w", path, err)
		}
		if kind != "" && ev.Kind() != kind {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// genericRecord re-encodes ev as a plain value for json and yaml output.
// Integers keep their full 64-bit range.
func genericRecord(ev event.Event) (map[string]interface{}, error) {
	raw, err := event.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var rec map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return normalizeNumbers(rec).(map[string]interface{}), nil
}

func normalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []interface{}:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	case json.Number:
		if u, err := strconv.ParseUint(t.String(), 10, 64); err == nil {
			return u
		}
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}
