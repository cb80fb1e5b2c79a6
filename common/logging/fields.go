package logging

import "log/slog"

// Common field names for consistent logging across the plugin and tools.
const (
	FieldService    = "service"
	FieldRunID      = "run_id"
	FieldKind       = "kind"
	FieldSlot       = "slot"
	FieldPubkey     = "pubkey"
	FieldSignature  = "signature"
	FieldBackend    = "backend"
	FieldPath       = "path"
	FieldQueueDepth = "queue_depth"
	FieldDropped    = "dropped"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// RunID returns a slog attribute for the pipeline run ID.
func RunID(id string) slog.Attr {
	return slog.String(FieldRunID, id)
}

// Kind returns a slog attribute for an event kind.
func Kind(kind string) slog.Attr {
	return slog.String(FieldKind, kind)
}

// Slot returns a slog attribute for a slot number.
func Slot(slot uint64) slog.Attr {
	return slog.Uint64(FieldSlot, slot)
}

// Pubkey returns a slog attribute for a base58 account address.
func Pubkey(key string) slog.Attr {
	return slog.String(FieldPubkey, key)
}

// Signature returns a slog attribute for a base58 transaction signature.
func Signature(sig string) slog.Attr {
	return slog.String(FieldSignature, sig)
}

// Backend returns a slog attribute for a storage backend name.
func Backend(name string) slog.Attr {
	return slog.String(FieldBackend, name)
}

// Path returns a slog attribute for a filesystem path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// QueueDepth returns a slog attribute for the number of queued events.
func QueueDepth(n int) slog.Attr {
	return slog.Int(FieldQueueDepth, n)
}

// Dropped returns a slog attribute for a drop counter.
func Dropped(n uint64) slog.Attr {
	return slog.Uint64(FieldDropped, n)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
