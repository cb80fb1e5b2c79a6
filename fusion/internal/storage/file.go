package storage

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
)

const defaultFileBufferSize = 256 * 1024

// FileOptions controls how a FileSink opens and flushes its file.
type FileOptions struct {
	// Truncate discards existing content at open; otherwise records are
	// appended after it.
	Truncate bool
	// BufferSize is the write buffer size; 0 uses 256 KiB.
	BufferSize int
	// Sync calls fsync on every flush.
	Sync bool
}

// FileSink appends newline-delimited records to a local file.
type FileSink struct {
	path string
	file *os.File
	buf  *bufio.Writer
	sync bool
}

// NewFileSink creates or opens the file at path. Missing parent
// directories are created.
func NewFileSink(path string, opts FileOptions) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory for %s: %w", path, err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if opts.Truncate {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	size := opts.BufferSize
	if size <= 0 {
		size = defaultFileBufferSize
	}

	return &FileSink{
		path: path,
		file: f,
		buf:  bufio.NewWriterSize(f, size),
		sync: opts.Sync,
	}, nil
}

func (s *FileSink) Name() string { return "file" }

// Path returns the file the sink writes to.
func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Append(_ context.Context, _ event.Event, payload []byte) error {
	if _, err := s.buf.Write(payload); err != nil {
		return err
	}
	return s.buf.WriteByte(event.RecordDelimiter)
}

func (s *FileSink) Flush(_ context.Context) error {
	if err := s.buf.Flush(); err != nil {
		return err
	}
	if s.sync {
		return s.file.Sync()
	}
	return nil
}

func (s *FileSink) Close() error {
	flushErr := s.buf.Flush()
	closeErr := s.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
