package parquet

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/xtxerr/plantwatch/internal/errors"
	"github.com/xtxerr/plantwatch/internal/store/types"
)

// ReadingWriter writes reading records to a Parquet file.
type ReadingWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[ReadingRow]
	rowCount int64
	closed   bool
}

// NewReadingWriter creates a new reading Parquet writer.
func NewReadingWriter(path string, opts Options) (*ReadingWriter, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(getCompression(opts.Compression)),
	}

	writer := parquet.NewGenericWriter[ReadingRow](f, writerOpts...)

	return &ReadingWriter{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write writes records to the Parquet file in slice order.
// Order matters: later rows win deduplication.
func (w *ReadingWriter) Write(records []types.ReadingRecord) error {
	if len(records) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.ErrWriterClosed
	}

	rows := make([]ReadingRow, len(records))
	for i := range records {
		rows[i] = RecordToRow(&records[i])
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close closes the writer.
func (w *ReadingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *ReadingWriter) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *ReadingWriter) Path() string {
	return w.path
}

// WriteFile writes all records to a Parquet file at path.
func WriteFile(path string, records []types.ReadingRecord, opts Options) (int64, error) {
	w, err := NewReadingWriter(path, opts)
	if err != nil {
		return 0, err
	}
	if err := w.Write(records); err != nil {
		w.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return w.RowCount(), nil
}

// WriteFileAtomic writes records to a temporary sibling of path and renames
// it into place, so readers never observe a partially written file. The
// temporary file is removed on failure.
func WriteFileAtomic(path string, records []types.ReadingRecord, opts Options) (int64, error) {
	tmp := fmt.Sprintf("%s.tmp-%d", path, os.Getpid())

	n, err := WriteFile(tmp, records, opts)
	if err != nil {
		os.Remove(tmp)
		return 0, errors.Wrap(err, "write temp file")
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("rename %s: %v: %w", path, err, errors.ErrWriteFailed)
	}

	return n, nil
}
