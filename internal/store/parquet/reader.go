package parquet

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/xtxerr/plantwatch/internal/errors"
	"github.com/xtxerr/plantwatch/internal/store/types"
)

// ReadingReader reads reading records from a Parquet file.
type ReadingReader struct {
	file   *os.File
	reader *parquet.GenericReader[ReadingRow]
	path   string
}

// NewReadingReader creates a new reading Parquet reader. The file footer
// is parsed up front, so a truncated or non-parquet file surfaces as
// ErrCorruptedFile here instead of blowing up mid-read.
func NewReadingReader(path string) (*ReadingReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size(), parquet.ReadBufferSize(1024*1024))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrCorruptedFile, path, err)
	}

	return &ReadingReader{
		file:   f,
		reader: parquet.NewGenericReader[ReadingRow](pf),
		path:   path,
	}, nil
}

// Read reads up to n records from the file. It returns io.EOF when the
// file is exhausted; the returned records are still valid in that case.
func (r *ReadingReader) Read(n int) ([]types.ReadingRecord, error) {
	rows := make([]ReadingRow, n)
	count, err := r.reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, err
	}

	records := make([]types.ReadingRecord, count)
	for i := 0; i < count; i++ {
		records[i] = RowToRecord(&rows[i])
	}

	if count == 0 && err == io.EOF {
		return nil, io.EOF
	}
	return records, nil
}

// ReadAll reads all records from the file.
func (r *ReadingReader) ReadAll() ([]types.ReadingRecord, error) {
	numRows := r.reader.NumRows()
	rows := make([]ReadingRow, numRows)

	n, err := r.reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, err
	}

	records := make([]types.ReadingRecord, n)
	for i := 0; i < n; i++ {
		records[i] = RowToRecord(&rows[i])
	}

	return records, nil
}

// NumRows returns the total number of rows in the file.
func (r *ReadingReader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *ReadingReader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *ReadingReader) Path() string {
	return r.path
}

// ReadFile reads all records from a Parquet file at path.
func ReadFile(path string) ([]types.ReadingRecord, error) {
	r, err := NewReadingReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadAll()
}

// ReadRange reads records within [start, end] from a Parquet file.
// A zero start or end leaves that side unbounded. Reading happens in
// chunks so memory stays proportional to the matching rows.
func ReadRange(path string, start, end time.Time, chunkSize int) ([]types.ReadingRecord, error) {
	r, err := NewReadingReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if chunkSize <= 0 {
		chunkSize = 100000
	}

	var startMs, endMs int64
	if !start.IsZero() {
		startMs = start.UnixMilli()
	}
	if !end.IsZero() {
		endMs = end.UnixMilli()
	}

	var out []types.ReadingRecord
	rows := make([]ReadingRow, chunkSize)
	for {
		n, err := r.reader.Read(rows)
		for i := 0; i < n; i++ {
			ms := rows[i].TimeMs
			if startMs != 0 && ms < startMs {
				continue
			}
			if endMs != 0 && ms > endMs {
				continue
			}
			out = append(out, RowToRecord(&rows[i]))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// TimeBounds scans only the time values of a file and returns the row
// count and min/max timestamps in epoch milliseconds. This stays
// memory-bounded regardless of file size.
func TimeBounds(path string, chunkSize int) (rowCount, minMs, maxMs int64, err error) {
	r, openErr := NewReadingReader(path)
	if openErr != nil {
		return 0, 0, 0, openErr
	}
	defer r.Close()

	if chunkSize <= 0 {
		chunkSize = 100000
	}

	rows := make([]ReadingRow, chunkSize)
	first := true
	for {
		n, readErr := r.reader.Read(rows)
		for i := 0; i < n; i++ {
			ms := rows[i].TimeMs
			if first {
				minMs, maxMs = ms, ms
				first = false
			} else {
				if ms < minMs {
					minMs = ms
				}
				if ms > maxMs {
					maxMs = ms
				}
			}
		}
		rowCount += int64(n)
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return 0, 0, 0, readErr
		}
	}

	return rowCount, minMs, maxMs, nil
}

// FileInfo holds information about a Parquet file.
type FileInfo struct {
	Path    string
	Size    int64
	NumRows int64
}

// GetFileInfo returns information about a Parquet file.
func GetFileInfo(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrCorruptedFile, path, err)
	}

	return &FileInfo{
		Path:    path,
		Size:    stat.Size(),
		NumRows: pf.NumRows(),
	}, nil
}
