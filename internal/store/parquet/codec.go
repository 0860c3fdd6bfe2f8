package parquet

import (
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/xtxerr/plantwatch/internal/store/types"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// CompressionLevel for algorithms that support it (zstd: 1-22)
	CompressionLevel int

	// RowGroupSize is the target number of rows per row group
	RowGroupSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:      CompressionZstd,
		CompressionLevel: 3,
		RowGroupSize:     100000,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// ReadingRow is the on-disk form of a sensor reading.
// Timestamps are stored as epoch milliseconds so the query engine can
// compare them without timezone interpretation.
type ReadingRow struct {
	TimeMs int64   `parquet:"time_ms"`
	Value  float64 `parquet:"value"`
	Plant  string  `parquet:"plant,zstd"`
	Unit   string  `parquet:"unit,zstd"`
	Tag    string  `parquet:"tag,zstd"`
}

// RecordToRow converts a ReadingRecord to a ReadingRow.
func RecordToRow(r *types.ReadingRecord) ReadingRow {
	return ReadingRow{
		TimeMs: r.Time.UnixMilli(),
		Value:  r.Value,
		Plant:  r.Plant,
		Unit:   r.Unit,
		Tag:    r.Tag,
	}
}

// RowToRecord converts a ReadingRow to a ReadingRecord.
// Timestamps come back in UTC.
func RowToRecord(row *ReadingRow) types.ReadingRecord {
	return types.ReadingRecord{
		Time:  time.UnixMilli(row.TimeMs).UTC(),
		Value: row.Value,
		Plant: row.Plant,
		Unit:  row.Unit,
		Tag:   row.Tag,
	}
}
