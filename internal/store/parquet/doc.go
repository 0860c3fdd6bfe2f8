// Package parquet implements Parquet file reading and writing for sensor readings.
//
// The package provides:
//   - ReadingWriter/ReadingReader for reading record data
//   - Atomic whole-file replacement via temp-write-then-rename
//   - Memory-bounded time-column scans for large files
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
package parquet
