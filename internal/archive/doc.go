// Package archive exports logged tables to Parquet files and answers range
// queries over those files with DuckDB.
//
// The package provides:
//   - Exporter, writing one <table>.parquet per table with a schema derived
//     from the store's columns
//   - Query, reading exported files with the same exclusive-bounds range
//     semantics as the store reader
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
package archive
