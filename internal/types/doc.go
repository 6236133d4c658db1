// Package types defines the data units that flow through the logging
// pipeline: raw readings from a source and the aggregated records that are
// buffered and written to the store.
package types
