// Package config provides configuration defaults for sensorlog.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command-line flags.
package config

import "time"

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultStorePath is the SQLite file holding every logged table.
	// Override via config: store.path
	DefaultStorePath = "sensor_db.db"

	// DefaultDriver is the database/sql driver used for the store.
	// "sqlite3" is the cgo driver, "sqlite" the pure-Go one.
	// Override via config: store.driver
	DefaultDriver = "sqlite3"

	// DefaultBusyTimeoutMs is how long a connection waits on a locked database.
	// Readers in other processes can hold the lock briefly during checkpoints.
	// Override via config: store.busy_timeout_ms
	DefaultBusyTimeoutMs = 5000

	// DefaultTimestampColumn is the name suggested for the leading timestamp column.
	DefaultTimestampColumn = "unix_time"

	// DailyAlias is the logical table name that resolves to one table per day.
	DailyAlias = "DAILY"
)

// =============================================================================
// Sampling Defaults
// =============================================================================

const (
	// DefaultSampleIntervalSec is the pause between two raw readings.
	// Must exceed the slowest sensor's settle time (the ultrasonic distance
	// sensor needs about 5s) or that channel returns inconsistent values.
	// Override via config: sampling.interval
	DefaultSampleIntervalSec = 5

	// DefaultSampleCount is the number of raw readings reduced into one record.
	// Override via config: sampling.count
	DefaultSampleCount = 5

	// DefaultFlushEvery is the number of cycles between flushes.
	// 1 flushes after every record.
	// Override via config: sampling.flush_every
	DefaultFlushEvery = 1

	// DefaultPrecision is the number of decimals kept in aggregated values.
	// Override via config: sampling.precision
	DefaultPrecision = 2

	// DefaultReducer is the per-channel reduction applied to a cycle's readings.
	// Override via config: sampling.reducer
	DefaultReducer = "mean"

	// DefaultInitialDistance seeds the distance fallback before the first
	// successful reading.
	DefaultInitialDistance = 60.0

	// DefaultShutdownTimeoutSec bounds the final flush on shutdown.
	DefaultShutdownTimeoutSec = 10
)

// =============================================================================
// Retry Defaults
// =============================================================================

const (
	// DefaultRetryMaxAttempts is the number of attempts for one flush transaction.
	// Override via config: retry.max_attempts
	DefaultRetryMaxAttempts = 4

	// DefaultRetryMinInterval is the first backoff interval.
	// Override via config: retry.min_interval
	DefaultRetryMinInterval = 250 * time.Millisecond

	// DefaultRetryMaxInterval caps the backoff interval.
	// Override via config: retry.max_interval
	DefaultRetryMaxInterval = 5 * time.Second
)

// =============================================================================
// SNMP Source Defaults
// =============================================================================

const (
	// DefaultSNMPPort is the standard SNMP agent port.
	DefaultSNMPPort = 161

	// DefaultSNMPTimeoutMs is the timeout for one SNMP GET.
	// Override via config: source.snmp.timeout_ms
	DefaultSNMPTimeoutMs = 2000

	// DefaultSNMPRetries is the number of SNMP retries per GET.
	// Override via config: source.snmp.retries
	DefaultSNMPRetries = 1
)

// =============================================================================
// Archive Defaults
// =============================================================================

const (
	// DefaultArchiveDir is where exported Parquet files are written.
	// Override via config: archive.dir
	DefaultArchiveDir = "archive"

	// DefaultArchiveCompression is the Parquet codec for exports.
	// Override via config: archive.compression
	DefaultArchiveCompression = "zstd"
)

// =============================================================================
// Report Defaults
// =============================================================================

const (
	// DefaultReportWindow is the span covered by the weekly summary.
	DefaultReportWindow = 7 * 24 * time.Hour
)
