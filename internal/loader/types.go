// Package loader - Configuration Types
//
// Defines the YAML configuration structure for sensorlog.
//
//	store:      SQLite file, driver, lock timeout
//	tables:     table declarations (name -> column names + types)
//	sampling:   which table to log, cycle shape, reducer, fallbacks
//	source:     where raw readings come from (random, snmp)
//	retry:      flush retry policy
//	archive:    Parquet export location and codec
//	report:     summary window
//	metrics:    Prometheus listen address
//	logging:    level and format
package loader

import (
	"strconv"
	"time"

	"github.com/xtxerr/sensorlog/config"
	"github.com/xtxerr/sensorlog/internal/constants"
	"github.com/xtxerr/sensorlog/internal/schema"
	"github.com/xtxerr/sensorlog/internal/source"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure.
type Config struct {
	Store    StoreConfig                 `yaml:"store"`
	Tables   map[string]schema.TableSpec `yaml:"tables"`
	Sampling SamplingConfig              `yaml:"sampling"`
	Source   SourceConfig                `yaml:"source"`
	Retry    RetryConfig                 `yaml:"retry"`
	Archive  ArchiveConfig               `yaml:"archive"`
	Report   ReportConfig                `yaml:"report"`
	Metrics  MetricsConfig               `yaml:"metrics"`
	Logging  LoggingConfig               `yaml:"logging"`
	Shutdown ShutdownConfig              `yaml:"shutdown"`

	// Include lists additional files whose tables are merged in.
	// Glob patterns are relative to the including file.
	Include []string `yaml:"include"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	// Path is the store file.
	// Default: "sensor_db.db"
	Path string `yaml:"path"`

	// Driver is "sqlite3" (cgo) or "sqlite" (pure Go).
	// Default: "sqlite3"
	Driver string `yaml:"driver"`

	// BusyTimeoutMs is how long to wait on a locked database.
	// Default: 5000
	BusyTimeoutMs int `yaml:"busy_timeout_ms"`
}

// SamplingConfig configures the logging loop.
type SamplingConfig struct {
	// Table is the logical table to log into. May be DAILY.
	Table string `yaml:"table"`

	// Interval is the pause after each raw reading.
	// Default: 5s
	Interval Duration `yaml:"interval"`

	// Count is the number of raw readings per record.
	// Default: 5
	Count int `yaml:"count"`

	// FlushEvery is the number of cycles between flushes.
	// Default: 1
	FlushEvery int `yaml:"flush_every"`

	// Reducer is "mean" or "median".
	// Default: "mean"
	Reducer string `yaml:"reducer"`

	// Precision is the number of decimals kept.
	// Default: 2
	Precision *int `yaml:"precision"`

	// FallbackChannels are the channels whose last value is fed back to
	// the source. Default: distance, water_temp, air_temp, humidity
	FallbackChannels []string `yaml:"fallback_channels"`

	// InitialFallbacks seed the fallbacks before the first cycle.
	// Default: {distance: 60}
	InitialFallbacks map[string]float64 `yaml:"initial_fallbacks"`
}

// SourceConfig selects the reading source.
type SourceConfig struct {
	// Type is "random" or "snmp".
	// Default: "random"
	Type string `yaml:"type"`

	Random RandomSourceConfig `yaml:"random"`
	SNMP   SNMPSourceConfig   `yaml:"snmp"`
}

// RandomSourceConfig configures the random source.
type RandomSourceConfig struct {
	// Max is the exclusive upper bound of generated integers.
	// Default: 10
	Max int `yaml:"max"`

	// Seed fixes the sequence. 0 picks a random seed.
	Seed uint64 `yaml:"seed"`
}

// SNMPSourceConfig configures the SNMP source.
type SNMPSourceConfig struct {
	source.SNMPConfig `yaml:",inline"`

	// Channels map table channels to OIDs, in table order.
	Channels []source.Channel `yaml:"channels"`
}

// RetryConfig configures flush retries.
type RetryConfig struct {
	MaxAttempts uint     `yaml:"max_attempts"`
	MinInterval Duration `yaml:"min_interval"`
	MaxInterval Duration `yaml:"max_interval"`
}

// ArchiveConfig configures Parquet export.
type ArchiveConfig struct {
	// Dir is where exported files are written.
	// Default: "archive"
	Dir string `yaml:"dir"`

	// Compression is none, snappy, zstd, lz4 or gzip.
	// Default: "zstd"
	Compression string `yaml:"compression"`
}

// ReportConfig configures summaries.
type ReportConfig struct {
	// Window is the span a summary covers.
	// Default: 168h
	Window Duration `yaml:"window"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address serving /metrics. Empty disables it.
	Listen string `yaml:"listen"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	// Default: "info"
	Level string `yaml:"level"`

	// JSON selects JSON output instead of text.
	JSON bool `yaml:"json"`
}

// ShutdownConfig configures shutdown behavior.
type ShutdownConfig struct {
	// Timeout bounds the final flush.
	// Default: 10s
	Timeout Duration `yaml:"timeout"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a configuration with defaults for every setting.
// Tables are empty; the sampling table must be declared.
func DefaultConfig() *Config {
	precision := config.DefaultPrecision
	return &Config{
		Store: StoreConfig{
			Path:          config.DefaultStorePath,
			Driver:        config.DefaultDriver,
			BusyTimeoutMs: config.DefaultBusyTimeoutMs,
		},
		Tables: map[string]schema.TableSpec{},
		Sampling: SamplingConfig{
			Interval:   Duration(config.DefaultSampleIntervalSec * time.Second),
			Count:      config.DefaultSampleCount,
			FlushEvery: config.DefaultFlushEvery,
			Reducer:    config.DefaultReducer,
			Precision:  &precision,
			InitialFallbacks: map[string]float64{
				"distance": config.DefaultInitialDistance,
			},
		},
		Source: SourceConfig{
			Type:   constants.SourceRandom,
			Random: RandomSourceConfig{Max: 10},
		},
		Retry: RetryConfig{
			MaxAttempts: config.DefaultRetryMaxAttempts,
			MinInterval: Duration(config.DefaultRetryMinInterval),
			MaxInterval: Duration(config.DefaultRetryMaxInterval),
		},
		Archive: ArchiveConfig{
			Dir:         config.DefaultArchiveDir,
			Compression: config.DefaultArchiveCompression,
		},
		Report: ReportConfig{
			Window: Duration(config.DefaultReportWindow),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Shutdown: ShutdownConfig{
			Timeout: Duration(config.DefaultShutdownTimeoutSec * time.Second),
		},
	}
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
// Plain integers are seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		// Try as int (seconds)
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
