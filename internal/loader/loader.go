// Package loader handles configuration file loading, validation, and
// conversion into the settings each component takes.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Processing include directives
//   - Converting between YAML and internal representations
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/sensorlog/internal/archive"
	"github.com/xtxerr/sensorlog/internal/constants"
	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/logging"
	"github.com/xtxerr/sensorlog/internal/metrics"
	"github.com/xtxerr/sensorlog/internal/sampler"
	"github.com/xtxerr/sensorlog/internal/schema"
	"github.com/xtxerr/sensorlog/internal/source"
	"github.com/xtxerr/sensorlog/internal/store"
	"github.com/xtxerr/sensorlog/internal/types"
	"github.com/xtxerr/sensorlog/internal/validation"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Process includes (load additional table files)
	baseDir := filepath.Dir(path)
	if err := processIncludes(cfg, baseDir); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse parses a YAML document over the defaults. Environment variables
// are expanded first.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// processIncludes loads and merges included configuration files.
func processIncludes(cfg *Config, baseDir string) error {
	for _, pattern := range cfg.Include {
		// Resolve relative paths
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}

		// Expand glob pattern
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}

		for _, match := range matches {
			if err := loadInclude(cfg, match); err != nil {
				return fmt.Errorf("load include %q: %w", match, err)
			}
		}
	}

	return nil
}

// loadInclude loads a single include file and merges its tables.
func loadInclude(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	expanded := os.ExpandEnv(string(data))

	var partial struct {
		Tables map[string]schema.TableSpec `yaml:"tables"`
	}
	if err := yaml.Unmarshal([]byte(expanded), &partial); err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if cfg.Tables == nil {
		cfg.Tables = make(map[string]schema.TableSpec)
	}
	for name, spec := range partial.Tables {
		cfg.Tables[name] = spec
	}

	return nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration. Table declarations themselves are
// checked at declare time, where a bad one is skipped rather than fatal;
// only the table being logged must be valid here.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	// Store validation
	if cfg.Store.Path == "" {
		errs.AddField("store.path", "cannot be empty")
	}
	if !supportedDriver(cfg.Store.Driver) {
		errs.AddField("store.driver", fmt.Sprintf("unsupported driver %q", cfg.Store.Driver))
	}

	// Sampling validation
	s := cfg.Sampling
	if s.Count <= 0 {
		errs.AddField("sampling.count", "must be positive")
	}
	if s.Interval.Duration() < 0 {
		errs.AddField("sampling.interval", "cannot be negative")
	}
	if s.FlushEvery <= 0 {
		errs.AddField("sampling.flush_every", "must be positive")
	}
	if _, err := sampler.ParseReducer(s.Reducer); err != nil {
		errs.AddField("sampling.reducer", err.Error())
	}

	var table schema.Table
	if s.Table == "" {
		errs.AddMissing("sampling.table")
	} else {
		t, err := SamplingTable(cfg)
		if err != nil {
			errs.Add(fmt.Errorf("sampling.table: %w", err))
		}
		table = t
	}

	// Source validation
	if !constants.IsValidSourceType(cfg.Source.Type) {
		errs.AddField("source.type", fmt.Sprintf("unknown source %q, want one of %v", cfg.Source.Type, constants.ValidSourceTypes))
	}
	switch cfg.Source.Type {
	case constants.SourceRandom:
		if cfg.Source.Random.Max <= 0 {
			errs.AddField("source.random.max", "must be positive")
		}
	case constants.SourceSNMP:
		if err := cfg.Source.SNMP.Validate(); err != nil {
			errs.Add(err)
		}
		if table.Width() > 0 && len(cfg.Source.SNMP.Channels) != len(table.Channels()) {
			errs.AddField("source.snmp.channels",
				fmt.Sprintf("%d channels configured, table has %d", len(cfg.Source.SNMP.Channels), len(table.Channels())))
		}
		for i, ch := range cfg.Source.SNMP.Channels {
			field := fmt.Sprintf("source.snmp.channels[%d]", i)
			if err := validation.ValidateChannelName(ch.Name); err != nil {
				errs.AddField(field+".name", err.Error())
			}
			if err := validation.ValidateOID(ch.OID); err != nil {
				errs.AddField(field+".oid", err.Error())
			}
		}
	}

	// Metrics validation
	if cfg.Metrics.Listen != "" {
		if err := validation.ValidateListenAddr(cfg.Metrics.Listen); err != nil {
			errs.AddField("metrics.listen", err.Error())
		}
	}

	// Retry validation
	if cfg.Retry.MaxAttempts == 0 {
		errs.AddField("retry.max_attempts", "must be positive")
	}

	// Logging validation
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		errs.AddField("logging.level", err.Error())
	}

	return errs.Err()
}

func supportedDriver(driver string) bool {
	for _, d := range store.SupportedDrivers {
		if d == driver {
			return true
		}
	}
	return false
}

// =============================================================================
// Conversion
// =============================================================================

// SamplingTable returns the validated declaration of the sampling table.
func SamplingTable(cfg *Config) (schema.Table, error) {
	spec, ok := cfg.Tables[cfg.Sampling.Table]
	if !ok {
		return schema.Table{}, errors.NewTableNotFound(cfg.Sampling.Table)
	}
	return spec.ValidateLogical(cfg.Sampling.Table)
}

// TableNames returns the declared table names, sorted.
func TableNames(cfg *Config) []string {
	names := make([]string, 0, len(cfg.Tables))
	for name := range cfg.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StoreOptions converts the store section.
func StoreOptions(cfg *Config) store.Options {
	return store.Options{
		Driver:        cfg.Store.Driver,
		BusyTimeoutMs: cfg.Store.BusyTimeoutMs,
	}
}

// RetryPolicy converts the retry section.
func RetryPolicy(cfg *Config) store.RetryPolicy {
	return store.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		MinInterval: cfg.Retry.MinInterval.Duration(),
		MaxInterval: cfg.Retry.MaxInterval.Duration(),
	}
}

// AggregatorOptions converts the sampling section.
func AggregatorOptions(cfg *Config, m *metrics.Metrics) (sampler.Options, error) {
	reducer, err := sampler.ParseReducer(cfg.Sampling.Reducer)
	if err != nil {
		return sampler.Options{}, err
	}

	opts := sampler.DefaultOptions()
	opts.Reducer = reducer
	opts.Metrics = m
	if cfg.Sampling.Precision != nil {
		opts.Precision = *cfg.Sampling.Precision
	}
	if cfg.Sampling.FallbackChannels != nil {
		opts.FallbackChannels = cfg.Sampling.FallbackChannels
	}
	return opts, nil
}

// InitialFallbacks returns the configured seed values.
func InitialFallbacks(cfg *Config) types.Fallbacks {
	out := make(types.Fallbacks, len(cfg.Sampling.InitialFallbacks))
	for k, v := range cfg.Sampling.InitialFallbacks {
		out[k] = v
	}
	return out
}

// BuildSource creates the configured reading source for a table with
// width channels.
func BuildSource(cfg *Config, width int) (source.Source, error) {
	switch cfg.Source.Type {
	case constants.SourceRandom, "":
		return source.NewRandom(width, cfg.Source.Random.Max, cfg.Source.Random.Seed), nil
	case constants.SourceSNMP:
		src, err := source.NewSNMP(cfg.Source.SNMP.SNMPConfig, cfg.Source.SNMP.Channels)
		if err != nil {
			return nil, err
		}
		if src.Width() != width {
			return nil, fmt.Errorf("snmp source has %d channels, table has %d: %w",
				src.Width(), width, errors.ErrWidthMismatch)
		}
		return src, nil
	default:
		return nil, fmt.Errorf("source %q: %w", cfg.Source.Type, errors.ErrUnsupportedType)
	}
}

// ArchiveOptions converts the archive section.
func ArchiveOptions(cfg *Config) archive.Options {
	opts := archive.DefaultOptions()
	opts.Compression = archive.ParseCompressionType(cfg.Archive.Compression)
	return opts
}
