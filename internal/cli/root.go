// Package cli implements the sensorlog command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/loader"
	"github.com/xtxerr/sensorlog/internal/logging"
	"github.com/xtxerr/sensorlog/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DBPath     string
	Driver     string
	LogLevel   string
	JSONLogs   bool

	// Config is loaded before any subcommand runs.
	Config *loader.Config
}

// NewRootCommand creates the root command for the sensorlog CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "sensorlog",
		Short: "sensorlog - periodic sensor logger",
		Long: `Sample sensors on a fixed cadence, reduce each burst of readings into one
record and append it to a SQLite store that other processes can read while
logging continues.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "config file path")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "store file path (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "database driver: sqlite3 or sqlite (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.JSONLogs, "json-logs", false, "log as JSON")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewDeclareCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewSummaryCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewArchiveRangeCommand(opts))
	cmd.AddCommand(NewShellCommand(opts))

	return cmd
}

// load reads the config file, applies flag overrides and sets up logging.
// A missing config file falls back to defaults.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := loader.Load(o.ConfigPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || cmd.Flags().Changed("config") {
			return WrapExitError(ExitCommandError, "load config", err)
		}
		cfg = loader.DefaultConfig()
	}

	// CLI overrides
	if o.DBPath != "" {
		cfg.Store.Path = o.DBPath
	}
	if o.Driver != "" {
		cfg.Store.Driver = o.Driver
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.JSONLogs {
		cfg.Logging.JSON = true
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log level", err)
	}
	logging.InitWriter(cmd.ErrOrStderr(), level, cfg.Logging.JSON)

	o.Config = cfg
	return nil
}

// openReader opens a read-only connection to the configured store.
func (o *RootOptions) openReader() (*store.Reader, error) {
	r, err := store.OpenReader(o.Config.Store.Path, loader.StoreOptions(o.Config))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open store %s", o.Config.Store.Path), err)
	}
	return r, nil
}
