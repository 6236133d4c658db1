package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xtxerr/sensorlog/config"
	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/store"
)

// NewDeclareCommand creates the declare command.
func NewDeclareCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "declare",
		Short: "Create the configured tables",
		Long: `Create every table declared in the config that does not exist yet.
Existing tables are left untouched. A declaration that is invalid is
reported and skipped; the others are still created.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeclare(cmd, rootOpts)
		},
	}
}

func runDeclare(cmd *cobra.Command, opts *RootOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := opts.Config
	if len(cfg.Tables) == 0 {
		return NewExitError(ExitCommandError, "no tables declared in config")
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := store.NewRegistry(db)
	declareErr := reg.Declare(ctx, cfg.Tables)

	out := cmd.OutOrStdout()
	for _, name := range reg.Tables() {
		fmt.Fprintln(out, name)
	}
	if _, ok := reg.Table(config.DailyAlias); ok {
		fmt.Fprintf(out, "%s (created per day on first write)\n", config.DailyAlias)
	}

	if declareErr != nil {
		code := ExitFailure
		if errors.IsSchemaError(declareErr) {
			code = ExitCommandError
		}
		return WrapExitError(code, "some tables were not declared", declareErr)
	}
	return nil
}
