package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/xtxerr/sensorlog/internal/shell"
	"github.com/xtxerr/sensorlog/internal/store"
)

// NewShellCommand creates the shell command.
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Query the store interactively",
		Long: `Open an interactive shell over the store. Type help for the commands.
When standard input is not a terminal, one command is read per line.

Example:
  sensorlog shell
  echo "recent SensorData 5" | sensorlog shell`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReader(cmd, rootOpts, func(ctx context.Context, r *store.Reader) error {
				sh := shell.New(r, cmd.OutOrStdout(), rootOpts.Config.Report.Window.Duration())
				if f, ok := cmd.InOrStdin().(*os.File); ok {
					return sh.Run(ctx, f)
				}
				return sh.RunLines(ctx, cmd.InOrStdin())
			})
		},
	}
}
