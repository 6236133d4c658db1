// sensorlog is the periodic sensor logger.
package main

import (
	"fmt"
	"os"

	"github.com/xtxerr/sensorlog/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sensorlog: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
