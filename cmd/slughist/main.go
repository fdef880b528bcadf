// Command slughist manages slugged entities and their identifier history.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urbanautomaton/friendly-id-ancient-history/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Subcommands report their own errors; only cobra-level failures
		// (unknown command, bad flag) still need printing.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
