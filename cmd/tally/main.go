// Command tally is the local-first ledger CLI.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/tally/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tally:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
