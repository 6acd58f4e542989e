// Command lineage inspects class declarations and drives a class-per-table
// SQLite database from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/lineage/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
