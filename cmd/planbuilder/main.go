// Command planbuilder edits ordered plans and queues of fragments.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/planbuilder/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
