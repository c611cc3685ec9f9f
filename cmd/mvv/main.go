// Command mvv drives the order scheduler from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/mvvplatform/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mvv: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
