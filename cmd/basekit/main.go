// Command basekit reads, writes and serves records in a base.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/basekit/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
