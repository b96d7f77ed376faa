// Command livebridge is the operator CLI: it taps live sessions, resolves
// instrument ids through metadata snapshots and lists record schemas.
package main

import (
	"fmt"
	"os"

	"github.com/drblury/livebridge/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
