// Command nowhere records, traces and replays capsules.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/nowhere/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		// Commands print their own structured output; this is the one-line
		// summary for the shell.
		fmt.Fprintln(os.Stderr, "nowhere:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
