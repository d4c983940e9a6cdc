// Package main provides the urlcustomdiscs entrypoint.
//
// Usage:
//
//	urlcustomdiscs <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: runtime failure (missing tools, storage, server error)
//   - 2: invalid configuration
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/TheoDgb/URLCustomDiscsAPI/cli/cmd"
	"github.com/TheoDgb/URLCustomDiscsAPI/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "urlcustomdiscs",
		Usage:          "Custom music disc resource pack service",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.SweepCommand(),
			cmd.ToolsCommand(),
			cmd.StatsCommand(),
			cmd.QuotaCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(report(os.Stderr, err))
}

// report prints err when it carries a real message and returns the exit code.
func report(w io.Writer, err error) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		// cli.Exit("", N).Error() is "exit status N"; nothing to print.
		if msg := exitCoder.Error(); msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(w, msg)
		}
		return code
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
