package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/TheoDgb/URLCustomDiscsAPI/cli/render"
	"github.com/TheoDgb/URLCustomDiscsAPI/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
}

// VersionCommand returns the version command. It reads no config.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  []cli.Flag{FormatFlag, TUIFlag},
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", exitFailure)
		}
		return r.Render(VersionResponse{Version: types.Version, Commit: commit})
	}
}
