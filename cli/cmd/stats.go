package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/TheoDgb/URLCustomDiscsAPI/cli/config"
	"github.com/TheoDgb/URLCustomDiscsAPI/cli/render"
	"github.com/TheoDgb/URLCustomDiscsAPI/cli/tui"
	"github.com/TheoDgb/URLCustomDiscsAPI/journal"
)

// StatsCommand returns the stats command, which summarizes the request
// journal.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Summarize journaled requests by operation and outcome",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "day",
				Usage: "Only this UTC day (YYYY-MM-DD)",
			},
			&cli.StringFlag{
				Name:  "operation",
				Usage: "Only this operation (register, create, upload, delete, sweep)",
			},
			&cli.StringFlag{
				Name:  "token",
				Usage: "Only requests for this token",
			},
		),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	if cfg.Journal.Backend == config.BackendNone {
		return cli.Exit("journal is disabled (journal.backend: none)", exitConfig)
	}
	ds, err := buildDataset(c.Context, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	sum, err := journal.Summarize(c.Context, ds, journal.Filter{
		Day:       c.String("day"),
		Operation: c.String("operation"),
		Token:     c.String("token"),
	})
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewOutcomes, &sum)
	}
	return r.Render(sum)
}
