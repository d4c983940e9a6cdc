package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/TheoDgb/URLCustomDiscsAPI/cli/render"
	"github.com/TheoDgb/URLCustomDiscsAPI/cli/tui"
	"github.com/TheoDgb/URLCustomDiscsAPI/quota"
)

// QuotaCommand returns the quota command.
func QuotaCommand() *cli.Command {
	return &cli.Command{
		Name:   "quota",
		Usage:  "Show pack storage used against the global cap",
		Flags:  ReadOnlyFlags(),
		Action: quotaAction,
	}
}

func quotaAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	usage, err := quota.NewLedger(cfg.LedgerPath(), cfg.Limits.QuotaBytes).Usage()
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewQuota, &usage)
	}
	return r.Render(usage)
}
