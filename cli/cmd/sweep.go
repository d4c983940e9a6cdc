package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/TheoDgb/URLCustomDiscsAPI/cli/render"
	"github.com/TheoDgb/URLCustomDiscsAPI/quota"
	"github.com/TheoDgb/URLCustomDiscsAPI/registry"
	"github.com/TheoDgb/URLCustomDiscsAPI/sweep"
)

// SweepCommand returns the sweep command, a one-off run of the weekly
// inactivity sweep.
func SweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Remove servers whose pack has not been used within the retention window",
		Flags: append(ReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "List candidates without deleting anything",
			},
			&cli.DurationFlag{
				Name:  "retention",
				Usage: "Override sweep.retention (e.g. 2160h)",
			},
		),
		Action: sweepAction,
	}
}

func sweepAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for sweep command", exitFailure)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	defer func() { _ = logger.Sync() }()

	objects, err := buildStore(c.Context, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	notifier, err := buildNotifier(cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	sc := sweep.Config{
		Store:     objects,
		Registry:  registry.New(cfg.RegistryPath()),
		Ledger:    quota.NewLedger(cfg.LedgerPath(), cfg.Limits.QuotaBytes),
		Logger:    logger,
		Retention: cfg.Sweep.Retention.Duration,
		DryRun:    c.Bool("dry-run"),
	}
	if c.IsSet("retention") {
		sc.Retention = c.Duration("retention")
	}
	if notifier != nil {
		sc.Notifier = notifier
		defer func() { _ = notifier.Close() }()
	}
	sweeper, err := sweep.New(sc)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	report, err := sweeper.Run(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	return r.Render(report)
}
