package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/TheoDgb/URLCustomDiscsAPI/adapter"
	"github.com/TheoDgb/URLCustomDiscsAPI/admission"
	"github.com/TheoDgb/URLCustomDiscsAPI/api"
	"github.com/TheoDgb/URLCustomDiscsAPI/cli/config"
	"github.com/TheoDgb/URLCustomDiscsAPI/journal"
	"github.com/TheoDgb/URLCustomDiscsAPI/log"
	"github.com/TheoDgb/URLCustomDiscsAPI/media"
	"github.com/TheoDgb/URLCustomDiscsAPI/metrics"
	"github.com/TheoDgb/URLCustomDiscsAPI/pack"
	"github.com/TheoDgb/URLCustomDiscsAPI/pipeline"
	"github.com/TheoDgb/URLCustomDiscsAPI/quota"
	"github.com/TheoDgb/URLCustomDiscsAPI/ratelimit"
	"github.com/TheoDgb/URLCustomDiscsAPI/registry"
	"github.com/TheoDgb/URLCustomDiscsAPI/sweep"
	"github.com/TheoDgb/URLCustomDiscsAPI/types"
)

// Exit codes.
const (
	exitSuccess = 0
	exitFailure = 1
	exitConfig  = 2
)

// limiterSweepInterval is how often idle rate-limit windows are dropped.
const limiterSweepInterval = 5 * time.Minute

// ServeCommand returns the serve command.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API, the weekly inactivity sweep and tool setup",
		Flags: []cli.Flag{
			ConfigFlag,
			DataDirFlag,
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Override server.listen (e.g. :3000)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override log.level: debug, info, warn, error",
			},
			&cli.BoolFlag{
				Name:  "skip-tool-update",
				Usage: "Do not refresh yt-dlp at start-up",
			},
		},
		Action: serveAction,
	}
}

// service is everything serve wires together.
type service struct {
	cfg       *config.Config
	logger    *log.Logger
	metrics   *metrics.Collector
	limiter   *ratelimit.Limiter
	admission *admission.Controller
	ledger    *quota.Ledger
	notifier  adapter.Adapter
	pipeline  *pipeline.Service
	scheduler *sweep.Scheduler
	handler   http.Handler
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := prepareDataDir(cfg, logger); err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	installer := buildInstaller(cfg, logger)
	if cfg.AutoUpdateTools() && !c.Bool("skip-tool-update") {
		if _, err := installer.Update(ctx); err != nil {
			if _, statErr := os.Stat(installer.BinaryPath()); statErr != nil {
				return cli.Exit(fmt.Sprintf("tool setup failed: %v", err), exitFailure)
			}
			logger.Warn("tool update failed, keeping the installed yt-dlp", map[string]any{"error": err.Error()})
		}
	}
	if missing := media.Missing(media.CheckBinaries(toolRequirements(cfg, installer))); len(missing) > 0 {
		for _, m := range missing {
			logger.Error("required binary unavailable", map[string]any{"name": m.Name, "detail": m.Detail})
		}
		return cli.Exit("required media tools are missing (run setup-tools)", exitFailure)
	}

	svc, err := buildService(ctx, cfg, installer, logger)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	return svc.run(ctx)
}

// prepareDataDir creates the data dir and drops workspaces left over from a
// previous process.
func prepareDataDir(cfg *config.Config, logger *log.Logger) error {
	if err := os.MkdirAll(cfg.Server.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	for _, dir := range []string{pipeline.TempDir(cfg.Server.DataDir), api.UploadDir(cfg.Server.DataDir)} {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("stale temp cleanup failed", map[string]any{"path": dir, "error": err.Error()})
		}
	}
	return os.MkdirAll(cfg.Tools.BinDir, 0o755)
}

func buildService(ctx context.Context, cfg *config.Config, installer *media.Installer, logger *log.Logger) (*service, error) {
	s := &service{cfg: cfg, logger: logger, metrics: metrics.NewCollector()}

	objects, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	ds, err := buildDataset(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	s.notifier, err = buildNotifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("adapter: %w", err)
	}
	acquirer, err := buildAcquirer(cfg, installer, s.metrics, logger)
	if err != nil {
		return nil, err
	}

	reg := registry.New(cfg.RegistryPath())
	s.ledger = quota.NewLedger(cfg.LedgerPath(), cfg.Limits.QuotaBytes)
	s.limiter = ratelimit.New(cfg.Limits.RateWindow.Duration, cfg.Limits.RateCeiling)
	s.admission = admission.New(cfg.Limits.MaxActiveTokens, logger.With(map[string]any{"component": "admission"}))

	pc := pipeline.Config{
		DataDir:    cfg.Server.DataDir,
		PublicHost: cfg.Server.PublicHost,
		Templates:  pack.Templates{Legacy: cfg.Templates.Legacy, Current: cfg.Templates.Current},
		Limits: pipeline.Limits{
			MaxDuration:   cfg.Limits.MaxDuration.Duration,
			MaxAudioBytes: cfg.Limits.MaxAudioBytes,
			MaxPackBytes:  cfg.Limits.MaxPackBytes,
			MaxDiscs:      cfg.Limits.MaxDiscs,
		},
		Media:     acquirer,
		Store:     objects,
		Registry:  reg,
		Ledger:    s.ledger,
		Limiter:   s.limiter,
		Admission: s.admission,
		Metrics:   s.metrics,
		Logger:    logger,
	}
	if ds != nil {
		pc.Journal = journal.New(ds)
	}
	if s.notifier != nil {
		pc.Notifier = s.notifier
	}
	if s.pipeline, err = pipeline.New(pc); err != nil {
		return nil, err
	}
	if err := s.pipeline.CheckTemplates(); err != nil {
		return nil, err
	}

	if cfg.SweepEnabled() {
		sc := sweep.Config{
			Store:     objects,
			Registry:  reg,
			Ledger:    s.ledger,
			Metrics:   s.metrics,
			Logger:    logger,
			Retention: cfg.Sweep.Retention.Duration,
		}
		if s.notifier != nil {
			sc.Notifier = s.notifier
		}
		sweeper, err := sweep.New(sc)
		if err != nil {
			return nil, err
		}
		if s.scheduler, err = sweep.NewScheduler(sweeper, cfg.Sweep.Schedule, cfg.Sweep.Timezone, logger); err != nil {
			return nil, err
		}
	}

	s.handler, err = api.New(api.Config{
		Service:   s.pipeline,
		DataDir:   cfg.Server.DataDir,
		Metrics:   s.metrics,
		Admission: s.admission,
		Quota:     s.ledger,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// run serves until ctx ends, then drains in-flight requests.
func (s *service) run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.scheduler != nil {
		s.scheduler.Start()
	}
	go s.sweepLimiter(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", map[string]any{
			"addr":        s.cfg.Server.Listen,
			"version":     types.Version,
			"data_dir":    s.cfg.Server.DataDir,
			"storage":     s.cfg.Storage.Backend,
			"public_host": s.cfg.Server.PublicHost,
		})
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down", nil)
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown incomplete", map[string]any{"error": err.Error()})
	}
	if s.scheduler != nil {
		if err := s.scheduler.Stop(shutdownCtx); err != nil {
			s.logger.Warn("sweep did not stop in time", map[string]any{"error": err.Error()})
		}
	}
	s.admission.Close()
	if s.notifier != nil {
		if err := s.notifier.Close(); err != nil {
			s.logger.Warn("adapter close failed", map[string]any{"error": err.Error()})
		}
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return cli.Exit(fmt.Sprintf("http server: %v", serveErr), exitFailure)
	}
	return nil
}

func (s *service) sweepLimiter(ctx context.Context) {
	t := time.NewTicker(limiterSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.limiter.Sweep(); n > 0 {
				s.logger.Debug("rate limit windows dropped", map[string]any{"count": n})
			}
		}
	}
}
