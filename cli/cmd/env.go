package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/TheoDgb/URLCustomDiscsAPI/adapter"
	"github.com/TheoDgb/URLCustomDiscsAPI/adapter/redis"
	"github.com/TheoDgb/URLCustomDiscsAPI/adapter/webhook"
	"github.com/TheoDgb/URLCustomDiscsAPI/cli/config"
	"github.com/TheoDgb/URLCustomDiscsAPI/journal"
	"github.com/TheoDgb/URLCustomDiscsAPI/log"
	"github.com/TheoDgb/URLCustomDiscsAPI/media"
	"github.com/TheoDgb/URLCustomDiscsAPI/metrics"
	"github.com/TheoDgb/URLCustomDiscsAPI/proxy"
	"github.com/TheoDgb/URLCustomDiscsAPI/store"
)

// loadConfig reads --config (or the defaults) and applies flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if dir := c.String("data-dir"); dir != "" {
		// Paths derived from the old data dir are re-derived.
		if cfg.Server.DataDir != dir {
			cfg.Storage.Path, cfg.Journal.Path = "", ""
			cfg.Tools.BinDir, cfg.Templates.Legacy, cfg.Templates.Current = "", "", ""
		}
		cfg.Server.DataDir = dir
	}
	if c.IsSet("listen") {
		cfg.Server.Listen = c.String("listen")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*log.Logger, error) {
	return log.New(log.Options{Service: "urlcustomdiscs", Level: cfg.Log.Level})
}

func s3Config(cfg *config.Config, bucket, prefix string) store.S3Config {
	return store.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       cfg.Storage.Region,
		Endpoint:     cfg.Storage.Endpoint,
		UsePathStyle: cfg.Storage.S3PathStyle,
		Timeout:      cfg.Storage.Timeout.Duration,
	}
}

// buildStore opens the remote pack store.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendS3:
		return store.NewS3Store(ctx, s3Config(cfg, cfg.Storage.Bucket, cfg.Storage.Prefix))
	case config.BackendFS:
		return store.NewDirStore(cfg.Storage.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildDataset opens the journal dataset, or nil when the journal is off.
func buildDataset(ctx context.Context, cfg *config.Config) (lode.Dataset, error) {
	switch cfg.Journal.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendFS:
		return journal.NewFSDataset(cfg.Journal.Dataset, cfg.Journal.Path)
	case config.BackendS3:
		bucket, prefix := cfg.Journal.Bucket, cfg.Journal.Prefix
		if bucket == "" {
			bucket = cfg.Storage.Bucket
			if prefix == "" {
				prefix = strings.Trim(cfg.Storage.Prefix+"/journal", "/")
			}
		}
		return journal.NewS3Dataset(ctx, cfg.Journal.Dataset, s3Config(cfg, bucket, prefix))
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Journal.Backend)
	}
}

// buildNotifier returns the pack-change adapter, or nil when none is set.
func buildNotifier(cfg *config.Config) (adapter.Adapter, error) {
	a := cfg.Adapter
	retries := -1
	if a.Retries != nil {
		retries = *a.Retries
	}
	switch a.Type {
	case "":
		return nil, nil
	case config.AdapterRedis:
		rc := redis.Config{URL: a.URL, Channel: a.Channel, Encoding: a.Encoding, Timeout: a.Timeout.Duration}
		if retries >= 0 {
			rc.Retries = retries
		} else {
			rc.Retries = redis.DefaultRetries
		}
		return redis.New(rc)
	case config.AdapterWebhook:
		wc := webhook.Config{URL: a.URL, Headers: a.Headers, Secret: a.Secret, Timeout: a.Timeout.Duration}
		if retries >= 0 {
			wc.Retries = retries
		} else {
			wc.Retries = webhook.DefaultRetries
		}
		return webhook.New(wc)
	default:
		return nil, fmt.Errorf("unknown adapter type %q", a.Type)
	}
}

func buildInstaller(cfg *config.Config, logger *log.Logger) *media.Installer {
	return &media.Installer{
		BinDir:      cfg.Tools.BinDir,
		ReleaseAPI:  cfg.Tools.ReleaseAPI,
		DownloadURL: cfg.Tools.DownloadURL,
		Logger:      logger,
	}
}

func toolRequirements(cfg *config.Config, installer *media.Installer) []media.Requirement {
	return []media.Requirement{
		{Name: "yt-dlp", Command: installer.BinaryPath()},
		{Name: "ffmpeg", Command: cfg.Tools.FFmpeg},
		{Name: "ffprobe", Command: cfg.Tools.FFprobe},
	}
}

// buildAcquirer wires the media tools, the proxy pool and the refresher.
func buildAcquirer(cfg *config.Config, installer *media.Installer, m *metrics.Collector, logger *log.Logger) (*media.Acquirer, error) {
	mc := media.Config{
		YtDlp:          installer.BinaryPath(),
		FFmpeg:         cfg.Tools.FFmpeg,
		FFprobe:        cfg.Tools.FFprobe,
		FFmpegLocation: cfg.Tools.FFmpegLocation,
		Refresher:      installer,
		Logger:         logger,
		Metrics:        m,
	}
	if pool := cfg.ProxyPool(); pool != nil {
		sel, err := proxy.NewSelector(*pool)
		if err != nil {
			return nil, fmt.Errorf("proxy pool: %w", err)
		}
		for _, w := range pool.Warnings() {
			logger.Warn("proxy pool", map[string]any{"warning": w})
		}
		mc.Proxies = sel
	}
	return media.New(mc), nil
}
