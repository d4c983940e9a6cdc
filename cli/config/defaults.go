package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/TheoDgb/URLCustomDiscsAPI/adapter/redis"
	"github.com/TheoDgb/URLCustomDiscsAPI/admission"
	"github.com/TheoDgb/URLCustomDiscsAPI/journal"
	"github.com/TheoDgb/URLCustomDiscsAPI/pipeline"
	"github.com/TheoDgb/URLCustomDiscsAPI/quota"
	"github.com/TheoDgb/URLCustomDiscsAPI/ratelimit"
	"github.com/TheoDgb/URLCustomDiscsAPI/sweep"
	"github.com/TheoDgb/URLCustomDiscsAPI/types"
)

// Storage and journal backends.
const (
	BackendS3   = "s3"
	BackendFS   = "fs"
	BackendNone = "none"
)

// Adapter types.
const (
	AdapterRedis   = "redis"
	AdapterWebhook = "webhook"
)

// DefaultDataDir is used when server.data_dir is unset.
const DefaultDataDir = "data"

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":3000",
			DataDir:         DefaultDataDir,
			ShutdownTimeout: D(30 * time.Second),
		},
		Limits: LimitsConfig{
			MaxDuration:     D(pipeline.DefaultMaxDuration),
			MaxAudioBytes:   pipeline.DefaultMaxAudioBytes,
			MaxPackBytes:    pipeline.DefaultMaxPackBytes,
			MaxDiscs:        pipeline.DefaultMaxDiscs,
			QuotaBytes:      quota.DefaultCap,
			RateWindow:      D(ratelimit.DefaultWindow),
			RateCeiling:     ratelimit.DefaultCeiling,
			MaxActiveTokens: admission.DefaultMaxActive,
		},
		Tools: ToolsConfig{
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
		},
		Sweep: SweepConfig{
			Schedule:  sweep.DefaultSchedule,
			Timezone:  sweep.DefaultTimezone,
			Retention: D(sweep.DefaultRetention),
		},
		Journal: JournalConfig{
			Backend: BackendFS,
			Dataset: journal.DefaultDataset,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Normalize trims and lowercases enumerations and derives paths that
// default to locations under the data dir.
func (c *Config) Normalize() {
	c.Server.DataDir = strings.TrimSpace(c.Server.DataDir)
	if c.Server.DataDir == "" {
		c.Server.DataDir = DefaultDataDir
	}
	under := func(p *string, rel ...string) {
		if strings.TrimSpace(*p) == "" {
			*p = filepath.Join(append([]string{c.Server.DataDir}, rel...)...)
		}
	}

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		if c.Storage.Bucket != "" {
			c.Storage.Backend = BackendS3
		} else {
			c.Storage.Backend = BackendFS
		}
	}
	if c.Storage.Backend == BackendFS {
		under(&c.Storage.Path, "bucket")
	}

	under(&c.Tools.BinDir, "bin")
	under(&c.Templates.Legacy, "templates", "legacy.zip")
	under(&c.Templates.Current, "templates", "current.zip")

	c.Journal.Backend = strings.ToLower(strings.TrimSpace(c.Journal.Backend))
	if c.Journal.Backend == "" {
		c.Journal.Backend = BackendFS
	}
	if c.Journal.Backend == BackendFS {
		under(&c.Journal.Path, "journal")
	}
	if c.Journal.Dataset == "" {
		c.Journal.Dataset = journal.DefaultDataset
	}

	c.Adapter.Type = strings.ToLower(strings.TrimSpace(c.Adapter.Type))
	c.Adapter.Encoding = strings.ToLower(strings.TrimSpace(c.Adapter.Encoding))
	if c.Proxy.Strategy == "" && len(c.Proxy.Endpoints) > 0 {
		c.Proxy.Strategy = types.ProxyStrategyRoundRobin
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Listen == "" {
		add("server.listen is required")
	}

	switch c.Storage.Backend {
	case BackendS3:
		if c.Storage.Bucket == "" {
			add("storage.bucket is required for the s3 backend")
		}
	case BackendFS:
	default:
		add("storage.backend %q: must be s3 or fs", c.Storage.Backend)
	}

	l := c.Limits
	for name, v := range map[string]int64{
		"limits.max_audio_bytes":   l.MaxAudioBytes,
		"limits.max_pack_bytes":    l.MaxPackBytes,
		"limits.quota_bytes":       l.QuotaBytes,
		"limits.max_discs":         int64(l.MaxDiscs),
		"limits.rate_ceiling":      int64(l.RateCeiling),
		"limits.max_active_tokens": int64(l.MaxActiveTokens),
		"limits.max_duration":      int64(l.MaxDuration.Duration),
		"limits.rate_window":       int64(l.RateWindow.Duration),
	} {
		if v <= 0 {
			add("%s must be positive", name)
		}
	}
	if l.MaxPackBytes > 0 && l.QuotaBytes > 0 && l.MaxPackBytes > l.QuotaBytes {
		add("limits.max_pack_bytes (%d) exceeds limits.quota_bytes (%d)", l.MaxPackBytes, l.QuotaBytes)
	}

	if err := sweep.ValidateSchedule(c.Sweep.Schedule); err != nil {
		add("sweep.schedule: %v", err)
	}
	if c.Sweep.Retention.Duration <= 0 {
		add("sweep.retention must be positive")
	}

	switch c.Journal.Backend {
	case BackendFS, BackendNone:
	case BackendS3:
		if c.Journal.Bucket == "" && c.Storage.Bucket == "" {
			add("journal.bucket (or storage.bucket) is required for the s3 journal")
		}
	default:
		add("journal.backend %q: must be fs, s3 or none", c.Journal.Backend)
	}

	switch c.Adapter.Type {
	case "":
	case AdapterRedis, AdapterWebhook:
		if c.Adapter.URL == "" {
			add("adapter.url is required for the %s adapter", c.Adapter.Type)
		}
		if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
			add("adapter.retries must be >= 0")
		}
		if c.Adapter.Type == AdapterRedis {
			switch c.Adapter.Encoding {
			case "", redis.EncodingJSON, redis.EncodingMsgpack:
			default:
				add("adapter.encoding %q: must be json or msgpack", c.Adapter.Encoding)
			}
		}
	default:
		add("adapter.type %q: must be redis or webhook", c.Adapter.Type)
	}

	if pool := c.ProxyPool(); pool != nil {
		if err := pool.Validate(); err != nil {
			add("proxy: %v", err)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level %q: must be debug, info, warn or error", c.Log.Level)
	}

	return errors.Join(errs...)
}
