package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/TheoDgb/URLCustomDiscsAPI/types"
)

// Config represents a urlcustomdiscs.yaml configuration file.
// Every value is optional; Default fills the gaps and CLI flags override.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Limits    LimitsConfig    `yaml:"limits"`
	Tools     ToolsConfig     `yaml:"tools"`
	Templates TemplatesConfig `yaml:"templates"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Journal   JournalConfig   `yaml:"journal"`
	Adapter   AdapterConfig   `yaml:"adapter"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the HTTP listener and local state settings.
type ServerConfig struct {
	Listen string `yaml:"listen"`
	// DataDir holds servers.json, quota.json and the temp/ and uploads/ trees.
	DataDir string `yaml:"data_dir"`
	// PublicHost serves pack archives, e.g. packs.example.com.
	PublicHost      string   `yaml:"public_host"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the remote pack store.
type StorageConfig struct {
	// Backend is s3 or fs.
	Backend     string   `yaml:"backend"`
	Bucket      string   `yaml:"bucket"`
	Prefix      string   `yaml:"prefix"`
	Region      string   `yaml:"region"`
	Endpoint    string   `yaml:"endpoint"`
	S3PathStyle bool     `yaml:"s3_path_style"`
	Timeout     Duration `yaml:"timeout"`
	// Path is the fs backend root.
	Path string `yaml:"path"`
}

// LimitsConfig holds the request ceilings and admission settings.
type LimitsConfig struct {
	MaxDuration     Duration `yaml:"max_duration"`
	MaxAudioBytes   int64    `yaml:"max_audio_bytes"`
	MaxPackBytes    int64    `yaml:"max_pack_bytes"`
	MaxDiscs        int      `yaml:"max_discs"`
	QuotaBytes      int64    `yaml:"quota_bytes"`
	RateWindow      Duration `yaml:"rate_window"`
	RateCeiling     int      `yaml:"rate_ceiling"`
	MaxActiveTokens int      `yaml:"max_active_tokens"`
}

// ToolsConfig locates the media tools.
type ToolsConfig struct {
	// BinDir holds the managed yt-dlp binary.
	BinDir         string `yaml:"bin_dir"`
	FFmpeg         string `yaml:"ffmpeg"`
	FFprobe        string `yaml:"ffprobe"`
	FFmpegLocation string `yaml:"ffmpeg_location,omitempty"`
	// AutoUpdate refreshes yt-dlp when serve starts. Defaults to true.
	AutoUpdate  *bool  `yaml:"auto_update,omitempty"`
	ReleaseAPI  string `yaml:"release_api,omitempty"`
	DownloadURL string `yaml:"download_url,omitempty"`
}

// TemplatesConfig points at the blank pack archive per schema.
type TemplatesConfig struct {
	Legacy  string `yaml:"legacy"`
	Current string `yaml:"current"`
}

// SweepConfig schedules the inactivity sweep.
type SweepConfig struct {
	// Enabled runs the sweep from serve. Defaults to true.
	Enabled   *bool    `yaml:"enabled,omitempty"`
	Schedule  string   `yaml:"schedule"`
	Timezone  string   `yaml:"timezone"`
	Retention Duration `yaml:"retention"`
}

// JournalConfig selects where outcome records go.
type JournalConfig struct {
	// Backend is fs, s3 or none.
	Backend string `yaml:"backend"`
	Dataset string `yaml:"dataset"`
	// Path is the fs backend root.
	Path string `yaml:"path"`
	// Bucket and Prefix select the s3 backend location. Region, endpoint
	// and path style come from storage.
	Bucket string `yaml:"bucket,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
}

// AdapterConfig configures pack-change notifications.
type AdapterConfig struct {
	// Type is redis or webhook. Empty disables notifications.
	Type     string            `yaml:"type"`
	URL      string            `yaml:"url"`
	Channel  string            `yaml:"channel,omitempty"`
	Encoding string            `yaml:"encoding,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Secret   string            `yaml:"secret,omitempty"`
	Timeout  Duration          `yaml:"timeout,omitempty"`
	Retries  *int              `yaml:"retries,omitempty"`
}

// ProxyConfig is the optional proxy pool for the download tool.
type ProxyConfig struct {
	Strategy  types.ProxyStrategy   `yaml:"strategy,omitempty"`
	Endpoints []types.ProxyEndpoint `yaml:"endpoints,omitempty"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "2160h").
type Duration struct {
	time.Duration
}

// D returns a Duration for d.
func D(d time.Duration) Duration { return Duration{d} }

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// AutoUpdateTools reports whether serve refreshes yt-dlp at start-up.
func (c *Config) AutoUpdateTools() bool {
	return c.Tools.AutoUpdate == nil || *c.Tools.AutoUpdate
}

// SweepEnabled reports whether serve schedules the sweep.
func (c *Config) SweepEnabled() bool {
	return c.Sweep.Enabled == nil || *c.Sweep.Enabled
}

// ProxyPool returns the configured pool, or nil when no endpoints are set.
func (c *Config) ProxyPool() *types.ProxyPool {
	if len(c.Proxy.Endpoints) == 0 {
		return nil
	}
	return &types.ProxyPool{Strategy: c.Proxy.Strategy, Endpoints: c.Proxy.Endpoints}
}

// RegistryPath is the token registry document.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.Server.DataDir, "servers.json")
}

// LedgerPath is the quota ledger document.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Server.DataDir, "quota.json")
}
