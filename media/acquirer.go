package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TheoDgb/URLCustomDiscsAPI/log"
	"github.com/TheoDgb/URLCustomDiscsAPI/metrics"
	"github.com/TheoDgb/URLCustomDiscsAPI/types"
)

// ProxySource yields the proxy for the next download, or nil for none.
type ProxySource interface {
	Next() (*types.ProxyEndpoint, error)
}

// Refresher replaces the download tool with a current release.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Config configures an Acquirer.
type Config struct {
	// YtDlp, FFmpeg and FFprobe are binary paths. Empty values resolve via PATH.
	YtDlp   string
	FFmpeg  string
	FFprobe string
	// FFmpegLocation, when set, is passed to yt-dlp as --ffmpeg-location.
	FFmpegLocation string

	Runner    Runner
	Proxies   ProxySource
	Refresher Refresher
	Logger    *log.Logger
	Metrics   *metrics.Collector
}

// Acquirer probes, downloads and transcodes audio.
type Acquirer struct {
	ytdlp          string
	ffmpeg         string
	ffprobe        string
	ffmpegLocation string

	runner    Runner
	proxies   ProxySource
	refresher Refresher
	logger    *log.Logger
	metrics   *metrics.Collector
}

// New creates an Acquirer from cfg.
func New(cfg Config) *Acquirer {
	a := &Acquirer{
		ytdlp:          orDefault(cfg.YtDlp, "yt-dlp"),
		ffmpeg:         orDefault(cfg.FFmpeg, "ffmpeg"),
		ffprobe:        orDefault(cfg.FFprobe, "ffprobe"),
		ffmpegLocation: cfg.FFmpegLocation,
		runner:         cfg.Runner,
		proxies:        cfg.Proxies,
		refresher:      cfg.Refresher,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
	}
	if a.runner == nil {
		a.runner = ExecRunner{}
	}
	if a.logger == nil {
		a.logger = log.Nop()
	}
	return a
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (a *Acquirer) refresh(ctx context.Context) error {
	if a.refresher == nil {
		return nil
	}
	return a.refresher.Refresh(ctx)
}

// Probe resolves metadata for url without downloading it.
func (a *Acquirer) Probe(ctx context.Context, url string) (ProbeResult, error) {
	var out []byte
	err := a.retryOnce(ctx, "probe", a.refresh, func(ctx context.Context) error {
		var runErr error
		out, runErr = a.runner.Run(ctx, a.ytdlp, "-j", "--no-playlist", url)
		return runErr
	})
	if err != nil {
		return ProbeResult{}, err
	}
	res, err := parseInfo(out)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: probe: %w", ErrToolFailure, err)
	}
	return res, nil
}

// Acquire downloads url and converts it to <workDir>/<name>.ogg.
// The intermediate MP3 never outlives the call.
func (a *Acquirer) Acquire(ctx context.Context, url, name string, mode types.ChannelMode, workDir string) (string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	mp3 := filepath.Join(workDir, name+".mp3")
	defer func() { _ = os.Remove(mp3) }()

	err := a.retryOnce(ctx, "download", a.refresh, func(ctx context.Context) error {
		_ = os.Remove(mp3)
		args, err := a.downloadArgs(url, mp3)
		if err != nil {
			return err
		}
		if _, err := a.runner.Run(ctx, a.ytdlp, args...); err != nil {
			return err
		}
		if _, err := os.Stat(mp3); err != nil {
			return fmt.Errorf("download produced no file: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return a.Transcode(ctx, mp3, name, mode, workDir)
}

func (a *Acquirer) downloadArgs(url, out string) ([]string, error) {
	args := []string{
		"-f", "bestaudio[ext=m4a]/best",
		"-x", "--audio-format", "mp3",
		"--no-playlist",
		"-o", out,
	}
	if a.ffmpegLocation != "" {
		args = append(args, "--ffmpeg-location", a.ffmpegLocation)
	}
	if a.proxies != nil {
		p, err := a.proxies.Next()
		if err != nil {
			return nil, fmt.Errorf("select proxy: %w", err)
		}
		if p != nil {
			args = append(args, "--proxy", p.URL())
		}
	}
	return append(args, url), nil
}

// Transcode converts src to <workDir>/<name>.ogg (Vorbis), downmixing to
// one channel for ChannelMono.
func (a *Acquirer) Transcode(ctx context.Context, src, name string, mode types.ChannelMode, workDir string) (string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	ogg := filepath.Join(workDir, name+".ogg")

	args := []string{"-y", "-i", src}
	if mode == types.ChannelMono {
		args = append(args, "-ac", "1")
	}
	args = append(args, "-c:a", "libvorbis", ogg)

	err := a.retryOnce(ctx, "transcode", a.refresh, func(ctx context.Context) error {
		if _, err := a.runner.Run(ctx, a.ffmpeg, args...); err != nil {
			_ = os.Remove(ogg)
			return err
		}
		if _, err := os.Stat(ogg); err != nil {
			return fmt.Errorf("transcode produced no file: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return ogg, nil
}

// ProbeFile reports the duration and on-disk size of a local audio file.
func (a *Acquirer) ProbeFile(ctx context.Context, path string) (ProbeResult, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("stat audio: %w", err)
	}
	if fi.IsDir() {
		return ProbeResult{}, errors.New("audio path is a directory")
	}

	out, err := a.runner.Run(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: probe file: %w", ErrToolFailure, err)
	}

	res, err := parseFormatDuration(out)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: probe file: %w", ErrToolFailure, err)
	}
	res.SizeBytes = fi.Size()
	res.SizeKnown = true
	return res, nil
}
