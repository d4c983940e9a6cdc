package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/TheoDgb/URLCustomDiscsAPI/iox"
	"github.com/TheoDgb/URLCustomDiscsAPI/log"
)

// Release endpoints for the download tool.
const (
	DefaultReleaseAPI  = "https://api.github.com/repos/yt-dlp/yt-dlp/releases/latest"
	DefaultDownloadURL = "https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux"
)

// Installer keeps the yt-dlp binary in BinDir on the latest release.
// It doubles as the Refresher for the retry policy.
type Installer struct {
	// BinDir holds the managed binary.
	BinDir string
	// ReleaseAPI returns JSON with a tag_name field.
	ReleaseAPI string
	// DownloadURL serves the binary itself.
	DownloadURL string

	HTTPClient *http.Client
	Runner     Runner
	Logger     *log.Logger

	mu sync.Mutex
}

// UpdateReport describes one update check.
type UpdateReport struct {
	Path          string `json:"path"`
	LocalVersion  string `json:"local_version"`
	LatestVersion string `json:"latest_version"`
	Updated       bool   `json:"updated"`
}

// BinaryPath returns the managed yt-dlp location.
func (i *Installer) BinaryPath() string {
	return filepath.Join(i.BinDir, "yt-dlp")
}

// Refresh satisfies Refresher.
func (i *Installer) Refresh(ctx context.Context) error {
	_, err := i.Update(ctx)
	return err
}

// Update downloads the latest release when the local version differs from
// it. A missing or broken local binary counts as different.
func (i *Installer) Update(ctx context.Context) (UpdateReport, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	logger := i.Logger
	if logger == nil {
		logger = log.Nop()
	}

	report := UpdateReport{Path: i.BinaryPath()}
	report.LocalVersion = i.localVersion(ctx)

	latest, err := i.latestVersion(ctx)
	if err != nil {
		return report, err
	}
	report.LatestVersion = latest

	logger.Info("download tool versions", map[string]any{
		"local":  orDefault(report.LocalVersion, "none"),
		"latest": latest,
	})

	if report.LocalVersion == latest {
		return report, nil
	}

	if err := i.download(ctx); err != nil {
		return report, err
	}
	report.Updated = true
	logger.Info("download tool updated", map[string]any{
		"path":    report.Path,
		"version": latest,
	})
	return report, nil
}

func (i *Installer) localVersion(ctx context.Context) string {
	runner := i.Runner
	if runner == nil {
		runner = ExecRunner{Timeout: 30 * time.Second}
	}
	out, err := runner.Run(ctx, i.BinaryPath(), "--version")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func (i *Installer) client() *http.Client {
	if i.HTTPClient != nil {
		return i.HTTPClient
	}
	return &http.Client{Timeout: 2 * time.Minute}
}

func (i *Installer) latestVersion(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, orDefault(i.ReleaseAPI, DefaultReleaseAPI), nil)
	if err != nil {
		return "", fmt.Errorf("build release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "urlcustomdiscs")

	resp, err := i.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch latest release: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch latest release: status %d", resp.StatusCode)
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", fmt.Errorf("decode latest release: %w", err)
	}
	if release.TagName == "" {
		return "", errors.New("latest release has no tag_name")
	}
	return strings.TrimPrefix(release.TagName, "v"), nil
}

func (i *Installer) download(ctx context.Context) error {
	if err := os.MkdirAll(i.BinDir, 0o755); err != nil {
		return fmt.Errorf("create bin dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, orDefault(i.DownloadURL, DefaultDownloadURL), nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("User-Agent", "urlcustomdiscs")

	resp, err := i.client().Do(req)
	if err != nil {
		return fmt.Errorf("download tool: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download tool: status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(i.BinDir, ".yt-dlp-*")
	if err != nil {
		return fmt.Errorf("create temp binary: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		iox.DiscardClose(tmp)
		return fmt.Errorf("write binary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close binary: %w", err)
	}
	if err := os.Chmod(tmpName, 0o755); err != nil {
		return fmt.Errorf("chmod binary: %w", err)
	}
	if err := os.Rename(tmpName, i.BinaryPath()); err != nil {
		return fmt.Errorf("install binary: %w", err)
	}
	return nil
}

// Requirement names an external binary the service needs.
type Requirement struct {
	Name     string
	Command  string
	Optional bool
}

// Status reports the availability of a requirement.
type Status struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Optional  bool   `json:"optional"`
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// CheckBinaries resolves each requirement with exec.LookPath.
func CheckBinaries(reqs []Requirement) []Status {
	results := make([]Status, 0, len(reqs))
	for _, req := range reqs {
		st := Status{
			Name:     req.Name,
			Command:  strings.TrimSpace(req.Command),
			Optional: req.Optional,
		}
		if st.Command == "" {
			st.Detail = "command not configured"
			results = append(results, st)
			continue
		}
		path, err := exec.LookPath(st.Command)
		if err != nil {
			st.Detail = fmt.Sprintf("binary %q not found", st.Command)
			results = append(results, st)
			continue
		}
		st.Available = true
		st.Path = path
		results = append(results, st)
	}
	return results
}

// Missing returns the required entries of statuses that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}
