package media

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func newReleaseServer(t *testing.T, tag string, binary []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var downloads atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/vnd.github.v3+json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tag_name": "` + tag + `"}`))
	})
	mux.HandleFunc("/download/yt-dlp_linux", func(w http.ResponseWriter, _ *http.Request) {
		downloads.Add(1)
		_, _ = w.Write(binary)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &downloads
}

func TestInstaller_UpdatesWhenVersionsDiffer(t *testing.T) {
	srv, downloads := newReleaseServer(t, "v2025.06.30", []byte("#!/bin/sh\necho 2025.06.30\n"))
	binDir := t.TempDir()
	runner := &stubRunner{handle: func(string, []string, int) ([]byte, error) {
		return []byte("2025.01.15\n"), nil
	}}

	inst := &Installer{
		BinDir:      binDir,
		ReleaseAPI:  srv.URL + "/releases/latest",
		DownloadURL: srv.URL + "/download/yt-dlp_linux",
		HTTPClient:  srv.Client(),
		Runner:      runner,
	}

	report, err := inst.Update(t.Context())
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !report.Updated {
		t.Error("Updated = false, want true")
	}
	if report.LocalVersion != "2025.01.15" || report.LatestVersion != "2025.06.30" {
		t.Errorf("versions = %q -> %q", report.LocalVersion, report.LatestVersion)
	}
	if downloads.Load() != 1 {
		t.Errorf("downloads = %d, want 1", downloads.Load())
	}

	fi, err := os.Stat(filepath.Join(binDir, "yt-dlp"))
	if err != nil {
		t.Fatalf("binary not installed: %v", err)
	}
	if fi.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", fi.Mode().Perm())
	}
	entries, _ := os.ReadDir(binDir)
	if len(entries) != 1 {
		t.Errorf("bin dir has %d entries, want 1 (temp files left behind)", len(entries))
	}
}

func TestInstaller_SkipsWhenCurrent(t *testing.T) {
	srv, downloads := newReleaseServer(t, "v2025.06.30", []byte("bin"))
	runner := &stubRunner{handle: func(string, []string, int) ([]byte, error) {
		return []byte("2025.06.30"), nil
	}}
	inst := &Installer{
		BinDir:      t.TempDir(),
		ReleaseAPI:  srv.URL + "/releases/latest",
		DownloadURL: srv.URL + "/download/yt-dlp_linux",
		HTTPClient:  srv.Client(),
		Runner:      runner,
	}

	report, err := inst.Update(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if report.Updated {
		t.Error("Updated = true, want false")
	}
	if downloads.Load() != 0 {
		t.Errorf("downloads = %d, want 0", downloads.Load())
	}
}

func TestInstaller_MissingBinaryIsInstalled(t *testing.T) {
	srv, downloads := newReleaseServer(t, "2025.06.30", []byte("bin"))
	runner := &stubRunner{handle: func(name string, _ []string, _ int) ([]byte, error) {
		return nil, &ToolError{Tool: name, Err: os.ErrNotExist}
	}}
	inst := &Installer{
		BinDir:      filepath.Join(t.TempDir(), "bin"),
		ReleaseAPI:  srv.URL + "/releases/latest",
		DownloadURL: srv.URL + "/download/yt-dlp_linux",
		HTTPClient:  srv.Client(),
		Runner:      runner,
	}

	if err := inst.Refresh(t.Context()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if downloads.Load() != 1 {
		t.Errorf("downloads = %d, want 1", downloads.Load())
	}
}

func TestInstaller_ReleaseAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	inst := &Installer{
		BinDir:     t.TempDir(),
		ReleaseAPI: srv.URL,
		HTTPClient: srv.Client(),
		Runner:     &stubRunner{},
	}
	if _, err := inst.Update(t.Context()); err == nil {
		t.Fatal("expected error for 403 release API")
	}
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	results := CheckBinaries([]Requirement{
		{Name: "ffmpeg", Command: present},
		{Name: "ffprobe", Command: "clearly-not-present-binary"},
		{Name: "optional", Command: "also-not-present", Optional: true},
		{Name: "empty"},
	})
	if len(results) != 4 {
		t.Fatalf("results = %d, want 4", len(results))
	}
	if !results[0].Available || results[0].Path == "" {
		t.Errorf("present binary: %+v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Errorf("missing binary: %+v", results[1])
	}
	if results[3].Detail != "command not configured" {
		t.Errorf("empty command detail = %q", results[3].Detail)
	}

	missing := Missing(results)
	if len(missing) != 2 {
		t.Fatalf("Missing = %d, want 2 (optional excluded)", len(missing))
	}
	if missing[0].Name != "ffprobe" || missing[1].Name != "empty" {
		t.Errorf("Missing = %+v", missing)
	}
}
