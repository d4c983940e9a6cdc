package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TheoDgb/URLCustomDiscsAPI/log"
	"github.com/TheoDgb/URLCustomDiscsAPI/pack"
	"github.com/TheoDgb/URLCustomDiscsAPI/quota"
	"github.com/TheoDgb/URLCustomDiscsAPI/store"
	"github.com/TheoDgb/URLCustomDiscsAPI/types"
)

// TempDir returns the root of all per-token workspaces under dataDir.
func TempDir(dataDir string) string {
	return filepath.Join(dataDir, "temp")
}

// workspace is the per-token scratch tree:
//
//	<data_dir>/temp/<token>/<token>.zip
//	<data_dir>/temp/<token>/unpacked/
//	<data_dir>/temp/<token>/media/
type workspace struct {
	root     string
	zip      string
	unpacked string
	media    string
}

// openWorkspace recreates token's workspace from scratch.
func (s *Service) openWorkspace(token string) (*workspace, error) {
	root := filepath.Join(TempDir(s.cfg.DataDir), token)
	ws := &workspace{
		root:     root,
		zip:      filepath.Join(root, types.PackKey(token)),
		unpacked: filepath.Join(root, "unpacked"),
		media:    filepath.Join(root, "media"),
	}
	if err := os.RemoveAll(root); err != nil {
		return nil, fmt.Errorf("reset workspace: %w", err)
	}
	if err := os.MkdirAll(ws.media, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return ws, nil
}

// cleanup removes the workspace and any extra transient files. Failures
// are logged and never change the request result.
func (w *workspace) cleanup(logger *log.Logger, extra ...string) {
	if w != nil {
		if err := os.RemoveAll(w.root); err != nil {
			logger.Warn("workspace cleanup failed", map[string]any{"path": w.root, "error": err.Error()})
		}
	}
	for _, p := range extra {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("transient file cleanup failed", map[string]any{"path": p, "error": err.Error()})
		}
	}
}

// fetch downloads and unpacks token's pack and returns the archive size.
func (s *Service) fetch(ctx context.Context, token string, ws *workspace) (int64, error) {
	size, err := s.cfg.Store.Fetch(ctx, types.PackKey(token), ws.zip)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fail(StagePackFetched, ErrNotFound, fmt.Errorf("pack for token: %w", err))
		}
		return 0, fail(StagePackFetched, ErrArchive, err)
	}
	if err := pack.Unpack(ws.zip, ws.unpacked); err != nil {
		return 0, fail(StagePackFetched, ErrArchive, err)
	}
	return size, nil
}

// repack rebuilds the archive and enforces the pack ceiling.
func (s *Service) repack(ws *workspace) (int64, error) {
	size, err := pack.Repack(ws.unpacked, ws.zip)
	if err != nil {
		return 0, fail(StagePackMutated, ErrArchive, err)
	}
	if size > s.cfg.Limits.MaxPackBytes {
		return 0, fail(StagePackMutated, ErrValidation,
			fmt.Errorf("pack would be %d bytes, limit is %d", size, s.cfg.Limits.MaxPackBytes))
	}
	return size, nil
}

// publish runs reserve → upload → commit for the archive at zipPath.
// Nothing is committed unless the upload succeeded. A commit failure after
// the upload is returned as a warning for manual reconciliation.
func (s *Service) publish(ctx context.Context, logger *log.Logger, token, zipPath string, newSize, oldSize int64) (warnings []string, err error) {
	if err := s.cfg.Ledger.Reserve(newSize); err != nil {
		if errors.Is(err, quota.ErrExceeded) {
			return nil, fail(StageQuotaReserved, ErrQuotaExceeded, err)
		}
		return nil, fail(StageQuotaReserved, ErrArchive, fmt.Errorf("ledger unavailable: %w", err))
	}

	if _, err := store.PutFile(ctx, s.cfg.Store, types.PackKey(token), zipPath); err != nil {
		s.cfg.Metrics.AddUpload(false, 0)
		return nil, fail(StageUploaded, ErrUpload, err)
	}
	s.cfg.Metrics.AddUpload(true, newSize)

	if err := s.cfg.Ledger.Commit(newSize, oldSize); err != nil {
		s.cfg.Metrics.IncLedgerWarning()
		logger.Error("quota ledger commit failed after upload", map[string]any{
			"new_size":              newSize,
			"old_size":              oldSize,
			"error":                 err.Error(),
			"manual_reconciliation": true,
		})
		warnings = append(warnings, fmt.Sprintf("storage usage was not recorded (%v); an operator will reconcile it", err))
	}
	return warnings, nil
}
