package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TheoDgb/URLCustomDiscsAPI/iox"
	"github.com/TheoDgb/URLCustomDiscsAPI/pack"
	"github.com/TheoDgb/URLCustomDiscsAPI/types"
)

// RegisterRequest registers a new game server.
type RegisterRequest struct {
	// PlatformVersion selects the pack template. Empty selects the
	// current schema.
	PlatformVersion string
}

// RegisterResult carries the new token and its pack URL.
type RegisterResult struct {
	Token       string
	DownloadURL string
	Warnings    []string
}

// Register creates a token and uploads a fresh pack for it. If the pack
// cannot be stored the registry entry is removed and no token is returned.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (res RegisterResult, err error) {
	start := s.cfg.Now()
	token := s.cfg.NewToken()
	var size int64
	defer func() { s.finish(ctx, OpRegister, token, "", start, size, err) }()

	schema := pack.SchemaCurrent
	if v := strings.TrimSpace(req.PlatformVersion); v != "" {
		pv, perr := types.ParsePlatformVersion(v)
		if perr != nil {
			return RegisterResult{}, invalid("%v", perr)
		}
		schema = pack.SchemaFor(pv)
	}
	template := s.cfg.Templates.For(schema)
	if template == "" {
		return RegisterResult{}, fail(StageValidated, ErrArchive, fmt.Errorf("no %s pack template configured", schema))
	}

	logger := s.logger.With(map[string]any{"operation": OpRegister, "token": token, "schema": schema.String()})

	if rerr := s.cfg.Registry.Register(token); rerr != nil {
		return RegisterResult{}, fmt.Errorf("register token: %w", rerr)
	}
	rollback := func() {
		if rerr := s.cfg.Registry.Remove(token); rerr != nil {
			logger.Error("registry rollback failed", map[string]any{"error": rerr.Error()})
		}
	}

	ws, werr := s.openWorkspace(token)
	if werr != nil {
		rollback()
		return RegisterResult{}, fail(StagePackFetched, ErrArchive, werr)
	}
	defer ws.cleanup(logger)

	size, err = iox.CopyFile(ws.zip, template)
	if err != nil {
		rollback()
		return RegisterResult{}, fail(StagePackFetched, ErrArchive, fmt.Errorf("copy template %s: %w", filepath.Base(template), err))
	}

	warnings, err := s.publish(ctx, logger, token, ws.zip, size, 0)
	if err != nil {
		rollback()
		return RegisterResult{}, err
	}

	return RegisterResult{
		Token:       token,
		DownloadURL: s.PackURL(token),
		Warnings:    warnings,
	}, nil
}

// CheckTemplates verifies that both pack templates are readable archives.
func (s *Service) CheckTemplates() error {
	for _, schema := range []pack.Schema{pack.SchemaLegacy, pack.SchemaCurrent} {
		path := s.cfg.Templates.For(schema)
		if path == "" {
			return fmt.Errorf("no %s pack template configured", schema)
		}
		fi, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%s pack template: %w", schema, err)
		}
		if fi.IsDir() || fi.Size() == 0 {
			return fmt.Errorf("%s pack template %s is not an archive", schema, path)
		}
	}
	return nil
}
