package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/TheoDgb/URLCustomDiscsAPI/log"
	"github.com/TheoDgb/URLCustomDiscsAPI/media"
	"github.com/TheoDgb/URLCustomDiscsAPI/pack"
	"github.com/TheoDgb/URLCustomDiscsAPI/types"
)

// CreateDiscRequest adds a disc from a media URL.
type CreateDiscRequest struct {
	URL             string
	DiscName        string
	Mode            string
	CustomModelData int
	Token           string
	// PlatformVersion selects the schema. Empty detects it from the pack.
	PlatformVersion string
}

// UploadDiscRequest adds a disc from an uploaded audio file. The file at
// AudioPath is removed before the call returns.
type UploadDiscRequest struct {
	AudioPath       string
	DiscName        string
	Mode            string
	CustomModelData int
	Token           string
	PlatformVersion string
}

// DeleteDiscRequest removes a disc.
type DeleteDiscRequest struct {
	DiscName        string
	Token           string
	PlatformVersion string
}

type discSpec struct {
	name    string
	mode    types.ChannelMode
	cmd     int
	version *types.PlatformVersion
}

func parseDisc(name, mode string, cmd int, version string) (discSpec, error) {
	spec := discSpec{name: name, cmd: cmd}
	if err := types.ValidateDiscName(name); err != nil {
		return spec, invalid("%v", err)
	}
	m, err := types.ParseChannelMode(mode)
	if err != nil {
		return spec, invalid("%v", err)
	}
	spec.mode = m
	if cmd <= 0 {
		return spec, invalid("customModelData must be a positive integer, got %d", cmd)
	}
	v, err := parseVersion(version)
	if err != nil {
		return spec, err
	}
	spec.version = v
	return spec, nil
}

func parseVersion(s string) (*types.PlatformVersion, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := types.ParsePlatformVersion(s)
	if err != nil {
		return nil, invalid("%v", err)
	}
	return &v, nil
}

// schemaOf resolves the pack schema from the request version, or from the
// unpacked pack when no version was given.
func schemaOf(v *types.PlatformVersion, dir string) (pack.Schema, error) {
	if v != nil {
		return pack.SchemaFor(*v), nil
	}
	s, err := pack.DetectSchema(dir)
	if err != nil {
		return s, fail(StagePackFetched, ErrArchive, err)
	}
	return s, nil
}

func mediaFailure(stage Stage, err error) error {
	if errors.Is(err, media.ErrAuthorization) {
		return fail(stage, ErrAuthorization, err)
	}
	return fail(stage, ErrToolFailure, err)
}

// checkProbe enforces the duration and audio-size ceilings. An unknown
// duration or size is always rejected.
func (s *Service) checkProbe(p media.ProbeResult) error {
	lim := s.cfg.Limits
	switch {
	case !p.DurationKnown:
		return invalid("could not determine the audio duration")
	case p.DurationSeconds > lim.MaxDuration.Seconds():
		return invalid("audio duration %.0fs exceeds the %.0fs limit", p.DurationSeconds, lim.MaxDuration.Seconds())
	case !p.SizeKnown:
		return invalid("could not determine the audio size")
	case p.SizeBytes > lim.MaxAudioBytes:
		return invalid("audio size %d bytes exceeds the %d byte limit", p.SizeBytes, lim.MaxAudioBytes)
	}
	return nil
}

// CreateDisc downloads the audio at req.URL and adds it to the token's pack.
func (s *Service) CreateDisc(ctx context.Context, req CreateDiscRequest) (res Result, err error) {
	start := s.cfg.Now()
	var size int64
	defer func() { s.finish(ctx, OpCreateDisc, req.Token, req.DiscName, start, size, err) }()

	spec, err := parseDisc(req.DiscName, req.Mode, req.CustomModelData, req.PlatformVersion)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(req.URL) == "" {
		return Result{}, invalid("url is required")
	}

	err = s.guard(ctx, OpCreateDisc, req.Token, func(ctx context.Context, logger *log.Logger) error {
		probe, perr := s.cfg.Media.Probe(ctx, req.URL)
		if perr != nil {
			return mediaFailure(StageValidated, perr)
		}
		if perr := s.checkProbe(probe); perr != nil {
			return perr
		}

		acquire := func(ctx context.Context, ws *workspace) (string, error) {
			return s.cfg.Media.Acquire(ctx, req.URL, spec.name, spec.mode, ws.media)
		}
		var aerr error
		res, aerr = s.addDisc(ctx, logger, req.Token, spec, acquire)
		size = res.PackBytes
		return aerr
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// CreateDiscFromUpload adds an uploaded audio file to the token's pack.
func (s *Service) CreateDiscFromUpload(ctx context.Context, req UploadDiscRequest) (res Result, err error) {
	start := s.cfg.Now()
	var size int64
	defer func() {
		if req.AudioPath != "" {
			if rerr := os.Remove(req.AudioPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				s.logger.Warn("upload cleanup failed", map[string]any{"path": req.AudioPath, "error": rerr.Error()})
			}
		}
		s.finish(ctx, OpCreateDiscUpload, req.Token, req.DiscName, start, size, err)
	}()

	spec, err := parseDisc(req.DiscName, req.Mode, req.CustomModelData, req.PlatformVersion)
	if err != nil {
		return Result{}, err
	}
	if req.AudioPath == "" {
		return Result{}, invalid("audio file is required")
	}

	err = s.guard(ctx, OpCreateDiscUpload, req.Token, func(ctx context.Context, logger *log.Logger) error {
		probe, perr := s.cfg.Media.ProbeFile(ctx, req.AudioPath)
		if perr != nil {
			return mediaFailure(StageValidated, perr)
		}
		if perr := s.checkProbe(probe); perr != nil {
			return perr
		}

		acquire := func(ctx context.Context, ws *workspace) (string, error) {
			return s.cfg.Media.Transcode(ctx, req.AudioPath, spec.name, spec.mode, ws.media)
		}
		var aerr error
		res, aerr = s.addDisc(ctx, logger, req.Token, spec, acquire)
		size = res.PackBytes
		return aerr
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// addDisc runs media_acquired through workspace_cleaned for a new disc.
func (s *Service) addDisc(ctx context.Context, logger *log.Logger, token string, spec discSpec,
	acquire func(context.Context, *workspace) (string, error)) (Result, error) {
	ws, err := s.openWorkspace(token)
	if err != nil {
		return Result{}, fail(StageMediaAcquired, ErrArchive, err)
	}
	defer ws.cleanup(logger)

	ogg, err := acquire(ctx, ws)
	if err != nil {
		return Result{}, mediaFailure(StageMediaAcquired, err)
	}

	oldSize, err := s.fetch(ctx, token, ws)
	if err != nil {
		return Result{}, err
	}
	schema, err := schemaOf(spec.version, ws.unpacked)
	if err != nil {
		return Result{}, err
	}

	if !pack.HasDisc(ws.unpacked, spec.name) {
		n, err := pack.CountDiscs(ws.unpacked)
		if err != nil {
			return Result{}, fail(StagePackMutated, ErrArchive, err)
		}
		if n >= s.cfg.Limits.MaxDiscs {
			return Result{}, fail(StagePackMutated, ErrValidation,
				fmt.Errorf("pack already holds %d discs, the limit is %d", n, s.cfg.Limits.MaxDiscs))
		}
	}

	err = pack.AddDisc(ws.unpacked, pack.Disc{
		Name:            spec.name,
		CustomModelData: spec.cmd,
		AudioPath:       ogg,
		Schema:          schema,
	})
	if err != nil {
		return Result{}, fail(StagePackMutated, ErrArchive, err)
	}

	newSize, err := s.repack(ws)
	if err != nil {
		return Result{}, err
	}

	warnings, err := s.publish(ctx, logger, token, ws.zip, newSize, oldSize)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Message:   fmt.Sprintf("Disc %q created successfully.", spec.name),
		Warnings:  warnings,
		PackBytes: newSize,
	}, nil
}

// DeleteDisc removes a disc from the token's pack.
func (s *Service) DeleteDisc(ctx context.Context, req DeleteDiscRequest) (res Result, err error) {
	start := s.cfg.Now()
	var size int64
	defer func() { s.finish(ctx, OpDeleteDisc, req.Token, req.DiscName, start, size, err) }()

	if verr := types.ValidateDiscName(req.DiscName); verr != nil {
		return Result{}, invalid("%v", verr)
	}
	version, err := parseVersion(req.PlatformVersion)
	if err != nil {
		return Result{}, err
	}

	err = s.guard(ctx, OpDeleteDisc, req.Token, func(ctx context.Context, logger *log.Logger) error {
		var derr error
		res, derr = s.removeDisc(ctx, logger, req.Token, req.DiscName, version)
		size = res.PackBytes
		return derr
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (s *Service) removeDisc(ctx context.Context, logger *log.Logger, token, name string, version *types.PlatformVersion) (Result, error) {
	ws, err := s.openWorkspace(token)
	if err != nil {
		return Result{}, fail(StagePackFetched, ErrArchive, err)
	}
	defer ws.cleanup(logger)

	oldSize, err := s.fetch(ctx, token, ws)
	if err != nil {
		return Result{}, err
	}
	schema, err := schemaOf(version, ws.unpacked)
	if err != nil {
		return Result{}, err
	}

	report, err := pack.RemoveDisc(ws.unpacked, name, schema)
	if err != nil {
		if errors.Is(err, pack.ErrNotFound) {
			return Result{}, fail(StagePackMutated, ErrNotFound, err)
		}
		return Result{}, fail(StagePackMutated, ErrArchive, err)
	}
	for _, w := range report.Warnings {
		logger.Warn("disc removal warning", map[string]any{"disc": name, "warning": w})
	}

	newSize, err := pack.Repack(ws.unpacked, ws.zip)
	if err != nil {
		return Result{}, fail(StagePackMutated, ErrArchive, err)
	}

	warnings, err := s.publish(ctx, logger, token, ws.zip, newSize, oldSize)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Message:   fmt.Sprintf("Disc %q deleted successfully.", name),
		Warnings:  append(report.Warnings, warnings...),
		PackBytes: newSize,
	}, nil
}
