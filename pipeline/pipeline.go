// Package pipeline provisions custom music discs into per-token resource packs.
//
// Every mutating request passes the entry guards (registered token, rate
// limit, admission) and then runs as one serialized unit for its token:
//
//	validated → media_acquired → pack_fetched → pack_mutated →
//	quota_reserved → uploaded → quota_committed → workspace_cleaned
//
// The first failing state is terminal and is returned as a *StageError.
// The workspace is removed on every exit path. The quota ledger is only
// committed after the remote write succeeded; a commit failure at that
// point is a soft warning, never a rollback.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TheoDgb/URLCustomDiscsAPI/adapter"
	"github.com/TheoDgb/URLCustomDiscsAPI/admission"
	"github.com/TheoDgb/URLCustomDiscsAPI/journal"
	"github.com/TheoDgb/URLCustomDiscsAPI/log"
	"github.com/TheoDgb/URLCustomDiscsAPI/media"
	"github.com/TheoDgb/URLCustomDiscsAPI/metrics"
	"github.com/TheoDgb/URLCustomDiscsAPI/pack"
	"github.com/TheoDgb/URLCustomDiscsAPI/store"
	"github.com/TheoDgb/URLCustomDiscsAPI/types"
)

// Operations, as recorded in the journal.
const (
	OpRegister         = "register"
	OpCreateDisc       = "create_disc"
	OpCreateDiscUpload = "create_disc_upload"
	OpDeleteDisc       = "delete_disc"
)

// Default ceilings.
const (
	DefaultMaxDuration   = 300 * time.Second
	DefaultMaxAudioBytes = 12 * 1000 * 1000
	DefaultMaxPackBytes  = 80 * 1000 * 1000
	DefaultMaxDiscs      = 50
)

// Media probes, downloads and transcodes audio.
type Media interface {
	Probe(ctx context.Context, url string) (media.ProbeResult, error)
	Acquire(ctx context.Context, url, name string, mode types.ChannelMode, workDir string) (string, error)
	ProbeFile(ctx context.Context, path string) (media.ProbeResult, error)
	Transcode(ctx context.Context, src, name string, mode types.ChannelMode, workDir string) (string, error)
}

// Registry is the set of registered tokens.
type Registry interface {
	Register(token string) error
	Exists(token string) (bool, error)
	Touch(token string) error
	Remove(token string) error
}

// Ledger is the quota ledger.
type Ledger interface {
	Reserve(candidate int64) error
	Commit(newSize, oldSize int64) error
}

// Limiter is the per-token rate limiter.
type Limiter interface {
	Allow(token string) bool
}

// Admission serializes units per token.
type Admission interface {
	Do(ctx context.Context, token string, work admission.Work) error
}

// Journal records finished operations.
type Journal interface {
	Append(ctx context.Context, r journal.Record) error
}

// Limits are the request ceilings.
type Limits struct {
	MaxDuration   time.Duration
	MaxAudioBytes int64
	MaxPackBytes  int64
	MaxDiscs      int
}

// Config wires a Service. Media, Store, Registry, Ledger, Limiter and
// Admission are required; the rest are optional.
type Config struct {
	// DataDir holds the per-token workspaces under temp/.
	DataDir string
	// PublicHost is the host serving pack archives, e.g. packs.example.com.
	// A value with a scheme is used as the URL prefix unchanged.
	PublicHost string
	Templates  pack.Templates
	Limits     Limits

	Media     Media
	Store     store.Store
	Registry  Registry
	Ledger    Ledger
	Limiter   Limiter
	Admission Admission

	Journal  Journal
	Notifier adapter.Adapter
	Metrics  *metrics.Collector
	Logger   *log.Logger

	// NewToken generates registration tokens. Defaults to random UUIDs.
	NewToken func() string
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Service runs the provisioning pipeline.
type Service struct {
	cfg    Config
	logger *log.Logger
}

// New validates cfg, applies defaults and returns a Service.
func New(cfg Config) (*Service, error) {
	var missing []string
	for name, set := range map[string]bool{
		"media":     cfg.Media != nil,
		"store":     cfg.Store != nil,
		"registry":  cfg.Registry != nil,
		"ledger":    cfg.Ledger != nil,
		"limiter":   cfg.Limiter != nil,
		"admission": cfg.Admission != nil,
	} {
		if !set {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline: missing dependencies: %s", strings.Join(missing, ", "))
	}
	if cfg.DataDir == "" {
		return nil, errors.New("pipeline: data dir is required")
	}

	if cfg.Limits.MaxDuration <= 0 {
		cfg.Limits.MaxDuration = DefaultMaxDuration
	}
	if cfg.Limits.MaxAudioBytes <= 0 {
		cfg.Limits.MaxAudioBytes = DefaultMaxAudioBytes
	}
	if cfg.Limits.MaxPackBytes <= 0 {
		cfg.Limits.MaxPackBytes = DefaultMaxPackBytes
	}
	if cfg.Limits.MaxDiscs <= 0 {
		cfg.Limits.MaxDiscs = DefaultMaxDiscs
	}
	if cfg.NewToken == nil {
		cfg.NewToken = uuid.NewString
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{cfg: cfg, logger: logger.With(map[string]any{"component": "pipeline"})}, nil
}

// Limits returns the effective ceilings.
func (s *Service) Limits() Limits {
	return s.cfg.Limits
}

// PackURL returns the public download URL of token's pack.
func (s *Service) PackURL(token string) string {
	host := strings.TrimSuffix(s.cfg.PublicHost, "/")
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return host + "/" + types.PackKey(token)
}

// Result is the outcome of a successful mutation.
type Result struct {
	Message   string
	Warnings  []string
	PackBytes int64
}

// guard runs the entry guards for token and then fn as one admitted unit.
// Guards reject at once, before any resource is acquired.
func (s *Service) guard(ctx context.Context, op, token string, fn func(ctx context.Context, logger *log.Logger) error) error {
	logger := s.logger.With(map[string]any{"operation": op, "token": token})

	ok, err := s.cfg.Registry.Exists(token)
	if err != nil {
		return fmt.Errorf("registry lookup: %w", err)
	}
	if !ok {
		s.cfg.Metrics.IncInvalidToken()
		logger.Info("request rejected", map[string]any{"reason": OutcomeInvalidToken})
		return fail(StageValidated, ErrInvalidToken, nil)
	}

	if !s.cfg.Limiter.Allow(token) {
		s.cfg.Metrics.IncRateLimited()
		logger.Info("request rejected", map[string]any{"reason": OutcomeRateLimited})
		return fail(StageValidated, ErrRateLimited, nil)
	}

	err = s.cfg.Admission.Do(ctx, token, func(ctx context.Context) error {
		s.cfg.Metrics.IncAccepted()
		logger.Info("request accepted", nil)
		if err := s.cfg.Registry.Touch(token); err != nil {
			logger.Warn("activity timestamp not updated", map[string]any{"error": err.Error()})
		}
		return fn(ctx, logger)
	})
	switch {
	case errors.Is(err, admission.ErrBusy), errors.Is(err, admission.ErrClosed):
		s.cfg.Metrics.IncBusy()
		logger.Info("request rejected", map[string]any{"reason": OutcomeBusy})
		return fail(StageValidated, ErrBusy, err)
	case errors.Is(err, admission.ErrWorkPanicked):
		logger.Error("unit panicked", map[string]any{"error": err.Error()})
	}
	return err
}

// finish records a finished operation: counters, journal and, on success,
// the pack-change notification. None of it affects the result.
func (s *Service) finish(ctx context.Context, op, token, disc string, start time.Time, packBytes int64, err error) {
	outcome := OutcomeOf(err)
	fields := map[string]any{
		"operation":   op,
		"token":       token,
		"outcome":     outcome,
		"duration_ms": s.cfg.Now().Sub(start).Milliseconds(),
	}
	if disc != "" {
		fields["disc"] = disc
	}

	if err != nil {
		s.cfg.Metrics.IncFailure(outcome)
		fields["stage"] = string(StageOf(err))
		fields["error"] = err.Error()
		switch outcome {
		case OutcomeInvalidToken, OutcomeRateLimited, OutcomeBusy, OutcomeValidation, OutcomeNotFound:
			s.logger.Info("operation rejected", fields)
		default:
			s.logger.Error("stage failed", fields)
		}
	} else {
		switch op {
		case OpRegister:
			s.cfg.Metrics.IncRegistration()
		case OpDeleteDisc:
			s.cfg.Metrics.IncDiscDeleted()
		default:
			s.cfg.Metrics.IncDiscCreated()
		}
		s.logger.Info("operation completed", fields)
	}

	// Records outlive a canceled request context.
	bg := context.WithoutCancel(ctx)
	s.record(bg, op, token, disc, start, packBytes, err)
	if err == nil {
		s.notify(bg, op, token, disc, packBytes)
	}
}

func (s *Service) record(ctx context.Context, op, token, disc string, start time.Time, packBytes int64, err error) {
	if s.cfg.Journal == nil {
		return
	}
	r := journal.Record{
		Token:     token,
		Operation: op,
		Disc:      disc,
		Outcome:   OutcomeOf(err),
		Stage:     string(StageOf(err)),
		Duration:  s.cfg.Now().Sub(start),
		PackBytes: packBytes,
		Timestamp: s.cfg.Now(),
	}
	if err != nil {
		r.Error = err.Error()
	}
	if jerr := s.cfg.Journal.Append(ctx, r); jerr != nil {
		s.cfg.Metrics.IncJournalFailure()
		s.logger.Warn("journal append failed", map[string]any{"operation": op, "token": token, "error": jerr.Error()})
	}
}

// notifyTimeout bounds a notification including its retries.
const notifyTimeout = 15 * time.Second

var eventTypes = map[string]string{
	OpRegister:         adapter.EventPackRegistered,
	OpCreateDisc:       adapter.EventDiscCreated,
	OpCreateDiscUpload: adapter.EventDiscCreated,
	OpDeleteDisc:       adapter.EventDiscDeleted,
}

func (s *Service) notify(ctx context.Context, op, token, disc string, packBytes int64) {
	if s.cfg.Notifier == nil {
		return
	}
	event := &adapter.PackChangedEvent{
		EventType:      eventTypes[op],
		Token:          token,
		Disc:           disc,
		PackURL:        s.PackURL(token),
		PackBytes:      packBytes,
		Timestamp:      s.cfg.Now().UTC().Format(time.RFC3339),
		ServiceVersion: types.Version,
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := s.cfg.Notifier.Publish(ctx, event); err != nil {
		s.cfg.Metrics.IncNotifyFailure()
		s.logger.Warn("pack-change notification failed", map[string]any{"operation": op, "token": token, "error": err.Error()})
	}
}
