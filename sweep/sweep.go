// Package sweep removes packs of servers that stopped using the service.
//
// A token whose last activity is older than the retention period loses its
// remote pack and its registry entry, and the freed bytes are released in
// the quota ledger. A token whose pack cannot be deleted is kept for the
// next run.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheoDgb/URLCustomDiscsAPI/adapter"
	"github.com/TheoDgb/URLCustomDiscsAPI/log"
	"github.com/TheoDgb/URLCustomDiscsAPI/metrics"
	"github.com/TheoDgb/URLCustomDiscsAPI/registry"
	"github.com/TheoDgb/URLCustomDiscsAPI/store"
	"github.com/TheoDgb/URLCustomDiscsAPI/types"
)

// DefaultRetention is how long a token may stay inactive (90 days).
const DefaultRetention = 90 * 24 * time.Hour

// Registry lists and removes tokens.
type Registry interface {
	Inactive(cutoff time.Time) ([]registry.Server, error)
	Remove(token string) error
}

// Ledger releases freed bytes.
type Ledger interface {
	Commit(newSize, oldSize int64) error
}

// Config wires a Sweeper. Store and Registry are required.
type Config struct {
	Store     store.Store
	Registry  Registry
	Ledger    Ledger
	Notifier  adapter.Adapter
	Metrics   *metrics.Collector
	Logger    *log.Logger
	Retention time.Duration
	// DryRun lists candidates without deleting anything.
	DryRun bool
	Now    func() time.Time
}

// Sweeper runs inactivity sweeps.
type Sweeper struct {
	cfg    Config
	logger *log.Logger
}

// Failure is a token the sweep could not remove.
type Failure struct {
	Token string `json:"token" yaml:"token"`
	Error string `json:"error" yaml:"error"`
}

// Report summarizes one run.
type Report struct {
	Cutoff     time.Time `json:"cutoff" yaml:"cutoff"`
	Candidates int       `json:"candidates" yaml:"candidates"`
	Removed    []string  `json:"removed" yaml:"removed"`
	Failed     []Failure `json:"failed,omitempty" yaml:"failed,omitempty"`
	FreedBytes int64     `json:"freed_bytes" yaml:"freed_bytes"`
	DryRun     bool      `json:"dry_run" yaml:"dry_run"`
}

// New returns a Sweeper for cfg.
func New(cfg Config) (*Sweeper, error) {
	if cfg.Store == nil || cfg.Registry == nil {
		return nil, errors.New("sweep: store and registry are required")
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Sweeper{cfg: cfg, logger: logger.With(map[string]any{"component": "sweep"})}, nil
}

// Run sweeps every token inactive since before now - retention.
// Per-token failures are reported, not returned; the error is reserved
// for failing to list the registry.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	report := Report{Cutoff: s.cfg.Now().Add(-s.cfg.Retention), DryRun: s.cfg.DryRun}

	servers, err := s.cfg.Registry.Inactive(report.Cutoff)
	if err != nil {
		return report, fmt.Errorf("list inactive tokens: %w", err)
	}
	report.Candidates = len(servers)

	for _, srv := range servers {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		fields := map[string]any{
			"token":            srv.Token,
			"last_activity_at": srv.LastActivityAt.Format(time.RFC3339),
		}
		if s.cfg.DryRun {
			s.logger.Info("inactive token (dry run)", fields)
			report.Removed = append(report.Removed, srv.Token)
			continue
		}

		freed, err := s.remove(ctx, srv.Token)
		if err != nil {
			fields["error"] = err.Error()
			s.logger.Warn("inactive token kept", fields)
			report.Failed = append(report.Failed, Failure{Token: srv.Token, Error: err.Error()})
			continue
		}
		fields["freed_bytes"] = freed
		s.logger.Info("inactive token removed", fields)
		report.Removed = append(report.Removed, srv.Token)
		report.FreedBytes += freed
	}

	if !s.cfg.DryRun {
		s.cfg.Metrics.AddSweep(len(report.Removed), len(report.Failed))
	}
	s.logger.Info("sweep finished", map[string]any{
		"candidates":  report.Candidates,
		"removed":     len(report.Removed),
		"failed":      len(report.Failed),
		"freed_bytes": report.FreedBytes,
		"dry_run":     s.cfg.DryRun,
	})
	return report, nil
}

// remove deletes token's pack, then its registry entry, then releases the
// pack's bytes. The entry is kept when the pack cannot be deleted.
func (s *Sweeper) remove(ctx context.Context, token string) (int64, error) {
	key := types.PackKey(token)

	size, err := s.cfg.Store.Stat(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("stat pack: %w", err)
	}
	if err := s.cfg.Store.Delete(ctx, key); err != nil {
		return 0, fmt.Errorf("delete pack: %w", err)
	}
	if err := s.cfg.Registry.Remove(token); err != nil {
		return 0, fmt.Errorf("remove registry entry: %w", err)
	}

	if s.cfg.Ledger != nil && size > 0 {
		if err := s.cfg.Ledger.Commit(0, size); err != nil {
			s.cfg.Metrics.IncLedgerWarning()
			s.logger.Error("quota ledger release failed", map[string]any{
				"token":                 token,
				"size":                  size,
				"error":                 err.Error(),
				"manual_reconciliation": true,
			})
		}
	}

	if s.cfg.Notifier != nil {
		event := &adapter.PackChangedEvent{
			EventType:      adapter.EventPackSwept,
			Token:          token,
			Timestamp:      s.cfg.Now().UTC().Format(time.RFC3339),
			ServiceVersion: types.Version,
		}
		if err := s.cfg.Notifier.Publish(ctx, event); err != nil {
			s.cfg.Metrics.IncNotifyFailure()
			s.logger.Warn("pack-change notification failed", map[string]any{"token": token, "error": err.Error()})
		}
	}
	return size, nil
}
