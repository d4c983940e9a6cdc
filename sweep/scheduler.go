package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/TheoDgb/URLCustomDiscsAPI/log"
)

// Default schedule: Mondays at 03:00 in DefaultTimezone.
const (
	DefaultSchedule = "0 3 * * 1"
	DefaultTimezone = "America/New_York"
)

// ValidateSchedule checks a standard five-field cron expression.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return nil
}

// Scheduler runs a Sweeper on a cron schedule. Overlapping runs are
// skipped.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
	logger  *log.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	entry   cron.EntryID
}

// NewScheduler schedules sweeper on spec, evaluated in timezone.
func NewScheduler(sweeper *Sweeper, spec, timezone string, logger *log.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("sweep timezone %q: %w", timezone, err)
	}
	if logger == nil {
		logger = log.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		sweeper: sweeper,
		logger:  logger.With(map[string]any{"component": "sweep_scheduler"}),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.entry, err = s.cron.AddFunc(spec, s.run)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	if _, err := s.sweeper.Run(s.ctx); err != nil {
		s.logger.Error("scheduled sweep failed", map[string]any{"error": err.Error()})
	}
}

// Start begins scheduling in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("sweep scheduled", map[string]any{"next_run": s.Next().Format(time.RFC3339)})
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Stop cancels a running sweep and waits for it to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
