package sweep

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/TheoDgb/URLCustomDiscsAPI/metrics"
	"github.com/TheoDgb/URLCustomDiscsAPI/quota"
	"github.com/TheoDgb/URLCustomDiscsAPI/registry"
	"github.com/TheoDgb/URLCustomDiscsAPI/store"
)

type fixture struct {
	store    *store.DirStore
	registry *registry.Registry
	ledger   *quota.Ledger
	metrics  *metrics.Collector
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewDirStore(filepath.Join(dir, "bucket"))
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		store:   s,
		ledger:  quota.NewLedger(filepath.Join(dir, "quota.json"), 0),
		metrics: metrics.NewCollector(),
		now:     time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC),
	}
	f.registry = registry.New(filepath.Join(dir, "servers.json"), registry.WithClock(func() time.Time { return f.now }))
	return f
}

// addServer registers token at the given activity time with a pack of size bytes.
func (f *fixture) addServer(t *testing.T, token string, at time.Time, size int) {
	t.Helper()
	saved := f.now
	f.now = at
	if err := f.registry.Register(token); err != nil {
		t.Fatal(err)
	}
	f.now = saved
	if err := f.store.Put(t.Context(), token+".zip", strings.NewReader(strings.Repeat("x", size)), int64(size)); err != nil {
		t.Fatal(err)
	}
	u, err := f.ledger.Usage()
	if err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.Commit(u.UsedBytes+int64(size), u.UsedBytes); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) sweeper(t *testing.T, mutate func(*Config)) *Sweeper {
	t.Helper()
	cfg := Config{
		Store:    f.store,
		Registry: f.registry,
		Ledger:   f.ledger,
		Metrics:  f.metrics,
		Now:      func() time.Time { return f.now },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRun_RemovesInactiveTokens(t *testing.T) {
	f := newFixture(t)
	f.addServer(t, "old", f.now.Add(-91*24*time.Hour), 100)
	f.addServer(t, "recent", f.now.Add(-89*24*time.Hour), 40)

	report, err := f.sweeper(t, nil).Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Candidates != 1 || !slices.Equal(report.Removed, []string{"old"}) {
		t.Fatalf("report = %+v", report)
	}
	if report.FreedBytes != 100 {
		t.Errorf("FreedBytes = %d, want 100", report.FreedBytes)
	}

	if _, err := f.store.Stat(t.Context(), "old.zip"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("old pack still present: %v", err)
	}
	if ok, _ := f.registry.Exists("old"); ok {
		t.Error("old token still registered")
	}
	if ok, _ := f.registry.Exists("recent"); !ok {
		t.Error("recent token removed")
	}
	u, err := f.ledger.Usage()
	if err != nil {
		t.Fatal(err)
	}
	if u.UsedBytes != 40 {
		t.Errorf("used = %d, want 40", u.UsedBytes)
	}
	if snap := f.metrics.Snapshot(); snap.SweepRemoved != 1 || snap.SweepFailed != 0 {
		t.Errorf("metrics = %+v", snap)
	}
}

func TestRun_DryRunChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.addServer(t, "old", f.now.Add(-100*24*time.Hour), 10)

	report, err := f.sweeper(t, func(c *Config) { c.DryRun = true }).Run(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if !report.DryRun || len(report.Removed) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if ok, _ := f.registry.Exists("old"); !ok {
		t.Error("dry run removed the token")
	}
	if _, err := f.store.Stat(t.Context(), "old.zip"); err != nil {
		t.Errorf("dry run removed the pack: %v", err)
	}
}

// failingDelete refuses to delete one key.
type failingDelete struct {
	store.Store
	key string
}

func (f failingDelete) Delete(ctx context.Context, key string) error {
	if key == f.key {
		return errors.New("AccessDenied")
	}
	return f.Store.Delete(ctx, key)
}

func TestRun_KeepsTokenWhenDeleteFails(t *testing.T) {
	f := newFixture(t)
	f.addServer(t, "a", f.now.Add(-120*24*time.Hour), 10)
	f.addServer(t, "b", f.now.Add(-120*24*time.Hour), 20)

	s := f.sweeper(t, func(c *Config) { c.Store = failingDelete{Store: f.store, key: "a.zip"} })
	report, err := s.Run(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Failed) != 1 || report.Failed[0].Token != "a" {
		t.Fatalf("Failed = %+v", report.Failed)
	}
	if !slices.Equal(report.Removed, []string{"b"}) {
		t.Errorf("Removed = %v", report.Removed)
	}
	if ok, _ := f.registry.Exists("a"); !ok {
		t.Error("token with undeleted pack must stay registered")
	}
	if snap := f.metrics.Snapshot(); snap.SweepFailed != 1 {
		t.Errorf("SweepFailed = %d", snap.SweepFailed)
	}
}

func TestRun_MissingPackStillRemovesToken(t *testing.T) {
	f := newFixture(t)
	old := f.now.Add(-200 * 24 * time.Hour)
	saved := f.now
	f.now = old
	if err := f.registry.Register("ghost"); err != nil {
		t.Fatal(err)
	}
	f.now = saved

	report, err := f.sweeper(t, nil).Run(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(report.Removed, []string{"ghost"}) || report.FreedBytes != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestNew_RequiresStoreAndRegistry(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidateSchedule(t *testing.T) {
	if err := ValidateSchedule(DefaultSchedule); err != nil {
		t.Errorf("default schedule rejected: %v", err)
	}
	if err := ValidateSchedule("every monday"); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestScheduler_NextRunIsMondayMorning(t *testing.T) {
	f := newFixture(t)
	sched, err := NewScheduler(f.sweeper(t, nil), "", "", nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	sched.Start()
	defer func() { _ = sched.Stop(t.Context()) }()

	next := sched.Next()
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	next = next.In(loc)
	if next.Weekday() != time.Monday || next.Hour() != 3 || next.Minute() != 0 {
		t.Errorf("next run = %v, want Monday 03:00 %s", next, DefaultTimezone)
	}
}

func TestNewScheduler_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	if _, err := NewScheduler(f.sweeper(t, nil), "nonsense", "", nil); err == nil {
		t.Error("expected error for bad schedule")
	}
	if _, err := NewScheduler(f.sweeper(t, nil), "", "Mars/Olympus", nil); err == nil {
		t.Error("expected error for bad timezone")
	}
}
