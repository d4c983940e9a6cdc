package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/TheoDgb/URLCustomDiscsAPI/adapter"
	"github.com/TheoDgb/URLCustomDiscsAPI/admission"
	"github.com/TheoDgb/URLCustomDiscsAPI/journal"
	"github.com/TheoDgb/URLCustomDiscsAPI/media"
	"github.com/TheoDgb/URLCustomDiscsAPI/metrics"
	"github.com/TheoDgb/URLCustomDiscsAPI/pack"
	"github.com/TheoDgb/URLCustomDiscsAPI/quota"
	"github.com/TheoDgb/URLCustomDiscsAPI/ratelimit"
	"github.com/TheoDgb/URLCustomDiscsAPI/registry"
	"github.com/TheoDgb/URLCustomDiscsAPI/store"
	"github.com/TheoDgb/URLCustomDiscsAPI/types"
)

// stubMedia fakes the external tools. Acquire and Transcode write a small
// OGG-looking file into the work dir.
type stubMedia struct {
	mu         sync.Mutex
	probe      media.ProbeResult
	probeErr   error
	acquireErr error
	acquired   []string
	probedFile []string
}

func okProbe() media.ProbeResult {
	return media.ProbeResult{
		Title:           "track",
		DurationSeconds: 120,
		DurationKnown:   true,
		SizeBytes:       2_000_000,
		SizeKnown:       true,
	}
}

func (m *stubMedia) Probe(_ context.Context, _ string) (media.ProbeResult, error) {
	return m.probe, m.probeErr
}

func (m *stubMedia) ProbeFile(_ context.Context, path string) (media.ProbeResult, error) {
	m.mu.Lock()
	m.probedFile = append(m.probedFile, path)
	m.mu.Unlock()
	return m.probe, m.probeErr
}

func (m *stubMedia) Acquire(_ context.Context, _, name string, mode types.ChannelMode, dir string) (string, error) {
	return m.produce(name, mode, dir)
}

func (m *stubMedia) Transcode(_ context.Context, _, name string, mode types.ChannelMode, dir string) (string, error) {
	return m.produce(name, mode, dir)
}

func (m *stubMedia) produce(name string, mode types.ChannelMode, dir string) (string, error) {
	if m.acquireErr != nil {
		return "", m.acquireErr
	}
	m.mu.Lock()
	m.acquired = append(m.acquired, name)
	m.mu.Unlock()
	out := filepath.Join(dir, name+".ogg")
	if err := os.WriteFile(out, []byte("OggS-"+string(mode)+"-"+name), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

// flakyStore wraps a real store and can fail uploads.
type flakyStore struct {
	store.Store
	mu      sync.Mutex
	failPut bool
	puts    int
}

func (f *flakyStore) setFailPut(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPut = v
}

func (f *flakyStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	f.mu.Lock()
	fail := f.failPut
	f.puts++
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset by peer")
	}
	return f.Store.Put(ctx, key, r, size)
}

// commitFailingLedger reserves normally and fails every commit.
type commitFailingLedger struct {
	*quota.Ledger
}

func (commitFailingLedger) Commit(int64, int64) error {
	return errors.New("ledger volume is read-only")
}

type busyAdmission struct{}

func (busyAdmission) Do(context.Context, string, admission.Work) error {
	return admission.ErrBusy
}

type recordingJournal struct {
	mu      sync.Mutex
	records []journal.Record
}

func (j *recordingJournal) Append(_ context.Context, r journal.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, r)
	return nil
}

func (j *recordingJournal) outcomes() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.records))
	for i, r := range j.records {
		out[i] = r.Operation + ":" + r.Outcome
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []adapter.PackChangedEvent
}

func (n *recordingNotifier) Publish(_ context.Context, e *adapter.PackChangedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, *e)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

// writeTemplate zips files into dir/name.zip.
func writeTemplate(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()
	src := filepath.Join(dir, name+"-src")
	for rel, content := range files {
		p := filepath.Join(src, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	out := filepath.Join(dir, name+".zip")
	if _, err := pack.Repack(src, out); err != nil {
		t.Fatalf("build template %s: %v", name, err)
	}
	return out
}

// harness is a Service over real registry, ledger, limiter, admission and
// directory store, with stubbed media tools.
type harness struct {
	svc      *Service
	dataDir  string
	media    *stubMedia
	store    *flakyStore
	registry *registry.Registry
	ledger   *quota.Ledger
	journal  *recordingJournal
	notifier *recordingNotifier
	metrics  *metrics.Collector
	tokens   int
}

type harnessOption func(*Config)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")

	templates := pack.Templates{
		Legacy: writeTemplate(t, root, "legacy", map[string]string{
			"pack.mcmeta": `{"pack":{"pack_format":34,"description":"custom discs"}}`,
			"assets/minecraft/models/item/music_disc_13.json": `{"parent":"item/generated","textures":{"layer0":"item/music_disc_13"},"overrides":[]}`,
		}),
		Current: writeTemplate(t, root, "current", map[string]string{
			"pack.mcmeta": `{"pack":{"pack_format":46,"description":"custom discs"}}`,
			"assets/minecraft/items/music_disc_13.json": `{"model":{"type":"minecraft:model","model":"minecraft:item/music_disc_13"}}`,
		}),
	}

	dir, err := store.NewDirStore(filepath.Join(root, "bucket"))
	if err != nil {
		t.Fatal(err)
	}
	adm := admission.New(2, nil)
	t.Cleanup(adm.Close)

	h := &harness{
		dataDir:  dataDir,
		media:    &stubMedia{probe: okProbe()},
		store:    &flakyStore{Store: dir},
		registry: registry.New(filepath.Join(dataDir, "servers.json")),
		ledger:   quota.NewLedger(filepath.Join(dataDir, "quota.json"), 0),
		journal:  &recordingJournal{},
		notifier: &recordingNotifier{},
		metrics:  metrics.NewCollector(),
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		DataDir:    dataDir,
		PublicHost: "packs.example.com",
		Templates:  templates,
		Media:      h.media,
		Store:      h.store,
		Registry:   h.registry,
		Ledger:     h.ledger,
		Limiter:    ratelimit.New(time.Minute, 100),
		Admission:  adm,
		Journal:    h.journal,
		Notifier:   h.notifier,
		Metrics:    h.metrics,
		NewToken: func() string {
			h.tokens++
			return fmt.Sprintf("tok-%d", h.tokens)
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.svc = svc
	return h
}

// register registers a server and fails the test on error.
func (h *harness) register(t *testing.T, version string) string {
	t.Helper()
	res, err := h.svc.Register(t.Context(), RegisterRequest{PlatformVersion: version})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return res.Token
}

// unpackRemote fetches token's pack from the store and unpacks it.
func (h *harness) unpackRemote(t *testing.T, token string) string {
	t.Helper()
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "pack.zip")
	if _, err := h.store.Fetch(t.Context(), types.PackKey(token), zipPath); err != nil {
		t.Fatalf("fetch remote pack: %v", err)
	}
	out := filepath.Join(dir, "unpacked")
	if err := pack.Unpack(zipPath, out); err != nil {
		t.Fatalf("unpack remote pack: %v", err)
	}
	return out
}

func (h *harness) remoteSize(t *testing.T, token string) int64 {
	t.Helper()
	n, err := h.store.Stat(t.Context(), types.PackKey(token))
	if err != nil {
		t.Fatalf("stat remote pack: %v", err)
	}
	return n
}

func (h *harness) used(t *testing.T) int64 {
	t.Helper()
	u, err := h.ledger.Usage()
	if err != nil {
		t.Fatal(err)
	}
	return u.UsedBytes
}
