package journal

import (
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"
)

// sharedFactory lets write and read datasets share one in-memory store.
func sharedFactory(s lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return s, nil }
}

func newMemoryJournal(t *testing.T) (*Journal, lode.StoreFactory) {
	t.Helper()
	factory := sharedFactory(lode.NewMemory())
	ds, err := NewDataset("", factory)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	return New(ds), factory
}

func TestAppend_RoundTrip(t *testing.T) {
	j, factory := newMemoryJournal(t)
	at := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

	err := j.Append(t.Context(), Record{
		Token:     "tok-1",
		Operation: "create_disc",
		Disc:      "song1",
		Outcome:   OutcomeOK,
		Duration:  1500 * time.Millisecond,
		PackBytes: 2048,
		Timestamp: at,
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	ds, err := NewDataset(DefaultDataset, factory)
	if err != nil {
		t.Fatal(err)
	}
	latest, err := ds.Latest(t.Context())
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	data, err := ds.Read(t.Context(), latest.ID)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(data) != 1 {
		t.Fatalf("Read returned %d items, want 1", len(data))
	}
	m, ok := data[0].(map[string]any)
	if !ok {
		t.Fatalf("record type = %T, want map[string]any", data[0])
	}
	if m["record_kind"] != RecordKindOutcome {
		t.Errorf("record_kind = %v", m["record_kind"])
	}
	if m["day"] != "2026-03-02" {
		t.Errorf("day = %v, want 2026-03-02", m["day"])
	}

	r := fromRecordMap(m)
	if r.Token != "tok-1" || r.Disc != "song1" || r.Outcome != OutcomeOK {
		t.Errorf("record = %+v", r)
	}
	if r.Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v", r.Duration)
	}
	if r.PackBytes != 2048 {
		t.Errorf("pack_bytes = %d", r.PackBytes)
	}
	if !r.Timestamp.Equal(at) {
		t.Errorf("ts = %v, want %v", r.Timestamp, at)
	}
}

func TestAppend_RequiresOperation(t *testing.T) {
	j, _ := newMemoryJournal(t)
	if err := j.Append(t.Context(), Record{Outcome: OutcomeOK}); err == nil {
		t.Fatal("expected error for record without operation")
	}
}

func TestAppend_DefaultsTimestamp(t *testing.T) {
	j, _ := newMemoryJournal(t)
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	if err := j.Append(t.Context(), Record{Operation: "register", Outcome: OutcomeOK}); err != nil {
		t.Fatal(err)
	}
	sum, err := Summarize(t.Context(), j.Dataset(), Filter{Day: "2026-05-01"})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Total != 1 {
		t.Errorf("Total = %d, want 1", sum.Total)
	}
}

func TestSummarize(t *testing.T) {
	j, _ := newMemoryJournal(t)
	day1 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	records := []Record{
		{Token: "a", Operation: "register", Outcome: OutcomeOK, Duration: 100 * time.Millisecond, Timestamp: day1},
		{Token: "a", Operation: "create_disc", Outcome: OutcomeOK, Duration: 300 * time.Millisecond, Timestamp: day1},
		{Token: "a", Operation: "create_disc", Outcome: "tool_failed", Stage: "media_acquired", Duration: 100 * time.Millisecond, Timestamp: day1.Add(time.Hour)},
		{Token: "b", Operation: "create_disc", Outcome: OutcomeOK, Duration: 200 * time.Millisecond, Timestamp: day2},
		{Token: "b", Operation: "delete_disc", Outcome: "not_found", Timestamp: day2},
	}
	for _, r := range records {
		if err := j.Append(t.Context(), r); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	sum, err := Summarize(t.Context(), j.Dataset(), Filter{})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if sum.Total != 5 {
		t.Errorf("Total = %d, want 5", sum.Total)
	}
	if sum.Failures != 2 {
		t.Errorf("Failures = %d, want 2", sum.Failures)
	}
	if len(sum.Operations) != 3 {
		t.Fatalf("Operations = %d, want 3", len(sum.Operations))
	}

	// Sorted by operation name.
	create := sum.Operations[0]
	if create.Operation != "create_disc" {
		t.Fatalf("first operation = %q, want create_disc", create.Operation)
	}
	if create.Total != 3 || create.Outcomes[OutcomeOK] != 2 || create.Outcomes["tool_failed"] != 1 {
		t.Errorf("create_disc summary = %+v", create)
	}
	if create.AvgMillis != 200 {
		t.Errorf("AvgMillis = %d, want 200", create.AvgMillis)
	}
	if !create.LastAt.Equal(day2) {
		t.Errorf("LastAt = %v, want %v", create.LastAt, day2)
	}

	tests := []struct {
		name   string
		filter Filter
		want   int64
	}{
		{"by day", Filter{Day: "2026-03-02"}, 3},
		{"by operation", Filter{Operation: "create_disc"}, 3},
		{"by token", Filter{Token: "b"}, 2},
		{"day and operation", Filter{Day: "2026-03-03", Operation: "create_disc"}, 1},
		{"no match", Filter{Day: "2020-01-01"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Summarize(t.Context(), j.Dataset(), tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if got.Total != tt.want {
				t.Errorf("Total = %d, want %d", got.Total, tt.want)
			}
		})
	}
}

func TestNewFSDataset(t *testing.T) {
	ds, err := NewFSDataset("journal", t.TempDir())
	if err != nil {
		t.Fatalf("NewFSDataset failed: %v", err)
	}
	if ds.ID() != "journal" {
		t.Errorf("Dataset ID = %q, want %q", ds.ID(), "journal")
	}
	j := New(ds)
	if err := j.Append(t.Context(), Record{Operation: "register", Outcome: OutcomeOK}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	sum, err := Summarize(t.Context(), ds, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Total != 1 {
		t.Errorf("Total = %d, want 1", sum.Total)
	}
}

func TestSummary_Rows(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	sum := Summary{Operations: []OperationSummary{{
		Operation: "create_disc",
		Total:     4,
		Outcomes:  map[string]int64{"ok": 2, "tool_failed": 1, "busy": 1},
		AvgMillis: 1500,
		LastAt:    at,
	}}}
	rows := sum.Rows()
	if len(rows) != 1 {
		t.Fatalf("rows = %v", rows)
	}
	want := []string{"create_disc", "4", "2", "2", "1500", "2026-05-04T10:00:00Z", "busy=1 tool_failed=1"}
	if strings.Join(rows[0], "|") != strings.Join(want, "|") {
		t.Errorf("row = %v, want %v", rows[0], want)
	}
	if len(sum.Headers()) != len(want) {
		t.Errorf("headers = %v", sum.Headers())
	}
}
