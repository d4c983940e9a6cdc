package journal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"
)

// Filter narrows Summarize. Empty fields match everything.
type Filter struct {
	Day       string
	Operation string
	Token     string
}

// OperationSummary aggregates the records of one operation.
type OperationSummary struct {
	Operation string           `json:"operation" yaml:"operation"`
	Total     int64            `json:"total" yaml:"total"`
	Outcomes  map[string]int64 `json:"outcomes" yaml:"outcomes"`
	AvgMillis int64            `json:"avg_duration_ms" yaml:"avg_duration_ms"`
	LastAt    time.Time        `json:"last_at" yaml:"last_at"`

	totalMillis int64
}

// Summary is the aggregate view of the journal.
type Summary struct {
	Total      int64              `json:"total" yaml:"total"`
	Failures   int64              `json:"failures" yaml:"failures"`
	Operations []OperationSummary `json:"operations" yaml:"operations"`
}

// Summarize reads every snapshot of ds and aggregates outcome records by
// operation and outcome. Records are deduplicated by ID, so cumulative
// snapshots are not double counted.
func Summarize(ctx context.Context, ds lode.Dataset, f Filter) (Summary, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("journal snapshots: %w", err)
	}

	seen := make(map[string]struct{})
	byOp := make(map[string]*OperationSummary)
	var sum Summary

	for _, snap := range snapshots {
		if !snapshotMatches(snap, "day", f.Day) || !snapshotMatches(snap, "operation", f.Operation) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return Summary{}, fmt.Errorf("journal read %s: %w", snap.ID, err)
		}
		for _, item := range data {
			m, ok := item.(map[string]any)
			if !ok || m["record_kind"] != RecordKindOutcome {
				continue
			}
			if id := toString(m["id"]); id != "" {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
			if f.Day != "" && toString(m["day"]) != f.Day {
				continue
			}
			r := fromRecordMap(m)
			if f.Operation != "" && r.Operation != f.Operation {
				continue
			}
			if f.Token != "" && r.Token != f.Token {
				continue
			}
			add(&sum, byOp, r)
		}
	}

	for _, op := range byOp {
		if op.Total > 0 {
			op.AvgMillis = op.totalMillis / op.Total
		}
		sum.Operations = append(sum.Operations, *op)
	}
	sort.Slice(sum.Operations, func(i, j int) bool {
		return sum.Operations[i].Operation < sum.Operations[j].Operation
	})
	return sum, nil
}

func add(sum *Summary, byOp map[string]*OperationSummary, r Record) {
	op, ok := byOp[r.Operation]
	if !ok {
		op = &OperationSummary{Operation: r.Operation, Outcomes: map[string]int64{}}
		byOp[r.Operation] = op
	}
	op.Total++
	op.Outcomes[r.Outcome]++
	op.totalMillis += r.Duration.Milliseconds()
	if r.Timestamp.After(op.LastAt) {
		op.LastAt = r.Timestamp
	}
	sum.Total++
	if r.Outcome != OutcomeOK {
		sum.Failures++
	}
}

// snapshotMatches reports whether any file of snap sits under the
// key=value partition. An empty value matches.
func snapshotMatches(snap *lode.Snapshot, key, value string) bool {
	if value == "" {
		return true
	}
	segment := key + "=" + value
	for _, f := range snap.Manifest.Files {
		for _, part := range strings.Split(f.Path, "/") {
			if part == segment {
				return true
			}
		}
	}
	return false
}

// Headers and Rows render the summary as one line per operation.
func (s Summary) Headers() []string {
	return []string{"operation", "total", "ok", "failed", "avg_ms", "last_at", "outcomes"}
}

func (s Summary) Rows() [][]string {
	rows := make([][]string, 0, len(s.Operations))
	for _, op := range s.Operations {
		ok := op.Outcomes[OutcomeOK]
		outcomes := make([]string, 0, len(op.Outcomes))
		for o, n := range op.Outcomes {
			if o != OutcomeOK {
				outcomes = append(outcomes, fmt.Sprintf("%s=%d", o, n))
			}
		}
		sort.Strings(outcomes)
		last := ""
		if !op.LastAt.IsZero() {
			last = op.LastAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			op.Operation,
			fmt.Sprint(op.Total),
			fmt.Sprint(ok),
			fmt.Sprint(op.Total - ok),
			fmt.Sprint(op.AvgMillis),
			last,
			strings.Join(outcomes, " "),
		})
	}
	return rows
}
