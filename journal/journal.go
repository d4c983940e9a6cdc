// Package journal records pipeline outcomes in a Lode dataset.
//
// Each finished operation appends one JSONL record, Hive-partitioned by
// day and operation. The dataset can live on the local filesystem, in an
// S3-compatible bucket, or in memory for tests. Summarize aggregates the
// records for the stats command.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/TheoDgb/URLCustomDiscsAPI/store"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "urlcustomdiscs"

// RecordKindOutcome tags outcome records.
const RecordKindOutcome = "outcome"

// OutcomeOK is the outcome of a successful operation.
const OutcomeOK = "ok"

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"day", "operation"}

// Record is one finished pipeline operation.
type Record struct {
	Token     string
	Operation string
	Disc      string
	Outcome   string
	Stage     string
	Error     string
	Duration  time.Duration
	PackBytes int64
	Timestamp time.Time
}

// Journal appends outcome records to a dataset.
type Journal struct {
	ds  lode.Dataset
	now func() time.Time
}

// New wraps an open dataset.
func New(ds lode.Dataset) *Journal {
	return &Journal{ds: ds, now: time.Now}
}

// NewDataset opens the outcome dataset over factory.
func NewDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	if id == "" {
		id = DefaultDataset
	}
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// NewFSDataset opens the dataset under root on the local filesystem.
func NewFSDataset(id, root string) (lode.Dataset, error) {
	return NewDataset(id, lode.NewFSFactory(root))
}

// NewS3Dataset opens the dataset in an S3-compatible bucket, using the
// same client construction as the pack store.
func NewS3Dataset(ctx context.Context, id string, cfg store.S3Config) (lode.Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := store.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	factory := func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: cfg.Bucket,
			Prefix: cfg.Prefix,
		})
	}
	return NewDataset(id, factory)
}

// Dataset returns the underlying dataset.
func (j *Journal) Dataset() lode.Dataset {
	return j.ds
}

// Append writes r as a single-record snapshot. A zero Timestamp is
// replaced with the current time.
func (j *Journal) Append(ctx context.Context, r Record) error {
	if r.Operation == "" {
		return fmt.Errorf("journal: record has no operation")
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = j.now()
	}
	if _, err := j.ds.Write(ctx, []any{toRecordMap(r)}, lode.Metadata{}); err != nil {
		return fmt.Errorf("journal write: %w", err)
	}
	return nil
}

func toRecordMap(r Record) map[string]any {
	ts := r.Timestamp.UTC()
	m := map[string]any{
		"record_kind": RecordKindOutcome,
		"id":          uuid.NewString(),
		"day":         ts.Format(time.DateOnly),
		"operation":   r.Operation,
		"token":       r.Token,
		"outcome":     r.Outcome,
		"duration_ms": r.Duration.Milliseconds(),
		"pack_bytes":  r.PackBytes,
		"ts":          ts.Format(time.RFC3339Nano),
	}
	if r.Disc != "" {
		m["disc"] = r.Disc
	}
	if r.Stage != "" {
		m["stage"] = r.Stage
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

func fromRecordMap(m map[string]any) Record {
	r := Record{
		Token:     toString(m["token"]),
		Operation: toString(m["operation"]),
		Disc:      toString(m["disc"]),
		Outcome:   toString(m["outcome"]),
		Stage:     toString(m["stage"]),
		Error:     toString(m["error"]),
		Duration:  time.Duration(toInt64(m["duration_ms"])) * time.Millisecond,
		PackBytes: toInt64(m["pack_bytes"]),
	}
	if ts, err := time.Parse(time.RFC3339Nano, toString(m["ts"])); err == nil {
		r.Timestamp = ts
	}
	return r
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}
