// Package quota tracks the bytes stored remotely against a global cap.
//
// The ledger is a single JSON document, {"usedBytes": N}. Reserve is a
// read-only check before an upload; Commit applies the size delta only after
// the remote write is confirmed. A failed upload therefore leaves the ledger
// untouched.
package quota

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/TheoDgb/URLCustomDiscsAPI/iox"
)

// DefaultCap is the default storage cap (9 GiB).
const DefaultCap int64 = 9 << 30

// ErrExceeded is returned by Reserve when a candidate would not fit.
var ErrExceeded = errors.New("quota: storage cap exceeded")

type document struct {
	UsedBytes int64 `json:"usedBytes"`
}

// Usage is a point-in-time view of the ledger.
type Usage struct {
	UsedBytes int64 `json:"used_bytes"`
	CapBytes  int64 `json:"cap_bytes"`
	FreeBytes int64 `json:"free_bytes"`
}

// Ledger is the file-backed quota ledger.
type Ledger struct {
	path string
	cap  int64
	mu   sync.Mutex
}

// NewLedger opens the ledger at path. capBytes <= 0 uses DefaultCap.
// A missing document reads as zero usage.
func NewLedger(path string, capBytes int64) *Ledger {
	if capBytes <= 0 {
		capBytes = DefaultCap
	}
	return &Ledger{path: path, cap: capBytes}
}

// Path returns the ledger document path.
func (l *Ledger) Path() string { return l.path }

// Reserve returns ErrExceeded iff used + candidate > cap. It records nothing.
func (l *Ledger) Reserve(candidate int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.read()
	if err != nil {
		return err
	}
	if doc.UsedBytes+candidate > l.cap {
		return fmt.Errorf("%w: used %d + candidate %d > cap %d", ErrExceeded, doc.UsedBytes, candidate, l.cap)
	}
	return nil
}

// Commit replaces oldSize with newSize in the running total, clamped at zero.
// The document is rewritten atomically under the in-process and file locks.
func (l *Ledger) Commit(newSize, oldSize int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return iox.WithFileLock(l.path, func() error {
		doc, err := l.read()
		if err != nil {
			return err
		}
		doc.UsedBytes = max(doc.UsedBytes-oldSize+newSize, 0)

		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode ledger: %w", err)
		}
		if err := iox.WriteFileAtomic(l.path, data, 0o644); err != nil {
			return fmt.Errorf("write ledger: %w", err)
		}
		return nil
	})
}

// Usage reports used, cap and free bytes.
func (l *Ledger) Usage() (Usage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.read()
	if err != nil {
		return Usage{}, err
	}
	return Usage{
		UsedBytes: doc.UsedBytes,
		CapBytes:  l.cap,
		FreeBytes: max(l.cap-doc.UsedBytes, 0),
	}, nil
}

func (l *Ledger) read() (document, error) {
	var doc document
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read ledger: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse ledger: %w", err)
	}
	return doc, nil
}
