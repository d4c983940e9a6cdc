// Package metrics provides process-wide counters for the provisioning pipeline.
//
// The Collector is a leaf package with no internal dependencies. Outcome
// strings are passed in by callers so this package stays free of pipeline types.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Admission
	RequestsAccepted     int64 `json:"requests_accepted"`
	RejectedRateLimited  int64 `json:"rejected_rate_limited"`
	RejectedBusy         int64 `json:"rejected_busy"`
	RejectedInvalidToken int64 `json:"rejected_invalid_token"`

	// Operations
	Registrations int64            `json:"registrations"`
	DiscsCreated  int64            `json:"discs_created"`
	DiscsDeleted  int64            `json:"discs_deleted"`
	Failures      map[string]int64 `json:"failures"`

	// Media tools
	ToolRetries   int64 `json:"tool_retries"`
	AuthFailures  int64 `json:"auth_failures"`
	ToolRefreshes int64 `json:"tool_refreshes"`

	// Storage and ledger
	UploadSuccess  int64 `json:"upload_success"`
	UploadFailure  int64 `json:"upload_failure"`
	UploadedBytes  int64 `json:"uploaded_bytes"`
	LedgerWarnings int64 `json:"ledger_warnings"`

	// Sweep
	SweepRemoved int64 `json:"sweep_removed"`
	SweepFailed  int64 `json:"sweep_failed"`

	// Side channels
	JournalFailures int64 `json:"journal_failures"`
	NotifyFailures  int64 `json:"notify_failures"`
}

// Collector accumulates counters for the life of the process.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	requestsAccepted     int64
	rejectedRateLimited  int64
	rejectedBusy         int64
	rejectedInvalidToken int64

	registrations int64
	discsCreated  int64
	discsDeleted  int64
	failures      map[string]int64

	toolRetries   int64
	authFailures  int64
	toolRefreshes int64

	uploadSuccess  int64
	uploadFailure  int64
	uploadedBytes  int64
	ledgerWarnings int64

	sweepRemoved int64
	sweepFailed  int64

	journalFailures int64
	notifyFailures  int64
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{failures: make(map[string]int64)}
}

func (c *Collector) add(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- Admission ---

// IncAccepted records a request that passed every entry guard.
func (c *Collector) IncAccepted() {
	if c == nil {
		return
	}
	c.add(&c.requestsAccepted, 1)
}

// IncRateLimited records a request rejected by the rate limiter.
func (c *Collector) IncRateLimited() {
	if c == nil {
		return
	}
	c.add(&c.rejectedRateLimited, 1)
}

// IncBusy records a request rejected by the active-token ceiling.
func (c *Collector) IncBusy() {
	if c == nil {
		return
	}
	c.add(&c.rejectedBusy, 1)
}

// IncInvalidToken records a request carrying an unknown token.
func (c *Collector) IncInvalidToken() {
	if c == nil {
		return
	}
	c.add(&c.rejectedInvalidToken, 1)
}

// --- Operations ---

// IncRegistration records a completed registration.
func (c *Collector) IncRegistration() {
	if c == nil {
		return
	}
	c.add(&c.registrations, 1)
}

// IncDiscCreated records a disc added to a pack.
func (c *Collector) IncDiscCreated() {
	if c == nil {
		return
	}
	c.add(&c.discsCreated, 1)
}

// IncDiscDeleted records a disc removed from a pack.
func (c *Collector) IncDiscDeleted() {
	if c == nil {
		return
	}
	c.add(&c.discsDeleted, 1)
}

// IncFailure records a failed operation under its outcome name.
func (c *Collector) IncFailure(outcome string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.failures[outcome]++
	c.mu.Unlock()
}

// --- Media tools ---

// IncToolRetry records a second attempt of a media step.
func (c *Collector) IncToolRetry() {
	if c == nil {
		return
	}
	c.add(&c.toolRetries, 1)
}

// IncAuthFailure records a media source demanding sign-in.
func (c *Collector) IncAuthFailure() {
	if c == nil {
		return
	}
	c.add(&c.authFailures, 1)
}

// IncToolRefresh records a download tool refresh.
func (c *Collector) IncToolRefresh() {
	if c == nil {
		return
	}
	c.add(&c.toolRefreshes, 1)
}

// --- Storage and ledger ---

// AddUpload records an upload attempt and, on success, its size.
func (c *Collector) AddUpload(ok bool, bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if ok {
		c.uploadSuccess++
		c.uploadedBytes += bytes
	} else {
		c.uploadFailure++
	}
	c.mu.Unlock()
}

// IncLedgerWarning records a post-upload ledger commit failure.
func (c *Collector) IncLedgerWarning() {
	if c == nil {
		return
	}
	c.add(&c.ledgerWarnings, 1)
}

// --- Sweep ---

// AddSweep records the result of one sweep run.
func (c *Collector) AddSweep(removed, failed int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sweepRemoved += int64(removed)
	c.sweepFailed += int64(failed)
	c.mu.Unlock()
}

// --- Side channels ---

// IncJournalFailure records an outcome record that could not be written.
func (c *Collector) IncJournalFailure() {
	if c == nil {
		return
	}
	c.add(&c.journalFailures, 1)
}

// IncNotifyFailure records a pack-change event that could not be published.
func (c *Collector) IncNotifyFailure() {
	if c == nil {
		return
	}
	c.add(&c.notifyFailures, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{Failures: map[string]int64{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	failures := make(map[string]int64, len(c.failures))
	for k, v := range c.failures {
		failures[k] = v
	}

	return Snapshot{
		RequestsAccepted:     c.requestsAccepted,
		RejectedRateLimited:  c.rejectedRateLimited,
		RejectedBusy:         c.rejectedBusy,
		RejectedInvalidToken: c.rejectedInvalidToken,

		Registrations: c.registrations,
		DiscsCreated:  c.discsCreated,
		DiscsDeleted:  c.discsDeleted,
		Failures:      failures,

		ToolRetries:   c.toolRetries,
		AuthFailures:  c.authFailures,
		ToolRefreshes: c.toolRefreshes,

		UploadSuccess:  c.uploadSuccess,
		UploadFailure:  c.uploadFailure,
		UploadedBytes:  c.uploadedBytes,
		LedgerWarnings: c.ledgerWarnings,

		SweepRemoved: c.sweepRemoved,
		SweepFailed:  c.sweepFailed,

		JournalFailures: c.journalFailures,
		NotifyFailures:  c.notifyFailures,
	}
}
