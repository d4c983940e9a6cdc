// Package adapter publishes pack-change notifications to downstream systems.
//
// A notification is sent after a pack object was replaced or removed, so a
// game server can re-download its resource pack. Delivery is best effort:
// the pipeline logs and counts publish failures but never fails a request
// because of them.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Event types.
const (
	EventPackRegistered = "pack_registered"
	EventDiscCreated    = "disc_created"
	EventDiscDeleted    = "disc_deleted"
	EventPackSwept      = "pack_swept"
)

// PackChangedEvent is the payload published when a pack object changes.
type PackChangedEvent struct {
	EventType      string `json:"event_type" msgpack:"event_type"`
	Token          string `json:"token" msgpack:"token"`
	Disc           string `json:"disc,omitempty" msgpack:"disc,omitempty"`
	PackURL        string `json:"pack_url,omitempty" msgpack:"pack_url,omitempty"`
	PackBytes      int64  `json:"pack_bytes" msgpack:"pack_bytes"`
	Timestamp      string `json:"timestamp" msgpack:"timestamp"` // RFC 3339
	ServiceVersion string `json:"service_version" msgpack:"service_version"`
}

// Adapter publishes pack-change events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation.
	Publish(ctx context.Context, event *PackChangedEvent) error

	// Close releases adapter resources.
	Close() error
}

// DefaultBackoff is the delay before the first retry. It doubles per attempt.
const DefaultBackoff = 500 * time.Millisecond

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. It stops early when ctx is done or permanent reports true for
// the last error.
func Retry(ctx context.Context, retries int, backoff time.Duration, permanent func(error) bool, fn func(context.Context) error) error {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	attempts := 1 + retries

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled: %w", err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff << uint(i-1)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("non-retriable error: %w", lastErr)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// Multi fans one event out to several adapters. Every adapter is tried;
// the errors are joined.
type Multi []Adapter

// Publish implements Adapter.
func (m Multi) Publish(ctx context.Context, event *PackChangedEvent) error {
	var errs []error
	for _, a := range m {
		if err := a.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Adapter.
func (m Multi) Close() error {
	var errs []error
	for _, a := range m {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Adapter = Multi(nil)
