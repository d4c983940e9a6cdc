package store

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for storage failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrNotFound indicates the object does not exist (ENOENT, 404, NoSuchKey).
	ErrNotFound = errors.New("object not found")

	// ErrPermissionDenied indicates a local permission failure (EACCES).
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAccessDenied indicates valid credentials without permission (403).
	ErrAccessDenied = errors.New("access denied")

	// ErrAuth indicates missing, invalid or expired credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrDiskFull indicates local storage is out of space (ENOSPC).
	ErrDiskFull = errors.New("no space left on device")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrThrottled indicates rate limiting (429, SlowDown).
	ErrThrottled = errors.New("rate limited")

	// ErrNetwork indicates a network-level failure (connection refused, DNS).
	ErrNetwork = errors.New("network error")

	// ErrUnclassified is the kind of any other storage failure.
	ErrUnclassified = errors.New("storage error")
)

// StorageError wraps an underlying error with its classification, the
// operation and the object key.
type StorageError struct {
	Kind error
	Op   string
	Key  string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports whether the error matches the target sentinel.
func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// wrap classifies err for op on key. Returns nil if err is nil.
func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Kind: classifyError(err), Op: op, Key: key, Err: err}
}

// classifyError maps an error to a sentinel by type, then message pattern.
func classifyError(err error) error {
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "nosuchkey", "notfound", "not found", "no such file", "does not exist", "status code: 404", "status 404"):
		return ErrNotFound
	case containsAny(msg, "accessdenied", "forbidden", "status code: 403", "status 403"):
		return ErrAccessDenied
	case containsAny(msg, "permission denied", "eacces"):
		return ErrPermissionDenied
	case containsAny(msg, "no space left", "disk full", "enospc"):
		return ErrDiskFull
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ErrTimeout
	case containsAny(msg, "slowdown", "rate exceeded", "throttl", "toomanyrequests", "status code: 429", "status 429"):
		return ErrThrottled
	case containsAny(msg, "nocredentialproviders", "credentials", "invalidaccesskeyid",
		"signaturedoesnotmatch", "expiredtoken", "unauthorized"):
		return ErrAuth
	case containsAny(msg, "connection refused", "no route to host", "network unreachable",
		"no such host", "dial tcp"):
		return ErrNetwork
	default:
		return ErrUnclassified
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
