// Package registry persists the set of registered server tokens.
//
// The registry is a single JSON document mapping token to its registration
// and last-activity timestamps. Every read-modify-write holds an in-process
// mutex and a cross-process file lock; the document is replaced atomically.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/TheoDgb/URLCustomDiscsAPI/iox"
)

// ErrUnknownToken is returned for operations on an unregistered token.
var ErrUnknownToken = errors.New("registry: unknown token")

// ErrDuplicateToken is returned when registering a token twice.
var ErrDuplicateToken = errors.New("registry: token already registered")

// Entry is the registry record for one token.
type Entry struct {
	RegisteredAt   time.Time `json:"registeredAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// Server is an Entry with its token, for listings.
type Server struct {
	Token string `json:"token"`
	Entry
}

// Registry is the file-backed token registry.
type Registry struct {
	path  string
	nowFn func() time.Time
	mu    sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.nowFn = now }
}

// New opens the registry at path. A missing document is an empty registry.
func New(path string, opts ...Option) *Registry {
	r := &Registry{path: path, nowFn: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the registry document path.
func (r *Registry) Path() string { return r.path }

// Register adds token with both timestamps set to now.
func (r *Registry) Register(token string) error {
	return r.update(func(servers map[string]Entry) error {
		if _, ok := servers[token]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateToken, token)
		}
		now := r.now()
		servers[token] = Entry{RegisteredAt: now, LastActivityAt: now}
		return nil
	})
}

// Exists reports whether token is registered.
func (r *Registry) Exists(token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	servers, err := r.read()
	if err != nil {
		return false, err
	}
	_, ok := servers[token]
	return ok, nil
}

// Get returns the entry for token.
func (r *Registry) Get(token string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	servers, err := r.read()
	if err != nil {
		return Entry{}, err
	}
	e, ok := servers[token]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	return e, nil
}

// Touch sets token's last activity to now.
func (r *Registry) Touch(token string) error {
	return r.update(func(servers map[string]Entry) error {
		e, ok := servers[token]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownToken, token)
		}
		e.LastActivityAt = r.now()
		servers[token] = e
		return nil
	})
}

// Remove deletes token. Removing an absent token is not an error.
func (r *Registry) Remove(token string) error {
	return r.update(func(servers map[string]Entry) error {
		delete(servers, token)
		return nil
	})
}

// List returns every registered server, oldest registration first.
func (r *Registry) List() ([]Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	servers, err := r.read()
	if err != nil {
		return nil, err
	}
	out := make([]Server, 0, len(servers))
	for token, e := range servers {
		out = append(out, Server{Token: token, Entry: e})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].Token < out[j].Token
	})
	return out, nil
}

// Inactive returns servers whose last activity is strictly before cutoff.
func (r *Registry) Inactive(cutoff time.Time) ([]Server, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}
	var out []Server
	for _, s := range all {
		if s.LastActivityAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Registry) now() time.Time {
	return r.nowFn().UTC().Truncate(time.Millisecond)
}

func (r *Registry) update(fn func(map[string]Entry) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return iox.WithFileLock(r.path, func() error {
		servers, err := r.read()
		if err != nil {
			return err
		}
		if err := fn(servers); err != nil {
			return err
		}
		data, err := json.MarshalIndent(servers, "", "  ")
		if err != nil {
			return fmt.Errorf("encode registry: %w", err)
		}
		if err := iox.WriteFileAtomic(r.path, data, 0o644); err != nil {
			return fmt.Errorf("write registry: %w", err)
		}
		return nil
	})
}

func (r *Registry) read() (map[string]Entry, error) {
	servers := map[string]Entry{}
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return servers, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	if err := json.Unmarshal(data, &servers); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return servers, nil
}
