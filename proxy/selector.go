// Package proxy rotates download-tool traffic across a configured proxy pool.
package proxy

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/TheoDgb/URLCustomDiscsAPI/types"
)

// Selector picks an endpoint per media tool invocation.
// Safe for concurrent use. A nil Selector selects nothing.
type Selector struct {
	mu      sync.Mutex
	pool    types.ProxyPool
	rrIndex int64
	picks   []int64
}

// NewSelector validates the pool and returns a selector over it.
func NewSelector(pool types.ProxyPool) (*Selector, error) {
	if err := pool.Validate(); err != nil {
		return nil, fmt.Errorf("pool validation failed: %w", err)
	}
	return &Selector{
		pool:  pool,
		picks: make([]int64, len(pool.Endpoints)),
	}, nil
}

// Next returns the endpoint to use for the next invocation.
// Returns nil when the selector is nil.
func (s *Selector) Next() (*types.ProxyEndpoint, error) {
	if s == nil {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var idx int
	switch s.pool.Strategy {
	case types.ProxyStrategyRoundRobin:
		idx = int(s.rrIndex % int64(len(s.pool.Endpoints)))
		s.rrIndex++
	case types.ProxyStrategyRandom:
		var err error
		idx, err = s.selectRandom()
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown strategy %q", s.pool.Strategy)
	}

	s.picks[idx]++
	ep := s.pool.Endpoints[idx]
	return &ep, nil
}

func (s *Selector) selectRandom() (int, error) {
	n := len(s.pool.Endpoints)
	if n == 1 {
		return 0, nil
	}

	bigIdx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("random selection failed: %w", err)
	}
	return int(bigIdx.Int64()), nil
}

// EndpointStats is the pick count of one endpoint.
type EndpointStats struct {
	Endpoint string `json:"endpoint"`
	Picks    int64  `json:"picks"`
}

// Stats returns per-endpoint pick counts with credentials redacted.
func (s *Selector) Stats() []EndpointStats {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EndpointStats, len(s.pool.Endpoints))
	for i := range s.pool.Endpoints {
		out[i] = EndpointStats{
			Endpoint: s.pool.Endpoints[i].Redacted(),
			Picks:    s.picks[i],
		}
	}
	return out
}
