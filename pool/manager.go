package pool

import (
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
)

// Manager keys pools by buffer usage, creating each pool on first use with
// a shared template configuration.
//
// Manager is safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	cfg   Config
	pools map[gputypes.BufferUsage]*Pool
}

// NewManager creates a manager whose pools use cfg with Usage replaced.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:   cfg,
		pools: make(map[gputypes.BufferUsage]*Pool),
	}
}

// Pool returns the pool for usage, creating it if needed.
func (m *Manager) Pool(usage gputypes.BufferUsage) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pools[usage]; ok {
		return p, nil
	}
	cfg := m.cfg
	cfg.Usage = usage
	p, err := New(cfg)
	if err != nil {
		return nil, err
	}
	m.pools[usage] = p
	return p, nil
}

// Trim trims every pool and returns the number of heaps released.
func (m *Manager) Trim() int {
	released := 0
	for _, p := range m.snapshot() {
		released += p.Trim()
	}
	return released
}

// Stats returns the statistics of every pool, ordered by usage.
func (m *Manager) Stats() []Stats {
	pools := m.snapshot()
	out := make([]Stats, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.Stats())
	}
	return out
}

func (m *Manager) snapshot() []*Pool {
	m.mu.Lock()
	defer m.mu.Unlock()

	pools := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	slices.SortFunc(pools, func(a, b *Pool) int {
		return int(a.cfg.Usage) - int(b.cfg.Usage)
	})
	return pools
}
