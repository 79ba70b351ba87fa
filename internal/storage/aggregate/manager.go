package aggregate

import (
	"sort"
	"sync"
	"time"
)

// Manager keeps one distribution per key, for example per deployment.
type Manager struct {
	mu sync.RWMutex

	accuracy      float64
	distributions map[string]*Distribution

	// Statistics
	stats ManagerStats
}

// ManagerStats holds statistics for the manager.
type ManagerStats struct {
	ActiveDistributions int64
	ValuesObserved      int64
	Removed             int64
}

// NewManager creates a manager whose distributions use the given quantile
// accuracy. An accuracy <= 0 disables percentiles.
func NewManager(accuracy float64) *Manager {
	return &Manager{
		accuracy:      accuracy,
		distributions: make(map[string]*Distribution),
	}
}

// Observe adds value to the distribution of key, creating it on first use.
func (m *Manager) Observe(key string, value float64, at time.Time) {
	m.mu.Lock()
	d, ok := m.distributions[key]
	if !ok {
		d = New(key, m.accuracy)
		m.distributions[key] = d
	}
	m.stats.ValuesObserved++
	m.mu.Unlock()

	d.Add(value, at)
}

// Result returns the statistics of key.
func (m *Manager) Result(key string) (Result, bool) {
	m.mu.RLock()
	d, ok := m.distributions[key]
	m.mu.RUnlock()

	if !ok {
		return Result{Key: key}, false
	}
	return d.Result(), true
}

// Results returns the statistics of every key, sorted by key.
func (m *Manager) Results() []Result {
	m.mu.RLock()
	out := make([]Result, 0, len(m.distributions))
	for _, d := range m.distributions {
		out = append(out, d.Result())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Total merges all distributions into one result with the given key.
func (m *Manager) Total(key string) Result {
	total := New(key, m.accuracy)

	m.mu.RLock()
	for _, d := range m.distributions {
		total.Merge(d)
	}
	m.mu.RUnlock()

	return total.Result()
}

// Remove drops the distribution of key. It returns false if there was none.
func (m *Manager) Remove(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.distributions[key]; !ok {
		return false
	}
	delete(m.distributions, key)
	m.stats.Removed++
	return true
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := m.stats
	stats.ActiveDistributions = int64(len(m.distributions))
	return stats
}

// Accuracy returns the configured quantile accuracy.
func (m *Manager) Accuracy() float64 {
	return m.accuracy
}
