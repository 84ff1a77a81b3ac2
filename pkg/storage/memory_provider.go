package storage

import (
	"sync"
)

// MemoryProvider implements RunStore in memory. It is the default store
// and the one tests use.
type MemoryProvider struct {
	mu   sync.RWMutex
	runs map[string]RunSummary
	ids  []string // insertion order
}

// NewMemoryProvider creates a new in-memory run store
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		runs: make(map[string]RunSummary),
	}
}

// SaveRun stores the terminal snapshot of a run
func (p *MemoryProvider) SaveRun(summary RunSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.runs[summary.ID]; !exists {
		p.ids = append(p.ids, summary.ID)
	}
	p.runs[summary.ID] = summary
	return nil
}

// GetRun retrieves a run by ID
func (p *MemoryProvider) GetRun(id string) (RunSummary, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	summary, ok := p.runs[id]
	if !ok {
		return RunSummary{}, ErrRunNotFound
	}
	return summary, nil
}

// ListRuns returns runs most-recent-first, up to limit (0 for all)
func (p *MemoryProvider) ListRuns(limit int) ([]RunSummary, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]RunSummary, 0, len(p.ids))
	for i := len(p.ids) - 1; i >= 0; i-- {
		out = append(out, p.runs[p.ids[i]])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
