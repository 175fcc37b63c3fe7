package memory

import (
	"context"
	"sync"
)

// ProgressStore keeps per-attempt resume state in process memory.
type ProgressStore struct {
	mu      sync.RWMutex
	entries map[string]progressEntry
}

type progressEntry struct {
	questionIndex int
	timeRemaining int
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{entries: make(map[string]progressEntry)}
}

func (p *ProgressStore) SaveProgress(_ context.Context, attemptID string, questionIndex, timeRemaining int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[attemptID] = progressEntry{questionIndex: questionIndex, timeRemaining: timeRemaining}
	return nil
}

func (p *ProgressStore) LoadProgress(_ context.Context, attemptID string) (int, int, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.entries[attemptID]
	if !ok {
		return 0, 0, false, nil
	}
	return entry.questionIndex, entry.timeRemaining, true, nil
}

func (p *ProgressStore) ClearProgress(_ context.Context, attemptID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, attemptID)
	return nil
}
