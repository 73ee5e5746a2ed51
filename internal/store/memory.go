package store

import (
	"context"
	"sort"
	"sync"

	"tuition-reconciliation/internal/domain"
)

// Memory is a map-backed result sink for tests and ad-hoc runs.
type Memory struct {
	mu      sync.RWMutex
	results map[string]domain.ReconciliationResult
}

func NewMemory() *Memory {
	return &Memory{results: make(map[string]domain.ReconciliationResult)}
}

func (m *Memory) Upsert(_ context.Context, result domain.ReconciliationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.ReceiptID] = result
	return nil
}

func (m *Memory) Get(_ context.Context, receiptID string) (domain.ReconciliationResult, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.results[receiptID]
	return res, ok, nil
}

// All returns every stored result in receipt ID order.
func (m *Memory) All() []domain.ReconciliationResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ReconciliationResult, 0, len(m.results))
	for _, res := range m.results {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceiptID < out[j].ReceiptID })
	return out
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results)
}
