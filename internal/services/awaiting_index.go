package services

import (
	"context"
	"sync"
)

// AwaitingIndex maps phone numbers to the response id currently awaiting an
// answer. It is a rebuildable cache over the ledger's awaiting rows, not a
// source of truth: entries can go stale relative to another instance's
// writes, and the engine self-heals against the store counts.
type AwaitingIndex struct {
	mu      sync.RWMutex
	byPhone map[string]int64
}

func NewAwaitingIndex() *AwaitingIndex {
	return &AwaitingIndex{byPhone: map[string]int64{}}
}

// Rebuild replaces the index contents with the ledger's awaiting rows.
// Called once at process start, before the first request is served.
func (i *AwaitingIndex) Rebuild(ctx context.Context, ledger Ledger) error {
	entries, err := ledger.AwaitingResponses(ctx)
	if err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.byPhone = make(map[string]int64, len(entries))
	for phone, id := range entries {
		i.byPhone[phone] = id
	}
	return nil
}

func (i *AwaitingIndex) Get(phone string) (int64, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	id, ok := i.byPhone[phone]
	return id, ok
}

func (i *AwaitingIndex) Set(phone string, responseID int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.byPhone[phone] = responseID
}

func (i *AwaitingIndex) Remove(phone string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.byPhone, phone)
}

func (i *AwaitingIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.byPhone)
}
