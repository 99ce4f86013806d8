// Package memory holds short-lived, process-local stores.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/referral-onboarding/internal/domain"
	"github.com/referral-onboarding/internal/pkg/clock"
)

// SlotStore keeps attribution records in memory for a bounded lifetime,
// independent of the record's own expiry.
type SlotStore struct {
	mu       sync.Mutex
	items    map[string]slotEntry
	lifetime time.Duration
	clock    clock.Clock
}

type slotEntry struct {
	rec      domain.AttributionRecord
	storedAt time.Time
}

func NewSlotStore(lifetime time.Duration, c clock.Clock) *SlotStore {
	if c == nil {
		c = clock.Real()
	}
	return &SlotStore{items: make(map[string]slotEntry), lifetime: lifetime, clock: c}
}

func (s *SlotStore) Load(_ context.Context, key string) (*domain.AttributionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if ok && s.lifetime > 0 && s.clock.Now().Sub(e.storedAt) > s.lifetime {
		delete(s.items, key)
		ok = false
	}
	if !ok {
		return nil, fmt.Errorf("slot %s: %w", key, domain.ErrNotFound)
	}
	rec := e.rec
	return &rec, nil
}

func (s *SlotStore) Save(_ context.Context, rec *domain.AttributionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[rec.SlotKey] = slotEntry{rec: *rec, storedAt: s.clock.Now()}
	return nil
}

func (s *SlotStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// Len returns the number of stored slots, expired or not.
func (s *SlotStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
