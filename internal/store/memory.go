package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/shokenteam/shoken-core/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	markets map[string]*model.Market
	logs    map[string][]Record
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets: make(map[string]*model.Market),
		logs:    make(map[string][]Record),
	}
}

func (s *MemoryStore) SaveMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	cp := *m
	s.markets[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, id := range slices.Sorted(maps.Keys(s.markets)) {
		markets = append(markets, *s.markets[id])
	}
	return markets, nil
}

func (s *MemoryStore) Append(_ context.Context, wallet string, recs []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[wallet]
	var last uint64
	if n := len(log); n > 0 {
		last = log[n-1].Seq
	}
	if err := checkSequence(wallet, last, recs); err != nil {
		return err
	}
	for _, r := range recs {
		r.Wallet = wallet
		log = append(log, r)
	}
	s.logs[wallet] = log
	return nil
}

func (s *MemoryStore) Events(_ context.Context, wallet string, afterSeq uint64) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Record
	for _, r := range s.logs[wallet] {
		if r.Seq > afterSeq {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *MemoryStore) Wallets(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.logs)), nil
}
