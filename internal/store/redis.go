package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shokenteam/shoken-core/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache.
// Writes go to the primary store and refresh or invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Event reads are cached per wallet as the full log; Events filters by
// afterSeq on the way out so one key serves every replay offset.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, update cache) ---

func (s *CachedStore) SaveMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.SaveMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) Append(ctx context.Context, wallet string, recs []Record) error {
	if err := s.primary.Append(ctx, wallet, recs); err != nil {
		return err
	}
	// Invalidate the log cache; next read will re-populate.
	s.rdb.Del(ctx, eventsKey(wallet))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) Events(ctx context.Context, wallet string, afterSeq uint64) ([]Record, error) {
	data, err := s.rdb.Get(ctx, eventsKey(wallet)).Bytes()
	if err == nil {
		var recs []Record
		if json.Unmarshal(data, &recs) == nil {
			return after(recs, afterSeq), nil
		}
	}

	recs, err := s.primary.Events(ctx, wallet, 0)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(recs); err == nil {
		s.rdb.Set(ctx, eventsKey(wallet), data, s.ttl)
	}
	return after(recs, afterSeq), nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) Wallets(ctx context.Context) ([]string, error) {
	return s.primary.Wallets(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

func after(recs []Record, seq uint64) []Record {
	var out []Record
	for _, r := range recs {
		if r.Seq > seq {
			out = append(out, r)
		}
	}
	return out
}

func marketKey(id string) string     { return fmt.Sprintf("market:%s", id) }
func eventsKey(wallet string) string { return fmt.Sprintf("events:%s", wallet) }
