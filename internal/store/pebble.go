package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/shokenteam/shoken-core/internal/model"
)

// Key layout:
//
//	market/<id>                 -> JSON model.Market
//	event/<wallet>\x00<seq:8BE> -> JSON Record
//
// Big-endian sequence numbers keep a wallet's log in iteration order.
var (
	marketPrefix = []byte("market/")
	eventPrefix  = []byte("event/")
)

// PebbleStore implements Store on an embedded Pebble database. Every write
// is synced before it returns.
type PebbleStore struct {
	db *pebble.DB

	// appendMu serializes the read-last-seq/write step of Append.
	appendMu sync.Mutex
}

// OpenPebble opens (or creates) a Pebble database in dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) SaveMarket(_ context.Context, m *model.Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.db.Set(marketKeyBytes(m.ID), data, pebble.Sync)
}

func (s *PebbleStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	val, closer, err := s.db.Get(marketKeyBytes(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var m model.Market
	if err := json.Unmarshal(val, &m); err != nil {
		return nil, fmt.Errorf("decode market %s: %w", id, err)
	}
	return &m, nil
}

func (s *PebbleStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	var markets []model.Market
	err := s.scan(marketPrefix, prefixUpperBound(marketPrefix), func(_, val []byte) error {
		var m model.Market
		if err := json.Unmarshal(val, &m); err != nil {
			return err
		}
		markets = append(markets, m)
		return nil
	})
	return markets, err
}

func (s *PebbleStore) Append(_ context.Context, wallet string, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	last, err := s.lastSeq(wallet)
	if err != nil {
		return err
	}
	if err := checkSequence(wallet, last, recs); err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, r := range recs {
		r.Wallet = wallet
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if err := batch.Set(eventKey(wallet, r.Seq), data, nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) Events(_ context.Context, wallet string, afterSeq uint64) ([]Record, error) {
	var recs []Record
	lower := eventKey(wallet, afterSeq+1)
	upper := prefixUpperBound(walletPrefix(wallet))
	err := s.scan(lower, upper, func(_, val []byte) error {
		var r Record
		if err := json.Unmarshal(val, &r); err != nil {
			return err
		}
		recs = append(recs, r)
		return nil
	})
	return recs, err
}

func (s *PebbleStore) Wallets(_ context.Context) ([]string, error) {
	var wallets []string
	err := s.scan(eventPrefix, prefixUpperBound(eventPrefix), func(key, _ []byte) error {
		rest := key[len(eventPrefix):]
		i := bytes.IndexByte(rest, 0)
		if i < 0 {
			return fmt.Errorf("malformed event key %q", key)
		}
		w := string(rest[:i])
		if n := len(wallets); n == 0 || wallets[n-1] != w {
			wallets = append(wallets, w)
		}
		return nil
	})
	return wallets, err
}

func (s *PebbleStore) lastSeq(wallet string) (uint64, error) {
	prefix := walletPrefix(wallet)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return binary.BigEndian.Uint64(iter.Key()[len(prefix):]), nil
}

func (s *PebbleStore) scan(lower, upper []byte, fn func(key, val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func marketKeyBytes(id string) []byte {
	return append(bytes.Clone(marketPrefix), id...)
}

func walletPrefix(wallet string) []byte {
	k := append(bytes.Clone(eventPrefix), wallet...)
	return append(k, 0)
}

func eventKey(wallet string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(walletPrefix(wallet), seq)
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
