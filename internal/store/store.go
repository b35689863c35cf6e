// Package store defines persistence for market metadata and the per-wallet
// event log. Implementations include PostgreSQL and Pebble (sources of
// truth), Redis (read-through cache) and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shokenteam/shoken-core/internal/model"
)

var (
	// ErrNotFound is returned when a market does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrSeqConflict is returned when appended records do not continue the
	// wallet's log exactly at LastSeq+1.
	ErrSeqConflict = errors.New("store: sequence conflict")
)

// Store is the persistence interface. The event log is append-only and
// strictly sequenced per wallet.
type Store interface {
	// --- Markets ---

	// SaveMarket inserts or replaces a market.
	SaveMarket(ctx context.Context, m *model.Market) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns all markets ordered by ID.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// --- Event log ---

	// Append atomically appends recs to wallet's log. recs must carry
	// consecutive sequence numbers starting at the log's last seq + 1.
	Append(ctx context.Context, wallet string, recs []Record) error

	// Events returns wallet's records with Seq > afterSeq in order.
	Events(ctx context.Context, wallet string, afterSeq uint64) ([]Record, error)

	// Wallets returns every wallet with at least one record, sorted.
	Wallets(ctx context.Context) ([]string, error)
}

// checkSequence verifies recs continue a log whose last seq is last.
func checkSequence(wallet string, last uint64, recs []Record) error {
	next := last + 1
	for _, r := range recs {
		if r.Seq != next || (r.Wallet != "" && r.Wallet != wallet) {
			return ErrSeqConflict
		}
		next++
	}
	return nil
}
