// Package engine holds the per-wallet aggregate and the reducer that is its
// only mutator. State values are never modified in place: Reduce returns a
// new State that shares every map it did not touch with its input.
package engine

import (
	"cmp"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/model"
)

// Balances is the quote balance of a wallet. Only USDC is modeled.
type Balances struct {
	USDC decimal.Decimal
}

// State is the aggregate root for one wallet.
type State struct {
	WalletAddress string
	Balances      Balances

	// Orders is never pruned; terminal orders stay for audit.
	Orders      map[string]model.OrderState
	Perps       map[string]model.PerpPosition
	Predictions map[model.PredictionKey]model.PredictionPosition

	// Resolutions holds the outcome of every resolved prediction market.
	Resolutions map[string]model.Outcome
	Settlements []model.Settlement

	// LastSeq is the sequence number of the last applied envelope.
	LastSeq uint64
}

// NewState returns an empty state for wallet.
func NewState(wallet string) State {
	return State{
		WalletAddress: wallet,
		Balances:      Balances{USDC: decimal.Zero},
		Orders:        map[string]model.OrderState{},
		Perps:         map[string]model.PerpPosition{},
		Predictions:   map[model.PredictionKey]model.PredictionPosition{},
		Resolutions:   map[string]model.Outcome{},
	}
}

// WithBalance returns s with its USDC balance set. No event moves the
// balance: deposits and settlement payouts are not booked into it, so a
// wallet built from its log alone has a zero balance and its equity is its
// unrealized PnL. Callers that track funding elsewhere seed it here.
func (s State) WithBalance(usdc decimal.Decimal) State {
	s.Balances.USDC = usdc
	return s
}

// OrderIDs returns the tracked order ids in lexical order.
func (s State) OrderIDs() []string {
	return slices.Sorted(maps.Keys(s.Orders))
}

// PerpMarkets returns the markets with a perp position in lexical order.
func (s State) PerpMarkets() []string {
	return slices.Sorted(maps.Keys(s.Perps))
}

// PredictionKeys returns prediction position keys ordered by market, then
// outcome.
func (s State) PredictionKeys() []model.PredictionKey {
	keys := slices.Collect(maps.Keys(s.Predictions))
	slices.SortFunc(keys, func(a, b model.PredictionKey) int {
		if c := cmp.Compare(a.MarketID, b.MarketID); c != 0 {
			return c
		}
		return cmp.Compare(a.Outcome, b.Outcome)
	})
	return keys
}

// OpenOrders returns the non-terminal orders, ordered by id.
func (s State) OpenOrders() []model.OrderState {
	var out []model.OrderState
	for _, id := range s.OrderIDs() {
		if os := s.Orders[id]; !os.Terminal() {
			out = append(out, os)
		}
	}
	return out
}

// cloneMap copies m so that writes do not leak into earlier states. A nil
// map becomes an empty one.
func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return maps.Clone(m)
}
