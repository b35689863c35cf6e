// Package risk enforces pre-trade exposure limits that account for
// correlation between markets.
//
// A wallet long SOL-PERP and long SOL-USDC carries one SOL risk twice. Markets
// that map to the same group key (by default, the base asset) are treated as
// correlated and their absolute exposures are summed against a shared cap.
package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/engine"
	"github.com/shokenteam/shoken-core/internal/market"
	"github.com/shokenteam/shoken-core/internal/model"
	"github.com/shokenteam/shoken-core/internal/position"
)

var (
	// ErrPerMarketLimitExceeded is returned when a trade would push a single
	// market's exposure beyond the per-market maximum.
	ErrPerMarketLimitExceeded = errors.New("risk: per-market exposure limit exceeded")

	// ErrCorrelatedLimitExceeded is returned when a trade would push the
	// aggregate exposure across correlated markets beyond the correlated
	// maximum.
	ErrCorrelatedLimitExceeded = errors.New("risk: correlated exposure limit exceeded")
)

// GroupFunc maps a market id to its correlation group.
type GroupFunc func(marketID string) string

// ExposureLimiter enforces quote-notional exposure limits. A zero limit
// disables that check.
type ExposureLimiter struct {
	// MaxPerMarket is the maximum absolute net exposure in any single market.
	MaxPerMarket decimal.Decimal

	// MaxCorrelated is the maximum aggregate absolute exposure across all
	// markets in the same group.
	MaxCorrelated decimal.Decimal

	Group GroupFunc
}

// NewExposureLimiter creates a limiter. A nil group falls back to
// BaseAssetGroup.
func NewExposureLimiter(maxPerMarket, maxCorrelated decimal.Decimal, group GroupFunc) *ExposureLimiter {
	if group == nil {
		group = BaseAssetGroup
	}
	return &ExposureLimiter{
		MaxPerMarket:  maxPerMarket,
		MaxCorrelated: maxCorrelated,
		Group:         group,
	}
}

// BaseAssetGroup groups perp and spot symbols by base asset. Anything else,
// prediction market ids included, is its own group.
func BaseAssetGroup(marketID string) string {
	s, err := market.ParseSymbol(marketID)
	if err != nil || s.Type == model.MarketPrediction {
		return marketID
	}
	return s.Base
}

// CheckLimit validates whether a trade respects exposure limits.
//
//   - marketID: market being traded
//   - exposureDelta: signed change in quote exposure (+BUY / -SELL)
//   - existing: market id -> current signed exposure for this wallet
func (l *ExposureLimiter) CheckLimit(
	marketID string,
	exposureDelta decimal.Decimal,
	existing map[string]decimal.Decimal,
) error {
	next := existing[marketID].Add(exposureDelta)

	if l.MaxPerMarket.IsPositive() && next.Abs().GreaterThan(l.MaxPerMarket) {
		return fmt.Errorf("%w: %s exposure %s > %s",
			ErrPerMarketLimitExceeded, marketID, next.Abs().StringFixed(2), l.MaxPerMarket)
	}

	if !l.MaxCorrelated.IsPositive() {
		return nil
	}
	group := l.Group(marketID)
	total := next.Abs()
	for id, exposure := range existing {
		if id == marketID {
			continue // counted via next
		}
		if l.Group(id) == group {
			total = total.Add(exposure.Abs())
		}
	}
	if total.GreaterThan(l.MaxCorrelated) {
		return fmt.Errorf("%w: group %s exposure %s > %s",
			ErrCorrelatedLimitExceeded, group, total.StringFixed(2), l.MaxCorrelated)
	}
	return nil
}

// Exposures returns signed quote exposure per market: perp size valued at
// mark (or entry), plus prediction shares valued at last price (or cost).
// Both outcomes of a prediction market add to the same market id.
func Exposures(s engine.State) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.Perps)+len(s.Predictions))
	for id, pos := range s.Perps {
		n := position.Notional(pos, decimal.NullDecimal{})
		if pos.Size.IsNegative() {
			n = n.Neg()
		}
		out[id] = out[id].Add(n)
	}
	for _, pos := range s.Predictions {
		if pos.ResolvedAs != "" {
			continue
		}
		price := pos.AvgPrice
		if pos.LastPrice.Valid {
			price = pos.LastPrice.Decimal
		}
		out[pos.MarketID] = out[pos.MarketID].Add(pos.Shares.Mul(price))
	}
	return out
}
