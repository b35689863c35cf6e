// Package position implements position accounting for perpetual and
// prediction markets. It is the only place fill arithmetic lives; the
// reducer and the fill pipeline both call into it.
//
// All monetary values use shopspring/decimal, never float64.
package position

import (
	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/coreerr"
	"github.com/shokenteam/shoken-core/internal/model"
)

// NewPerp returns a flat position for marketID.
func NewPerp(marketID string) model.PerpPosition {
	return model.PerpPosition{
		MarketID:    marketID,
		Size:        decimal.Zero,
		AvgEntry:    decimal.Zero,
		RealizedPnL: decimal.Zero,
		FeesPaid:    decimal.Zero,
	}
}

// ApplyPerpFill applies fill to prev and returns the updated position.
// A nil prev is a flat position in fill.MarketID.
//
//   - opening from flat: entry = fill price
//   - same-direction increase: entry = size-weighted average
//   - reduce: entry kept, realized PnL on the closed quantity
//   - flip through zero: realized PnL on the old exposure, entry = fill price
//
// Fees accumulate unconditionally.
func ApplyPerpFill(prev *model.PerpPosition, fill model.Fill) (model.PerpPosition, error) {
	if !fill.Quantity.IsPositive() {
		return model.PerpPosition{}, coreerr.New(coreerr.CodeInvalidQuantity, "fill.quantity must be > 0",
			"quantity", fill.Quantity.String())
	}
	if !fill.Price.IsPositive() {
		return model.PerpPosition{}, coreerr.New(coreerr.CodeInvalidPrice, "fill.price must be > 0",
			"price", fill.Price.String())
	}
	if !fill.Side.Valid() {
		return model.PerpPosition{}, coreerr.New(coreerr.CodeValidation, "fill.side must be BUY or SELL",
			"side", string(fill.Side))
	}

	pos := NewPerp(fill.MarketID)
	if prev != nil {
		if prev.MarketID != fill.MarketID {
			return model.PerpPosition{}, coreerr.New(coreerr.CodeValidation, "fill.marketId does not match position",
				"positionMarketId", prev.MarketID,
				"fillMarketId", fill.MarketID,
			)
		}
		pos = *prev
	}

	delta := fill.Quantity
	if fill.Side == model.Sell {
		delta = delta.Neg()
	}
	prevSize := pos.Size
	nextSize := prevSize.Add(delta)

	realized := decimal.Zero
	avgEntry := pos.AvgEntry

	switch {
	case prevSize.IsZero():
		avgEntry = fill.Price

	case prevSize.Sign() == delta.Sign():
		prevAbs := prevSize.Abs()
		addAbs := delta.Abs()
		avgEntry = pos.AvgEntry.Mul(prevAbs).Add(fill.Price.Mul(addAbs)).Div(prevAbs.Add(addAbs))

	default:
		closedAbs := decimal.Min(prevSize.Abs(), delta.Abs())
		if prevSize.IsPositive() {
			realized = fill.Price.Sub(pos.AvgEntry).Mul(closedAbs)
		} else {
			realized = pos.AvgEntry.Sub(fill.Price).Mul(closedAbs)
		}
		if !nextSize.IsZero() && nextSize.Sign() != prevSize.Sign() {
			avgEntry = fill.Price
		}
	}

	pos.Size = nextSize
	pos.AvgEntry = avgEntry
	pos.RealizedPnL = pos.RealizedPnL.Add(realized)
	pos.FeesPaid = pos.FeesPaid.Add(fill.Fee)
	return pos, nil
}

// UnrealizedPnL is (mark - avgEntry) * size, which holds for longs and
// shorts alike. mark falls back to the position's MarkPrice; with neither,
// or when flat, it is zero.
func UnrealizedPnL(pos model.PerpPosition, mark decimal.NullDecimal) decimal.Decimal {
	if !mark.Valid {
		mark = pos.MarkPrice
	}
	if !mark.Valid || pos.Size.IsZero() {
		return decimal.Zero
	}
	return mark.Decimal.Sub(pos.AvgEntry).Mul(pos.Size)
}

// Notional is |size| valued at mark, then MarkPrice, then AvgEntry.
func Notional(pos model.PerpPosition, mark decimal.NullDecimal) decimal.Decimal {
	price := pos.AvgEntry
	switch {
	case mark.Valid:
		price = mark.Decimal
	case pos.MarkPrice.Valid:
		price = pos.MarkPrice.Decimal
	}
	return pos.Size.Abs().Mul(price)
}
