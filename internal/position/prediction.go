package position

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/coreerr"
	"github.com/shokenteam/shoken-core/internal/model"
)

// PredictionFill buys Shares of Outcome at a probability Price.
type PredictionFill struct {
	MarketID string
	Outcome  model.Outcome
	Price    decimal.Decimal // [0,1]
	Shares   decimal.Decimal
}

// AssertProbability rejects prices outside [0,1].
func AssertProbability(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(decimal.NewFromInt(1)) {
		return coreerr.New(coreerr.CodeValidation, "prediction price must be in [0,1]",
			"price", p.String())
	}
	return nil
}

// ApplyPredictionFill adds shares to prev at the share-weighted average
// price. A nil prev opens a new position. Positions never decrease here.
func ApplyPredictionFill(prev *model.PredictionPosition, fill PredictionFill) (model.PredictionPosition, error) {
	if err := AssertProbability(fill.Price); err != nil {
		return model.PredictionPosition{}, err
	}
	if !fill.Shares.IsPositive() {
		return model.PredictionPosition{}, coreerr.New(coreerr.CodeInvalidQuantity, "shares must be > 0",
			"shares", fill.Shares.String())
	}
	if !fill.Outcome.Valid() {
		return model.PredictionPosition{}, coreerr.New(coreerr.CodeValidation, "outcome must be YES or NO",
			"outcome", string(fill.Outcome))
	}

	if prev == nil {
		return model.PredictionPosition{
			MarketID:  fill.MarketID,
			Outcome:   fill.Outcome,
			Shares:    fill.Shares,
			AvgPrice:  fill.Price,
			LastPrice: decimal.NewNullDecimal(fill.Price),
		}, nil
	}

	if prev.MarketID != fill.MarketID {
		return model.PredictionPosition{}, coreerr.New(coreerr.CodeValidation, "marketId mismatch",
			"positionMarketId", prev.MarketID, "marketId", fill.MarketID)
	}
	if prev.Outcome != fill.Outcome {
		return model.PredictionPosition{}, coreerr.New(coreerr.CodeValidation, "cannot mix YES/NO in a single position",
			"positionOutcome", string(prev.Outcome), "fillOutcome", string(fill.Outcome))
	}
	if prev.ResolvedAs != "" {
		return model.PredictionPosition{}, coreerr.New(coreerr.CodeValidation, "market already resolved",
			"marketId", prev.MarketID, "resolvedAs", string(prev.ResolvedAs))
	}

	next := *prev
	total := prev.Shares.Add(fill.Shares)
	next.AvgPrice = prev.AvgPrice.Mul(prev.Shares).Add(fill.Price.Mul(fill.Shares)).Div(total)
	next.Shares = total
	next.LastPrice = decimal.NewNullDecimal(fill.Price)
	return next, nil
}

// PredictionValue marks the position at lastPrice.
func PredictionValue(pos model.PredictionPosition, lastPrice decimal.Decimal) (decimal.Decimal, error) {
	if err := AssertProbability(lastPrice); err != nil {
		return decimal.Zero, err
	}
	return pos.Shares.Mul(lastPrice), nil
}

// Payout is Shares if the held outcome won, else zero.
func Payout(pos model.PredictionPosition, resolved model.Outcome) decimal.Decimal {
	if pos.Outcome == resolved {
		return pos.Shares
	}
	return decimal.Zero
}

// Profit is Payout minus the cost basis Shares*AvgPrice.
func Profit(pos model.PredictionPosition, resolved model.Outcome) decimal.Decimal {
	return Payout(pos, resolved).Sub(pos.Shares.Mul(pos.AvgPrice))
}

// Settle resolves pos and returns the stamped position with its settlement
// record. The resolved position is marked at 1 or 0.
func Settle(pos model.PredictionPosition, resolved model.Outcome, at time.Time) (model.PredictionPosition, model.Settlement, error) {
	if !resolved.Valid() {
		return model.PredictionPosition{}, model.Settlement{}, coreerr.New(coreerr.CodeValidation,
			"resolved outcome must be YES or NO", "outcome", string(resolved))
	}

	next := pos
	next.ResolvedAs = resolved
	if pos.Outcome == resolved {
		next.LastPrice = decimal.NewNullDecimal(decimal.NewFromInt(1))
	} else {
		next.LastPrice = decimal.NewNullDecimal(decimal.Zero)
	}

	return next, model.Settlement{
		MarketID:  pos.MarketID,
		Outcome:   pos.Outcome,
		Resolved:  resolved,
		Shares:    pos.Shares,
		Payout:    Payout(pos, resolved),
		Profit:    Profit(pos, resolved),
		SettledAt: at,
	}, nil
}
