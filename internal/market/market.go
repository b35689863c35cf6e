// Package market validates venue market metadata and the tick/lot grid that
// orders must sit on before they reach the matching engine.
package market

import (
	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/coreerr"
	"github.com/shokenteam/shoken-core/internal/model"
)

// Validate checks that m carries the fields every order check relies on.
func Validate(m model.Market) error {
	if m.ID == "" {
		return coreerr.New(coreerr.CodeValidation, "market.id is required")
	}
	if m.BaseAsset == "" {
		return coreerr.New(coreerr.CodeValidation, "market.baseAsset is required", "marketId", m.ID)
	}
	if m.QuoteAsset == "" {
		return coreerr.New(coreerr.CodeValidation, "market.quoteAsset is required", "marketId", m.ID)
	}
	if !m.TickSize.IsPositive() {
		return coreerr.New(coreerr.CodeValidation, "market.tickSize must be > 0",
			"marketId", m.ID, "tickSize", m.TickSize.String())
	}
	if !m.LotSize.IsPositive() {
		return coreerr.New(coreerr.CodeValidation, "market.lotSize must be > 0",
			"marketId", m.ID, "lotSize", m.LotSize.String())
	}
	switch m.Type {
	case model.MarketPerp, model.MarketSpot, model.MarketPrediction:
	default:
		return coreerr.New(coreerr.CodeValidation, "market.type must be PERP, SPOT or PREDICTION",
			"marketId", m.ID, "type", string(m.Type))
	}
	return nil
}

// AssertActive rejects orders against halted or closed markets.
func AssertActive(m model.Market) error {
	if m.Status != model.StatusActive {
		return coreerr.New(coreerr.CodeMarketNotActive, "market is not active",
			"marketId", m.ID, "status", string(m.Status))
	}
	return nil
}

// AssertTickSize checks that price is a whole number of ticks.
func AssertTickSize(tickSize, price decimal.Decimal) error {
	if !isMultipleOf(tickSize, price) {
		return coreerr.New(coreerr.CodeInvalidTickSize, "price does not match tickSize",
			"tickSize", tickSize.String(), "price", price.String())
	}
	return nil
}

// AssertLotSize checks that qty is a whole number of lots.
func AssertLotSize(lotSize, qty decimal.Decimal) error {
	if !isMultipleOf(lotSize, qty) {
		return coreerr.New(coreerr.CodeInvalidLotSize, "quantity does not match lotSize",
			"lotSize", lotSize.String(), "qty", qty.String())
	}
	return nil
}

// isMultipleOf reports whether value/step is integral within QtyEpsilon.
func isMultipleOf(step, value decimal.Decimal) bool {
	if !step.IsPositive() {
		return false
	}
	q := value.Div(step)
	return q.Sub(q.Round(0)).Abs().LessThan(model.QtyEpsilon)
}
