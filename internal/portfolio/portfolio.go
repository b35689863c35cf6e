// Package portfolio derives read-only wallet summaries from engine state.
package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/engine"
	"github.com/shokenteam/shoken-core/internal/position"
)

// Summary is a point-in-time view of a wallet. Nothing is locked as margin,
// so Available equals the USDC balance.
type Summary struct {
	Wallet          string          `json:"wallet"`
	Equity          decimal.Decimal `json:"equity_usdc"`
	Available       decimal.Decimal `json:"available_usdc"`
	UnrealizedPnL   decimal.Decimal `json:"unrealized_pnl_usdc"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl_usdc"`
	FeesPaid        decimal.Decimal `json:"fees_paid_usdc"`
	Exposure        decimal.Decimal `json:"exposure_usdc"`
	PredictionValue decimal.Decimal `json:"prediction_value_usdc"`
	SettledPayout   decimal.Decimal `json:"settled_payout_usdc"`
	PerpCount       int             `json:"perp_count"`
	PredictionCount int             `json:"prediction_count"`
	OpenOrderCount  int             `json:"open_order_count"`
}

// Summarize computes the summary of s.
//
// Perps without a mark contribute exposure at entry and no unrealized PnL.
// Prediction positions are valued at their last price, or at cost when no
// price has been seen.
func Summarize(s engine.State) Summary {
	sum := Summary{
		Wallet:          s.WalletAddress,
		Available:       s.Balances.USDC,
		UnrealizedPnL:   decimal.Zero,
		RealizedPnL:     decimal.Zero,
		FeesPaid:        decimal.Zero,
		Exposure:        decimal.Zero,
		PredictionValue: decimal.Zero,
		SettledPayout:   decimal.Zero,
		PerpCount:       len(s.Perps),
		PredictionCount: len(s.Predictions),
		OpenOrderCount:  len(s.OpenOrders()),
	}

	for _, pos := range s.Perps {
		sum.UnrealizedPnL = sum.UnrealizedPnL.Add(position.UnrealizedPnL(pos, decimal.NullDecimal{}))
		sum.Exposure = sum.Exposure.Add(position.Notional(pos, decimal.NullDecimal{}))
		sum.RealizedPnL = sum.RealizedPnL.Add(pos.RealizedPnL)
		sum.FeesPaid = sum.FeesPaid.Add(pos.FeesPaid)
	}

	for _, pos := range s.Predictions {
		price := pos.AvgPrice
		if pos.LastPrice.Valid {
			price = pos.LastPrice.Decimal
		}
		value := pos.Shares.Mul(price)
		sum.PredictionValue = sum.PredictionValue.Add(value)
		sum.Exposure = sum.Exposure.Add(value)
	}

	for _, rec := range s.Settlements {
		sum.SettledPayout = sum.SettledPayout.Add(rec.Payout)
	}

	sum.Equity = s.Balances.USDC.Add(sum.UnrealizedPnL)
	return sum
}
