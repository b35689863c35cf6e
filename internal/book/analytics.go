package book

import (
	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/coreerr"
	"github.com/shokenteam/shoken-core/internal/model"
)

// TopOfBook summarizes the best levels. Mid and spreads are only set when
// both sides are present.
type TopOfBook struct {
	BestBid   *Level
	BestAsk   *Level
	Mid       decimal.NullDecimal
	SpreadAbs decimal.NullDecimal
	SpreadPct decimal.NullDecimal
}

// Top returns the best bid/ask with mid and spread.
func Top(b Book) TopOfBook {
	var top TopOfBook
	if len(b.Bids) > 0 {
		bid := b.Bids[0]
		top.BestBid = &bid
	}
	if len(b.Asks) > 0 {
		ask := b.Asks[0]
		top.BestAsk = &ask
	}
	if top.BestBid == nil || top.BestAsk == nil {
		return top
	}

	two := decimal.NewFromInt(2)
	mid := top.BestBid.Price.Add(top.BestAsk.Price).Div(two)
	spread := top.BestAsk.Price.Sub(top.BestBid.Price)
	top.Mid = decimal.NewNullDecimal(mid)
	top.SpreadAbs = decimal.NewNullDecimal(spread)
	if mid.IsPositive() {
		top.SpreadPct = decimal.NewNullDecimal(spread.Div(mid))
	}
	return top
}

// TopN returns a copy of the first n levels of side s.
func TopN(b Book, s Side, n int) []Level {
	levels := b.Levels(s)
	if n < 0 {
		n = 0
	}
	if n > len(levels) {
		n = len(levels)
	}
	return cloneLevels(levels[:n])
}

// TotalSize sums the sizes of levels.
func TotalSize(levels []Level) decimal.Decimal {
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Size)
	}
	return total
}

// VWAPResult is the outcome of walking a side for a target size.
type VWAPResult struct {
	FilledSize    decimal.Decimal
	AvgPrice      decimal.NullDecimal
	Cost          decimal.Decimal // quote spent (asks) or received (bids)
	RemainingSize decimal.Decimal
}

// VWAPForSize walks side s best-first until targetSize is covered.
// A buyer consumes Asks; a seller consumes Bids.
func VWAPForSize(b Book, s Side, targetSize decimal.Decimal) (VWAPResult, error) {
	if !targetSize.IsPositive() {
		return VWAPResult{}, coreerr.New(coreerr.CodeValidation, "targetSize must be > 0",
			"targetSize", targetSize.String())
	}

	remaining := targetSize
	filled := decimal.Zero
	cost := decimal.Zero
	for _, lvl := range b.Levels(s) {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, lvl.Size)
		filled = filled.Add(take)
		cost = cost.Add(take.Mul(lvl.Price))
		remaining = remaining.Sub(take)
	}

	res := VWAPResult{FilledSize: filled, Cost: cost, RemainingSize: remaining}
	if filled.IsPositive() {
		res.AvgPrice = decimal.NewNullDecimal(cost.Div(filled))
	}
	return res, nil
}

// Simulation is the outcome of spending (or raising) a quote notional
// against one side of the book.
type Simulation struct {
	RequestedNotional decimal.Decimal
	SpentNotional     decimal.Decimal
	FilledSize        decimal.Decimal
	AvgPrice          decimal.NullDecimal
	WorstPrice        decimal.NullDecimal
	SlippagePct       decimal.NullDecimal // |avg - best| / best
}

// SimulateByNotional simulates a market order sized in quote currency.
// BUY consumes asks, SELL consumes bids.
func SimulateByNotional(b Book, direction model.Side, notional decimal.Decimal) Simulation {
	sim := Simulation{
		RequestedNotional: notional,
		SpentNotional:     decimal.Zero,
		FilledSize:        decimal.Zero,
	}
	if !notional.IsPositive() {
		return sim
	}

	levels := b.Asks
	if direction == model.Sell {
		levels = b.Bids
	}

	remaining := notional
	for _, lvl := range levels {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, lvl.Price.Mul(lvl.Size))
		sim.SpentNotional = sim.SpentNotional.Add(take)
		sim.FilledSize = sim.FilledSize.Add(take.Div(lvl.Price))
		sim.WorstPrice = decimal.NewNullDecimal(lvl.Price)
		remaining = remaining.Sub(take)
	}

	if sim.FilledSize.IsPositive() {
		avg := sim.SpentNotional.Div(sim.FilledSize)
		best := levels[0].Price
		sim.AvgPrice = decimal.NewNullDecimal(avg)
		sim.SlippagePct = decimal.NewNullDecimal(avg.Sub(best).Abs().Div(best))
	}
	return sim
}

// Impact warnings.
const (
	WarnLowLiquidity = "LOW_LIQUIDITY"
	WarnHighSlippage = "HIGH_SLIPPAGE"
)

// ImpactOptions tunes EstimateImpact. Zero values use the defaults of 1%
// slippage and 98% fill.
type ImpactOptions struct {
	HighSlippagePct decimal.Decimal
	MinFillPct      decimal.Decimal
}

// Impact is a lightweight price-impact estimate for display.
type Impact struct {
	Direction   model.Side
	Notional    decimal.Decimal
	FilledPct   decimal.Decimal
	SlippagePct decimal.NullDecimal
	AvgPrice    decimal.NullDecimal
	WorstPrice  decimal.NullDecimal
	Warning     string
}

// EstimateImpact runs SimulateByNotional and flags thin or expensive books.
func EstimateImpact(b Book, direction model.Side, notional decimal.Decimal, opts ImpactOptions) Impact {
	highSlippage := opts.HighSlippagePct
	if highSlippage.IsZero() {
		highSlippage = decimal.New(1, -2)
	}
	minFill := opts.MinFillPct
	if minFill.IsZero() {
		minFill = decimal.New(98, -2)
	}

	sim := SimulateByNotional(b, direction, notional)

	filledPct := decimal.Zero
	if sim.RequestedNotional.IsPositive() {
		filledPct = sim.SpentNotional.Div(sim.RequestedNotional)
	}

	imp := Impact{
		Direction:   direction,
		Notional:    notional,
		FilledPct:   filledPct,
		SlippagePct: sim.SlippagePct,
		AvgPrice:    sim.AvgPrice,
		WorstPrice:  sim.WorstPrice,
	}
	switch {
	case filledPct.LessThan(minFill):
		imp.Warning = WarnLowLiquidity
	case sim.SlippagePct.Valid && sim.SlippagePct.Decimal.GreaterThan(highSlippage):
		imp.Warning = WarnHighSlippage
	}
	return imp
}
