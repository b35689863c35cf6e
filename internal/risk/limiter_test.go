package risk

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/engine"
	"github.com/shokenteam/shoken-core/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCheckLimit_WithinLimits(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(5000), nil)

	if err := limiter.CheckLimit("SOL-PERP", d(100), nil); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_PerMarketExceeded(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(5000), nil)

	// Existing 950 + new 100 = 1050 > 1000.
	existing := map[string]decimal.Decimal{"SOL-PERP": d(950)}

	err := limiter.CheckLimit("SOL-PERP", d(100), existing)
	if !errors.Is(err, ErrPerMarketLimitExceeded) {
		t.Errorf("expected ErrPerMarketLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_ExactlyAtLimit(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(5000), nil)
	existing := map[string]decimal.Decimal{"SOL-PERP": d(900)}

	if err := limiter.CheckLimit("SOL-PERP", d(100), existing); err != nil {
		t.Errorf("exposure at the limit is allowed, got %v", err)
	}
}

func TestCheckLimit_ShortSideCounts(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(5000), nil)
	existing := map[string]decimal.Decimal{"SOL-PERP": d(-950)}

	if err := limiter.CheckLimit("SOL-PERP", d(-100), existing); !errors.Is(err, ErrPerMarketLimitExceeded) {
		t.Errorf("expected ErrPerMarketLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_CorrelatedExceeded(t *testing.T) {
	// SOL-PERP, SOL-USDC and SOL/USDT all group under SOL.
	limiter := NewExposureLimiter(d(1000), d(2000), nil)

	existing := map[string]decimal.Decimal{
		"SOL-PERP": d(800),
		"SOL-USDC": d(-800),
		"SOL/USDT": d(300),
	}

	// total = 200 + 800 + 800 + 300 = 2100 > 2000
	err := limiter.CheckLimit("SOL-USDE", d(200), existing)
	if !errors.Is(err, ErrCorrelatedLimitExceeded) {
		t.Errorf("expected ErrCorrelatedLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_UncorrelatedMarketsIgnored(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(2000), nil)

	existing := map[string]decimal.Decimal{
		"SOL-PERP": d(800),
		"BTC-PERP": d(900),
		"ELECTION": d(900),
	}

	// SOL group total = 500 + 800 = 1300 < 2000.
	if err := limiter.CheckLimit("SOL-USDC", d(500), existing); err != nil {
		t.Errorf("uncorrelated markets should be ignored, got %v", err)
	}
}

func TestCheckLimit_ReducingExposure(t *testing.T) {
	limiter := NewExposureLimiter(d(1000), d(5000), nil)
	existing := map[string]decimal.Decimal{"SOL-PERP": d(800)}

	// 800 - 200 = 600 < 1000.
	if err := limiter.CheckLimit("SOL-PERP", d(-200), existing); err != nil {
		t.Errorf("selling should reduce exposure, got %v", err)
	}
}

func TestCheckLimit_ZeroDisables(t *testing.T) {
	limiter := NewExposureLimiter(decimal.Zero, decimal.Zero, nil)
	if err := limiter.CheckLimit("SOL-PERP", d(1e9), nil); err != nil {
		t.Errorf("zero limits should disable checks, got %v", err)
	}
}

func TestCheckLimit_CustomGroup(t *testing.T) {
	// Treat every L1 token as one group.
	group := func(id string) string { return "L1" }
	limiter := NewExposureLimiter(d(1000), d(1500), group)

	existing := map[string]decimal.Decimal{"BTC-PERP": d(900)}
	if err := limiter.CheckLimit("ETH-PERP", d(700), existing); !errors.Is(err, ErrCorrelatedLimitExceeded) {
		t.Errorf("expected ErrCorrelatedLimitExceeded, got %v", err)
	}
}

func TestBaseAssetGroup(t *testing.T) {
	tests := map[string]string{
		"SOL-PERP":       "SOL",
		"SOL-USDC":       "SOL",
		"ELECTION24-YES": "ELECTION24-YES",
		"ELECTION24":     "ELECTION24",
		"weird id":       "weird id",
	}
	for in, want := range tests {
		if got := BaseAssetGroup(in); got != want {
			t.Errorf("BaseAssetGroup(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExposures(t *testing.T) {
	s := engine.NewState("w")
	s.Perps = map[string]model.PerpPosition{
		"SOL-PERP": {MarketID: "SOL-PERP", Size: d(-2), AvgEntry: d(100), MarkPrice: decimal.NewNullDecimal(d(110))},
		"BTC-PERP": {MarketID: "BTC-PERP", Size: d(1), AvgEntry: d(50)},
	}
	s.Predictions = map[model.PredictionKey]model.PredictionPosition{
		{MarketID: "M", Outcome: model.Yes}: {MarketID: "M", Outcome: model.Yes, Shares: d(10), AvgPrice: d(0.4)},
		{MarketID: "M", Outcome: model.No}:  {MarketID: "M", Outcome: model.No, Shares: d(10), AvgPrice: d(0.5), LastPrice: decimal.NewNullDecimal(d(0.6))},
	}

	got := Exposures(s)
	want := map[string]float64{"SOL-PERP": -220, "BTC-PERP": 50, "M": 10}
	for id, w := range want {
		if !got[id].Equal(d(w)) {
			t.Errorf("%s: got %s, want %v", id, got[id], w)
		}
	}
}
