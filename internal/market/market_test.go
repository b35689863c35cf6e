package market

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/coreerr"
	"github.com/shokenteam/shoken-core/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func solPerp() model.Market {
	return model.Market{
		ID: "SOL-PERP", Type: model.MarketPerp, Status: model.StatusActive,
		BaseAsset: "SOL", QuoteAsset: "USDC", TickSize: d(0.01), LotSize: d(0.1),
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(solPerp()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*model.Market)
	}{
		{"missing id", func(m *model.Market) { m.ID = "" }},
		{"missing base", func(m *model.Market) { m.BaseAsset = "" }},
		{"missing quote", func(m *model.Market) { m.QuoteAsset = "" }},
		{"zero tick", func(m *model.Market) { m.TickSize = decimal.Zero }},
		{"negative lot", func(m *model.Market) { m.LotSize = d(-1) }},
		{"unknown type", func(m *model.Market) { m.Type = "OPTION" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := solPerp()
			tt.mutate(&m)
			if err := Validate(m); !errors.Is(err, coreerr.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestAssertActive(t *testing.T) {
	m := solPerp()
	if err := AssertActive(m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, st := range []model.MarketStatus{model.StatusHalted, model.StatusClosed} {
		m.Status = st
		if err := AssertActive(m); !errors.Is(err, coreerr.ErrMarketNotActive) {
			t.Errorf("%s: expected ErrMarketNotActive, got %v", st, err)
		}
	}
}

func TestAssertTickSize(t *testing.T) {
	ok := []float64{100, 100.01, 0.01, 99.99}
	for _, p := range ok {
		if err := AssertTickSize(d(0.01), d(p)); err != nil {
			t.Errorf("price %v should be on grid: %v", p, err)
		}
	}
	if err := AssertTickSize(d(0.01), d(100.005)); !errors.Is(err, coreerr.ErrInvalidTickSize) {
		t.Errorf("expected ErrInvalidTickSize, got %v", err)
	}
	if err := AssertTickSize(decimal.Zero, d(1)); !errors.Is(err, coreerr.ErrInvalidTickSize) {
		t.Errorf("zero tick should never match, got %v", err)
	}
}

func TestAssertLotSize(t *testing.T) {
	if err := AssertLotSize(d(0.1), d(2.3)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := AssertLotSize(d(0.1), d(2.35))
	if !errors.Is(err, coreerr.ErrInvalidLotSize) {
		t.Fatalf("expected ErrInvalidLotSize, got %v", err)
	}
	var ce *coreerr.Error
	if !errors.As(err, &ce) || ce.Meta["qty"] != "2.35" {
		t.Errorf("expected qty metadata, got %v", err)
	}
}

func TestParseSymbol(t *testing.T) {
	tests := []struct {
		raw      string
		typ      model.MarketType
		base     string
		quote    string
		marketID string
		outcome  model.Outcome
	}{
		{"SOL-PERP", model.MarketPerp, "SOL", "USDC", "SOL-PERP", ""},
		{"SOL-USDC", model.MarketSpot, "SOL", "USDC", "SOL-USDC", ""},
		{"BTC/USDT", model.MarketSpot, "BTC", "USDT", "BTC/USDT", ""},
		{"ELECTION24-YES", model.MarketPrediction, "YES", "USDC", "ELECTION24", model.Yes},
		{"FED_CUT-NO", model.MarketPrediction, "NO", "USDC", "FED_CUT", model.No},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			s, err := ParseSymbol(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Type != tt.typ || s.Base != tt.base || s.Quote != tt.quote ||
				s.MarketID != tt.marketID || s.Outcome != tt.outcome {
				t.Errorf("got %+v", s)
			}
		})
	}
}

func TestParseSymbol_Invalid(t *testing.T) {
	for _, raw := range []string{"", "SOL", "sol-perp", "SOL-", "-PERP", "SOL-SOL", "A-B-C"} {
		if _, err := ParseSymbol(raw); !errors.Is(err, coreerr.ErrValidation) {
			t.Errorf("%q: expected ErrValidation, got %v", raw, err)
		}
	}
}

func TestFromSymbol(t *testing.T) {
	m, err := FromSymbol("ELECTION24-YES", "Polymarket", d(0.01), d(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != "ELECTION24" || m.Type != model.MarketPrediction || m.Status != model.StatusActive || m.Symbol != "ELECTION24-YES" {
		t.Errorf("got %+v", m)
	}
	if _, err := FromSymbol("SOL-PERP", "", decimal.Zero, d(1)); !errors.Is(err, coreerr.ErrValidation) {
		t.Errorf("expected ErrValidation for zero tick, got %v", err)
	}
}
