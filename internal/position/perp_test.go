package position

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

func fill(side model.Side, price, qty float64) model.Fill {
	return model.Fill{MarketID: "SOL-PERP", Side: side, Price: d(price), Quantity: d(qty)}
}

func mustApply(t *testing.T, pos *model.PerpPosition, f model.Fill) model.PerpPosition {
	t.Helper()
	next, err := ApplyPerpFill(pos, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return next
}

func assertPos(t *testing.T, p model.PerpPosition, size, entry, realized float64) {
	t.Helper()
	if !p.Size.Equal(d(size)) {
		t.Errorf("size: got %s, want %v", p.Size, size)
	}
	if !p.AvgEntry.Equal(d(entry)) {
		t.Errorf("avgEntry: got %s, want %v", p.AvgEntry, entry)
	}
	if !p.RealizedPnL.Equal(d(realized)) {
		t.Errorf("realizedPnl: got %s, want %v", p.RealizedPnL, realized)
	}
}

func TestApplyPerpFill_OpenFromAbsent(t *testing.T) {
	p := mustApply(t, nil, fill(model.Buy, 100, 2))
	assertPos(t, p, 2, 100, 0)
	if p.MarketID != "SOL-PERP" {
		t.Errorf("marketId = %q", p.MarketID)
	}
}

func TestApplyPerpFill_FlipLongToShort(t *testing.T) {
	p := mustApply(t, nil, fill(model.Buy, 100, 2))
	p = mustApply(t, &p, fill(model.Sell, 110, 3))
	// Closed 2 at +10 each, flipped to 1 short at 110.
	assertPos(t, p, -1, 110, 20)
}

func TestApplyPerpFill_FlipShortToLong(t *testing.T) {
	p := mustApply(t, nil, fill(model.Sell, 50, 4))
	p = mustApply(t, &p, fill(model.Buy, 45, 6))
	assertPos(t, p, 2, 45, 20)
}

func TestApplyPerpFill_SameDirectionWeightedAverage(t *testing.T) {
	fills := []struct{ price, qty float64 }{{100, 1}, {110, 3}, {90, 4}}

	var p *model.PerpPosition
	notional := decimal.Zero
	total := decimal.Zero
	for _, f := range fills {
		next := mustApply(t, p, fill(model.Buy, f.price, f.qty))
		p = &next
		notional = notional.Add(d(f.price).Mul(d(f.qty)))
		total = total.Add(d(f.qty))
	}

	want := notional.Div(total) // 790 / 8
	if !p.AvgEntry.Equal(want) {
		t.Errorf("avgEntry: got %s, want %s", p.AvgEntry, want)
	}
	if !p.RealizedPnL.IsZero() {
		t.Errorf("realized should stay 0, got %s", p.RealizedPnL)
	}
}

func TestApplyPerpFill_ReduceLong(t *testing.T) {
	p := mustApply(t, nil, fill(model.Buy, 100, 5))
	p = mustApply(t, &p, fill(model.Sell, 104, 2))
	assertPos(t, p, 3, 100, 8)
}

func TestApplyPerpFill_ReduceShortAtLoss(t *testing.T) {
	p := mustApply(t, nil, fill(model.Sell, 100, 5))
	p = mustApply(t, &p, fill(model.Buy, 103, 2))
	assertPos(t, p, -3, 100, -6)
}

func TestApplyPerpFill_CloseToFlatKeepsEntry(t *testing.T) {
	p := mustApply(t, nil, fill(model.Buy, 100, 2))
	p = mustApply(t, &p, fill(model.Sell, 90, 2))
	assertPos(t, p, 0, 100, -20)

	// Re-opening from flat resets the entry.
	p = mustApply(t, &p, fill(model.Sell, 95, 1))
	assertPos(t, p, -1, 95, -20)
}

func TestApplyPerpFill_FeesAccumulate(t *testing.T) {
	f1 := fill(model.Buy, 100, 1)
	f1.Fee = d(0.1)
	f2 := fill(model.Sell, 101, 1)
	f2.Fee = d(0.2)

	p := mustApply(t, nil, f1)
	p = mustApply(t, &p, f2)
	if !p.FeesPaid.Equal(d(0.3)) {
		t.Errorf("feesPaid = %s", p.FeesPaid)
	}
}

func TestApplyPerpFill_DoesNotMutatePrev(t *testing.T) {
	p := mustApply(t, nil, fill(model.Buy, 100, 2))
	before := p
	mustApply(t, &p, fill(model.Sell, 110, 3))
	if !p.Size.Equal(before.Size) || !p.AvgEntry.Equal(before.AvgEntry) {
		t.Error("previous position was mutated")
	}
}

func TestApplyPerpFill_Validation(t *testing.T) {
	open := mustApply(t, nil, fill(model.Buy, 100, 1))
	other := fill(model.Buy, 100, 1)
	other.MarketID = "BTC-PERP"

	tests := []struct {
		name string
		pos  *model.PerpPosition
		f    model.Fill
		want error
	}{
		{"zero quantity", nil, fill(model.Buy, 100, 0), coreerr.ErrInvalidQuantity},
		{"negative price", nil, fill(model.Buy, -1, 1), coreerr.ErrInvalidPrice},
		{"bad side", nil, model.Fill{MarketID: "SOL-PERP", Side: "HOLD", Price: d(1), Quantity: d(1)}, coreerr.ErrValidation},
		{"market mismatch", &open, other, coreerr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyPerpFill(tt.pos, tt.f)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestUnrealizedPnL(t *testing.T) {
	long := mustApply(t, nil, fill(model.Buy, 100, 2))
	short := mustApply(t, nil, fill(model.Sell, 100, 2))
	mark := decimal.NewNullDecimal(d(105))

	if got := UnrealizedPnL(long, mark); !got.Equal(d(10)) {
		t.Errorf("long pnl = %s", got)
	}
	if got := UnrealizedPnL(short, mark); !got.Equal(d(-10)) {
		t.Errorf("short pnl = %s", got)
	}
	if got := UnrealizedPnL(long, decimal.NullDecimal{}); !got.IsZero() {
		t.Errorf("no mark should give 0, got %s", got)
	}

	long.MarkPrice = decimal.NewNullDecimal(d(90))
	if got := UnrealizedPnL(long, decimal.NullDecimal{}); !got.Equal(d(-20)) {
		t.Errorf("stored mark pnl = %s", got)
	}
}

func TestNotional_Fallbacks(t *testing.T) {
	p := mustApply(t, nil, fill(model.Sell, 100, 2))
	if got := Notional(p, decimal.NullDecimal{}); !got.Equal(d(200)) {
		t.Errorf("entry fallback = %s", got)
	}
	p.MarkPrice = decimal.NewNullDecimal(d(110))
	if got := Notional(p, decimal.NullDecimal{}); !got.Equal(d(220)) {
		t.Errorf("mark fallback = %s", got)
	}
	if got := Notional(p, decimal.NewNullDecimal(d(50))); !got.Equal(d(100)) {
		t.Errorf("explicit mark = %s", got)
	}
}
