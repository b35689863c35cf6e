package book

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/coreerr"
	"github.com/shokenteam/shoken-core/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func lv(price, size float64) Level {
	return Level{Price: d(price), Size: d(size)}
}

func assertLevels(t *testing.T, name string, got, want []Level) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: expected %d levels, got %d (%v)", name, len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Price.Equal(want[i].Price) || !got[i].Size.Equal(want[i].Size) {
			t.Errorf("%s[%d]: got (%s,%s), want (%s,%s)", name, i,
				got[i].Price, got[i].Size, want[i].Price, want[i].Size)
		}
	}
}

// --- Normalization ---

func TestNormalize_SortsMergesAndDrops(t *testing.T) {
	bids := []Level{lv(99, 1), lv(100, 2), lv(99, 3), lv(0, 5), lv(98, -1)}
	asks := []Level{lv(102, 1), lv(101, 4), lv(102, 2), lv(103, 0)}

	b := Normalize(bids, asks, time.Unix(10, 0))

	assertLevels(t, "bids", b.Bids, []Level{lv(100, 2), lv(99, 4)})
	assertLevels(t, "asks", b.Asks, []Level{lv(101, 4), lv(102, 3)})
	if !b.Timestamp.Equal(time.Unix(10, 0)) {
		t.Errorf("timestamp not carried: %v", b.Timestamp)
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	bids := []Level{lv(99, 1), lv(100, 2)}
	Normalize(bids, nil, time.Time{})
	if !bids[0].Price.Equal(d(99)) || !bids[1].Price.Equal(d(100)) {
		t.Errorf("input reordered: %v", bids)
	}
}

func TestNormalize_CrossedBookPassesThrough(t *testing.T) {
	b := Normalize([]Level{lv(101, 1)}, []Level{lv(100, 1)}, time.Time{})
	if !b.Crossed() {
		t.Fatal("expected crossed book")
	}
	if len(b.Bids) != 1 || len(b.Asks) != 1 {
		t.Error("crossed levels should be kept")
	}

	err := RequireUncrossed(b)
	if !errors.Is(err, coreerr.ErrOrderbook) {
		t.Errorf("expected ErrOrderbook, got %v", err)
	}
}

func TestRequireUncrossed_NormalBook(t *testing.T) {
	b := Normalize([]Level{lv(99, 1)}, []Level{lv(100, 1)}, time.Time{})
	if err := RequireUncrossed(b); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseLevels_SkipsGarbage(t *testing.T) {
	levels := ParseLevels([][2]string{{"100.5", "2"}, {"NaN", "1"}, {"101", "abc"}, {"102", "3"}})
	assertLevels(t, "parsed", levels, []Level{lv(100.5, 2), lv(102, 3)})
}

func TestInsertLevel_MergesSamePrice(t *testing.T) {
	side := []Level{lv(100, 1), lv(99, 2)}
	out := InsertLevel(side, lv(100, 3), Bids)

	assertLevels(t, "merged", out, []Level{lv(100, 4), lv(99, 2)})
	if !side[0].Size.Equal(d(1)) {
		t.Error("input side was mutated")
	}
}

func TestInsertLevel_InsertsInPriorityOrder(t *testing.T) {
	out := InsertLevel([]Level{lv(101, 1), lv(103, 1)}, lv(102, 5), Asks)
	assertLevels(t, "asks", out, []Level{lv(101, 1), lv(102, 5), lv(103, 1)})
}

func TestRemoveLevelSize(t *testing.T) {
	side := []Level{lv(101, 1), lv(102, 5)}

	assertLevels(t, "partial", RemoveLevelSize(side, d(102), d(2)), []Level{lv(101, 1), lv(102, 3)})
	assertLevels(t, "emptied", RemoveLevelSize(side, d(101), d(1)), []Level{lv(102, 5)})
	assertLevels(t, "missing", RemoveLevelSize(side, d(150), d(1)), side)
	if !side[1].Size.Equal(d(5)) || len(side) != 2 {
		t.Error("input side was mutated")
	}
}

// --- Analytics ---

func sampleBook() Book {
	return Normalize(
		[]Level{lv(100, 5), lv(99, 5)},
		[]Level{lv(101, 3), lv(102, 4)},
		time.Time{},
	)
}

func TestTop(t *testing.T) {
	top := Top(sampleBook())
	if top.BestBid == nil || !top.BestBid.Price.Equal(d(100)) {
		t.Fatalf("best bid wrong: %v", top.BestBid)
	}
	if !top.Mid.Valid || !top.Mid.Decimal.Equal(d(100.5)) {
		t.Errorf("mid = %v", top.Mid)
	}
	if !top.SpreadAbs.Decimal.Equal(d(1)) {
		t.Errorf("spread = %v", top.SpreadAbs)
	}
}

func TestTop_OneSided(t *testing.T) {
	top := Top(Normalize([]Level{lv(100, 1)}, nil, time.Time{}))
	if top.BestAsk != nil || top.Mid.Valid {
		t.Errorf("one-sided book should have no ask and no mid: %+v", top)
	}
}

func TestTopN_Copies(t *testing.T) {
	b := sampleBook()
	top := TopN(b, Asks, 5)
	assertLevels(t, "asks", top, b.Asks)
	top[0].Size = d(999)
	if b.Asks[0].Size.Equal(d(999)) {
		t.Error("TopN must not alias the book")
	}
	if got := TotalSize(TopN(b, Bids, 1)); !got.Equal(d(5)) {
		t.Errorf("depth-1 bid size = %s", got)
	}
}

func TestVWAPForSize(t *testing.T) {
	res, err := VWAPForSize(sampleBook(), Asks, d(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 3@101 + 2@102 = 507
	if !res.Cost.Equal(d(507)) {
		t.Errorf("cost = %s", res.Cost)
	}
	if !res.AvgPrice.Decimal.Equal(d(101.4)) {
		t.Errorf("avg = %s", res.AvgPrice.Decimal)
	}
	if !res.RemainingSize.IsZero() {
		t.Errorf("remaining = %s", res.RemainingSize)
	}
}

func TestVWAPForSize_Exhausted(t *testing.T) {
	res, _ := VWAPForSize(sampleBook(), Asks, d(10))
	if !res.FilledSize.Equal(d(7)) || !res.RemainingSize.Equal(d(3)) {
		t.Errorf("filled=%s remaining=%s", res.FilledSize, res.RemainingSize)
	}
}

func TestVWAPForSize_RejectsNonPositive(t *testing.T) {
	_, err := VWAPForSize(sampleBook(), Bids, decimal.Zero)
	if !errors.Is(err, coreerr.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestSimulateByNotional(t *testing.T) {
	sim := SimulateByNotional(sampleBook(), model.Buy, d(504))
	// 303 buys 3@101, the remaining 201 buys 1.97...@102
	if !sim.SpentNotional.Equal(d(504)) {
		t.Errorf("spent = %s", sim.SpentNotional)
	}
	if !sim.WorstPrice.Decimal.Equal(d(102)) {
		t.Errorf("worst = %s", sim.WorstPrice.Decimal)
	}
	if !sim.SlippagePct.Valid || !sim.SlippagePct.Decimal.IsPositive() {
		t.Errorf("expected positive slippage, got %v", sim.SlippagePct)
	}
}

func TestEstimateImpact_Warnings(t *testing.T) {
	b := sampleBook()

	thin := EstimateImpact(b, model.Buy, d(10000), ImpactOptions{})
	if thin.Warning != WarnLowLiquidity {
		t.Errorf("expected LOW_LIQUIDITY, got %q", thin.Warning)
	}

	small := EstimateImpact(b, model.Sell, d(100), ImpactOptions{})
	if small.Warning != "" {
		t.Errorf("expected no warning, got %q", small.Warning)
	}

	steep := EstimateImpact(b, model.Buy, d(700), ImpactOptions{HighSlippagePct: d(0.001)})
	if steep.Warning != WarnHighSlippage {
		t.Errorf("expected HIGH_SLIPPAGE, got %q (filled %s)", steep.Warning, steep.FilledPct)
	}
}
