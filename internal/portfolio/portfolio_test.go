package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/engine"
	"github.com/shokenteam/shoken-core/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func reduceAll(t *testing.T, s engine.State, evs ...engine.Event) engine.State {
	t.Helper()
	for _, ev := range evs {
		var err error
		if s, err = engine.Reduce(s, ev); err != nil {
			t.Fatalf("reduce %s: %v", ev.Kind(), err)
		}
	}
	return s
}

func perpOrder(id, market string, side model.Side, qty float64) engine.OrderPlaced {
	return engine.OrderPlaced{Order: model.Order{
		ID: id, MarketID: market, Side: side, Type: model.MarketOrder, TimeInForce: model.IOC, Quantity: d(qty),
	}}
}

func perpFill(id, market string, side model.Side, price, qty, fee float64) engine.OrderFilled {
	return engine.OrderFilled{Fill: model.Fill{
		OrderID: id, MarketID: market, Side: side, Price: d(price), Quantity: d(qty), Fee: d(fee),
	}}
}

func TestSummarize_Empty(t *testing.T) {
	sum := Summarize(engine.NewState("w").WithBalance(d(1000)))
	if !sum.Equity.Equal(d(1000)) || !sum.Available.Equal(d(1000)) || !sum.Exposure.IsZero() {
		t.Errorf("got %+v", sum)
	}
}

func TestSummarize_BalanceNotMovedByEvents(t *testing.T) {
	s := reduceAll(t, engine.NewState("w"),
		perpOrder("o1", "SOL-PERP", model.Buy, 1),
		perpFill("o1", "SOL-PERP", model.Buy, 100, 1, 0.1),
		engine.MarkPriceUpdated{MarketID: "SOL-PERP", MarkPrice: d(104)},
		engine.PredictionFilled{MarketID: "RAIN", Outcome: model.Yes, Price: d(0.5), Shares: d(10)},
		engine.PredictionMarketResolved{MarketID: "RAIN", Outcome: model.Yes},
	)
	if !s.Balances.USDC.IsZero() {
		t.Fatalf("balance = %s", s.Balances.USDC)
	}
	sum := Summarize(s)
	if !sum.Equity.Equal(sum.UnrealizedPnL) || !sum.Equity.Equal(d(4)) {
		t.Errorf("equity %s, unrealized %s", sum.Equity, sum.UnrealizedPnL)
	}
}

func TestSummarize_PerpsAndPredictions(t *testing.T) {
	s := reduceAll(t, engine.NewState("w").WithBalance(d(1000)),
		// SOL long 2 @ 100, marked at 110.
		perpOrder("o1", "SOL-PERP", model.Buy, 2),
		perpFill("o1", "SOL-PERP", model.Buy, 100, 2, 0.5),
		engine.MarkPriceUpdated{MarketID: "SOL-PERP", MarkPrice: d(110)},
		// BTC short 1 @ 50, unmarked.
		perpOrder("o2", "BTC-PERP", model.Sell, 1),
		perpFill("o2", "BTC-PERP", model.Sell, 50, 1, 0.25),
		// 100 YES @ 0.4, repriced to 0.6.
		engine.PredictionFilled{MarketID: "ELECTION", Outcome: model.Yes, Price: d(0.4), Shares: d(100)},
		engine.PredictionPriceUpdated{MarketID: "ELECTION", Outcome: model.Yes, Price: d(0.6)},
		perpOrder("o3", "SOL-PERP", model.Buy, 1),
	)

	sum := Summarize(s)
	checks := []struct {
		name string
		got  decimal.Decimal
		want float64
	}{
		{"unrealized", sum.UnrealizedPnL, 20},
		{"equity", sum.Equity, 1020},
		{"available", sum.Available, 1000},
		{"exposure", sum.Exposure, 220 + 50 + 60},
		{"prediction value", sum.PredictionValue, 60},
		{"fees", sum.FeesPaid, 0.75},
		{"realized", sum.RealizedPnL, 0},
	}
	for _, c := range checks {
		if !c.got.Equal(d(c.want)) {
			t.Errorf("%s: got %s, want %v", c.name, c.got, c.want)
		}
	}
	if sum.PerpCount != 2 || sum.PredictionCount != 1 || sum.OpenOrderCount != 1 {
		t.Errorf("counts: %+v", sum)
	}
}

func TestSummarize_Settled(t *testing.T) {
	s := reduceAll(t, engine.NewState("w"),
		engine.PredictionFilled{MarketID: "M", Outcome: model.No, Price: d(0.3), Shares: d(10)},
		engine.PredictionMarketResolved{MarketID: "M", Outcome: model.No, At: time.Now()},
	)
	sum := Summarize(s)
	if !sum.SettledPayout.Equal(d(10)) {
		t.Errorf("settled payout = %s", sum.SettledPayout)
	}
	// Resolved positions are marked at 1.
	if !sum.PredictionValue.Equal(d(10)) {
		t.Errorf("prediction value = %s", sum.PredictionValue)
	}
}
