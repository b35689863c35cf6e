package engine

import (
	"errors"
	"testing"

	"github.com/shokenteam/shoken-core/internal/coreerr"
	"github.com/shokenteam/shoken-core/internal/model"
)

func sampleLog() []Envelope {
	return []Envelope{
		{Seq: 1, Event: placed("o1", model.Buy, 2)},
		{Seq: 2, Event: filled("o1", model.Buy, 100, 2)},
		{Seq: 3, Event: placed("o2", model.Sell, 3)},
		{Seq: 4, Event: filled("o2", model.Sell, 110, 3)},
		{Seq: 5, Event: MarkPriceUpdated{MarketID: "SOL-PERP", MarkPrice: d(108), At: t0}},
	}
}

func TestReplay(t *testing.T) {
	s, err := Replay("w", sampleLog())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.LastSeq != 5 || s.WalletAddress != "w" {
		t.Errorf("lastSeq=%d wallet=%q", s.LastSeq, s.WalletAddress)
	}
	pos := s.Perps["SOL-PERP"]
	if !pos.Size.Equal(d(-1)) || !pos.RealizedPnL.Equal(d(20)) || !pos.MarkPrice.Decimal.Equal(d(108)) {
		t.Errorf("position: %+v", pos)
	}
}

func TestApply_SkipsAppliedSequences(t *testing.T) {
	log := sampleLog()
	s, err := Replay("w", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Replaying the whole log on top is a no-op, including the fills that
	// would otherwise over-fill their orders.
	again, err := ReplayFrom(s, log)
	if err != nil {
		t.Fatalf("replay over applied log: %v", err)
	}
	if !again.Perps["SOL-PERP"].Size.Equal(d(-1)) || again.LastSeq != 5 {
		t.Errorf("replay was not idempotent: %+v", again.Perps["SOL-PERP"])
	}
}

func TestApply_ResumeFromPrefix(t *testing.T) {
	log := sampleLog()
	prefix, err := Replay("w", log[:2])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	full, err := ReplayFrom(prefix, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	direct, _ := Replay("w", log)
	if !full.Perps["SOL-PERP"].Size.Equal(direct.Perps["SOL-PERP"].Size) || full.LastSeq != direct.LastSeq {
		t.Error("resumed replay diverged from a full replay")
	}
}

func TestReplay_StopsAtFirstError(t *testing.T) {
	log := []Envelope{
		{Seq: 1, Event: placed("o1", model.Buy, 1)},
		{Seq: 2, Event: filled("ghost", model.Buy, 100, 1)},
		{Seq: 3, Event: filled("o1", model.Buy, 100, 1)},
	}
	s, err := Replay("w", log)
	if !errors.Is(err, coreerr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if s.LastSeq != 1 || s.Orders["o1"].Status != model.OrderOpen {
		t.Errorf("state after failure: lastSeq=%d status=%s", s.LastSeq, s.Orders["o1"].Status)
	}
}

func TestState_Accessors(t *testing.T) {
	s := mustReduce(t, NewState("w"),
		placed("b", model.Buy, 1),
		placed("a", model.Buy, 1),
		filled("b", model.Buy, 100, 1),
		PredictionFilled{MarketID: "M", Outcome: model.Yes, Price: d(0.5), Shares: d(1)},
		PredictionFilled{MarketID: "M", Outcome: model.No, Price: d(0.5), Shares: d(1)},
	)
	if ids := s.OrderIDs(); len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("order ids = %v", ids)
	}
	if open := s.OpenOrders(); len(open) != 1 || open[0].Order.ID != "a" {
		t.Errorf("open orders = %+v", open)
	}
	if keys := s.PredictionKeys(); len(keys) != 2 || keys[0].Outcome != model.No {
		t.Errorf("prediction keys = %v", keys)
	}
	if s.WithBalance(d(50)).Balances.USDC.String() != "50" || !s.Balances.USDC.IsZero() {
		t.Error("WithBalance must return a copy")
	}
}
