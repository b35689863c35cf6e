package engine

import (
	"fmt"
	"slices"
	"time"

	"github.com/shokenteam/shoken-core/internal/coreerr"
	"github.com/shokenteam/shoken-core/internal/model"
	"github.com/shokenteam/shoken-core/internal/order"
	"github.com/shokenteam/shoken-core/internal/position"
)

// Reduce applies ev to s and returns the resulting state. On error the
// returned state is s, unchanged. Events that do not apply to tracked state
// (cancel of an unknown order, a mark for a market without a position) are
// no-ops; a fill for an unknown order is an error.
func Reduce(s State, ev Event) (State, error) {
	switch e := ev.(type) {
	case OrderPlaced:
		return reduceOrderPlaced(s, e)
	case OrderCanceled:
		return reduceOrderCanceled(s, e)
	case OrderFilled:
		return reduceOrderFilled(s, e)
	case MarkPriceUpdated:
		return reduceMarkPrice(s, e)
	case PredictionPriceUpdated:
		return reducePredictionPrice(s, e)
	case PredictionFilled:
		return reducePredictionFilled(s, e)
	case PredictionMarketResolved:
		return reduceResolved(s, e)
	case nil:
		return s, coreerr.New(coreerr.CodeValidation, "nil event")
	default:
		return s, coreerr.New(coreerr.CodeValidation, "unknown event", "kind", string(ev.Kind()))
	}
}

// Apply reduces env into s unless it was already applied. Envelopes at or
// below LastSeq are skipped, which makes replaying an overlapping log safe.
func Apply(s State, env Envelope) (State, error) {
	if env.Seq <= s.LastSeq {
		return s, nil
	}
	next, err := Reduce(s, env.Event)
	if err != nil {
		return s, err
	}
	next.LastSeq = env.Seq
	return next, nil
}

// Replay folds envelopes into a fresh state for wallet.
func Replay(wallet string, envs []Envelope) (State, error) {
	return ReplayFrom(NewState(wallet), envs)
}

// ReplayFrom folds envelopes into s. It stops at the first failing
// envelope and returns the state before it.
func ReplayFrom(s State, envs []Envelope) (State, error) {
	for _, env := range envs {
		next, err := Apply(s, env)
		if err != nil {
			return s, fmt.Errorf("engine: replay seq %d (%s): %w", env.Seq, env.Event.Kind(), err)
		}
		s = next
	}
	return s, nil
}

// ResolvePredictionMarket settles marketID to outcome.
func ResolvePredictionMarket(s State, marketID string, outcome model.Outcome, at time.Time) (State, error) {
	return Reduce(s, PredictionMarketResolved{MarketID: marketID, Outcome: outcome, At: at})
}

func reduceOrderPlaced(s State, e OrderPlaced) (State, error) {
	if e.Order.ID == "" {
		return s, coreerr.New(coreerr.CodeInvalidOrder, "order.id is required")
	}
	if _, ok := s.Orders[e.Order.ID]; ok {
		return s, nil
	}
	orders := cloneMap(s.Orders)
	orders[e.Order.ID] = order.NewState(e.Order)
	s.Orders = orders
	return s, nil
}

func reduceOrderCanceled(s State, e OrderCanceled) (State, error) {
	os, ok := s.Orders[e.OrderID]
	if !ok {
		return s, nil
	}
	next, err := order.Cancel(os)
	if err != nil {
		return s, err
	}
	orders := cloneMap(s.Orders)
	orders[e.OrderID] = next
	s.Orders = orders
	return s, nil
}

func reduceOrderFilled(s State, e OrderFilled) (State, error) {
	fill := e.Fill
	os, ok := s.Orders[fill.OrderID]
	if !ok {
		return s, coreerr.New(coreerr.CodeValidation, "fill received for unknown orderId",
			"orderId", fill.OrderID)
	}

	if fill.Side == "" {
		fill.Side = os.Order.Side
	}
	if fill.Side != os.Order.Side {
		return s, coreerr.New(coreerr.CodeValidation, "fill.side does not match order side",
			"orderId", fill.OrderID, "fillSide", string(fill.Side), "orderSide", string(os.Order.Side))
	}
	if fill.MarketID == "" {
		fill.MarketID = os.Order.MarketID
	}
	if fill.MarketID != os.Order.MarketID {
		return s, coreerr.New(coreerr.CodeValidation, "fill.marketId does not match order market",
			"orderId", fill.OrderID, "fillMarketId", fill.MarketID, "orderMarketId", os.Order.MarketID)
	}

	nextOrder, err := order.ApplyFill(os, fill)
	if err != nil {
		return s, err
	}

	var prev *model.PerpPosition
	if p, ok := s.Perps[fill.MarketID]; ok {
		prev = &p
	}
	nextPos, err := position.ApplyPerpFill(prev, fill)
	if err != nil {
		return s, err
	}

	orders := cloneMap(s.Orders)
	orders[fill.OrderID] = nextOrder
	perps := cloneMap(s.Perps)
	perps[fill.MarketID] = nextPos
	s.Orders = orders
	s.Perps = perps
	return s, nil
}

func reduceMarkPrice(s State, e MarkPriceUpdated) (State, error) {
	pos, ok := s.Perps[e.MarketID]
	if !ok {
		return s, nil
	}
	if !e.MarkPrice.IsPositive() {
		return s, coreerr.New(coreerr.CodeInvalidPrice, "markPrice must be > 0",
			"marketId", e.MarketID, "markPrice", e.MarkPrice.String())
	}
	pos.MarkPrice.Decimal = e.MarkPrice
	pos.MarkPrice.Valid = true
	perps := cloneMap(s.Perps)
	perps[e.MarketID] = pos
	s.Perps = perps
	return s, nil
}

func reducePredictionPrice(s State, e PredictionPriceUpdated) (State, error) {
	key := model.PredictionKey{MarketID: e.MarketID, Outcome: e.Outcome}
	pos, ok := s.Predictions[key]
	if !ok || pos.ResolvedAs != "" {
		return s, nil
	}
	if err := position.AssertProbability(e.Price); err != nil {
		return s, err
	}
	pos.LastPrice.Decimal = e.Price
	pos.LastPrice.Valid = true
	preds := cloneMap(s.Predictions)
	preds[key] = pos
	s.Predictions = preds
	return s, nil
}

func reducePredictionFilled(s State, e PredictionFilled) (State, error) {
	if resolved, ok := s.Resolutions[e.MarketID]; ok {
		return s, coreerr.New(coreerr.CodeValidation, "market already resolved",
			"marketId", e.MarketID, "resolvedAs", string(resolved))
	}

	key := model.PredictionKey{MarketID: e.MarketID, Outcome: e.Outcome}
	var prev *model.PredictionPosition
	if p, ok := s.Predictions[key]; ok {
		prev = &p
	}
	next, err := position.ApplyPredictionFill(prev, position.PredictionFill{
		MarketID: e.MarketID,
		Outcome:  e.Outcome,
		Price:    e.Price,
		Shares:   e.Shares,
	})
	if err != nil {
		return s, err
	}

	preds := cloneMap(s.Predictions)
	preds[key] = next
	s.Predictions = preds
	return s, nil
}

func reduceResolved(s State, e PredictionMarketResolved) (State, error) {
	if e.MarketID == "" {
		return s, coreerr.New(coreerr.CodeValidation, "marketId is required")
	}
	if !e.Outcome.Valid() {
		return s, coreerr.New(coreerr.CodeValidation, "resolved outcome must be YES or NO",
			"marketId", e.MarketID, "outcome", string(e.Outcome))
	}
	if prev, ok := s.Resolutions[e.MarketID]; ok {
		if prev == e.Outcome {
			return s, nil
		}
		return s, coreerr.New(coreerr.CodeValidation, "market already resolved to a different outcome",
			"marketId", e.MarketID, "resolvedAs", string(prev), "outcome", string(e.Outcome))
	}

	resolutions := cloneMap(s.Resolutions)
	resolutions[e.MarketID] = e.Outcome

	var (
		preds       map[model.PredictionKey]model.PredictionPosition
		settlements []model.Settlement
	)
	for _, held := range []model.Outcome{model.Yes, model.No} {
		key := model.PredictionKey{MarketID: e.MarketID, Outcome: held}
		pos, ok := s.Predictions[key]
		if !ok {
			continue
		}
		settled, rec, err := position.Settle(pos, e.Outcome, e.At)
		if err != nil {
			return s, err
		}
		if preds == nil {
			preds = cloneMap(s.Predictions)
		}
		preds[key] = settled
		settlements = append(settlements, rec)
	}

	s.Resolutions = resolutions
	if preds != nil {
		s.Predictions = preds
		s.Settlements = append(slices.Clip(s.Settlements), settlements...)
	}
	return s, nil
}
