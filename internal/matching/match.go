// Package matching simulates executing an order against an aggregated
// price-level book under time-in-force rules.
//
// Match is pure: it never mutates the input book and, on error, nothing it
// computed internally escapes to the caller.
package matching

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/book"
	"github.com/shokenteam/shoken-core/internal/coreerr"
	"github.com/shokenteam/shoken-core/internal/model"
)

var bpsDivisor = decimal.NewFromInt(10_000)

// Result is the outcome of a successful match.
type Result struct {
	Fills []model.Fill

	// RemainingQty is the quantity neither filled nor resting. GTC limit
	// remainders are posted to NextBook, so it is zero for them.
	RemainingQty decimal.Decimal

	NextBook book.Book
}

// FilledQty sums the fill quantities.
func (r Result) FilledQty() decimal.Decimal {
	total := decimal.Zero
	for _, f := range r.Fills {
		total = total.Add(f.Quantity)
	}
	return total
}

type execution struct {
	price decimal.Decimal
	qty   decimal.Decimal
}

// Match executes order against b at time now. feeBps is the taker fee in
// basis points of quote (zero for none).
func Match(order model.Order, b book.Book, now time.Time, feeBps decimal.Decimal) (Result, error) {
	if !order.Quantity.IsPositive() {
		return Result{}, coreerr.New(coreerr.CodeInvalidQuantity, "order.quantity must be > 0",
			"quantity", order.Quantity.String())
	}
	isLimit := order.Type == model.LimitOrder
	if isLimit && !(order.Price.Valid && order.Price.Decimal.IsPositive()) {
		return Result{}, coreerr.New(coreerr.CodeInvalidPrice, "LIMIT order requires price > 0",
			"price", priceString(order.Price))
	}

	bk := book.Normalize(b.Bids, b.Asks, b.Timestamp)
	restSide, takeSide := book.Bids, book.Asks
	if order.Side == model.Sell {
		restSide, takeSide = book.Asks, book.Bids
	}

	if isLimit && !crosses(order, bk) {
		switch order.TimeInForce {
		case model.FOK:
			return Result{}, insufficient(decimal.Zero, order.Quantity)
		case model.IOC:
			return Result{RemainingQty: order.Quantity, NextBook: bk}, nil
		}
		rested := book.InsertLevel(bk.Levels(restSide), book.Level{Price: order.Price.Decimal, Size: order.Quantity}, restSide)
		return Result{RemainingQty: decimal.Zero, NextBook: bk.WithSide(restSide, rested)}, nil
	}

	tradable := tradableLevels(order, bk.Levels(takeSide), takeSide)
	execs, remaining, leftover := consume(tradable, order.Quantity)

	filled := order.Quantity.Sub(remaining)
	if order.TimeInForce == model.FOK && filled.Add(model.QtyEpsilon).LessThan(order.Quantity) {
		return Result{}, insufficient(filled, order.Quantity)
	}

	fills := make([]model.Fill, 0, len(execs))
	for i, ex := range execs {
		quote := ex.price.Mul(ex.qty)
		fee := decimal.Zero
		if feeBps.IsPositive() {
			fee = quote.Mul(feeBps).Div(bpsDivisor)
		}
		fills = append(fills, model.Fill{
			ID:        fmt.Sprintf("%s-%d", order.ID, i+1),
			OrderID:   order.ID,
			MarketID:  order.MarketID,
			Side:      order.Side,
			Price:     ex.price,
			Quantity:  ex.qty,
			Quote:     quote,
			Fee:       fee,
			Timestamp: now,
		})
	}

	next := bk.WithSide(takeSide, mergeAfterConsume(bk.Levels(takeSide), tradable, leftover, takeSide))

	if isLimit && order.TimeInForce == model.GTC && remaining.GreaterThan(model.LevelEpsilon) {
		rested := book.InsertLevel(next.Levels(restSide), book.Level{Price: order.Price.Decimal, Size: remaining}, restSide)
		return Result{Fills: fills, RemainingQty: decimal.Zero, NextBook: next.WithSide(restSide, rested)}, nil
	}

	return Result{Fills: fills, RemainingQty: remaining, NextBook: next}, nil
}

// crosses reports whether a limit order would execute against the best
// opposite level.
func crosses(order model.Order, b book.Book) bool {
	limit := order.Price.Decimal
	if order.Side == model.Buy {
		return len(b.Asks) > 0 && limit.GreaterThanOrEqual(b.Asks[0].Price)
	}
	return len(b.Bids) > 0 && limit.LessThanOrEqual(b.Bids[0].Price)
}

// tradableLevels filters the opposite side to levels at or better than the
// limit. Market orders may take every level.
func tradableLevels(order model.Order, levels []book.Level, s book.Side) []book.Level {
	if order.Type == model.MarketOrder {
		return levels
	}
	limit := order.Price.Decimal
	out := make([]book.Level, 0, len(levels))
	for _, l := range levels {
		if s == book.Asks && l.Price.LessThanOrEqual(limit) ||
			s == book.Bids && l.Price.GreaterThanOrEqual(limit) {
			out = append(out, l)
		}
	}
	return out
}

// consume greedily takes min(remaining, size) from each level in priority
// order. It works on a copy and returns the non-empty leftover levels.
func consume(levels []book.Level, want decimal.Decimal) ([]execution, decimal.Decimal, []book.Level) {
	remaining := want
	var execs []execution
	next := make([]book.Level, len(levels))
	copy(next, levels)

	for i := range next {
		if !remaining.IsPositive() {
			break
		}
		if !next[i].Size.IsPositive() {
			continue
		}
		take := decimal.Min(remaining, next[i].Size)
		execs = append(execs, execution{price: next[i].Price, qty: take})
		next[i].Size = next[i].Size.Sub(take)
		remaining = remaining.Sub(take)
	}

	leftover := make([]book.Level, 0, len(next))
	for _, l := range next {
		if l.Size.GreaterThan(model.LevelEpsilon) {
			leftover = append(leftover, l)
		}
	}
	return execs, remaining, leftover
}

// mergeAfterConsume removes every consumed price from original, adds back
// what is left of those levels, drops empty levels and re-sorts.
func mergeAfterConsume(original, consumed, leftover []book.Level, s book.Side) []book.Level {
	out := make([]book.Level, 0, len(original))
	for _, l := range original {
		if !containsPrice(consumed, l.Price) {
			out = append(out, l)
		}
	}
	for _, l := range leftover {
		if l.Size.GreaterThan(model.LevelEpsilon) {
			out = append(out, l)
		}
	}
	book.Sort(out, s)
	return out
}

func containsPrice(levels []book.Level, price decimal.Decimal) bool {
	for _, l := range levels {
		if l.Price.Sub(price).Abs().LessThan(model.LevelEpsilon) {
			return true
		}
	}
	return false
}

func insufficient(filled, requested decimal.Decimal) error {
	return coreerr.New(coreerr.CodeInsufficientLiquidity, "FOK could not be fully filled",
		"filled", filled.String(),
		"requested", requested.String(),
	)
}

func priceString(p decimal.NullDecimal) string {
	if !p.Valid {
		return "<nil>"
	}
	return p.Decimal.String()
}
