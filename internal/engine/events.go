package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/model"
)

// Kind names an event variant. The values are stable and are what the
// event log stores.
type Kind string

const (
	KindOrderPlaced              Kind = "ORDER_PLACED"
	KindOrderCanceled            Kind = "ORDER_CANCELED"
	KindOrderFilled              Kind = "ORDER_FILLED"
	KindMarkPriceUpdated         Kind = "MARK_PRICE_UPDATED"
	KindPredictionPriceUpdated   Kind = "PREDICTION_PRICE_UPDATED"
	KindPredictionFilled         Kind = "PREDICTION_FILLED"
	KindPredictionMarketResolved Kind = "PREDICTION_MARKET_RESOLVED"
)

// Event is the closed set of inputs accepted by Reduce. Only types in this
// package implement it.
type Event interface {
	Kind() Kind
	isEvent()
}

// OrderPlaced starts tracking an order.
type OrderPlaced struct {
	Order model.Order
}

// OrderCanceled cancels a tracked order. Unknown ids are ignored.
type OrderCanceled struct {
	OrderID string
	At      time.Time
}

// OrderFilled applies one execution to its order and to the perp position
// of the fill's market.
type OrderFilled struct {
	Fill model.Fill
}

// MarkPriceUpdated sets the mark of an existing perp position.
type MarkPriceUpdated struct {
	MarketID  string
	MarkPrice decimal.Decimal
	At        time.Time
}

// PredictionPriceUpdated sets the last price of an existing prediction
// position holding Outcome.
type PredictionPriceUpdated struct {
	MarketID string
	Outcome  model.Outcome
	Price    decimal.Decimal
	At       time.Time
}

// PredictionFilled buys shares of one outcome.
type PredictionFilled struct {
	MarketID string
	Outcome  model.Outcome
	Price    decimal.Decimal
	Shares   decimal.Decimal
	At       time.Time
}

// PredictionMarketResolved settles every position of a binary market.
type PredictionMarketResolved struct {
	MarketID string
	Outcome  model.Outcome
	At       time.Time
}

func (OrderPlaced) Kind() Kind              { return KindOrderPlaced }
func (OrderCanceled) Kind() Kind            { return KindOrderCanceled }
func (OrderFilled) Kind() Kind              { return KindOrderFilled }
func (MarkPriceUpdated) Kind() Kind         { return KindMarkPriceUpdated }
func (PredictionPriceUpdated) Kind() Kind   { return KindPredictionPriceUpdated }
func (PredictionFilled) Kind() Kind         { return KindPredictionFilled }
func (PredictionMarketResolved) Kind() Kind { return KindPredictionMarketResolved }

func (OrderPlaced) isEvent()              {}
func (OrderCanceled) isEvent()            {}
func (OrderFilled) isEvent()              {}
func (MarkPriceUpdated) isEvent()         {}
func (PredictionPriceUpdated) isEvent()   {}
func (PredictionFilled) isEvent()         {}
func (PredictionMarketResolved) isEvent() {}

// Envelope is an event with its position in a wallet's log. Sequence
// numbers start at 1 and strictly increase.
type Envelope struct {
	Seq   uint64
	Event Event
}
