package store

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/engine"
	"github.com/shokenteam/shoken-core/internal/model"
)

// Record is one row of a wallet's event log. It is a flat persistence DTO:
// every event variant maps onto a subset of its columns.
type Record struct {
	ID     string `json:"id"`
	Wallet string `json:"wallet"`
	Seq    uint64 `json:"seq"`
	Kind   string `json:"kind"`

	OrderID     string `json:"order_id,omitempty"`
	FillID      string `json:"fill_id,omitempty"`
	MarketID    string `json:"market_id,omitempty"`
	Side        string `json:"side,omitempty"`
	OrderType   string `json:"order_type,omitempty"`
	TimeInForce string `json:"time_in_force,omitempty"`
	Outcome     string `json:"outcome,omitempty"`
	PostOnly    bool   `json:"post_only,omitempty"`
	ReduceOnly  bool   `json:"reduce_only,omitempty"`

	Price    decimal.NullDecimal `json:"price"`
	Quantity decimal.Decimal     `json:"quantity"`
	Quote    decimal.Decimal     `json:"quote"`
	Fee      decimal.Decimal     `json:"fee"`

	At time.Time `json:"at"`
}

// FromEnvelope flattens env into a record for wallet. id identifies the
// record itself and is assigned by the caller.
func FromEnvelope(id, wallet string, env engine.Envelope) (Record, error) {
	r := Record{ID: id, Wallet: wallet, Seq: env.Seq}
	if env.Event == nil {
		return Record{}, fmt.Errorf("store: nil event at seq %d", env.Seq)
	}
	r.Kind = string(env.Event.Kind())

	switch e := env.Event.(type) {
	case engine.OrderPlaced:
		o := e.Order
		r.OrderID = o.ID
		r.MarketID = o.MarketID
		r.Side = string(o.Side)
		r.OrderType = string(o.Type)
		r.TimeInForce = string(o.TimeInForce)
		r.PostOnly = o.PostOnly
		r.ReduceOnly = o.ReduceOnly
		r.Price = o.Price
		r.Quantity = o.Quantity
		r.At = o.CreatedAt
	case engine.OrderCanceled:
		r.OrderID = e.OrderID
		r.At = e.At
	case engine.OrderFilled:
		f := e.Fill
		r.FillID = f.ID
		r.OrderID = f.OrderID
		r.MarketID = f.MarketID
		r.Side = string(f.Side)
		r.Price = decimal.NewNullDecimal(f.Price)
		r.Quantity = f.Quantity
		r.Quote = f.Quote
		r.Fee = f.Fee
		r.At = f.Timestamp
	case engine.MarkPriceUpdated:
		r.MarketID = e.MarketID
		r.Price = decimal.NewNullDecimal(e.MarkPrice)
		r.At = e.At
	case engine.PredictionPriceUpdated:
		r.MarketID = e.MarketID
		r.Outcome = string(e.Outcome)
		r.Price = decimal.NewNullDecimal(e.Price)
		r.At = e.At
	case engine.PredictionFilled:
		r.MarketID = e.MarketID
		r.Outcome = string(e.Outcome)
		r.Price = decimal.NewNullDecimal(e.Price)
		r.Quantity = e.Shares
		r.At = e.At
	case engine.PredictionMarketResolved:
		r.MarketID = e.MarketID
		r.Outcome = string(e.Outcome)
		r.At = e.At
	default:
		return Record{}, fmt.Errorf("store: unsupported event %T", env.Event)
	}
	return r, nil
}

// Envelope rebuilds the engine event stored in r.
func (r Record) Envelope() (engine.Envelope, error) {
	env := engine.Envelope{Seq: r.Seq}
	price := r.Price.Decimal

	switch engine.Kind(r.Kind) {
	case engine.KindOrderPlaced:
		env.Event = engine.OrderPlaced{Order: model.Order{
			ID:          r.OrderID,
			MarketID:    r.MarketID,
			Side:        model.Side(r.Side),
			Type:        model.OrderType(r.OrderType),
			TimeInForce: model.TimeInForce(r.TimeInForce),
			Price:       r.Price,
			Quantity:    r.Quantity,
			PostOnly:    r.PostOnly,
			ReduceOnly:  r.ReduceOnly,
			CreatedAt:   r.At,
		}}
	case engine.KindOrderCanceled:
		env.Event = engine.OrderCanceled{OrderID: r.OrderID, At: r.At}
	case engine.KindOrderFilled:
		env.Event = engine.OrderFilled{Fill: model.Fill{
			ID:        r.FillID,
			OrderID:   r.OrderID,
			MarketID:  r.MarketID,
			Side:      model.Side(r.Side),
			Price:     price,
			Quantity:  r.Quantity,
			Quote:     r.Quote,
			Fee:       r.Fee,
			Timestamp: r.At,
		}}
	case engine.KindMarkPriceUpdated:
		env.Event = engine.MarkPriceUpdated{MarketID: r.MarketID, MarkPrice: price, At: r.At}
	case engine.KindPredictionPriceUpdated:
		env.Event = engine.PredictionPriceUpdated{
			MarketID: r.MarketID, Outcome: model.Outcome(r.Outcome), Price: price, At: r.At,
		}
	case engine.KindPredictionFilled:
		env.Event = engine.PredictionFilled{
			MarketID: r.MarketID, Outcome: model.Outcome(r.Outcome), Price: price, Shares: r.Quantity, At: r.At,
		}
	case engine.KindPredictionMarketResolved:
		env.Event = engine.PredictionMarketResolved{
			MarketID: r.MarketID, Outcome: model.Outcome(r.Outcome), At: r.At,
		}
	default:
		return engine.Envelope{}, fmt.Errorf("store: unknown event kind %q at seq %d", r.Kind, r.Seq)
	}
	return env, nil
}

// Envelopes converts a slice of records in order.
func Envelopes(recs []Record) ([]engine.Envelope, error) {
	out := make([]engine.Envelope, 0, len(recs))
	for _, r := range recs {
		env, err := r.Envelope()
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}
