package order

import (
	"github.com/shokenteam/shoken-core/internal/coreerr"
	"github.com/shokenteam/shoken-core/internal/market"
	"github.com/shokenteam/shoken-core/internal/model"
)

// Validate checks o against the market's grid before matching. It does not
// check market status; see market.AssertActive.
func Validate(o model.Order, m model.Market) error {
	if o.ID == "" {
		return coreerr.New(coreerr.CodeInvalidOrder, "order.id is required")
	}
	if o.MarketID == "" {
		return coreerr.New(coreerr.CodeInvalidOrder, "order.marketId is required", "orderId", o.ID)
	}
	if o.MarketID != m.ID {
		return coreerr.New(coreerr.CodeInvalidOrder, "order.marketId does not match market.id",
			"orderMarketId", o.MarketID, "marketId", m.ID)
	}
	if !o.Side.Valid() {
		return coreerr.New(coreerr.CodeInvalidOrder, "order.side must be BUY or SELL",
			"orderId", o.ID, "side", string(o.Side))
	}
	switch o.TimeInForce {
	case model.GTC, model.IOC, model.FOK:
	default:
		return coreerr.New(coreerr.CodeInvalidOrder, "order.timeInForce must be GTC, IOC or FOK",
			"orderId", o.ID, "timeInForce", string(o.TimeInForce))
	}

	if !o.Quantity.IsPositive() {
		return coreerr.New(coreerr.CodeInvalidQuantity, "quantity must be > 0",
			"orderId", o.ID, "quantity", o.Quantity.String())
	}
	if err := market.AssertLotSize(m.LotSize, o.Quantity); err != nil {
		return err
	}

	switch o.Type {
	case model.LimitOrder:
		if !o.Price.Valid {
			return coreerr.New(coreerr.CodeInvalidPrice, "LIMIT order requires price", "orderId", o.ID)
		}
		if !o.Price.Decimal.IsPositive() {
			return coreerr.New(coreerr.CodeInvalidPrice, "price must be > 0",
				"orderId", o.ID, "price", o.Price.Decimal.String())
		}
		if err := market.AssertTickSize(m.TickSize, o.Price.Decimal); err != nil {
			return err
		}
	case model.MarketOrder:
		// A price on a MARKET order is ignored.
	default:
		return coreerr.New(coreerr.CodeInvalidOrder, "order.type must be LIMIT or MARKET",
			"orderId", o.ID, "type", string(o.Type))
	}
	return nil
}
