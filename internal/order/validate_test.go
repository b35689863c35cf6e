package order

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/coreerr"
	"github.com/shokenteam/shoken-core/internal/model"
)

func solPerp() model.Market {
	return model.Market{
		ID: "SOL-PERP", Type: model.MarketPerp, Status: model.StatusActive,
		BaseAsset: "SOL", QuoteAsset: "USDC", TickSize: d(0.01), LotSize: d(0.1),
	}
}

func TestValidate_Accepts(t *testing.T) {
	if err := Validate(newOrder(1.5), solPerp()); err != nil {
		t.Errorf("limit: %v", err)
	}
	mkt := newOrder(2)
	mkt.Type = model.MarketOrder
	mkt.Price = decimal.NullDecimal{}
	mkt.TimeInForce = model.IOC
	if err := Validate(mkt, solPerp()); err != nil {
		t.Errorf("market: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Order)
		want   error
	}{
		{"missing id", func(o *model.Order) { o.ID = "" }, coreerr.ErrInvalidOrder},
		{"missing market", func(o *model.Order) { o.MarketID = "" }, coreerr.ErrInvalidOrder},
		{"wrong market", func(o *model.Order) { o.MarketID = "BTC-PERP" }, coreerr.ErrInvalidOrder},
		{"bad side", func(o *model.Order) { o.Side = "" }, coreerr.ErrInvalidOrder},
		{"bad tif", func(o *model.Order) { o.TimeInForce = "GTD" }, coreerr.ErrInvalidOrder},
		{"bad type", func(o *model.Order) { o.Type = "STOP" }, coreerr.ErrInvalidOrder},
		{"zero quantity", func(o *model.Order) { o.Quantity = decimal.Zero }, coreerr.ErrInvalidQuantity},
		{"off lot", func(o *model.Order) { o.Quantity = d(1.05) }, coreerr.ErrInvalidLotSize},
		{"limit without price", func(o *model.Order) { o.Price = decimal.NullDecimal{} }, coreerr.ErrInvalidPrice},
		{"negative price", func(o *model.Order) { o.Price = decimal.NewNullDecimal(d(-1)) }, coreerr.ErrInvalidPrice},
		{"off tick", func(o *model.Order) { o.Price = decimal.NewNullDecimal(d(100.001)) }, coreerr.ErrInvalidTickSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrder(1)
			tt.mutate(&o)
			if err := Validate(o, solPerp()); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
