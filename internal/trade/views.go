package trade

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/book"
	"github.com/shokenteam/shoken-core/internal/engine"
	"github.com/shokenteam/shoken-core/internal/model"
	"github.com/shokenteam/shoken-core/internal/position"
)

// --- Request/Response types ---

// CreateMarketRequest is the JSON body for market creation. Either Symbol
// (parsed into type and assets) or the explicit fields must be given.
type CreateMarketRequest struct {
	Symbol     string          `json:"symbol"` // e.g. SOL-PERP, ETH-USDC, FED_CUT-YES
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Status     string          `json:"status"`
	BaseAsset  string          `json:"base_asset"`
	QuoteAsset string          `json:"quote_asset"`
	TickSize   decimal.Decimal `json:"tick_size"`
	LotSize    decimal.Decimal `json:"lot_size"`
	Venue      string          `json:"venue"`
}

// StatusRequest is the JSON body for POST /markets/{marketID}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// BookRequest is a venue snapshot as [price, size] string pairs.
type BookRequest struct {
	Bids      [][2]string `json:"bids"`
	Asks      [][2]string `json:"asks"`
	Timestamp time.Time   `json:"timestamp"`
}

// PlaceOrderRequest is the JSON body for POST /wallets/{wallet}/orders.
// Type defaults to LIMIT when a price is given and MARKET otherwise;
// time in force defaults to GTC for LIMIT and IOC for MARKET.
type PlaceOrderRequest struct {
	OrderID     string              `json:"order_id"`
	MarketID    string              `json:"market_id"`
	Side        string              `json:"side"`
	Type        string              `json:"type"`
	TimeInForce string              `json:"time_in_force"`
	Price       decimal.NullDecimal `json:"price"`
	Quantity    decimal.Decimal     `json:"quantity"`
	PostOnly    bool                `json:"post_only"`
	ReduceOnly  bool                `json:"reduce_only"`
}

func (r PlaceOrderRequest) order() model.Order {
	o := model.Order{
		ID:          r.OrderID,
		MarketID:    r.MarketID,
		Side:        model.Side(r.Side),
		Type:        model.OrderType(r.Type),
		TimeInForce: model.TimeInForce(r.TimeInForce),
		Price:       r.Price,
		Quantity:    r.Quantity,
		PostOnly:    r.PostOnly,
		ReduceOnly:  r.ReduceOnly,
	}
	if o.Type == "" {
		o.Type = model.MarketOrder
		if o.Price.Valid {
			o.Type = model.LimitOrder
		}
	}
	if o.TimeInForce == "" {
		o.TimeInForce = model.GTC
		if o.Type == model.MarketOrder {
			o.TimeInForce = model.IOC
		}
	}
	return o
}

// FillRequest is a venue-reported fill for a resting order.
type FillRequest struct {
	FillID    string          `json:"fill_id"`
	OrderID   string          `json:"order_id"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Fee       decimal.Decimal `json:"fee"`
	Timestamp time.Time       `json:"timestamp"`
}

// MarkRequest is the JSON body for POST /markets/{marketID}/mark.
type MarkRequest struct {
	Price decimal.Decimal `json:"price"`
}

// PredictionPriceRequest is the JSON body for POST /markets/{marketID}/prediction-price.
type PredictionPriceRequest struct {
	Outcome string          `json:"outcome"`
	Price   decimal.Decimal `json:"price"`
}

// PredictionFillRequest is the JSON body for POST /wallets/{wallet}/prediction-fills.
type PredictionFillRequest struct {
	MarketID string          `json:"market_id"`
	Outcome  string          `json:"outcome"`
	Price    decimal.Decimal `json:"price"`
	Shares   decimal.Decimal `json:"shares"`
}

// ResolveRequest is the JSON body for POST /markets/{marketID}/resolve.
type ResolveRequest struct {
	Outcome string `json:"outcome"`
}

// UpdatedResponse reports how many wallets a broadcast command touched.
type UpdatedResponse struct {
	MarketID string `json:"market_id"`
	Wallets  int    `json:"wallets"`
}

// OrderView is the JSON rendering of an order and its lifecycle state.
type OrderView struct {
	ID             string              `json:"id"`
	MarketID       string              `json:"market_id"`
	Side           string              `json:"side"`
	Type           string              `json:"type"`
	TimeInForce    string              `json:"time_in_force"`
	Price          decimal.NullDecimal `json:"price"`
	Quantity       decimal.Decimal     `json:"quantity"`
	FilledQuantity decimal.Decimal     `json:"filled_quantity"`
	Status         string              `json:"status"`
	PostOnly       bool                `json:"post_only,omitempty"`
	ReduceOnly     bool                `json:"reduce_only,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

func orderView(s model.OrderState) OrderView {
	o := s.Order
	return OrderView{
		ID:             o.ID,
		MarketID:       o.MarketID,
		Side:           string(o.Side),
		Type:           string(o.Type),
		TimeInForce:    string(o.TimeInForce),
		Price:          o.Price,
		Quantity:       o.Quantity,
		FilledQuantity: s.FilledQuantity,
		Status:         string(s.Status),
		PostOnly:       o.PostOnly,
		ReduceOnly:     o.ReduceOnly,
		CreatedAt:      o.CreatedAt,
	}
}

// FillView is the JSON rendering of a fill.
type FillView struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	MarketID  string          `json:"market_id"`
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Quote     decimal.Decimal `json:"quote"`
	Fee       decimal.Decimal `json:"fee"`
	Timestamp time.Time       `json:"timestamp"`
}

func fillViews(fills []model.Fill) []FillView {
	out := make([]FillView, 0, len(fills))
	for _, f := range fills {
		out = append(out, FillView{
			ID:        f.ID,
			OrderID:   f.OrderID,
			MarketID:  f.MarketID,
			Side:      string(f.Side),
			Price:     f.Price,
			Quantity:  f.Quantity,
			Quote:     f.Quote,
			Fee:       f.Fee,
			Timestamp: f.Timestamp,
		})
	}
	return out
}

// PerpView is a perp position with its unrealized PnL at mark.
type PerpView struct {
	MarketID      string              `json:"market_id"`
	Size          decimal.Decimal     `json:"size"`
	AvgEntry      decimal.Decimal     `json:"avg_entry"`
	MarkPrice     decimal.NullDecimal `json:"mark_price"`
	RealizedPnL   decimal.Decimal     `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal     `json:"unrealized_pnl"`
	FeesPaid      decimal.Decimal     `json:"fees_paid"`
}

func perpView(p model.PerpPosition) PerpView {
	return PerpView{
		MarketID:      p.MarketID,
		Size:          p.Size,
		AvgEntry:      p.AvgEntry,
		MarkPrice:     p.MarkPrice,
		RealizedPnL:   p.RealizedPnL,
		UnrealizedPnL: position.UnrealizedPnL(p, decimal.NullDecimal{}),
		FeesPaid:      p.FeesPaid,
	}
}

// PredictionView is one outcome position of a prediction market.
type PredictionView struct {
	MarketID   string              `json:"market_id"`
	Outcome    string              `json:"outcome"`
	Shares     decimal.Decimal     `json:"shares"`
	AvgPrice   decimal.Decimal     `json:"avg_price"`
	LastPrice  decimal.NullDecimal `json:"last_price"`
	ResolvedAs string              `json:"resolved_as,omitempty"`
	Value      decimal.Decimal     `json:"value"`
}

func predictionView(p model.PredictionPosition) PredictionView {
	v := PredictionView{
		MarketID:   p.MarketID,
		Outcome:    string(p.Outcome),
		Shares:     p.Shares,
		AvgPrice:   p.AvgPrice,
		LastPrice:  p.LastPrice,
		ResolvedAs: string(p.ResolvedAs),
	}
	price := p.AvgPrice
	if p.LastPrice.Valid {
		price = p.LastPrice.Decimal
	}
	if val, err := position.PredictionValue(p, price); err == nil {
		v.Value = val
	}
	return v
}

// SettlementView is the JSON rendering of a settlement record.
type SettlementView struct {
	MarketID  string          `json:"market_id"`
	Outcome   string          `json:"outcome"`
	Resolved  string          `json:"resolved"`
	Shares    decimal.Decimal `json:"shares"`
	Payout    decimal.Decimal `json:"payout"`
	Profit    decimal.Decimal `json:"profit"`
	SettledAt time.Time       `json:"settled_at"`
}

// PlaceOrderResponse is the JSON body returned from order placement.
type PlaceOrderResponse struct {
	Order    OrderView       `json:"order"`
	Fills    []FillView      `json:"fills"`
	Canceled decimal.Decimal `json:"canceled_quantity"`
	Position *PerpView       `json:"position,omitempty"`
}

// FillResponse is returned after a venue fill is recorded.
type FillResponse struct {
	Order    OrderView `json:"order"`
	Position PerpView  `json:"position"`
}

// WalletView is the full state of one wallet.
type WalletView struct {
	Wallet      string            `json:"wallet"`
	LastSeq     uint64            `json:"last_seq"`
	BalanceUSDC decimal.Decimal   `json:"balance_usdc"`
	Orders      []OrderView       `json:"orders"`
	Perps       []PerpView        `json:"perps"`
	Predictions []PredictionView  `json:"predictions"`
	Resolutions map[string]string `json:"resolutions"`
	Settlements []SettlementView  `json:"settlements"`
}

func walletView(st engine.State) WalletView {
	v := WalletView{
		Wallet:      st.WalletAddress,
		LastSeq:     st.LastSeq,
		BalanceUSDC: st.Balances.USDC,
		Orders:      make([]OrderView, 0, len(st.Orders)),
		Perps:       make([]PerpView, 0, len(st.Perps)),
		Predictions: make([]PredictionView, 0, len(st.Predictions)),
		Resolutions: make(map[string]string, len(st.Resolutions)),
		Settlements: make([]SettlementView, 0, len(st.Settlements)),
	}
	for _, id := range st.OrderIDs() {
		v.Orders = append(v.Orders, orderView(st.Orders[id]))
	}
	for _, id := range st.PerpMarkets() {
		v.Perps = append(v.Perps, perpView(st.Perps[id]))
	}
	for _, k := range st.PredictionKeys() {
		v.Predictions = append(v.Predictions, predictionView(st.Predictions[k]))
	}
	for id, o := range st.Resolutions {
		v.Resolutions[id] = string(o)
	}
	for _, s := range st.Settlements {
		v.Settlements = append(v.Settlements, SettlementView{
			MarketID:  s.MarketID,
			Outcome:   string(s.Outcome),
			Resolved:  string(s.Resolved),
			Shares:    s.Shares,
			Payout:    s.Payout,
			Profit:    s.Profit,
			SettledAt: s.SettledAt,
		})
	}
	return v
}

// LevelView is one [price, size] level.
type LevelView struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

func levelViews(levels []book.Level) []LevelView {
	out := make([]LevelView, 0, len(levels))
	for _, l := range levels {
		out = append(out, LevelView{Price: l.Price, Size: l.Size})
	}
	return out
}

// BookView is the JSON rendering of a book, optionally truncated to depth.
type BookView struct {
	MarketID  string      `json:"market_id"`
	Bids      []LevelView `json:"bids"`
	Asks      []LevelView `json:"asks"`
	Timestamp time.Time   `json:"timestamp"`
	Crossed   bool        `json:"crossed"`
}

func bookView(marketID string, b book.Book, depth int) BookView {
	bids, asks := b.Bids, b.Asks
	if depth > 0 {
		bids, asks = book.TopN(b, book.Bids, depth), book.TopN(b, book.Asks, depth)
	}
	return BookView{
		MarketID:  marketID,
		Bids:      levelViews(bids),
		Asks:      levelViews(asks),
		Timestamp: b.Timestamp,
		Crossed:   b.Crossed(),
	}
}

// TopView is best bid/ask with mid and spread.
type TopView struct {
	MarketID  string              `json:"market_id"`
	BestBid   *LevelView          `json:"best_bid"`
	BestAsk   *LevelView          `json:"best_ask"`
	Mid       decimal.NullDecimal `json:"mid"`
	SpreadAbs decimal.NullDecimal `json:"spread_abs"`
	SpreadPct decimal.NullDecimal `json:"spread_pct"`
}

func topView(marketID string, t book.TopOfBook) TopView {
	v := TopView{MarketID: marketID, Mid: t.Mid, SpreadAbs: t.SpreadAbs, SpreadPct: t.SpreadPct}
	if t.BestBid != nil {
		v.BestBid = &LevelView{Price: t.BestBid.Price, Size: t.BestBid.Size}
	}
	if t.BestAsk != nil {
		v.BestAsk = &LevelView{Price: t.BestAsk.Price, Size: t.BestAsk.Size}
	}
	return v
}

// VWAPView is the cost of filling a base size against one side.
type VWAPView struct {
	MarketID      string              `json:"market_id"`
	Side          string              `json:"side"`
	FilledSize    decimal.Decimal     `json:"filled_size"`
	AvgPrice      decimal.NullDecimal `json:"avg_price"`
	Cost          decimal.Decimal     `json:"cost"`
	RemainingSize decimal.Decimal     `json:"remaining_size"`
}

// ImpactView is the estimated impact of spending a quote notional.
type ImpactView struct {
	MarketID    string              `json:"market_id"`
	Side        string              `json:"side"`
	Notional    decimal.Decimal     `json:"notional"`
	FilledPct   decimal.Decimal     `json:"filled_pct"`
	SlippagePct decimal.NullDecimal `json:"slippage_pct"`
	AvgPrice    decimal.NullDecimal `json:"avg_price"`
	WorstPrice  decimal.NullDecimal `json:"worst_price"`
	Warning     string              `json:"warning,omitempty"`
}

// MarketView is the JSON rendering of a market.
type MarketView struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Status     string          `json:"status"`
	BaseAsset  string          `json:"base_asset"`
	QuoteAsset string          `json:"quote_asset"`
	TickSize   decimal.Decimal `json:"tick_size"`
	LotSize    decimal.Decimal `json:"lot_size"`
	Venue      string          `json:"venue,omitempty"`
	Symbol     string          `json:"symbol,omitempty"`
	ResolvedAs string          `json:"resolved_as,omitempty"`
}

func marketView(m model.Market) MarketView {
	return MarketView{
		ID:         m.ID,
		Type:       string(m.Type),
		Status:     string(m.Status),
		BaseAsset:  m.BaseAsset,
		QuoteAsset: m.QuoteAsset,
		TickSize:   m.TickSize,
		LotSize:    m.LotSize,
		Venue:      m.Venue,
		Symbol:     m.Symbol,
		ResolvedAs: string(m.ResolvedAs),
	}
}
