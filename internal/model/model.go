// Package model defines the core domain types shared across the trading core.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	// LevelEpsilon is the tolerance for price-level identity and for
	// treating a level size as exhausted.
	LevelEpsilon = decimal.New(1, -12)

	// QtyEpsilon is the tolerance for business-quantity comparisons
	// (order fills, FOK shortfall, tick/lot multiples).
	QtyEpsilon = decimal.New(1, -10)
)

// Side is the direction of an order or fill.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// OrderType is LIMIT or MARKET.
type OrderType string

const (
	LimitOrder  OrderType = "LIMIT"
	MarketOrder OrderType = "MARKET"
)

// TimeInForce controls what happens to quantity that does not fill immediately.
type TimeInForce string

const (
	GTC TimeInForce = "GTC" // rests if unfilled
	IOC TimeInForce = "IOC" // fills what it can, discards the rest
	FOK TimeInForce = "FOK" // all or nothing
)

type MarketType string

const (
	MarketPerp       MarketType = "PERP"
	MarketSpot       MarketType = "SPOT"
	MarketPrediction MarketType = "PREDICTION"
)

type MarketStatus string

const (
	StatusActive MarketStatus = "ACTIVE"
	StatusHalted MarketStatus = "HALTED"
	StatusClosed MarketStatus = "CLOSED"
)

// Outcome is one side of a binary prediction market.
type Outcome string

const (
	Yes Outcome = "YES"
	No  Outcome = "NO"
)

// Valid reports whether o is YES or NO.
func (o Outcome) Valid() bool { return o == Yes || o == No }

type OrderStatus string

const (
	OrderOpen            OrderStatus = "OPEN"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
)

// Market is venue metadata used to validate orders before they reach the
// matching engine.
type Market struct {
	ID         string          `json:"id"`
	Type       MarketType      `json:"type"`
	Status     MarketStatus    `json:"status"`
	BaseAsset  string          `json:"base_asset"`  // e.g. SOL, BTC, YES
	QuoteAsset string          `json:"quote_asset"` // e.g. USDC
	TickSize   decimal.Decimal `json:"tick_size"`
	LotSize    decimal.Decimal `json:"lot_size"`
	Venue      string          `json:"venue,omitempty"`
	Symbol     string          `json:"symbol,omitempty"`
	// ResolvedAs is set once a prediction market has been resolved.
	ResolvedAs Outcome         `json:"resolved_as,omitempty"`
}

// Order is an immutable trading intent. The core never mutates an Order;
// it only wraps it in derived state.
type Order struct {
	ID          string
	MarketID    string
	Side        Side
	Type        OrderType
	TimeInForce TimeInForce
	Price       decimal.NullDecimal // required iff Type == LimitOrder
	Quantity    decimal.Decimal
	PostOnly    bool
	ReduceOnly  bool
	CreatedAt   time.Time
}

// Fill is one execution against an order at a single price.
type Fill struct {
	ID        string
	OrderID   string
	MarketID  string
	Side      Side
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Quote     decimal.Decimal // Price * Quantity
	Fee       decimal.Decimal
	Timestamp time.Time
}

// OrderState is the lifecycle wrapper around an Order.
type OrderState struct {
	Order          Order
	Status         OrderStatus
	FilledQuantity decimal.Decimal
}

// Remaining returns the unfilled quantity.
func (s OrderState) Remaining() decimal.Decimal {
	return s.Order.Quantity.Sub(s.FilledQuantity)
}

// Terminal reports whether no further fills or cancels may change the state.
func (s OrderState) Terminal() bool {
	return s.Status == OrderFilled || s.Status == OrderCanceled
}

// PerpPosition is signed exposure in one perpetual market.
// AvgEntry is kept after the position goes flat, for display.
type PerpPosition struct {
	MarketID    string
	Size        decimal.Decimal // + long, - short
	AvgEntry    decimal.Decimal
	MarkPrice   decimal.NullDecimal
	RealizedPnL decimal.Decimal
	FeesPaid    decimal.Decimal
}

// PredictionKey identifies a prediction position. YES and NO holdings in the
// same market are separate positions.
type PredictionKey struct {
	MarketID string
	Outcome  Outcome
}

// PredictionPosition holds shares of one outcome of a binary market.
// Prices are probabilities in [0,1].
type PredictionPosition struct {
	MarketID   string
	Outcome    Outcome
	Shares     decimal.Decimal
	AvgPrice   decimal.Decimal
	LastPrice  decimal.NullDecimal
	ResolvedAs Outcome // empty while the market is open
}

// Key returns the map key of the position.
func (p PredictionPosition) Key() PredictionKey {
	return PredictionKey{MarketID: p.MarketID, Outcome: p.Outcome}
}

// Settlement records the payout of one prediction position at resolution.
type Settlement struct {
	MarketID  string
	Outcome   Outcome // outcome held
	Resolved  Outcome // outcome the market resolved to
	Shares    decimal.Decimal
	Payout    decimal.Decimal
	Profit    decimal.Decimal // Payout - Shares*AvgPrice
	SettledAt time.Time
}
