// Package order implements the order lifecycle state machine
// OPEN -> PARTIALLY_FILLED -> FILLED, with CANCELED reachable from any
// non-filled state. FILLED and CANCELED are terminal.
package order

import (
	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/coreerr"
	"github.com/shokenteam/shoken-core/internal/model"
)

// NewState wraps a freshly placed order.
func NewState(o model.Order) model.OrderState {
	return model.OrderState{Order: o, Status: model.OrderOpen, FilledQuantity: decimal.Zero}
}

// ApplyFill adds fill to s. Over-fills beyond QtyEpsilon and fills on
// terminal orders are rejected; s is never modified.
func ApplyFill(s model.OrderState, fill model.Fill) (model.OrderState, error) {
	if fill.OrderID != s.Order.ID {
		return s, coreerr.New(coreerr.CodeValidation, "fill.orderId does not match order.id",
			"fillOrderId", fill.OrderID, "orderId", s.Order.ID)
	}
	if s.Terminal() {
		return s, coreerr.New(coreerr.CodeValidation, "order is terminal",
			"orderId", s.Order.ID, "status", string(s.Status))
	}
	if !fill.Quantity.IsPositive() {
		return s, coreerr.New(coreerr.CodeValidation, "fill.quantity must be > 0",
			"fillQty", fill.Quantity.String())
	}

	remaining := s.Remaining()
	if fill.Quantity.Sub(remaining).GreaterThan(model.QtyEpsilon) {
		return s, coreerr.New(coreerr.CodeValidation, "fill.quantity exceeds remaining order quantity",
			"remaining", remaining.String(), "fillQty", fill.Quantity.String())
	}

	next := s
	next.FilledQuantity = s.FilledQuantity.Add(fill.Quantity)
	if next.FilledQuantity.Sub(s.Order.Quantity).Abs().LessThan(model.QtyEpsilon) {
		next.Status = model.OrderFilled
	} else {
		next.Status = model.OrderPartiallyFilled
	}
	return next, nil
}

// Cancel moves s to CANCELED. A filled order cannot be canceled; canceling
// twice is allowed.
func Cancel(s model.OrderState) (model.OrderState, error) {
	if s.Status == model.OrderFilled {
		return s, coreerr.New(coreerr.CodeValidation, "cannot cancel a filled order",
			"orderId", s.Order.ID)
	}
	next := s
	next.Status = model.OrderCanceled
	return next, nil
}
