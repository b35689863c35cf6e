// Package coreerr defines the categorized error type returned by the trading
// core. Errors carry a code and the offending values as metadata; callers
// branch on the code, never on the message.
package coreerr

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Code is the category of a core failure.
type Code string

const (
	CodeValidation            Code = "VALIDATION_ERROR"
	CodeInvalidOrder          Code = "INVALID_ORDER"
	CodeInvalidQuantity       Code = "INVALID_QUANTITY"
	CodeInvalidPrice          Code = "INVALID_PRICE"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeMarketNotActive       Code = "MARKET_NOT_ACTIVE"
	CodeInvalidTickSize       Code = "INVALID_TICK_SIZE"
	CodeInvalidLotSize        Code = "INVALID_LOT_SIZE"
	CodeOrderbook             Code = "ORDERBOOK_ERROR"
)

// Sentinels for errors.Is. Each matches every *Error with the same code.
var (
	ErrValidation            = &Error{Code: CodeValidation}
	ErrInvalidOrder          = &Error{Code: CodeInvalidOrder}
	ErrInvalidQuantity       = &Error{Code: CodeInvalidQuantity}
	ErrInvalidPrice          = &Error{Code: CodeInvalidPrice}
	ErrInsufficientLiquidity = &Error{Code: CodeInsufficientLiquidity}
	ErrMarketNotActive       = &Error{Code: CodeMarketNotActive}
	ErrInvalidTickSize       = &Error{Code: CodeInvalidTickSize}
	ErrInvalidLotSize        = &Error{Code: CodeInvalidLotSize}
	ErrOrderbook             = &Error{Code: CodeOrderbook}
)

// Error is a structured core failure.
type Error struct {
	Code    Code
	Message string
	Meta    map[string]any
}

// New builds an Error. kv is an alternating list of metadata keys and
// values, in the style of slog.
func New(code Code, msg string, kv ...any) *Error {
	e := &Error{Code: code, Message: msg}
	if len(kv) > 0 {
		e.Meta = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				key = fmt.Sprint(kv[i])
			}
			e.Meta[key] = kv[i+1]
		}
	}
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Meta) > 0 {
		b.WriteString(" (")
		for i, k := range e.sortedKeys() {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Meta[k])
		}
		b.WriteString(")")
	}
	return b.String()
}

// Is matches sentinel errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Meta == nil
}

// LogValue renders the error as a slog group.
func (e *Error) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("code", string(e.Code)),
		slog.String("msg", e.Message),
	}
	for _, k := range e.sortedKeys() {
		attrs = append(attrs, slog.Any(k, e.Meta[k]))
	}
	return slog.GroupValue(attrs...)
}

func (e *Error) sortedKeys() []string {
	keys := make([]string, 0, len(e.Meta))
	for k := range e.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
