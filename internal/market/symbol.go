package market

import (
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/coreerr"
	"github.com/shokenteam/shoken-core/internal/model"
)

// DefaultQuote is the settlement asset for perps and prediction markets.
const DefaultQuote = "USDC"

// Symbol formats:
//
//	SOL-PERP         perpetual, quoted in USDC
//	ELECTION24-YES   one outcome of a binary prediction market
//	SOL-USDC, SOL/USDC  spot pair
var (
	perpRegex       = regexp.MustCompile(`^([A-Z0-9]+)-PERP$`)
	predictionRegex = regexp.MustCompile(`^([A-Z0-9_]+)-(YES|NO)$`)
	spotRegex       = regexp.MustCompile(`^([A-Z0-9]+)[-/]([A-Z0-9]+)$`)
)

// Symbol is a parsed venue symbol.
type Symbol struct {
	Raw     string           `json:"raw"`
	Type    model.MarketType `json:"type"`
	Base    string           `json:"base"`
	Quote   string           `json:"quote"`
	Outcome model.Outcome    `json:"outcome,omitempty"` // prediction only
	// MarketID is the id positions are keyed by. For prediction symbols
	// it drops the outcome suffix so YES and NO share one market.
	MarketID string `json:"market_id"`
}

// ParseSymbol derives market type and assets from a venue symbol.
func ParseSymbol(raw string) (Symbol, error) {
	if m := perpRegex.FindStringSubmatch(raw); m != nil {
		return Symbol{Raw: raw, Type: model.MarketPerp, Base: m[1], Quote: DefaultQuote, MarketID: raw}, nil
	}
	if m := predictionRegex.FindStringSubmatch(raw); m != nil {
		return Symbol{
			Raw:      raw,
			Type:     model.MarketPrediction,
			Base:     m[2],
			Quote:    DefaultQuote,
			Outcome:  model.Outcome(m[2]),
			MarketID: m[1],
		}, nil
	}
	if m := spotRegex.FindStringSubmatch(raw); m != nil {
		if m[1] == m[2] {
			return Symbol{}, coreerr.New(coreerr.CodeValidation, "base and quote must differ", "symbol", raw)
		}
		return Symbol{Raw: raw, Type: model.MarketSpot, Base: m[1], Quote: m[2], MarketID: raw}, nil
	}
	return Symbol{}, coreerr.New(coreerr.CodeValidation,
		"invalid symbol (expected BASE-PERP, BASE-QUOTE or EVENT-YES|NO)", "symbol", raw)
}

// FromSymbol builds an active market from a venue symbol and its grid.
func FromSymbol(raw, venue string, tickSize, lotSize decimal.Decimal) (model.Market, error) {
	s, err := ParseSymbol(raw)
	if err != nil {
		return model.Market{}, err
	}
	m := model.Market{
		ID:         s.MarketID,
		Type:       s.Type,
		Status:     model.StatusActive,
		BaseAsset:  s.Base,
		QuoteAsset: s.Quote,
		TickSize:   tickSize,
		LotSize:    lotSize,
		Venue:      venue,
		Symbol:     raw,
	}
	if err := Validate(m); err != nil {
		return model.Market{}, err
	}
	return m, nil
}
