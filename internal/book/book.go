// Package book holds the aggregated price-level order book consumed by the
// matching engine, its normalization routine, and read-only analytics.
//
// Levels are anonymous aggregates: a Level has no identity below its price.
// Every function here returns fresh slices; no input is ever modified.
package book

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/coreerr"
	"github.com/shokenteam/shoken-core/internal/model"
)

// Side selects one side of a book.
type Side int

const (
	Bids Side = iota
	Asks
)

func (s Side) String() string {
	if s == Bids {
		return "bids"
	}
	return "asks"
}

// Level is the total resting size at one price.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Book is a normalized snapshot: bids descending, asks ascending, prices
// unique per side, sizes positive.
type Book struct {
	Bids      []Level
	Asks      []Level
	Timestamp time.Time
}

// Levels returns the levels of one side (not a copy).
func (b Book) Levels(s Side) []Level {
	if s == Bids {
		return b.Bids
	}
	return b.Asks
}

// WithSide returns a copy of b whose side s is replaced by levels.
func (b Book) WithSide(s Side, levels []Level) Book {
	if s == Bids {
		b.Bids = levels
	} else {
		b.Asks = levels
	}
	return b
}

// Clone returns a deep copy of b.
func (b Book) Clone() Book {
	return Book{Bids: cloneLevels(b.Bids), Asks: cloneLevels(b.Asks), Timestamp: b.Timestamp}
}

// Crossed reports whether best bid >= best ask.
func (b Book) Crossed() bool {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return false
	}
	return b.Bids[0].Price.GreaterThanOrEqual(b.Asks[0].Price)
}

// Normalize cleans raw levels into a Book: non-positive pairs are dropped,
// duplicate prices are merged by summing sizes, and each side is sorted by
// priority.
//
// Crossed snapshots are accepted and passed through unchanged; callers that
// want to refuse them use RequireUncrossed.
func Normalize(bids, asks []Level, ts time.Time) Book {
	return Book{
		Bids:      clean(bids, Bids),
		Asks:      clean(asks, Asks),
		Timestamp: ts,
	}
}

// RequireUncrossed rejects a crossed book.
func RequireUncrossed(b Book) error {
	if !b.Crossed() {
		return nil
	}
	return coreerr.New(coreerr.CodeOrderbook, "crossed orderbook",
		"bestBid", b.Bids[0].Price.String(),
		"bestAsk", b.Asks[0].Price.String(),
	)
}

// ParseLevels converts venue [price, size] string pairs into levels.
// Entries that do not parse as decimals are skipped.
func ParseLevels(raw [][2]string) []Level {
	out := make([]Level, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r[0])
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(r[1])
		if err != nil {
			continue
		}
		out = append(out, Level{Price: price, Size: size})
	}
	return out
}

// InsertLevel merges lvl into a sorted side, adding to an existing level at
// the same price (within model.LevelEpsilon) or inserting a new one.
func InsertLevel(levels []Level, lvl Level, s Side) []Level {
	out := cloneLevels(levels)
	for i := range out {
		if samePrice(out[i].Price, lvl.Price) {
			out[i].Size = out[i].Size.Add(lvl.Size)
			return out
		}
	}
	out = append(out, lvl)
	Sort(out, s)
	return out
}

// RemoveLevelSize takes size away from the level at price, dropping the
// level once it is within model.LevelEpsilon of empty. A price with no
// level leaves the side unchanged.
func RemoveLevelSize(levels []Level, price, size decimal.Decimal) []Level {
	out := cloneLevels(levels)
	for i := range out {
		if !samePrice(out[i].Price, price) {
			continue
		}
		out[i].Size = out[i].Size.Sub(size)
		if out[i].Size.LessThanOrEqual(model.LevelEpsilon) {
			out = append(out[:i], out[i+1:]...)
		}
		return out
	}
	return out
}

// Sort orders levels in place by book priority for side s.
func Sort(levels []Level, s Side) {
	sort.SliceStable(levels, func(i, j int) bool {
		if s == Bids {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
}

func clean(raw []Level, s Side) []Level {
	out := make([]Level, 0, len(raw))
	for _, l := range raw {
		if !l.Price.IsPositive() || !l.Size.IsPositive() {
			continue
		}
		out = append(out, l)
	}
	Sort(out, s)

	merged := out[:0]
	for _, l := range out {
		if n := len(merged); n > 0 && merged[n-1].Price.Equal(l.Price) {
			merged[n-1].Size = merged[n-1].Size.Add(l.Size)
			continue
		}
		merged = append(merged, l)
	}
	return merged
}

func samePrice(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(model.LevelEpsilon)
}

func cloneLevels(levels []Level) []Level {
	if levels == nil {
		return nil
	}
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}
