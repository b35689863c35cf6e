package coreerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew_MetaRenderedSorted(t *testing.T) {
	err := New(CodeInsufficientLiquidity, "FOK could not be fully filled", "requested", 5, "filled", 3)
	want := "INSUFFICIENT_LIQUIDITY: FOK could not be fully filled (filled=3, requested=5)"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestIs_MatchesByCode(t *testing.T) {
	err := New(CodeValidation, "fill.orderId does not match order.id")
	if !errors.Is(err, ErrValidation) {
		t.Error("expected errors.Is to match ErrValidation")
	}
	if errors.Is(err, ErrInvalidPrice) {
		t.Error("did not expect a match against ErrInvalidPrice")
	}
}

func TestIs_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("place order: %w", New(CodeMarketNotActive, "market is not active"))
	if !errors.Is(wrapped, ErrMarketNotActive) {
		t.Error("expected wrapped error to match")
	}
	if got := CodeOf(wrapped); got != CodeMarketNotActive {
		t.Errorf("CodeOf = %q", got)
	}
}

func TestCodeOf_ForeignError(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != "" {
		t.Errorf("expected empty code, got %q", got)
	}
}

func TestNew_OddMetadataIgnoresDanglingKey(t *testing.T) {
	err := New(CodeValidation, "x", "a", 1, "dangling")
	if len(err.Meta) != 1 || err.Meta["a"] != 1 {
		t.Errorf("unexpected meta %v", err.Meta)
	}
}
