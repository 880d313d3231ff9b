// Package indicator computes the moving average and bias ratio driving entries.
package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Indicators is the per-cycle derived view of the market: last close, the
// moving average over the configured period, and the relative deviation of
// price from that average.
type Indicators struct {
	CurrentPrice  decimal.Decimal
	MovingAverage decimal.Decimal
	Bias          decimal.Decimal
}

// Compute derives Indicators from an ascending series of close prices. It
// needs at least period closes and uses exact decimal arithmetic so repeated
// cycles never accumulate drift.
func Compute(closes []decimal.Decimal, period int) (Indicators, error) {
	if period <= 0 {
		return Indicators{}, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(closes) < period {
		return Indicators{}, fmt.Errorf("need %d closes, got %d", period, len(closes))
	}

	window := closes[len(closes)-period:]
	sum := decimal.Zero
	for _, close := range window {
		sum = sum.Add(close)
	}
	ma := sum.Div(decimal.NewFromInt(int64(period)))

	current := closes[len(closes)-1]
	bias := decimal.Zero
	if !ma.IsZero() {
		bias = current.Sub(ma).Div(ma)
	}

	return Indicators{CurrentPrice: current, MovingAverage: ma, Bias: bias}, nil
}
