package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// ATR computes the average true range over the given bars using Wilder's
// smoothing. The first bar's true range is its high-low range since there is
// no prior close.
func ATR(bars []types.MarketData, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "period must be a positive integer, got %d", period)
	}

	out := make([]float64, len(bars))
	warmup(out, period-1)

	if len(bars) == 0 {
		return out, nil
	}

	trueRanges := make([]float64, len(bars))
	trueRanges[0] = bars[0].High - bars[0].Low

	for i := 1; i < len(bars); i++ {
		prevClose := bars[i-1].Close
		trueRanges[i] = math.Max(
			bars[i].High-bars[i].Low,
			math.Max(
				math.Abs(bars[i].High-prevClose),
				math.Abs(bars[i].Low-prevClose),
			),
		)
	}

	if len(bars) < period {
		return out, nil
	}

	var seed float64
	for i := 0; i < period; i++ {
		seed += trueRanges[i]
	}

	seed /= float64(period)
	out[period-1] = seed

	prev := seed
	for i := period; i < len(bars); i++ {
		prev = (prev*float64(period-1) + trueRanges[i]) / float64(period)
		out[i] = prev
	}

	return out, nil
}
