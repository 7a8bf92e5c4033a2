package indicator

import (
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// SMA computes the simple moving average of the series over the given period.
func SMA(series []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "period must be a positive integer, got %d", period)
	}

	out := make([]float64, len(series))
	warmup(out, period-1)

	var sum float64

	for i, v := range series {
		sum += v

		if i >= period {
			sum -= series[i-period]
		}

		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}

	return out, nil
}

// EMA computes the exponential moving average with smoothing 2/(period+1).
// The first defined value is the SMA of the first period elements.
func EMA(series []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "period must be a positive integer, got %d", period)
	}

	out := make([]float64, len(series))
	warmup(out, period-1)

	if len(series) < period {
		return out, nil
	}

	var seed float64
	for i := 0; i < period; i++ {
		seed += series[i]
	}

	seed /= float64(period)
	out[period-1] = seed

	multiplier := 2.0 / (float64(period) + 1.0)
	prev := seed

	for i := period; i < len(series); i++ {
		prev = (series[i]-prev)*multiplier + prev
		out[i] = prev
	}

	return out, nil
}
