package indicator

import (
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// RSI computes the relative strength index using Wilder's smoothing.
// Values are in [0, 100]; a series with no losses over the window reads 100.
func RSI(series []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "period must be a positive integer, got %d", period)
	}

	out := make([]float64, len(series))
	warmup(out, period)

	if len(series) <= period {
		return out, nil
	}

	var avgGain, avgLoss float64

	for i := 1; i <= period; i++ {
		change := series[i] - series[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}

	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(series); i++ {
		change := series[i] - series[i-1]

		var gain, loss float64
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}

		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}

	return out, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss

	return 100 - 100/(1+rs)
}
