package strategy

import (
	"fmt"
	"math"

	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/argo-backtest/internal/indicator"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// RSIMeanReversion buys when the RSI falls below the oversold threshold and
// exits once it recovers above the overbought threshold. Long-only.
type RSIMeanReversion struct {
	period     int
	oversold   float64
	overbought float64
}

func NewRSIMeanReversion(period int, oversold, overbought float64) (*RSIMeanReversion, error) {
	if period <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidPeriod, "rsi period must be positive")
	}

	if oversold <= 0 || overbought >= 100 || oversold >= overbought {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter,
			"rsi thresholds must satisfy 0 < oversold (%f) < overbought (%f) < 100", oversold, overbought)
	}

	return &RSIMeanReversion{period: period, oversold: oversold, overbought: overbought}, nil
}

func (s *RSIMeanReversion) Name() string {
	return fmt.Sprintf("rsi_mean_reversion_%d", s.period)
}

func (s *RSIMeanReversion) WarmupPeriod() int {
	return s.period + 1
}

func (s *RSIMeanReversion) OnBar(history History) (optional.Option[types.Signal], error) {
	if history.Len() < s.WarmupPeriod() {
		return nil, nil
	}

	values, err := indicator.RSI(history.Closes(), s.period)
	if err != nil {
		return nil, err
	}

	rsi := values[len(values)-1]
	if math.IsNaN(rsi) {
		return nil, nil
	}

	bar := history.Current()
	_, hasPosition := history.Position()

	if !hasPosition && rsi < s.oversold {
		// Deeper oversold readings carry more conviction.
		strength := (s.oversold - rsi) / s.oversold
		if strength > 1 {
			strength = 1
		}

		return optional.Some(types.Signal{
			Time:         bar.Time,
			Symbol:       bar.Symbol,
			Type:         types.SignalTypeLong,
			Strength:     optional.Some(strength),
			StrategyName: s.Name(),
			Reason:       fmt.Sprintf("rsi %.2f below oversold %.2f", rsi, s.oversold),
		}), nil
	}

	if hasPosition && rsi > s.overbought {
		return optional.Some(types.Signal{
			Time:         bar.Time,
			Symbol:       bar.Symbol,
			Type:         types.SignalTypeExit,
			StrategyName: s.Name(),
			Reason:       fmt.Sprintf("rsi %.2f above overbought %.2f", rsi, s.overbought),
		}), nil
	}

	return nil, nil
}
