package strategy

import (
	"fmt"
	"math"

	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/argo-backtest/internal/indicator"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// SMACrossover goes long when the fast moving average crosses above the slow
// one and exits when it crosses back below. Long-only.
type SMACrossover struct {
	fastPeriod int
	slowPeriod int
}

func NewSMACrossover(fastPeriod, slowPeriod int) (*SMACrossover, error) {
	if fastPeriod <= 0 || slowPeriod <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidPeriod, "sma periods must be positive")
	}

	if fastPeriod >= slowPeriod {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter,
			"fast period %d must be shorter than slow period %d", fastPeriod, slowPeriod)
	}

	return &SMACrossover{fastPeriod: fastPeriod, slowPeriod: slowPeriod}, nil
}

func (s *SMACrossover) Name() string {
	return fmt.Sprintf("sma_crossover_%d_%d", s.fastPeriod, s.slowPeriod)
}

// WarmupPeriod needs one bar beyond the slow period to observe a cross.
func (s *SMACrossover) WarmupPeriod() int {
	return s.slowPeriod + 1
}

func (s *SMACrossover) OnBar(history History) (optional.Option[types.Signal], error) {
	if history.Len() < s.WarmupPeriod() {
		return nil, nil
	}

	closes := history.Closes()

	fast, err := indicator.SMA(closes, s.fastPeriod)
	if err != nil {
		return nil, err
	}

	slow, err := indicator.SMA(closes, s.slowPeriod)
	if err != nil {
		return nil, err
	}

	last := len(closes) - 1
	prevDiff := fast[last-1] - slow[last-1]
	currDiff := fast[last] - slow[last]

	if math.IsNaN(prevDiff) || math.IsNaN(currDiff) {
		return nil, nil
	}

	bar := history.Current()
	_, hasPosition := history.Position()

	if !hasPosition && prevDiff <= 0 && currDiff > 0 {
		return optional.Some(types.Signal{
			Time:         bar.Time,
			Symbol:       bar.Symbol,
			Type:         types.SignalTypeLong,
			Strength:     optional.Some(crossStrength(currDiff, slow[last])),
			StrategyName: s.Name(),
			Reason:       "fast sma crossed above slow sma",
		}), nil
	}

	if hasPosition && prevDiff >= 0 && currDiff < 0 {
		return optional.Some(types.Signal{
			Time:         bar.Time,
			Symbol:       bar.Symbol,
			Type:         types.SignalTypeExit,
			StrategyName: s.Name(),
			Reason:       "fast sma crossed below slow sma",
		}), nil
	}

	return nil, nil
}

// crossStrength maps the relative gap between the averages to [0, 1]. A gap
// of one percent or more of the slow average counts as full strength.
func crossStrength(diff, slow float64) float64 {
	if slow <= 0 {
		return 0
	}

	strength := math.Abs(diff) / slow * 100
	if strength > 1 {
		strength = 1
	}

	return strength
}
