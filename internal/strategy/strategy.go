// Package strategy defines the pluggable strategy contract and the built-in
// strategies. A strategy sees only the history snapshot it is handed, never
// the live ledger, so runs stay reproducible.
package strategy

import (
	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/argo-backtest/internal/portfolio"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// History is the read-only view handed to OnBar: one symbol's bars up to and
// including the current bar, plus the committed portfolio snapshot. Future
// bars are never reachable through it.
type History struct {
	bars      []types.MarketData
	portfolio portfolio.Snapshot
}

func NewHistory(bars []types.MarketData, snapshot portfolio.Snapshot) History {
	return History{bars: bars, portfolio: snapshot}
}

func (h History) Len() int {
	return len(h.bars)
}

// Bars returns the bar series. Callers must treat it as read-only.
func (h History) Bars() []types.MarketData {
	return h.bars
}

// Current returns the bar being processed, the last one in the series.
func (h History) Current() types.MarketData {
	return h.bars[len(h.bars)-1]
}

func (h History) Portfolio() portfolio.Snapshot {
	return h.portfolio
}

// Position returns the open position for the current symbol, if any.
func (h History) Position() (types.Position, bool) {
	if len(h.bars) == 0 {
		return types.Position{}, false
	}

	return h.portfolio.Position(h.Current().Symbol)
}

// Closes returns the close price series aligned with Bars.
func (h History) Closes() []float64 {
	closes := make([]float64, len(h.bars))
	for i, bar := range h.bars {
		closes[i] = bar.Close
	}

	return closes
}

// Strategy is the contract every trading strategy satisfies. OnBar must be a
// pure function of the history it is given; it is called exactly once per
// bar per subscribed symbol, in causal order.
type Strategy interface {
	Name() string
	// WarmupPeriod is the minimum number of bars before OnBar may return a
	// signal. The engine still calls OnBar during warm-up.
	WarmupPeriod() int
	OnBar(history History) (optional.Option[types.Signal], error)
}

// Config selects a built-in strategy by name with its numeric parameters.
type Config struct {
	Name   string             `yaml:"name" json:"name" validate:"required"`
	Params map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
}

func (c Config) param(key string, fallback float64) float64 {
	if value, ok := c.Params[key]; ok {
		return value
	}

	return fallback
}

// New constructs a built-in strategy from its configuration.
func New(config Config) (Strategy, error) {
	switch config.Name {
	case "sma_crossover":
		return NewSMACrossover(
			int(config.param("fast_period", 10)),
			int(config.param("slow_period", 30)),
		)
	case "rsi_mean_reversion":
		return NewRSIMeanReversion(
			int(config.param("period", 14)),
			config.param("oversold", 30),
			config.param("overbought", 70),
		)
	default:
		return nil, errors.Newf(errors.ErrCodeStrategyNotFound, "unknown strategy %s", config.Name)
	}
}
