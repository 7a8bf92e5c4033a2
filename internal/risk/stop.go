package risk

import (
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// StopManager implements the stop-loss state machine. It is stateless: the
// armed level lives on the position's StopState and the manager only
// computes transitions.
type StopManager struct {
	config StopConfig
}

func NewStopManager(config StopConfig) *StopManager {
	return &StopManager{config: config}
}

func (m *StopManager) Enabled() bool {
	return m.config.Enabled()
}

// InitialDistance returns the per-share stop distance at entry, used by
// risk_based sizing before a position exists. atr is ignored by the percent
// types.
func (m *StopManager) InitialDistance(price float64, atr float64) (float64, error) {
	switch m.config.Type {
	case types.StopTypeFixedPercent, types.StopTypeTrailingPercent:
		return price * m.config.Percent / 100, nil
	case types.StopTypeATR, types.StopTypeTrailingATR:
		if atr <= 0 {
			return 0, errors.New(errors.ErrCodeInsufficientRiskParameters,
				"ATR stop requires warmed-up ATR before entry")
		}
		return m.config.ATRMultiple * atr, nil
	default:
		return 0, errors.New(errors.ErrCodeInsufficientRiskParameters, "no stop type configured")
	}
}

// Arm creates the armed stop state for a freshly opened position.
func (m *StopManager) Arm(position types.Position, atr float64) (*types.StopState, error) {
	distance, err := m.InitialDistance(position.AvgEntryPrice, atr)
	if err != nil {
		return nil, err
	}

	level := position.AvgEntryPrice - distance
	if position.IsShort() {
		level = position.AvgEntryPrice + distance
	}

	return &types.StopState{
		Type:   m.config.Type,
		Level:  level,
		Status: types.StopStatusArmed,
	}, nil
}

// Recompute ratchets a trailing stop toward the bar's close. Fixed types
// never move. The level only ever tightens: for a long it is non-decreasing,
// for a short non-increasing.
func (m *StopManager) Recompute(stop types.StopState, position types.Position, bar types.MarketData, atr float64) types.StopState {
	if stop.Status != types.StopStatusArmed {
		return stop
	}

	var candidate float64

	switch stop.Type {
	case types.StopTypeTrailingPercent:
		distance := bar.Close * m.config.Percent / 100
		candidate = bar.Close - distance
		if position.IsShort() {
			candidate = bar.Close + distance
		}
	case types.StopTypeTrailingATR:
		if atr <= 0 {
			return stop
		}
		distance := m.config.ATRMultiple * atr
		candidate = bar.Close - distance
		if position.IsShort() {
			candidate = bar.Close + distance
		}
	default:
		return stop
	}

	if position.IsShort() {
		if candidate < stop.Level {
			stop.Level = candidate
		}
	} else if candidate > stop.Level {
		stop.Level = candidate
	}

	return stop
}

// CheckTrigger transitions an armed stop to triggered when the bar crosses
// the level: the low for a long position, the high for a short.
func (m *StopManager) CheckTrigger(stop types.StopState, position types.Position, bar types.MarketData) (types.StopState, bool) {
	if stop.Status != types.StopStatusArmed {
		return stop, false
	}

	crossed := bar.Low <= stop.Level
	if position.IsShort() {
		crossed = bar.High >= stop.Level
	}

	if crossed {
		stop.Status = types.StopStatusTriggered
	}

	return stop, crossed
}
