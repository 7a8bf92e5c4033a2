// Package risk is the gatekeeper between strategy signals and orders. It
// owns position sizing, the per-position stop-loss state machine, and the
// portfolio limit checks.
package risk

import (
	"github.com/go-playground/validator/v10"

	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

type SizingMethod string

const (
	SizingMethodFixed         SizingMethod = "fixed"
	SizingMethodPercentEquity SizingMethod = "percent_equity"
	SizingMethodRiskBased     SizingMethod = "risk_based"
	SizingMethodKelly         SizingMethod = "kelly"
)

// SizingConfig selects one sizing method per portfolio and carries its
// numeric parameters. Only the fields of the selected method are read.
type SizingConfig struct {
	Method SizingMethod `yaml:"method" json:"method" validate:"required,oneof=fixed percent_equity risk_based kelly"`
	// FixedShares is the constant order quantity for the fixed method.
	FixedShares float64 `yaml:"fixed_shares,omitempty" json:"fixed_shares,omitempty" validate:"required_if=Method fixed,omitempty,gt=0"`
	// PercentEquity targets quantity*price at this percent of equity.
	PercentEquity float64 `yaml:"percent_equity,omitempty" json:"percent_equity,omitempty" validate:"required_if=Method percent_equity,omitempty,gt=0,lte=100"`
	// RiskPercent is the percent of equity risked between entry and stop for
	// the risk_based method.
	RiskPercent float64 `yaml:"risk_percent,omitempty" json:"risk_percent,omitempty" validate:"required_if=Method risk_based,omitempty,gt=0,lte=100"`
	// KellyFraction scales the raw Kelly estimate (0.5 = half Kelly).
	KellyFraction float64 `yaml:"kelly_fraction,omitempty" json:"kelly_fraction,omitempty" validate:"required_if=Method kelly,omitempty,gt=0,lte=1"`
	// KellyMaxPercent caps the Kelly allocation at this percent of equity.
	KellyMaxPercent float64 `yaml:"kelly_max_percent,omitempty" json:"kelly_max_percent,omitempty" validate:"required_if=Method kelly,omitempty,gt=0,lte=100"`
	// KellyMinSamples is the number of closed trades required before the
	// trailing estimate is trusted. Below it, sizing falls back to the cap.
	KellyMinSamples int `yaml:"kelly_min_samples,omitempty" json:"kelly_min_samples,omitempty" validate:"omitempty,gte=0"`
}

// StopConfig configures the stop-loss state machine. An empty Type disables
// stops for the run.
type StopConfig struct {
	Type types.StopType `yaml:"type,omitempty" json:"type,omitempty" validate:"omitempty,oneof=fixed_percent atr trailing_percent trailing_atr"`
	// Percent is the stop distance for the percent types.
	Percent float64 `yaml:"percent,omitempty" json:"percent,omitempty" validate:"omitempty,gt=0,lt=100"`
	// ATRMultiple is the k in entry_price - k*ATR for the ATR types.
	ATRMultiple float64 `yaml:"atr_multiple,omitempty" json:"atr_multiple,omitempty" validate:"omitempty,gt=0"`
	// ATRPeriod is the lookback used to compute the ATR for the ATR types.
	ATRPeriod int `yaml:"atr_period,omitempty" json:"atr_period,omitempty" validate:"omitempty,gt=0"`
}

// Enabled reports whether a stop type is configured.
func (c StopConfig) Enabled() bool {
	return c.Type != ""
}

func (c StopConfig) usesATR() bool {
	return c.Type == types.StopTypeATR || c.Type == types.StopTypeTrailingATR
}

// LimitsConfig holds the portfolio limit percentages. A zero value disables
// the corresponding limit.
type LimitsConfig struct {
	// MaxPositionPct caps a single position at this percent of equity.
	MaxPositionPct float64 `yaml:"max_position_pct,omitempty" json:"max_position_pct,omitempty" validate:"omitempty,gt=0"`
	// MaxExposurePct caps gross exposure across all positions.
	MaxExposurePct float64 `yaml:"max_exposure_pct,omitempty" json:"max_exposure_pct,omitempty" validate:"omitempty,gt=0"`
	// DailyLossLimitPct blocks new entries once today's realized loss
	// exceeds this percent of equity.
	DailyLossLimitPct float64 `yaml:"daily_loss_limit_pct,omitempty" json:"daily_loss_limit_pct,omitempty" validate:"omitempty,gt=0"`
	// MaxDrawdownPct halts all new entries for the rest of the run once
	// equity falls this far below its peak.
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct,omitempty" json:"max_drawdown_pct,omitempty" validate:"omitempty,gt=0"`
}

// Config is the full risk configuration for one run.
type Config struct {
	Sizing SizingConfig `yaml:"sizing" json:"sizing" validate:"required"`
	Stop   StopConfig   `yaml:"stop,omitempty" json:"stop,omitempty"`
	Limits LimitsConfig `yaml:"limits,omitempty" json:"limits,omitempty"`
}

// Validate checks the configuration, including the cross-field requirements
// of the selected sizing method and stop type.
func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid risk configuration", err)
	}

	if c.Stop.Enabled() {
		switch c.Stop.Type {
		case types.StopTypeFixedPercent, types.StopTypeTrailingPercent:
			if c.Stop.Percent <= 0 {
				return errors.Newf(errors.ErrCodeInvalidConfiguration, "stop type %s requires a positive percent", c.Stop.Type)
			}
		case types.StopTypeATR, types.StopTypeTrailingATR:
			if c.Stop.ATRMultiple <= 0 || c.Stop.ATRPeriod <= 0 {
				return errors.Newf(errors.ErrCodeInvalidConfiguration, "stop type %s requires atr_multiple and atr_period", c.Stop.Type)
			}
		}
	}

	return nil
}
