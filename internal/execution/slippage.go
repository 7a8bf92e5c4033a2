package execution

import (
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

type SlippageModel string

const (
	SlippageModelNone SlippageModel = "none"
	// SlippageModelFixedBps moves the price by a constant number of basis
	// points against the order.
	SlippageModelFixedBps SlippageModel = "fixed_bps"
	// SlippageModelVolatility scales the move with the bar's high-low range,
	// so illiquid or fast bars cost more.
	SlippageModelVolatility SlippageModel = "volatility"
)

type SlippageConfig struct {
	Model SlippageModel `yaml:"model,omitempty" json:"model,omitempty" validate:"omitempty,oneof=none fixed_bps volatility"`
	Bps   float64       `yaml:"bps,omitempty" json:"bps,omitempty" validate:"omitempty,gte=0"`
	// RangeFactor is the fraction of the bar's relative range applied as
	// slippage for the volatility model.
	RangeFactor float64 `yaml:"range_factor,omitempty" json:"range_factor,omitempty" validate:"omitempty,gte=0"`
}

// SlippageCalculator adjusts a reference price against the order's side.
// Buys pay more, sells receive less.
type SlippageCalculator interface {
	Adjust(price float64, side types.PurchaseType, bar types.MarketData) float64
}

type noSlippage struct{}

func (noSlippage) Adjust(price float64, side types.PurchaseType, bar types.MarketData) float64 {
	return price
}

type fixedBpsSlippage struct {
	bps float64
}

func (s fixedBpsSlippage) Adjust(price float64, side types.PurchaseType, bar types.MarketData) float64 {
	move := price * s.bps / 10000
	if side == types.PurchaseTypeSell {
		return price - move
	}

	return price + move
}

type volatilitySlippage struct {
	rangeFactor float64
}

func (s volatilitySlippage) Adjust(price float64, side types.PurchaseType, bar types.MarketData) float64 {
	if bar.Close <= 0 {
		return price
	}

	relativeRange := (bar.High - bar.Low) / bar.Close
	move := price * relativeRange * s.rangeFactor
	if side == types.PurchaseTypeSell {
		return price - move
	}

	return price + move
}

func NewSlippageCalculator(config SlippageConfig) (SlippageCalculator, error) {
	switch config.Model {
	case SlippageModelNone, "":
		return noSlippage{}, nil
	case SlippageModelFixedBps:
		return fixedBpsSlippage{bps: config.Bps}, nil
	case SlippageModelVolatility:
		return volatilitySlippage{rangeFactor: config.RangeFactor}, nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown slippage model %s", config.Model)
	}
}
