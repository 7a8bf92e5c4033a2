// Package execution turns admitted orders into simulated fills with
// realistic frictions: commission, slippage, and volume participation caps.
package execution

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

type CommissionModel string

const (
	CommissionModelZero     CommissionModel = "zero"
	CommissionModelFlat     CommissionModel = "flat"
	CommissionModelBps      CommissionModel = "bps"
	CommissionModelPerShare CommissionModel = "per_share"
)

// CommissionConfig selects the fee model for the run.
type CommissionConfig struct {
	// Model defaults to zero when unset.
	Model CommissionModel `yaml:"model,omitempty" json:"model,omitempty" validate:"omitempty,oneof=zero flat bps per_share"`
	// Flat is the fee charged per trade for the flat model.
	Flat float64 `yaml:"flat,omitempty" json:"flat,omitempty" validate:"omitempty,gte=0"`
	// Bps is the fee in basis points of notional for the bps model.
	Bps float64 `yaml:"bps,omitempty" json:"bps,omitempty" validate:"omitempty,gte=0"`
	// PerShare and Minimum configure the per_share model: a per-share rate
	// with a minimum charge per order.
	PerShare float64 `yaml:"per_share,omitempty" json:"per_share,omitempty" validate:"omitempty,gte=0"`
	Minimum  float64 `yaml:"minimum,omitempty" json:"minimum,omitempty" validate:"omitempty,gte=0"`
}

// CommissionCalculator computes the fee for one executed trade.
type CommissionCalculator interface {
	Calculate(quantity float64, price float64) float64
}

type zeroCommission struct{}

func (zeroCommission) Calculate(quantity float64, price float64) float64 {
	return 0
}

type flatCommission struct {
	fee float64
}

func (c flatCommission) Calculate(quantity float64, price float64) float64 {
	return c.fee
}

type bpsCommission struct {
	bps float64
}

func (c bpsCommission) Calculate(quantity float64, price float64) float64 {
	notional := decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(price))
	fee, _ := notional.Mul(decimal.NewFromFloat(c.bps)).Div(decimal.NewFromInt(10000)).Float64()

	return fee
}

type perShareCommission struct {
	perShare float64
	minimum  float64
}

func (c perShareCommission) Calculate(quantity float64, price float64) float64 {
	return math.Max(c.perShare*quantity, c.minimum)
}

func NewCommissionCalculator(config CommissionConfig) (CommissionCalculator, error) {
	switch config.Model {
	case CommissionModelZero, "":
		return zeroCommission{}, nil
	case CommissionModelFlat:
		return flatCommission{fee: config.Flat}, nil
	case CommissionModelBps:
		return bpsCommission{bps: config.Bps}, nil
	case CommissionModelPerShare:
		return perShareCommission{perShare: config.PerShare, minimum: config.Minimum}, nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown commission model %s", config.Model)
	}
}
