package risk

import (
	"math"

	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/argo-backtest/internal/portfolio"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// kellyTracker maintains trailing win-rate and payoff statistics over closed
// trades. It feeds the Kelly sizing method.
type kellyTracker struct {
	wins    int
	losses  int
	winSum  float64
	lossSum float64
}

func (k *kellyTracker) Observe(realized float64) {
	if realized > 0 {
		k.wins++
		k.winSum += realized
	} else if realized < 0 {
		k.losses++
		k.lossSum += -realized
	}
}

func (k *kellyTracker) Samples() int {
	return k.wins + k.losses
}

// Fraction returns the raw Kelly fraction p - q/b, where b is the ratio of
// average win to average loss. It returns 0 when the edge is negative or the
// payoff ratio is undefined.
func (k *kellyTracker) Fraction() float64 {
	if k.Samples() == 0 || k.wins == 0 {
		return 0
	}

	if k.losses == 0 {
		// Undefined payoff ratio with no losses yet. Treat the edge as the
		// bare win rate.
		return float64(k.wins) / float64(k.Samples())
	}

	avgWin := k.winSum / float64(k.wins)
	avgLoss := k.lossSum / float64(k.losses)
	if avgLoss == 0 {
		return 0
	}

	p := float64(k.wins) / float64(k.Samples())
	b := avgWin / avgLoss

	fraction := p - (1-p)/b
	if fraction < 0 {
		return 0
	}

	return fraction
}

// Sizer computes admissible order quantities for entry signals using the
// configured sizing method.
type Sizer struct {
	config SizingConfig
	kelly  kellyTracker
}

func NewSizer(config SizingConfig) *Sizer {
	return &Sizer{config: config}
}

// ObserveTrade feeds a closed trade's realized P&L into the trailing Kelly
// statistics.
func (s *Sizer) ObserveTrade(realized float64) {
	s.kelly.Observe(realized)
}

// Size returns the whole-share quantity for an entry at the given price.
// stopDistance is the per-share distance between entry and stop, required by
// the risk_based method. The optional signal strength scales the computed
// size between half and one-and-a-half times.
func (s *Sizer) Size(snapshot portfolio.Snapshot, price float64, strength optional.Option[float64], stopDistance optional.Option[float64]) (float64, error) {
	if price <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "cannot size at non-positive price %f", price)
	}

	equity := snapshot.Equity

	var quantity float64

	switch s.config.Method {
	case SizingMethodFixed:
		quantity = s.config.FixedShares

	case SizingMethodPercentEquity:
		quantity = math.Floor(s.config.PercentEquity / 100 * equity / price)

	case SizingMethodRiskBased:
		if stopDistance.IsNone() || stopDistance.Unwrap() <= 0 {
			return 0, errors.New(errors.ErrCodeInsufficientRiskParameters,
				"risk_based sizing requires a stop distance")
		}

		riskBudget := s.config.RiskPercent / 100 * equity
		quantity = math.Floor(riskBudget / stopDistance.Unwrap())

	case SizingMethodKelly:
		maxFraction := s.config.KellyMaxPercent / 100

		fraction := maxFraction
		if s.kelly.Samples() >= s.config.KellyMinSamples {
			fraction = s.kelly.Fraction() * s.config.KellyFraction
			if fraction > maxFraction {
				fraction = maxFraction
			}
		}

		quantity = math.Floor(fraction * equity / price)

	default:
		return 0, errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown sizing method %s", s.config.Method)
	}

	if strength.IsSome() {
		quantity = math.Floor(quantity * strengthMultiplier(strength.Unwrap()))
	}

	// Never size past the available buying power.
	affordable := math.Floor(snapshot.Cash / price)
	if affordable <= 0 && quantity > 0 {
		return 0, errors.Newf(errors.ErrCodeRiskRejected,
			"cash %f affords no whole share at price %f", snapshot.Cash, price)
	}
	if quantity > affordable {
		quantity = affordable
	}

	if quantity < 0 {
		quantity = 0
	}

	return quantity, nil
}

// strengthMultiplier maps a [0, 1] confidence hint to a [0.5, 1.5] scale.
func strengthMultiplier(strength float64) float64 {
	if strength < 0 {
		strength = 0
	}
	if strength > 1 {
		strength = 1
	}

	return 0.5 + strength
}
