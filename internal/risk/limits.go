package risk

import (
	"fmt"
	"math"

	"github.com/rxtech-lab/argo-backtest/internal/portfolio"
	"github.com/rxtech-lab/argo-backtest/internal/types"
)

// LimitChecker enforces the portfolio limits on entry orders. The three
// limits run in a fixed order and the first violation wins: max single
// position, max gross exposure, then the daily loss limit. Exits are never
// routed through the checker.
//
// A max-drawdown breach latches: once tripped it blocks every later entry
// for the remainder of the run, even if equity recovers.
type LimitChecker struct {
	config LimitsConfig
	halted bool
}

func NewLimitChecker(config LimitsConfig) *LimitChecker {
	return &LimitChecker{config: config}
}

// Halted reports whether the drawdown halt has latched.
func (c *LimitChecker) Halted() bool {
	return c.halted
}

// ObserveDrawdown latches the entry halt when the drawdown breaches the
// configured maximum. Called once per bar after mark-to-market.
func (c *LimitChecker) ObserveDrawdown(drawdownPct float64) {
	if c.config.MaxDrawdownPct > 0 && drawdownPct > c.config.MaxDrawdownPct {
		c.halted = true
	}
}

// CheckEntry returns the rejection reason for a proposed entry, or nil when
// every limit passes.
func (c *LimitChecker) CheckEntry(symbol string, quantity, price float64, snapshot portfolio.Snapshot) *types.Reason {
	if c.halted {
		return &types.Reason{
			Reason:  types.RejectReasonDrawdownHalt,
			Message: fmt.Sprintf("drawdown exceeded %.2f%%, new entries halted", c.config.MaxDrawdownPct),
		}
	}

	equity := snapshot.Equity
	addedNotional := quantity * price

	if c.config.MaxPositionPct > 0 {
		existing := 0.0
		if position, ok := snapshot.Position(symbol); ok {
			existing = math.Abs(position.MarketValue)
		}

		limit := c.config.MaxPositionPct / 100 * equity
		if existing+addedNotional > limit {
			return &types.Reason{
				Reason: types.RejectReasonMaxPosition,
				Message: fmt.Sprintf("position %.2f would exceed %.2f (%.2f%% of equity)",
					existing+addedNotional, limit, c.config.MaxPositionPct),
			}
		}
	}

	if c.config.MaxExposurePct > 0 {
		gross := 0.0
		for _, position := range snapshot.Positions {
			gross += math.Abs(position.MarketValue)
		}

		limit := c.config.MaxExposurePct / 100 * equity
		if gross+addedNotional > limit {
			return &types.Reason{
				Reason: types.RejectReasonMaxExposure,
				Message: fmt.Sprintf("exposure %.2f would exceed %.2f (%.2f%% of equity)",
					gross+addedNotional, limit, c.config.MaxExposurePct),
			}
		}
	}

	if c.config.DailyLossLimitPct > 0 {
		limit := c.config.DailyLossLimitPct / 100 * equity
		if -snapshot.DailyRealizedPnL > limit {
			return &types.Reason{
				Reason: types.RejectReasonDailyLossLimit,
				Message: fmt.Sprintf("daily realized loss %.2f exceeds %.2f (%.2f%% of equity)",
					-snapshot.DailyRealizedPnL, limit, c.config.DailyLossLimitPct),
			}
		}
	}

	return nil
}
