// Package performance derives the run summary from the final equity curve
// and trade log. It is a pure function of its input: nothing here mutates
// portfolio state or depends on run order.
package performance

import (
	"math"
	"sort"
	"time"

	"github.com/rxtech-lab/argo-backtest/internal/types"
)

const yearSeconds = 365.25 * 24 * 3600

// Input is everything the aggregator needs, captured at the end of a run.
type Input struct {
	StrategyName   string
	InitialCapital float64
	EquityCurve    []types.EquitySample
	Trades         []types.Trade
	BarsProcessed  int
}

// Compute summarizes a finished run. An empty trade log or equity curve
// yields zero-valued statistics, never NaN or infinity.
func Compute(input Input) types.RunSummary {
	summary := types.RunSummary{
		StrategyName:   input.StrategyName,
		InitialCapital: input.InitialCapital,
		FinalEquity:    input.InitialCapital,
		BarsProcessed:  input.BarsProcessed,
	}

	curve := input.EquityCurve
	if len(curve) > 0 {
		summary.FinalEquity = curve[len(curve)-1].Equity
	}

	if input.InitialCapital > 0 {
		summary.TotalReturnPct = (summary.FinalEquity - input.InitialCapital) / input.InitialCapital * 100
	}

	summary.AnnualizedReturnPct = annualizedReturn(curve, input.InitialCapital, summary.FinalEquity)
	summary.MaxDrawdownPct = maxDrawdown(curve)
	summary.SharpeRatio, summary.SortinoRatio = riskAdjusted(curve)
	summary.ExposurePct = exposure(curve, input.Trades)

	for _, trade := range input.Trades {
		summary.TotalFees += trade.Commission
		summary.Turnover += trade.Notional()
	}

	var grossWin, grossLoss float64

	for _, trade := range input.Trades {
		if !trade.Order.ReduceOnly {
			continue
		}

		summary.TotalTrades++

		switch {
		case trade.PnL > 0:
			summary.WinningTrades++
			grossWin += trade.PnL
		case trade.PnL < 0:
			summary.LosingTrades++
			grossLoss += -trade.PnL
		}
	}

	if summary.TotalTrades > 0 {
		summary.WinRatePct = float64(summary.WinningTrades) / float64(summary.TotalTrades) * 100
	}
	if summary.WinningTrades > 0 {
		summary.AvgWin = grossWin / float64(summary.WinningTrades)
	}
	if summary.LosingTrades > 0 {
		summary.AvgLoss = grossLoss / float64(summary.LosingTrades)
	}
	if grossLoss > 0 {
		summary.ProfitFactor = grossWin / grossLoss
	}

	return summary
}

func annualizedReturn(curve []types.EquitySample, initial, final float64) float64 {
	if len(curve) < 2 || initial <= 0 || final <= 0 {
		return 0
	}

	elapsed := curve[len(curve)-1].Time.Sub(curve[0].Time).Seconds()
	if elapsed <= 0 {
		return 0
	}

	growth := final / initial
	annualized := math.Pow(growth, yearSeconds/elapsed) - 1

	return annualized * 100
}

// maxDrawdown returns the largest peak-to-trough decline on the curve, in
// percent of the peak.
func maxDrawdown(curve []types.EquitySample) float64 {
	var peak, worst float64

	for _, sample := range curve {
		if sample.Equity > peak {
			peak = sample.Equity
		}

		if peak > 0 {
			drawdown := (peak - sample.Equity) / peak * 100
			if drawdown > worst {
				worst = drawdown
			}
		}
	}

	return worst
}

// riskAdjusted computes the annualized Sharpe and Sortino ratios over
// per-sample returns, using the median sample spacing to annualize.
func riskAdjusted(curve []types.EquitySample) (float64, float64) {
	if len(curve) < 3 {
		return 0, 0
	}

	returns := make([]float64, 0, len(curve)-1)
	spacings := make([]float64, 0, len(curve)-1)

	for i := 1; i < len(curve); i++ {
		prev := curve[i-1]
		if prev.Equity <= 0 {
			return 0, 0
		}

		returns = append(returns, curve[i].Equity/prev.Equity-1)
		if spacing := curve[i].Time.Sub(prev.Time); spacing > 0 {
			spacings = append(spacings, spacing.Seconds())
		}
	}

	if len(spacings) == 0 {
		return 0, 0
	}

	sort.Float64s(spacings)
	periodsPerYear := yearSeconds / spacings[len(spacings)/2]

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance, downside float64
	for _, r := range returns {
		deviation := r - mean
		variance += deviation * deviation
		if r < 0 {
			downside += r * r
		}
	}
	variance /= float64(len(returns))
	downside /= float64(len(returns))

	annualFactor := math.Sqrt(periodsPerYear)

	var sharpe, sortino float64
	if stddev := math.Sqrt(variance); stddev > 0 {
		sharpe = mean / stddev * annualFactorClamp(annualFactor)
	}
	if downsideDev := math.Sqrt(downside); downsideDev > 0 {
		sortino = mean / downsideDev * annualFactorClamp(annualFactor)
	}

	return sharpe, sortino
}

func annualFactorClamp(factor float64) float64 {
	if math.IsNaN(factor) || math.IsInf(factor, 0) {
		return 0
	}

	return factor
}

// exposure approximates the share of the run's wall-clock span with at
// least one open position, from the net quantity implied by the trade log.
func exposure(curve []types.EquitySample, trades []types.Trade) float64 {
	if len(curve) < 2 || len(trades) == 0 {
		return 0
	}

	start := curve[0].Time
	end := curve[len(curve)-1].Time
	total := end.Sub(start).Seconds()
	if total <= 0 {
		return 0
	}

	net := make(map[string]float64, 4)
	var exposed float64
	openSince := time.Time{}

	anyOpen := func() bool {
		for _, quantity := range net {
			if quantity != 0 {
				return true
			}
		}
		return false
	}

	for _, trade := range trades {
		wasOpen := anyOpen()

		delta := trade.ExecutedQty
		if trade.Order.Side == types.PurchaseTypeSell {
			delta = -delta
		}
		net[trade.Order.Symbol] += delta

		if !wasOpen && anyOpen() {
			openSince = trade.ExecutedAt
		} else if wasOpen && !anyOpen() {
			exposed += trade.ExecutedAt.Sub(openSince).Seconds()
		}
	}

	if anyOpen() {
		exposed += end.Sub(openSince).Seconds()
	}

	return exposed / total * 100
}
