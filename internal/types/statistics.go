package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RunSummary is the summary record produced at the end of a run from the
// final equity curve and trade log. All ratios are finite: a run with no
// trades reports zeros rather than NaN.
type RunSummary struct {
	// ID is the unique identifier for this run.
	ID string `yaml:"id" json:"id"`
	// Timestamp is when the run was executed.
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	// StrategyName is the strategy that produced the results.
	StrategyName string `yaml:"strategy_name" json:"strategy_name"`

	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
	FinalEquity    float64 `yaml:"final_equity" json:"final_equity"`
	// TotalReturnPct is the total return over the run, in percent.
	TotalReturnPct float64 `yaml:"total_return_pct" json:"total_return_pct"`
	// AnnualizedReturnPct annualizes the total return using the run's
	// sampling frequency.
	AnnualizedReturnPct float64 `yaml:"annualized_return_pct" json:"annualized_return_pct"`
	// MaxDrawdownPct is the largest peak-to-trough decline on the equity
	// curve, in percent.
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct" json:"max_drawdown_pct"`
	// SharpeRatio is the annualized mean/stddev of per-bar returns.
	SharpeRatio float64 `yaml:"sharpe_ratio" json:"sharpe_ratio"`
	// SortinoRatio uses only downside deviation in the denominator.
	SortinoRatio float64 `yaml:"sortino_ratio" json:"sortino_ratio"`

	TotalTrades   int     `yaml:"total_trades" json:"total_trades"`
	WinningTrades int     `yaml:"winning_trades" json:"winning_trades"`
	LosingTrades  int     `yaml:"losing_trades" json:"losing_trades"`
	WinRatePct    float64 `yaml:"win_rate_pct" json:"win_rate_pct"`
	AvgWin        float64 `yaml:"avg_win" json:"avg_win"`
	AvgLoss       float64 `yaml:"avg_loss" json:"avg_loss"`
	// ProfitFactor is gross profit divided by gross loss.
	ProfitFactor float64 `yaml:"profit_factor" json:"profit_factor"`
	TotalFees    float64 `yaml:"total_fees" json:"total_fees"`
	// Turnover is the gross notional traded across all fills, entries and
	// exits alike.
	Turnover float64 `yaml:"turnover" json:"turnover"`

	// ExposurePct is the fraction of bars with at least one open position,
	// in percent.
	ExposurePct   float64 `yaml:"exposure_pct" json:"exposure_pct"`
	BarsProcessed int     `yaml:"bars_processed" json:"bars_processed"`
}

// WriteRunSummary marshals the summary to YAML and writes it to path.
func WriteRunSummary(path string, summary RunSummary) error {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run summary to file: %w", err)
	}

	return nil
}
