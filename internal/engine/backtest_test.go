package engine

import (
	"context"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/datasource"
	"github.com/rxtech-lab/argo-backtest/internal/execution"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/risk"
	"github.com/rxtech-lab/argo-backtest/internal/strategy"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"github.com/stretchr/testify/suite"
)

// scriptedStrategy emits a predefined signal when the history reaches a
// given length. It stands in for real strategies so engine behavior can be
// tested bar by bar.
type scriptedStrategy struct {
	signals map[int]types.Signal
	faultAt int
	fatalAt int
	panicAt int
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) WarmupPeriod() int { return 0 }

func (s *scriptedStrategy) OnBar(history strategy.History) (optional.Option[types.Signal], error) {
	n := history.Len()

	if s.panicAt > 0 && n == s.panicAt {
		panic("scripted panic")
	}
	if s.faultAt > 0 && n == s.faultAt {
		return nil, errors.New(errors.ErrCodeStrategyFault, "scripted fault")
	}
	if s.fatalAt > 0 && n == s.fatalAt {
		return nil, errors.New(errors.ErrCodeStrategyFatalConfig, "scripted fatal config error")
	}

	if signal, ok := s.signals[n]; ok {
		bar := history.Current()
		signal.Time = bar.Time
		signal.Symbol = bar.Symbol
		signal.StrategyName = s.Name()

		return optional.Some(signal), nil
	}

	return nil, nil
}

type BacktestTestSuite struct {
	suite.Suite
}

func TestBacktestSuite(t *testing.T) {
	suite.Run(t, new(BacktestTestSuite))
}

func (suite *BacktestTestSuite) bars(closes ...float64) []types.MarketData {
	bars := make([]types.MarketData, len(closes))
	for i, close := range closes {
		bars[i] = types.MarketData{
			Symbol: "AAPL",
			Time:   time.Date(2024, 1, 2, 9, 30+i, 0, 0, time.UTC),
			Open:   close,
			High:   close + 1,
			Low:    close - 1,
			Close:  close,
			Volume: 100000,
		}
	}

	return bars
}

func (suite *BacktestTestSuite) run(config Config, strat strategy.Strategy, bars []types.MarketData) (*Result, error) {
	store, err := NewResultStore(logger.NewNopLogger())
	suite.Require().NoError(err)
	defer store.Cleanup()

	backtest, err := NewBacktest(config, strat, store, logger.NewNopLogger())
	suite.Require().NoError(err)

	return backtest.Run(context.Background(), datasource.NewSliceSource(bars))
}

func (suite *BacktestTestSuite) baseConfig() Config {
	return Config{
		InitialCapital: 100000,
		Strategy:       strategy.Config{Name: "scripted"},
		Risk: risk.Config{
			Sizing: risk.SizingConfig{Method: risk.SizingMethodPercentEquity, PercentEquity: 2},
		},
	}
}

func (suite *BacktestTestSuite) TestSingleEntryRisingMarket() {
	// 2% sizing on 100000 at price 100 buys exactly 20 shares; the rising
	// series never triggers anything else.
	closes := []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 110}

	script := &scriptedStrategy{signals: map[int]types.Signal{
		1: {Type: types.SignalTypeLong, Reason: "scripted entry"},
	}}

	result, err := suite.run(suite.baseConfig(), script, suite.bars(closes...))
	suite.Require().NoError(err)

	suite.Require().Len(result.Trades, 1)
	suite.Assert().Equal(20.0, result.Trades[0].ExecutedQty)
	suite.Assert().Equal(100.0, result.Trades[0].ExecutedPrice)
	suite.Assert().Equal(0, result.Diagnostics.TotalRejections())

	// Final equity = cash after the buy plus 20 shares at 110.
	expected := 100000.0 - 20*100 + 20*110
	suite.Assert().InDelta(expected, result.Summary.FinalEquity, 1e-6)
	suite.Assert().Equal(10, result.Summary.BarsProcessed)
	suite.Require().Len(result.EquityCurve, 10)
	suite.Assert().InDelta(expected, result.EquityCurve[9].Equity, 1e-6)
}

func (suite *BacktestTestSuite) TestDailyLossLimitRejectsNextEntry() {
	config := suite.baseConfig()
	config.Risk.Sizing = risk.SizingConfig{Method: risk.SizingMethodFixed, FixedShares: 100}
	config.Risk.Limits = risk.LimitsConfig{DailyLossLimitPct: 3}

	// Buy 100 at 100, exit at 60 for a 4000 realized loss, then try to
	// re-enter the same day.
	script := &scriptedStrategy{signals: map[int]types.Signal{
		1: {Type: types.SignalTypeLong, Reason: "entry"},
		2: {Type: types.SignalTypeExit, Reason: "panic exit"},
		3: {Type: types.SignalTypeLong, Reason: "re-entry"},
	}}

	result, err := suite.run(config, script, suite.bars(100, 60, 60, 60))
	suite.Require().NoError(err)

	suite.Require().Len(result.Trades, 2)
	suite.Assert().InDelta(-4000.0, result.Trades[1].PnL, 1e-6)
	suite.Assert().Equal(1, result.Diagnostics.RejectionsByKind[types.RejectReasonDailyLossLimit])
}

func (suite *BacktestTestSuite) TestTrailingStopRatchetsThenExits() {
	config := suite.baseConfig()
	config.Risk.Sizing = risk.SizingConfig{Method: risk.SizingMethodFixed, FixedShares: 100}
	config.Risk.Stop = risk.StopConfig{Type: types.StopTypeTrailingPercent, Percent: 5}

	script := &scriptedStrategy{signals: map[int]types.Signal{
		1: {Type: types.SignalTypeLong, Reason: "entry"},
	}}

	// Entry at 100, rally to 120 ratchets the stop to 114, the drop to 113
	// crosses it.
	bars := suite.bars(100, 120, 113, 113)
	bars[2].High = 118

	result, err := suite.run(config, script, bars)
	suite.Require().NoError(err)

	suite.Require().Len(result.Trades, 2)
	exit := result.Trades[1]
	suite.Assert().True(exit.Order.ReduceOnly)
	suite.Assert().Equal(types.OrderReasonStopLoss, exit.Order.Reason.Reason)
	suite.Assert().LessOrEqual(exit.ExecutedPrice, 114.0)
	suite.Assert().Equal(100.0, exit.ExecutedQty)
	suite.Assert().Equal(1, result.Diagnostics.StopsTriggered)
}

func (suite *BacktestTestSuite) TestStopExitRetriedAfterInfeasibleBar() {
	config := suite.baseConfig()
	config.Risk.Sizing = risk.SizingConfig{Method: risk.SizingMethodFixed, FixedShares: 10}
	config.Risk.Stop = risk.StopConfig{Type: types.StopTypeFixedPercent, Percent: 5}
	config.Execution = execution.Config{MaxParticipationRate: 0.5}

	script := &scriptedStrategy{signals: map[int]types.Signal{
		1: {Type: types.SignalTypeLong, Reason: "entry"},
	}}

	// The stop fires on the zero-volume bar at 90, where no exit can fill.
	// The forced exit must come back on the next liquid bar.
	bars := suite.bars(100, 90, 85, 80)
	bars[1].Volume = 0

	result, err := suite.run(config, script, bars)
	suite.Require().NoError(err)

	suite.Require().Len(result.Trades, 2)
	exit := result.Trades[1]
	suite.Assert().True(exit.Order.ReduceOnly)
	suite.Assert().Equal(85.0, exit.ExecutedPrice)
	suite.Assert().Equal(10.0, exit.ExecutedQty)
	suite.Assert().Equal(1, result.Diagnostics.InfeasibleOrders)
	suite.Assert().Equal(1, result.Diagnostics.StopsTriggered)
}

func (suite *BacktestTestSuite) TestStopExitClosesRemainderAfterPartialFill() {
	config := suite.baseConfig()
	config.Risk.Sizing = risk.SizingConfig{Method: risk.SizingMethodFixed, FixedShares: 100}
	config.Risk.Stop = risk.StopConfig{Type: types.StopTypeFixedPercent, Percent: 5}
	config.Execution = execution.Config{MaxParticipationRate: 0.5}

	script := &scriptedStrategy{signals: map[int]types.Signal{
		1: {Type: types.SignalTypeLong, Reason: "entry"},
	}}

	// The triggering bar only has liquidity for 60 of the 100 shares; the
	// remaining 40 must still be closed on the following bar.
	bars := suite.bars(100, 90, 88, 88)
	bars[1].Volume = 120

	result, err := suite.run(config, script, bars)
	suite.Require().NoError(err)

	suite.Require().Len(result.Trades, 3)
	suite.Assert().Equal(60.0, result.Trades[1].ExecutedQty)
	suite.Assert().Equal(40.0, result.Trades[2].ExecutedQty)
	suite.Assert().True(result.Trades[2].Order.ReduceOnly)
	suite.Assert().Equal(1, result.Diagnostics.PartialFills)
	suite.Assert().Equal(1, result.Diagnostics.StopsTriggered)
}

func (suite *BacktestTestSuite) TestStrategyFaultIsRecovered() {
	script := &scriptedStrategy{
		faultAt: 2,
		signals: map[int]types.Signal{
			3: {Type: types.SignalTypeLong, Reason: "after fault"},
		},
	}

	result, err := suite.run(suite.baseConfig(), script, suite.bars(100, 101, 102, 103))
	suite.Require().NoError(err)

	suite.Assert().Equal(1, result.Diagnostics.StrategyFaults)
	suite.Assert().Len(result.Trades, 1, "run continues after a recovered fault")
}

func (suite *BacktestTestSuite) TestStrategyPanicIsRecovered() {
	script := &scriptedStrategy{panicAt: 2}

	result, err := suite.run(suite.baseConfig(), script, suite.bars(100, 101, 102))
	suite.Require().NoError(err)
	suite.Assert().Equal(1, result.Diagnostics.StrategyFaults)
	suite.Assert().Equal(3, result.Summary.BarsProcessed)
}

func (suite *BacktestTestSuite) TestFatalConfigErrorAbortsRun() {
	script := &scriptedStrategy{fatalAt: 2}

	_, err := suite.run(suite.baseConfig(), script, suite.bars(100, 101, 102))
	suite.Require().Error(err)
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeStrategyFatalConfig))
}

func (suite *BacktestTestSuite) TestNonMonotonicStreamIsFatal() {
	bars := suite.bars(100, 101, 102)
	bars[2].Time = bars[0].Time.Add(-time.Minute)

	// Bypass SliceSource sorting with a raw slice in delivered order.
	store, err := NewResultStore(logger.NewNopLogger())
	suite.Require().NoError(err)
	defer store.Cleanup()

	backtest, err := NewBacktest(suite.baseConfig(), &scriptedStrategy{}, store, logger.NewNopLogger())
	suite.Require().NoError(err)

	ctx := context.Background()
	source := datasource.NewReplaySource(ctx, 0)

	go func() {
		for _, bar := range bars {
			if source.Push(bar) != nil {
				return
			}
		}
		source.Close()
	}()

	_, err = backtest.Run(ctx, source)
	suite.Require().Error(err)
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeDataGap))
}

func (suite *BacktestTestSuite) TestNextOpenFillRule() {
	config := suite.baseConfig()
	config.Risk.Sizing = risk.SizingConfig{Method: risk.SizingMethodFixed, FixedShares: 10}
	config.Execution = execution.Config{FillRule: execution.FillRuleNextOpen}

	script := &scriptedStrategy{signals: map[int]types.Signal{
		1: {Type: types.SignalTypeLong, Reason: "entry"},
	}}

	bars := suite.bars(100, 104, 105)
	bars[1].Open = 103

	result, err := suite.run(config, script, bars)
	suite.Require().NoError(err)

	suite.Require().Len(result.Trades, 1)
	suite.Assert().Equal(103.0, result.Trades[0].ExecutedPrice, "deferred order fills on the next bar's open")
	suite.Assert().Equal(bars[1].Time, result.Trades[0].ExecutedAt)
}

func (suite *BacktestTestSuite) TestCancellationBetweenBars() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store, err := NewResultStore(logger.NewNopLogger())
	suite.Require().NoError(err)
	defer store.Cleanup()

	backtest, err := NewBacktest(suite.baseConfig(), &scriptedStrategy{}, store, logger.NewNopLogger())
	suite.Require().NoError(err)

	_, err = backtest.Run(ctx, datasource.NewSliceSource(suite.bars(100, 101)))
	suite.Require().Error(err)
}

func (suite *BacktestTestSuite) TestDeterministicRuns() {
	closes := []float64{100, 98, 103, 101, 106, 104, 109, 107, 112, 110}

	runOnce := func() *Result {
		script := &scriptedStrategy{signals: map[int]types.Signal{
			2: {Type: types.SignalTypeLong, Reason: "entry"},
			6: {Type: types.SignalTypeExit, Reason: "exit"},
			8: {Type: types.SignalTypeLong, Reason: "re-entry"},
		}}

		config := suite.baseConfig()
		config.Execution = execution.Config{
			Commission: execution.CommissionConfig{Model: execution.CommissionModelPerShare, PerShare: 0.005, Minimum: 1},
			Slippage:   execution.SlippageConfig{Model: execution.SlippageModelFixedBps, Bps: 5},
		}

		result, err := suite.run(config, script, suite.bars(closes...))
		suite.Require().NoError(err)

		return result
	}

	first := runOnce()
	second := runOnce()

	suite.Assert().Equal(first.Trades, second.Trades)
	suite.Assert().Equal(first.EquityCurve, second.EquityCurve)
}

func (suite *BacktestTestSuite) TestEmptyStreamProducesEmptyResult() {
	result, err := suite.run(suite.baseConfig(), &scriptedStrategy{}, nil)
	suite.Require().NoError(err)

	suite.Assert().Equal(0, result.Summary.BarsProcessed)
	suite.Assert().Equal(100000.0, result.Summary.FinalEquity)
	suite.Assert().Empty(result.Trades)
}
