package execution

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type ExecutionTestSuite struct {
	suite.Suite
}

func TestExecutionSuite(t *testing.T) {
	suite.Run(t, new(ExecutionTestSuite))
}

func (suite *ExecutionTestSuite) order(qty float64) types.Order {
	return types.Order{
		OrderID:      uuid.New().String(),
		Symbol:       "AAPL",
		Side:         types.PurchaseTypeBuy,
		OrderType:    types.OrderTypeMarket,
		Quantity:     qty,
		Price:        100,
		Timestamp:    time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC),
		Reason:       types.Reason{Reason: types.OrderReasonStrategy},
		StrategyName: "test",
		PositionType: types.PositionTypeLong,
	}
}

func (suite *ExecutionTestSuite) bar(volume float64) types.MarketData {
	return types.MarketData{
		Symbol: "AAPL",
		Time:   time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC),
		Open:   99,
		High:   101,
		Low:    98,
		Close:  100,
		Volume: volume,
	}
}

func (suite *ExecutionTestSuite) simulator(config Config) *Simulator {
	simulator, err := NewSimulator(config, logger.NewNopLogger())
	suite.Require().NoError(err)

	return simulator
}

func (suite *ExecutionTestSuite) TestFillAtCloseNoFrictions() {
	simulator := suite.simulator(Config{})

	trade, err := simulator.Execute(suite.order(100), suite.bar(100000))
	suite.Require().NoError(err)
	suite.Assert().Equal(100.0, trade.ExecutedQty)
	suite.Assert().Equal(100.0, trade.ExecutedPrice)
	suite.Assert().Equal(0.0, trade.Commission)
	suite.Assert().Equal(0.0, trade.Slippage)
}

func (suite *ExecutionTestSuite) TestDeferredFillAtNextOpen() {
	simulator := suite.simulator(Config{FillRule: FillRuleNextOpen})

	nextBar := suite.bar(100000)
	nextBar.Time = nextBar.Time.Add(time.Minute)
	nextBar.Open = 102

	trade, err := simulator.ExecuteDeferred(suite.order(100), nextBar)
	suite.Require().NoError(err)
	suite.Assert().Equal(102.0, trade.ExecutedPrice)
	suite.Assert().Equal(nextBar.Time, trade.ExecutedAt)
}

func (suite *ExecutionTestSuite) TestFixedBpsSlippageMovesAgainstOrder() {
	simulator := suite.simulator(Config{
		Slippage: SlippageConfig{Model: SlippageModelFixedBps, Bps: 10},
	})

	trade, err := simulator.Execute(suite.order(100), suite.bar(100000))
	suite.Require().NoError(err)
	suite.Assert().InDelta(100.1, trade.ExecutedPrice, 1e-9)
	suite.Assert().InDelta(0.1, trade.Slippage, 1e-9)

	sell := suite.order(100)
	sell.Side = types.PurchaseTypeSell

	trade, err = simulator.Execute(sell, suite.bar(100000))
	suite.Require().NoError(err)
	suite.Assert().InDelta(99.9, trade.ExecutedPrice, 1e-9)
	suite.Assert().InDelta(-0.1, trade.Slippage, 1e-9)
}

func (suite *ExecutionTestSuite) TestVolatilitySlippageScalesWithRange() {
	simulator := suite.simulator(Config{
		Slippage: SlippageConfig{Model: SlippageModelVolatility, RangeFactor: 0.5},
	})

	// Range is 3 on a close of 100, so the buy pays 100 * 0.03 * 0.5 more.
	trade, err := simulator.Execute(suite.order(100), suite.bar(100000))
	suite.Require().NoError(err)
	suite.Assert().InDelta(101.5, trade.ExecutedPrice, 1e-9)
}

func (suite *ExecutionTestSuite) TestCommissionModels() {
	tests := []struct {
		name     string
		config   CommissionConfig
		expected float64
	}{
		{name: "zero", config: CommissionConfig{Model: CommissionModelZero}, expected: 0},
		{name: "flat", config: CommissionConfig{Model: CommissionModelFlat, Flat: 2.5}, expected: 2.5},
		{name: "bps", config: CommissionConfig{Model: CommissionModelBps, Bps: 10}, expected: 10},
		{name: "per share above minimum", config: CommissionConfig{Model: CommissionModelPerShare, PerShare: 0.005, Minimum: 1}, expected: 1},
		{name: "per share minimum", config: CommissionConfig{Model: CommissionModelPerShare, PerShare: 0.05, Minimum: 1}, expected: 5},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			simulator := suite.simulator(Config{Commission: tc.config})

			trade, err := simulator.Execute(suite.order(100), suite.bar(100000))
			suite.Require().NoError(err)
			suite.Assert().InDelta(tc.expected, trade.Commission, 1e-9)
		})
	}
}

func (suite *ExecutionTestSuite) TestParticipationCapPartiallyFills() {
	simulator := suite.simulator(Config{MaxParticipationRate: 0.1})

	trade, err := simulator.Execute(suite.order(500), suite.bar(1000))
	suite.Require().NoError(err)
	suite.Assert().Equal(100.0, trade.ExecutedQty)
}

func (suite *ExecutionTestSuite) TestZeroVolumeIsInfeasible() {
	simulator := suite.simulator(Config{MaxParticipationRate: 0.1})

	_, err := simulator.Execute(suite.order(100), suite.bar(0))
	suite.Require().Error(err)
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeExecutionInfeasible))
}

func (suite *ExecutionTestSuite) TestInvalidOrderRejected() {
	simulator := suite.simulator(Config{})

	bad := suite.order(100)
	bad.OrderID = "not-a-uuid"

	_, err := simulator.Execute(bad, suite.bar(100000))
	suite.Require().Error(err)
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidOrder))
}
