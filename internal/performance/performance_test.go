package performance

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/stretchr/testify/suite"
)

type PerformanceTestSuite struct {
	suite.Suite
}

func TestPerformanceSuite(t *testing.T) {
	suite.Run(t, new(PerformanceTestSuite))
}

func (suite *PerformanceTestSuite) curve(equities ...float64) []types.EquitySample {
	samples := make([]types.EquitySample, len(equities))
	for i, equity := range equities {
		samples[i] = types.EquitySample{
			Time:   time.Date(2024, 1, 2, 9, 30+i, 0, 0, time.UTC),
			Equity: equity,
		}
	}

	return samples
}

func (suite *PerformanceTestSuite) closedTrade(pnl float64, at time.Time) types.Trade {
	side := types.PurchaseTypeSell

	return types.Trade{
		Order: types.Order{
			OrderID:      uuid.New().String(),
			Symbol:       "AAPL",
			Side:         side,
			Quantity:     100,
			Price:        100,
			Timestamp:    at,
			StrategyName: "test",
			PositionType: types.PositionTypeLong,
			ReduceOnly:   true,
		},
		ExecutedAt:    at,
		ExecutedQty:   100,
		ExecutedPrice: 100,
		Commission:    1,
		PnL:           pnl,
	}
}

func (suite *PerformanceTestSuite) TestEmptyRunIsNaNFree() {
	summary := Compute(Input{
		StrategyName:   "test",
		InitialCapital: 100000,
	})

	suite.Assert().Equal(100000.0, summary.FinalEquity)
	suite.Assert().Equal(0.0, summary.TotalReturnPct)
	suite.Assert().Equal(0.0, summary.MaxDrawdownPct)
	suite.Assert().Equal(0.0, summary.SharpeRatio)
	suite.Assert().Equal(0.0, summary.SortinoRatio)
	suite.Assert().Equal(0.0, summary.WinRatePct)
	suite.Assert().Equal(0.0, summary.ProfitFactor)
	suite.Assert().Equal(0, summary.TotalTrades)
	suite.Assert().False(math.IsNaN(summary.AnnualizedReturnPct))
	suite.Assert().False(math.IsNaN(summary.ExposurePct))
}

func (suite *PerformanceTestSuite) TestTotalReturn() {
	summary := Compute(Input{
		InitialCapital: 100000,
		EquityCurve:    suite.curve(100000, 105000, 110000),
		BarsProcessed:  3,
	})

	suite.Assert().InDelta(10.0, summary.TotalReturnPct, 1e-9)
	suite.Assert().Equal(110000.0, summary.FinalEquity)
	suite.Assert().Equal(3, summary.BarsProcessed)
	suite.Assert().Greater(summary.AnnualizedReturnPct, 0.0)
}

func (suite *PerformanceTestSuite) TestMaxDrawdown() {
	summary := Compute(Input{
		InitialCapital: 100000,
		EquityCurve:    suite.curve(100000, 120000, 90000, 110000),
	})

	// Peak 120000, trough 90000.
	suite.Assert().InDelta(25.0, summary.MaxDrawdownPct, 1e-9)
}

func (suite *PerformanceTestSuite) TestTradeStatistics() {
	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	summary := Compute(Input{
		InitialCapital: 100000,
		EquityCurve:    suite.curve(100000, 100600, 100500),
		Trades: []types.Trade{
			suite.closedTrade(400, base),
			suite.closedTrade(300, base.Add(time.Minute)),
			suite.closedTrade(-200, base.Add(2*time.Minute)),
		},
	})

	suite.Assert().Equal(3, summary.TotalTrades)
	suite.Assert().Equal(2, summary.WinningTrades)
	suite.Assert().Equal(1, summary.LosingTrades)
	suite.Assert().InDelta(66.666, summary.WinRatePct, 0.01)
	suite.Assert().InDelta(350.0, summary.AvgWin, 1e-9)
	suite.Assert().InDelta(200.0, summary.AvgLoss, 1e-9)
	suite.Assert().InDelta(3.5, summary.ProfitFactor, 1e-9)
	suite.Assert().InDelta(3.0, summary.TotalFees, 1e-9)
	// Three fills of 100 shares at 100 each.
	suite.Assert().InDelta(30000.0, summary.Turnover, 1e-9)
}

func (suite *PerformanceTestSuite) TestOpeningTradesAreNotCounted() {
	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	entry := suite.closedTrade(0, base)
	entry.Order.ReduceOnly = false
	entry.Order.Side = types.PurchaseTypeBuy

	summary := Compute(Input{
		InitialCapital: 100000,
		EquityCurve:    suite.curve(100000, 100100),
		Trades:         []types.Trade{entry},
	})

	suite.Assert().Equal(0, summary.TotalTrades)
	suite.Assert().InDelta(1.0, summary.TotalFees, 1e-9)
}

func (suite *PerformanceTestSuite) TestSharpeSignFollowsDrift() {
	rising := Compute(Input{
		InitialCapital: 100000,
		EquityCurve:    suite.curve(100000, 100500, 100900, 101600, 102000),
	})
	suite.Assert().Greater(rising.SharpeRatio, 0.0)

	falling := Compute(Input{
		InitialCapital: 100000,
		EquityCurve:    suite.curve(100000, 99500, 99100, 98400, 98000),
	})
	suite.Assert().Less(falling.SharpeRatio, 0.0)
	suite.Assert().Less(falling.SortinoRatio, 0.0)
}

func (suite *PerformanceTestSuite) TestExposureCoversOpenInterval() {
	base := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	entry := suite.closedTrade(0, base.Add(time.Minute))
	entry.Order.ReduceOnly = false
	entry.Order.Side = types.PurchaseTypeBuy

	exit := suite.closedTrade(100, base.Add(3*time.Minute))

	summary := Compute(Input{
		InitialCapital: 100000,
		EquityCurve:    suite.curve(100000, 100000, 100100, 100200, 100100),
		Trades:         []types.Trade{entry, exit},
	})

	// Open from minute 1 to minute 3 of a 4 minute run.
	suite.Assert().InDelta(50.0, summary.ExposurePct, 1e-9)
}
