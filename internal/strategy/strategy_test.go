package strategy

import (
	"testing"
	"time"

	"github.com/rxtech-lab/argo-backtest/internal/portfolio"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type StrategyTestSuite struct {
	suite.Suite
}

func TestStrategySuite(t *testing.T) {
	suite.Run(t, new(StrategyTestSuite))
}

func (suite *StrategyTestSuite) history(closes []float64, positions ...types.Position) History {
	bars := make([]types.MarketData, len(closes))
	for i, close := range closes {
		bars[i] = types.MarketData{
			Symbol: "AAPL",
			Time:   time.Date(2024, 1, 2, 9, 30+i, 0, 0, time.UTC),
			Open:   close,
			High:   close + 1,
			Low:    close - 1,
			Close:  close,
			Volume: 10000,
		}
	}

	byName := make(map[string]types.Position, len(positions))
	for _, position := range positions {
		byName[position.Symbol] = position
	}

	return NewHistory(bars, portfolio.Snapshot{
		Cash:      100000,
		Equity:    100000,
		Positions: byName,
	})
}

func (suite *StrategyTestSuite) TestNewRejectsUnknownStrategy() {
	_, err := New(Config{Name: "mystery"})
	suite.Require().Error(err)
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeStrategyNotFound))
}

func (suite *StrategyTestSuite) TestNewBuildsConfiguredStrategies() {
	sma, err := New(Config{Name: "sma_crossover", Params: map[string]float64{"fast_period": 3, "slow_period": 5}})
	suite.Require().NoError(err)
	suite.Assert().Equal("sma_crossover_3_5", sma.Name())

	rsi, err := New(Config{Name: "rsi_mean_reversion"})
	suite.Require().NoError(err)
	suite.Assert().Equal("rsi_mean_reversion_14", rsi.Name())
}

func (suite *StrategyTestSuite) TestSMACrossoverValidatesPeriods() {
	_, err := NewSMACrossover(10, 10)
	suite.Require().Error(err)

	_, err = NewSMACrossover(0, 10)
	suite.Require().Error(err)
}

func (suite *StrategyTestSuite) TestSMACrossoverSignalsOnGoldenCross() {
	strategy, err := NewSMACrossover(2, 4)
	suite.Require().NoError(err)

	// Falling series keeps the fast average below the slow one, then the
	// jump to 120 crosses it above.
	closes := []float64{110, 108, 106, 104, 102, 120}

	signal, err := strategy.OnBar(suite.history(closes))
	suite.Require().NoError(err)
	suite.Require().True(signal.IsSome())
	suite.Assert().Equal(types.SignalTypeLong, signal.Unwrap().Type)
	suite.Assert().True(signal.Unwrap().Strength.IsSome())
}

func (suite *StrategyTestSuite) TestSMACrossoverExitsOnDeathCross() {
	strategy, err := NewSMACrossover(2, 4)
	suite.Require().NoError(err)

	closes := []float64{100, 102, 104, 106, 108, 90}
	position := *types.NewPosition("AAPL", 100, 100)

	signal, err := strategy.OnBar(suite.history(closes, position))
	suite.Require().NoError(err)
	suite.Require().True(signal.IsSome())
	suite.Assert().Equal(types.SignalTypeExit, signal.Unwrap().Type)
}

func (suite *StrategyTestSuite) TestSMACrossoverSilentDuringWarmup() {
	strategy, err := NewSMACrossover(2, 4)
	suite.Require().NoError(err)

	signal, err := strategy.OnBar(suite.history([]float64{100, 101, 102}))
	suite.Require().NoError(err)
	suite.Assert().True(signal.IsNone())
}

func (suite *StrategyTestSuite) TestSMACrossoverNoLookAhead() {
	strategy, err := NewSMACrossover(2, 4)
	suite.Require().NoError(err)

	closes := []float64{110, 108, 106, 104, 102, 120, 80, 200}

	// The result at bar 5 must be identical whether or not later bars exist
	// in the underlying series.
	truncated, err := strategy.OnBar(suite.history(closes[:6]))
	suite.Require().NoError(err)

	suite.Require().True(truncated.IsSome())
	suite.Assert().Equal(types.SignalTypeLong, truncated.Unwrap().Type)
}

func (suite *StrategyTestSuite) TestRSIMeanReversionBuysOversold() {
	strategy, err := NewRSIMeanReversion(3, 30, 70)
	suite.Require().NoError(err)

	closes := []float64{100, 95, 90, 85, 80}

	signal, err := strategy.OnBar(suite.history(closes))
	suite.Require().NoError(err)
	suite.Require().True(signal.IsSome())
	suite.Assert().Equal(types.SignalTypeLong, signal.Unwrap().Type)

	strength := signal.Unwrap().Strength
	suite.Require().True(strength.IsSome())
	suite.Assert().Greater(strength.Unwrap(), 0.9)
}

func (suite *StrategyTestSuite) TestRSIMeanReversionExitsOverbought() {
	strategy, err := NewRSIMeanReversion(3, 30, 70)
	suite.Require().NoError(err)

	closes := []float64{100, 105, 110, 115, 120}
	position := *types.NewPosition("AAPL", 100, 100)

	signal, err := strategy.OnBar(suite.history(closes, position))
	suite.Require().NoError(err)
	suite.Require().True(signal.IsSome())
	suite.Assert().Equal(types.SignalTypeExit, signal.Unwrap().Type)
}

func (suite *StrategyTestSuite) TestRSIMeanReversionHoldsInNeutralZone() {
	strategy, err := NewRSIMeanReversion(3, 30, 70)
	suite.Require().NoError(err)

	closes := []float64{100, 101, 99, 100, 101}

	signal, err := strategy.OnBar(suite.history(closes))
	suite.Require().NoError(err)
	suite.Assert().True(signal.IsNone())
}
