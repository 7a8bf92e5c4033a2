package execution

import (
	"math"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

type FillRule string

const (
	// FillRuleClose executes on the close of the bar that produced the
	// signal.
	FillRuleClose FillRule = "close"
	// FillRuleNextOpen models a one-bar delay: the order executes on the
	// open of the following bar.
	FillRuleNextOpen FillRule = "next_open"
)

// Config holds the execution parameters for one run.
type Config struct {
	Commission CommissionConfig `yaml:"commission" json:"commission"`
	Slippage   SlippageConfig   `yaml:"slippage,omitempty" json:"slippage,omitempty"`
	FillRule   FillRule         `yaml:"fill_rule,omitempty" json:"fill_rule,omitempty" validate:"omitempty,oneof=close next_open"`
	// MaxParticipationRate caps the executed quantity at this fraction of
	// the bar's volume. Zero disables the cap.
	MaxParticipationRate float64 `yaml:"max_participation_rate,omitempty" json:"max_participation_rate,omitempty" validate:"omitempty,gt=0,lte=1"`
}

func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid execution configuration", err)
	}

	return nil
}

// Simulator converts admitted orders into trades. It never looks past the
// bar it is given: same-bar fills use the close, deferred fills use the next
// bar's open, both passed in by the caller.
type Simulator struct {
	config     Config
	commission CommissionCalculator
	slippage   SlippageCalculator
	log        *logger.Logger
}

func NewSimulator(config Config, log *logger.Logger) (*Simulator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.FillRule == "" {
		config.FillRule = FillRuleClose
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	commission, err := NewCommissionCalculator(config.Commission)
	if err != nil {
		return nil, err
	}

	slippage, err := NewSlippageCalculator(config.Slippage)
	if err != nil {
		return nil, err
	}

	return &Simulator{
		config:     config,
		commission: commission,
		slippage:   slippage,
		log:        log,
	}, nil
}

// FillRule returns the configured fill-price rule. The engine uses it to
// decide whether to execute on the signal bar or defer to the next one.
func (s *Simulator) FillRule() FillRule {
	return s.config.FillRule
}

// Execute fills the order on the signal bar's close.
func (s *Simulator) Execute(order types.Order, bar types.MarketData) (types.Trade, error) {
	return s.fill(order, bar, bar.Close)
}

// ExecuteDeferred fills a held order on the next bar's open, for the
// next_open rule.
func (s *Simulator) ExecuteDeferred(order types.Order, nextBar types.MarketData) (types.Trade, error) {
	return s.fill(order, nextBar, nextBar.Open)
}

func (s *Simulator) fill(order types.Order, bar types.MarketData, reference float64) (types.Trade, error) {
	if err := order.Validate(); err != nil {
		return types.Trade{}, err
	}

	if reference <= 0 {
		return types.Trade{}, errors.Newf(errors.ErrCodeExecutionInfeasible,
			"no usable price for %s at %s", order.Symbol, bar.Time)
	}

	quantity := order.Quantity
	if s.config.MaxParticipationRate > 0 {
		maxQuantity := math.Floor(s.config.MaxParticipationRate * bar.Volume)
		if maxQuantity <= 0 {
			return types.Trade{}, errors.Newf(errors.ErrCodeExecutionInfeasible,
				"no liquidity for %s at %s: bar volume %f", order.Symbol, bar.Time, bar.Volume)
		}

		if quantity > maxQuantity {
			// Partial fill: the remainder is discarded, never rested.
			s.log.Info("partial fill",
				zap.String("symbol", order.Symbol),
				zap.Float64("requested", quantity),
				zap.Float64("filled", maxQuantity))
			quantity = maxQuantity
		}
	}

	executedPrice := s.slippage.Adjust(reference, order.Side, bar)

	return types.Trade{
		Order:         order,
		ExecutedAt:    bar.Time,
		ExecutedQty:   quantity,
		ExecutedPrice: executedPrice,
		Commission:    s.commission.Calculate(quantity, executedPrice),
		Slippage:      executedPrice - reference,
	}, nil
}
