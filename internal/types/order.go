package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

type PurchaseType string

type OrderType string

type PositionType string

const (
	PurchaseTypeBuy  PurchaseType = "BUY"
	PurchaseTypeSell PurchaseType = "SELL"
)

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

const (
	PositionTypeLong  PositionType = "LONG"
	PositionTypeShort PositionType = "SHORT"
)

const (
	OrderReasonStrategy string = "strategy"
	OrderReasonStopLoss string = "stop_loss"
)

// Rejection reasons recorded in the decision log. The three portfolio limits
// are checked in a fixed order and the first violation wins.
const (
	RejectReasonMaxPosition       string = "max_position_size"
	RejectReasonMaxExposure       string = "max_exposure"
	RejectReasonDailyLossLimit    string = "daily_loss_limit"
	RejectReasonDrawdownHalt      string = "max_drawdown_halt"
	RejectReasonZeroQuantity      string = "zero_quantity"
	RejectReasonMissingStop       string = "insufficient_risk_parameters"
	RejectReasonNoPosition        string = "no_position_to_exit"
	RejectReasonConflict          string = "conflicting_position"
	RejectReasonInsufficientFunds string = "insufficient_buying_power"
)

type Reason struct {
	Reason  string `yaml:"reason" json:"reason" csv:"reason" validate:"required"`
	Message string `yaml:"message" json:"message" csv:"message"`
}

// Order is derived from a signal that passed every risk check. It is consumed
// by the execution simulator and then discarded: either converted into a
// Trade or dropped with a logged reason. Time-in-force is always immediate.
type Order struct {
	OrderID      string       `yaml:"order_id" json:"order_id" csv:"order_id" validate:"required,uuid"`
	Symbol       string       `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Side         PurchaseType `yaml:"side" json:"side" csv:"side" validate:"required,oneof=BUY SELL"`
	OrderType    OrderType    `yaml:"order_type" json:"order_type" csv:"order_type" validate:"required,oneof=MARKET LIMIT STOP"`
	Quantity     float64      `yaml:"quantity" json:"quantity" csv:"quantity" validate:"required,gt=0"`
	// Price is the reference price at order creation, the close of the bar
	// that produced the signal.
	Price        float64      `yaml:"price" json:"price" csv:"price" validate:"required,gt=0"`
	Timestamp    time.Time    `yaml:"timestamp" json:"timestamp" csv:"timestamp" validate:"required"`
	Reason       Reason       `yaml:"reason" json:"reason" csv:"reason" validate:"required"`
	StrategyName string       `yaml:"strategy_name" json:"strategy_name" csv:"strategy_name" validate:"required"`
	PositionType PositionType `yaml:"position_type" json:"position_type" csv:"position_type" validate:"required,oneof=LONG SHORT"`
	// ReduceOnly marks an exit order. Exit orders bypass entry limits and are
	// never blocked by the daily-loss or exposure checks.
	ReduceOnly bool `yaml:"reduce_only" json:"reduce_only" csv:"reduce_only"`
}

// Validate validates the Order struct.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	return nil
}
