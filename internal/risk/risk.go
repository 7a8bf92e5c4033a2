package risk

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-backtest/internal/indicator"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/portfolio"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// Engine is the risk gatekeeper. Every signal passes through ApproveSignal,
// which either produces an admissible order or a typed rejection; stops are
// re-evaluated through CheckStop before any new signal for the symbol.
type Engine struct {
	config Config
	sizer  *Sizer
	limits *LimitChecker
	stops  *StopManager
	log    *logger.Logger

	// Per-symbol bar history retained for ATR-based stop levels only.
	bars map[string][]types.MarketData

	// orders counts admitted orders. Order IDs are derived from it, so two
	// identical runs produce identical trade logs.
	orders int
}

// orderNamespace seeds the deterministic order ID derivation.
var orderNamespace = uuid.MustParse("7b7f2f3e-61c4-4f0b-9f11-2f4a2f8a9c01")

func (e *Engine) nextOrderID(symbol string) string {
	e.orders++

	return uuid.NewSHA1(orderNamespace, []byte(fmt.Sprintf("%s-%d", symbol, e.orders))).String()
}

func NewEngine(config Config, log *logger.Logger) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Engine{
		config: config,
		sizer:  NewSizer(config.Sizing),
		limits: NewLimitChecker(config.Limits),
		stops:  NewStopManager(config.Stop),
		log:    log,
		bars:   make(map[string][]types.MarketData),
	}, nil
}

// Halted reports whether the drawdown halt has latched.
func (e *Engine) Halted() bool {
	return e.limits.Halted()
}

// ObserveBar records the bar for ATR bookkeeping and re-checks the drawdown
// halt. Called once per bar, after mark-to-market and before CheckStop.
func (e *Engine) ObserveBar(bar types.MarketData, drawdownPct float64) {
	e.limits.ObserveDrawdown(drawdownPct)

	if !e.config.Stop.usesATR() {
		return
	}

	history := append(e.bars[bar.Symbol], bar)
	if maxLen := e.config.Stop.ATRPeriod * 4; len(history) > maxLen {
		history = history[len(history)-maxLen:]
	}
	e.bars[bar.Symbol] = history
}

// currentATR returns the latest ATR for the symbol, or 0 before warm-up.
func (e *Engine) currentATR(symbol string) float64 {
	history := e.bars[symbol]
	if len(history) < e.config.Stop.ATRPeriod {
		return 0
	}

	values, err := indicator.ATR(history, e.config.Stop.ATRPeriod)
	if err != nil {
		return 0
	}

	atr := values[len(values)-1]
	if math.IsNaN(atr) {
		return 0
	}

	return atr
}

// ObserveTrade feeds realized P&L from a closing trade into the trailing
// statistics behind Kelly sizing.
func (e *Engine) ObserveTrade(realized float64) {
	e.sizer.ObserveTrade(realized)
}

// ArmStop creates the stop state for a freshly opened position, or None when
// no stop is configured.
func (e *Engine) ArmStop(position types.Position) (optional.Option[types.StopState], error) {
	if !e.stops.Enabled() {
		return nil, nil
	}

	stop, err := e.stops.Arm(position, e.currentATR(position.Symbol))
	if err != nil {
		return nil, err
	}

	return optional.Some(*stop), nil
}

// CheckStop re-evaluates the symbol's stop against the bar. It returns the
// updated stop state to commit back to the ledger and, when the bar crossed
// the level, a forced exit signal. The trigger is tested against the level
// armed before this bar; the trailing ratchet only moves afterwards, so a
// single bar can never raise the level and trigger on it at once.
//
// A stop that is already triggered keeps emitting the forced exit every bar
// until the position is gone: an exit that could not fill, or filled only
// partially, must not leave the remainder unprotected.
func (e *Engine) CheckStop(bar types.MarketData, snapshot portfolio.Snapshot) (optional.Option[types.StopState], optional.Option[types.Signal]) {
	position, ok := snapshot.Position(bar.Symbol)
	if !ok || position.Stop == nil {
		return nil, nil
	}

	if position.Stop.Status == types.StopStatusTriggered {
		return nil, optional.Some(e.forcedExit(bar, position, *position.Stop))
	}

	stop, triggered := e.stops.CheckTrigger(*position.Stop, position, bar)
	if triggered {
		e.log.Info("stop triggered",
			zap.String("symbol", bar.Symbol),
			zap.Float64("level", stop.Level),
			zap.Float64("low", bar.Low),
			zap.Float64("high", bar.High))

		return optional.Some(stop), optional.Some(e.forcedExit(bar, position, stop))
	}

	stop = e.stops.Recompute(stop, position, bar, e.currentATR(bar.Symbol))

	return optional.Some(stop), nil
}

func (e *Engine) forcedExit(bar types.MarketData, position types.Position, stop types.StopState) types.Signal {
	return types.Signal{
		Time:         bar.Time,
		Symbol:       bar.Symbol,
		Type:         types.SignalTypeExit,
		StrategyName: position.StrategyName,
		Reason:       "stop loss at " + string(stop.Type),
		Forced:       true,
	}
}

// ApproveSignal converts a signal into an order or a typed rejection.
// Exit signals bypass sizing and every entry limit; entries are sized by the
// configured method and then checked against the portfolio limits in fixed
// order.
func (e *Engine) ApproveSignal(signal types.Signal, bar types.MarketData, snapshot portfolio.Snapshot) (optional.Option[types.Order], optional.Option[types.Reason]) {
	if signal.Type == types.SignalTypeFlat {
		return nil, nil
	}

	if signal.IsEntry() {
		return e.approveEntry(signal, bar, snapshot)
	}

	return e.approveExit(signal, bar, snapshot)
}

func (e *Engine) approveExit(signal types.Signal, bar types.MarketData, snapshot portfolio.Snapshot) (optional.Option[types.Order], optional.Option[types.Reason]) {
	position, ok := snapshot.Position(signal.Symbol)
	if !ok {
		return nil, optional.Some(types.Reason{
			Reason:  types.RejectReasonNoPosition,
			Message: "exit signal with no open position",
		})
	}

	side := types.PurchaseTypeSell
	if position.IsShort() {
		side = types.PurchaseTypeBuy
	}

	orderReason := types.OrderReasonStrategy
	if signal.Forced {
		orderReason = types.OrderReasonStopLoss
	}

	return optional.Some(types.Order{
		OrderID:      e.nextOrderID(signal.Symbol),
		Symbol:       signal.Symbol,
		Side:         side,
		OrderType:    types.OrderTypeMarket,
		Quantity:     position.AbsQuantity(),
		Price:        bar.Close,
		Timestamp:    bar.Time,
		Reason:       types.Reason{Reason: orderReason, Message: signal.Reason},
		StrategyName: signal.StrategyName,
		PositionType: position.PositionType(),
		ReduceOnly:   true,
	}), nil
}

func (e *Engine) approveEntry(signal types.Signal, bar types.MarketData, snapshot portfolio.Snapshot) (optional.Option[types.Order], optional.Option[types.Reason]) {
	if position, ok := snapshot.Position(signal.Symbol); ok {
		sameDirection := (signal.Type == types.SignalTypeLong) == position.IsLong()
		if !sameDirection {
			return nil, optional.Some(types.Reason{
				Reason:  types.RejectReasonConflict,
				Message: "entry against an open position in the opposite direction",
			})
		}
	}

	stopDistance := e.entryStopDistance(bar)

	quantity, err := e.sizer.Size(snapshot, bar.Close, signal.Strength, stopDistance)
	if err != nil {
		e.log.Warn("sizing failed",
			zap.String("symbol", signal.Symbol),
			zap.Error(err))

		reason := types.RejectReasonMissingStop
		if errors.HasCode(err, errors.ErrCodeRiskRejected) {
			reason = types.RejectReasonInsufficientFunds
		}

		return nil, optional.Some(types.Reason{
			Reason:  reason,
			Message: err.Error(),
		})
	}

	if quantity <= 0 {
		return nil, optional.Some(types.Reason{
			Reason:  types.RejectReasonZeroQuantity,
			Message: "sized quantity rounded down to zero",
		})
	}

	if reason := e.limits.CheckEntry(signal.Symbol, quantity, bar.Close, snapshot); reason != nil {
		return nil, optional.Some(*reason)
	}

	side := types.PurchaseTypeBuy
	positionType := types.PositionTypeLong
	if signal.Type == types.SignalTypeShort {
		side = types.PurchaseTypeSell
		positionType = types.PositionTypeShort
	}

	return optional.Some(types.Order{
		OrderID:      e.nextOrderID(signal.Symbol),
		Symbol:       signal.Symbol,
		Side:         side,
		OrderType:    types.OrderTypeMarket,
		Quantity:     quantity,
		Price:        bar.Close,
		Timestamp:    bar.Time,
		Reason:       types.Reason{Reason: types.OrderReasonStrategy, Message: signal.Reason},
		StrategyName: signal.StrategyName,
		PositionType: positionType,
		ReduceOnly:   false,
	}), nil
}

// entryStopDistance returns the per-share stop distance a new entry at this
// bar would carry, used by risk_based sizing before the position exists.
func (e *Engine) entryStopDistance(bar types.MarketData) optional.Option[float64] {
	if !e.stops.Enabled() {
		return nil
	}

	distance, err := e.stops.InitialDistance(bar.Close, e.currentATR(bar.Symbol))
	if err != nil {
		return nil
	}

	return optional.Some(distance)
}
