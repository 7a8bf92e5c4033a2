package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-backtest/internal/datasource"
	"github.com/rxtech-lab/argo-backtest/internal/execution"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/performance"
	"github.com/rxtech-lab/argo-backtest/internal/portfolio"
	"github.com/rxtech-lab/argo-backtest/internal/risk"
	"github.com/rxtech-lab/argo-backtest/internal/strategy"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// Result is everything a finished run produces.
type Result struct {
	Summary     types.RunSummary
	EquityCurve []types.EquitySample
	Trades      []types.Trade
	Diagnostics Diagnostics
}

// Backtest runs one strategy against one event stream. The per-bar order is
// fixed: deferred fills, mark-to-market, stop re-evaluation with forced
// exits, strategy invocation on a history snapshot, risk approval, execution,
// and finally the ledger invariant check. Everything is sequential; there is
// no locking anywhere on this path.
type Backtest struct {
	config      Config
	strategy    strategy.Strategy
	ledger      *portfolio.Ledger
	risk        *risk.Engine
	simulator   *execution.Simulator
	store       *ResultStore
	log         *logger.Logger
	diagnostics *Diagnostics

	history  map[string][]types.MarketData
	pending  map[string][]types.Order
	lastTime time.Time
	bars     int
	progress func(processed int)
}

func NewBacktest(config Config, strat strategy.Strategy, store *ResultStore, log *logger.Logger) (*Backtest, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	ledger, err := portfolio.NewLedger(config.InitialCapital)
	if err != nil {
		return nil, err
	}

	riskEngine, err := risk.NewEngine(config.Risk, log)
	if err != nil {
		return nil, err
	}

	simulator, err := execution.NewSimulator(config.Execution, log)
	if err != nil {
		return nil, err
	}

	return &Backtest{
		config:      config,
		strategy:    strat,
		ledger:      ledger,
		risk:        riskEngine,
		simulator:   simulator,
		store:       store,
		log:         log,
		diagnostics: newDiagnostics(),
		history:     make(map[string][]types.MarketData),
		pending:     make(map[string][]types.Order),
	}, nil
}

// SetProgress registers a callback invoked after every processed bar.
func (b *Backtest) SetProgress(progress func(processed int)) {
	b.progress = progress
}

// Run consumes the source to completion. Cancellation is honored between
// bars only, so a shutdown can never leave the ledger half-updated. Only
// data gaps and ledger invariant violations abort the run early.
func (b *Backtest) Run(ctx context.Context, source datasource.EventSource) (*Result, error) {
	var start, end optional.Option[time.Time]
	if b.config.StartTime != nil {
		start = optional.Some(*b.config.StartTime)
	}
	if b.config.EndTime != nil {
		end = optional.Some(*b.config.EndTime)
	}

	for bar, err := range source.ReadAll(start, end) {
		if err != nil {
			return nil, err
		}

		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "run cancelled", ctx.Err())
		}

		if err := b.processBar(bar); err != nil {
			if errors.IsFatal(err) {
				b.log.Error("run aborted", zap.Error(err))
				return nil, err
			}

			return nil, err
		}
	}

	return b.finish()
}

func (b *Backtest) processBar(bar types.MarketData) error {
	if bar.Time.Before(b.lastTime) {
		return errors.Newf(errors.ErrCodeDataGap,
			"bar for %s at %s arrives before already processed %s",
			bar.Symbol, bar.Time.Format(time.RFC3339), b.lastTime.Format(time.RFC3339))
	}
	b.lastTime = bar.Time

	// Orders held for the next_open rule execute on this bar's open, before
	// anything else sees the bar.
	if held := b.pending[bar.Symbol]; len(held) > 0 {
		delete(b.pending, bar.Symbol)

		for _, order := range held {
			if err := b.executeOrder(order, bar, true); err != nil {
				return err
			}
		}
	}

	b.ledger.MarkToMarket(bar)
	b.risk.ObserveBar(bar, b.ledger.DrawdownPct())

	// Stop re-evaluation runs before the strategy, so a forced exit for this
	// bar always precedes any new signal for the symbol.
	stop, forcedExit := b.risk.CheckStop(bar, b.ledger.Snapshot(bar.Time))
	if stop.IsSome() {
		updated := stop.Unwrap()
		if err := b.ledger.SetStop(bar.Symbol, &updated); err != nil {
			return err
		}

		if updated.Status == types.StopStatusTriggered {
			b.diagnostics.StopsTriggered++
		}
	}

	if forcedExit.IsSome() {
		if err := b.routeSignal(forcedExit.Unwrap(), bar); err != nil {
			return err
		}
	}

	b.history[bar.Symbol] = append(b.history[bar.Symbol], bar)

	signal, err := b.callStrategy(bar)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeStrategyFatalConfig) {
			return err
		}

		b.diagnostics.StrategyFaults++
		b.log.Warn("strategy fault, signal skipped",
			zap.String("symbol", bar.Symbol),
			zap.Error(err))
	} else if signal.IsSome() {
		if err := b.routeSignal(signal.Unwrap(), bar); err != nil {
			return err
		}
	}

	b.ledger.RefreshLastSample()

	if err := b.ledger.CheckInvariant(); err != nil {
		return err
	}

	b.bars++
	if b.progress != nil {
		b.progress(b.bars)
	}

	return nil
}

// callStrategy invokes OnBar with a snapshot of history up to and including
// the current bar. A panic inside the strategy is recovered into a fault.
func (b *Backtest) callStrategy(bar types.MarketData) (signal optional.Option[types.Signal], err error) {
	defer func() {
		if r := recover(); r != nil {
			signal = nil
			err = errors.Newf(errors.ErrCodeStrategyFault, "strategy panic: %v", r)
		}
	}()

	history := strategy.NewHistory(b.history[bar.Symbol], b.ledger.Snapshot(bar.Time))

	return b.strategy.OnBar(history)
}

func (b *Backtest) routeSignal(signal types.Signal, bar types.MarketData) error {
	order, rejection := b.risk.ApproveSignal(signal, bar, b.ledger.Snapshot(bar.Time))

	if rejection.IsSome() {
		reason := rejection.Unwrap()
		b.diagnostics.recordRejection(reason.Reason)
		b.log.Debug("signal rejected",
			zap.String("symbol", signal.Symbol),
			zap.String("reason", reason.Reason),
			zap.String("message", reason.Message))

		return b.store.RecordRejection(bar.Time, signal.Symbol, signal.StrategyName, reason)
	}

	if order.IsNone() {
		return nil
	}

	admitted := order.Unwrap()

	// Forced stop exits always fill on the triggering bar; only strategy
	// orders observe the one-bar delay of the next_open rule.
	if b.simulator.FillRule() == execution.FillRuleNextOpen && !signal.Forced {
		b.pending[admitted.Symbol] = append(b.pending[admitted.Symbol], admitted)
		return nil
	}

	return b.executeOrder(admitted, bar, false)
}

func (b *Backtest) executeOrder(order types.Order, bar types.MarketData, deferred bool) error {
	var trade types.Trade
	var err error

	if deferred {
		trade, err = b.simulator.ExecuteDeferred(order, bar)
	} else {
		trade, err = b.simulator.Execute(order, bar)
	}

	if err != nil {
		if errors.HasCode(err, errors.ErrCodeExecutionInfeasible) {
			b.diagnostics.InfeasibleOrders++
			b.log.Warn("order infeasible, dropped",
				zap.String("symbol", order.Symbol),
				zap.Error(err))

			return nil
		}

		return err
	}

	if trade.ExecutedQty < order.Quantity {
		b.diagnostics.PartialFills++
	}

	realized, err := b.ledger.ApplyTrade(trade)
	if err != nil {
		return err
	}
	trade.PnL = realized

	if order.ReduceOnly {
		b.risk.ObserveTrade(realized)
	}

	if err := b.store.RecordTrade(trade); err != nil {
		return err
	}

	b.armStopIfNeeded(order)

	return nil
}

// armStopIfNeeded attaches the configured stop to a position freshly opened
// by an entry fill.
func (b *Backtest) armStopIfNeeded(order types.Order) {
	if order.ReduceOnly {
		return
	}

	position, ok := b.ledger.GetPosition(order.Symbol)
	if !ok || position.Stop != nil {
		return
	}

	stop, err := b.risk.ArmStop(position)
	if err != nil {
		b.log.Warn("could not arm stop",
			zap.String("symbol", order.Symbol),
			zap.Error(err))

		return
	}

	if stop.IsSome() {
		armed := stop.Unwrap()
		if err := b.ledger.SetStop(order.Symbol, &armed); err != nil {
			b.log.Warn("could not attach stop", zap.Error(err))
		}
	}
}

func (b *Backtest) finish() (*Result, error) {
	curve := b.ledger.EquityCurve()

	if err := b.store.RecordEquityCurve(curve); err != nil {
		return nil, err
	}

	trades, err := b.store.GetAllTrades()
	if err != nil {
		return nil, err
	}

	summary := performance.Compute(performance.Input{
		StrategyName:   b.strategy.Name(),
		InitialCapital: b.config.InitialCapital,
		EquityCurve:    curve,
		Trades:         trades,
		BarsProcessed:  b.bars,
	})
	summary.ID = uuid.New().String()
	summary.Timestamp = time.Now().UTC()

	b.log.Info("run finished",
		zap.Int("bars", b.bars),
		zap.Int("trades", summary.TotalTrades),
		zap.Float64("final_equity", summary.FinalEquity),
		zap.Int("rejections", b.diagnostics.TotalRejections()),
		zap.Int("strategy_faults", b.diagnostics.StrategyFaults))

	return &Result{
		Summary:     summary,
		EquityCurve: curve,
		Trades:      trades,
		Diagnostics: *b.diagnostics,
	}, nil
}
