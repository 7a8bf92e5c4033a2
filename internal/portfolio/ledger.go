// Package portfolio owns the ledger of cash, positions, and the equity
// curve. Every mutation flows through ApplyTrade or MarkToMarket; all other
// components read point-in-time snapshots.
package portfolio

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// invariantEpsilon bounds the tolerated drift between the marked equity
// sample and the recomputed cash plus market value identity.
var invariantEpsilon = decimal.RequireFromString("0.000001")

// Snapshot is a deep, read-only copy of the ledger at one point in time.
// Strategies and the risk engine only ever see snapshots.
type Snapshot struct {
	Time             time.Time
	Cash             float64
	Equity           float64
	PeakEquity       float64
	DailyRealizedPnL float64
	Positions        map[string]types.Position
}

// Position returns the snapshot position for symbol, if one is open.
func (s Snapshot) Position(symbol string) (types.Position, bool) {
	position, ok := s.Positions[symbol]
	return position, ok
}

// Ledger is the single source of truth for cash, open positions, and the
// equity curve. It has no internal locking: the engine serializes all access.
type Ledger struct {
	initialCapital float64
	cash           float64
	positions      map[string]*types.Position
	equityCurve    []types.EquitySample
	peakEquity     float64
	dailyRealized  float64
	currentDay     time.Time
	lastMarked     map[string]time.Time
}

func NewLedger(initialCapital float64) (*Ledger, error) {
	if initialCapital <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "initial capital must be positive, got %f", initialCapital)
	}

	return &Ledger{
		initialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[string]*types.Position),
		peakEquity:     initialCapital,
		lastMarked:     make(map[string]time.Time),
	}, nil
}

func (l *Ledger) InitialCapital() float64 {
	return l.initialCapital
}

func (l *Ledger) Cash() float64 {
	return l.cash
}

// Equity returns cash plus the market value of every open position.
func (l *Ledger) Equity() float64 {
	equityDec := decimal.NewFromFloat(l.cash)
	for _, position := range l.positions {
		equityDec = equityDec.Add(decimal.NewFromFloat(position.MarketValue))
	}

	equity, _ := equityDec.Float64()

	return equity
}

func (l *Ledger) PeakEquity() float64 {
	return l.peakEquity
}

// DrawdownPct returns the current decline from peak equity, in percent.
func (l *Ledger) DrawdownPct() float64 {
	if l.peakEquity <= 0 {
		return 0
	}

	drawdown := (l.peakEquity - l.Equity()) / l.peakEquity * 100
	if drawdown < 0 {
		return 0
	}

	return drawdown
}

// ExposurePct returns the summed absolute market value of open positions as
// a percent of equity.
func (l *Ledger) ExposurePct() float64 {
	equity := l.Equity()
	if equity <= 0 {
		return 0
	}

	gross := decimal.Zero
	for _, position := range l.positions {
		gross = gross.Add(decimal.NewFromFloat(position.MarketValue).Abs())
	}

	grossValue, _ := gross.Float64()

	return grossValue / equity * 100
}

// DailyRealizedPnL returns the realized profit and loss booked since the
// current UTC date boundary.
func (l *Ledger) DailyRealizedPnL() float64 {
	return l.dailyRealized
}

// GetPosition returns a copy of the open position for symbol, if any.
func (l *Ledger) GetPosition(symbol string) (types.Position, bool) {
	position, ok := l.positions[symbol]
	if !ok {
		return types.Position{}, false
	}

	return copyPosition(position), true
}

// OpenPositions returns copies of all open positions, ordered by symbol.
func (l *Ledger) OpenPositions() []types.Position {
	symbols := make([]string, 0, len(l.positions))
	for symbol := range l.positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	positions := make([]types.Position, 0, len(symbols))
	for _, symbol := range symbols {
		positions = append(positions, copyPosition(l.positions[symbol]))
	}

	return positions
}

// EquityCurve returns a copy of the equity samples recorded so far.
func (l *Ledger) EquityCurve() []types.EquitySample {
	curve := make([]types.EquitySample, len(l.equityCurve))
	copy(curve, l.equityCurve)

	return curve
}

// SetStop attaches or replaces the stop state on an open position.
func (l *Ledger) SetStop(symbol string, stop *types.StopState) error {
	position, ok := l.positions[symbol]
	if !ok {
		return errors.Newf(errors.ErrCodePositionNotFound, "no open position for %s", symbol)
	}

	position.Stop = stop

	return nil
}

// Snapshot returns a deep copy of the committed ledger state.
func (l *Ledger) Snapshot(at time.Time) Snapshot {
	positions := make(map[string]types.Position, len(l.positions))
	for symbol, position := range l.positions {
		positions[symbol] = copyPosition(position)
	}

	return Snapshot{
		Time:             at,
		Cash:             l.cash,
		Equity:           l.Equity(),
		PeakEquity:       l.peakEquity,
		DailyRealizedPnL: l.dailyRealized,
		Positions:        positions,
	}
}

// MarkToMarket revalues the symbol's position at the bar's close and appends
// one equity sample. Marking the same bar twice is a no-op, so the equity
// curve never carries duplicates.
func (l *Ledger) MarkToMarket(bar types.MarketData) {
	if last, ok := l.lastMarked[bar.Symbol]; ok && last.Equal(bar.Time) {
		return
	}
	l.lastMarked[bar.Symbol] = bar.Time

	l.rollDay(bar.Time)

	if position, ok := l.positions[bar.Symbol]; ok {
		position.UpdatePrice(bar.Close)
	}

	equity := l.Equity()
	l.equityCurve = append(l.equityCurve, types.EquitySample{Time: bar.Time, Equity: equity})

	if equity > l.peakEquity {
		l.peakEquity = equity
	}
}

// ApplyTrade books an executed trade: cash moves by the notional plus fees,
// and the position is created, adjusted, or removed. It returns the realized
// P&L of any closed portion.
func (l *Ledger) ApplyTrade(trade types.Trade) (float64, error) {
	if trade.ExecutedQty <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "trade quantity must be positive, got %f", trade.ExecutedQty)
	}

	l.rollDay(trade.ExecutedAt)

	notionalDec := decimal.NewFromFloat(trade.ExecutedQty).Mul(decimal.NewFromFloat(trade.ExecutedPrice))
	cashDec := decimal.NewFromFloat(l.cash)

	if trade.Order.Side == types.PurchaseTypeBuy {
		cashDec = cashDec.Sub(notionalDec).Sub(decimal.NewFromFloat(trade.Commission))
	} else {
		cashDec = cashDec.Add(notionalDec).Sub(decimal.NewFromFloat(trade.Commission))
	}

	l.cash, _ = cashDec.Float64()

	position, ok := l.positions[trade.Order.Symbol]
	if !ok {
		position = &types.Position{
			Symbol:        trade.Order.Symbol,
			CurrentPrice:  trade.ExecutedPrice,
			OpenTimestamp: trade.ExecutedAt,
			StrategyName:  trade.Order.StrategyName,
		}
		l.positions[trade.Order.Symbol] = position
	}

	realized := position.ApplyFill(trade.Order.Side, trade.ExecutedQty, trade.ExecutedPrice)
	l.dailyRealized += realized

	if position.IsFlat() {
		delete(l.positions, trade.Order.Symbol)
	}

	return realized, nil
}

// RefreshLastSample re-marks the most recent equity sample after fills so the
// sampled equity reflects post-trade cash and commission. The curve still
// carries exactly one sample per bar.
func (l *Ledger) RefreshLastSample() {
	if len(l.equityCurve) == 0 {
		return
	}

	equity := l.Equity()
	l.equityCurve[len(l.equityCurve)-1].Equity = equity

	if equity > l.peakEquity {
		l.peakEquity = equity
	}
}

// CheckInvariant verifies the ledger identity: the last equity sample must
// equal cash plus the summed quantity times mark price of every position,
// within the configured precision. A violation is an engine bug and aborts
// the run.
func (l *Ledger) CheckInvariant() error {
	for symbol, position := range l.positions {
		if position.IsFlat() {
			return errors.Newf(errors.ErrCodeLedgerInvariantViolation,
				"zero-quantity position retained for %s: %s", symbol, l.dumpState())
		}
	}

	if len(l.equityCurve) == 0 {
		return nil
	}

	expectedDec := decimal.NewFromFloat(l.cash)
	for _, position := range l.positions {
		expectedDec = expectedDec.Add(
			decimal.NewFromFloat(position.Quantity).Mul(decimal.NewFromFloat(position.CurrentPrice)))
	}

	sampled := decimal.NewFromFloat(l.equityCurve[len(l.equityCurve)-1].Equity)
	if expectedDec.Sub(sampled).Abs().GreaterThan(invariantEpsilon) {
		return errors.Newf(errors.ErrCodeLedgerInvariantViolation,
			"equity sample %s diverges from cash plus positions %s: %s",
			sampled.String(), expectedDec.String(), l.dumpState())
	}

	return nil
}

// rollDay resets the daily realized P&L counter at each UTC date boundary.
func (l *Ledger) rollDay(t time.Time) {
	day := t.UTC().Truncate(24 * time.Hour)
	if !day.Equal(l.currentDay) {
		l.currentDay = day
		l.dailyRealized = 0
	}
}

// dumpState renders the full ledger state for invariant violation reports.
func (l *Ledger) dumpState() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cash=%.6f peak=%.6f positions=[", l.cash, l.peakEquity)

	for _, position := range l.OpenPositions() {
		fmt.Fprintf(&b, "{%s qty=%.4f avg=%.4f mark=%.4f} ",
			position.Symbol, position.Quantity, position.AvgEntryPrice, position.CurrentPrice)
	}
	b.WriteString("]")

	return b.String()
}

func copyPosition(position *types.Position) types.Position {
	copied := *position
	if position.Stop != nil {
		stop := *position.Stop
		copied.Stop = &stop
	}

	return copied
}
