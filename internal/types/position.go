package types

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type StopType string

const (
	// StopTypeFixedPercent sets the level once at entry, a fixed percent away
	StopTypeFixedPercent StopType = "fixed_percent"
	// StopTypeATR sets the level once at entry using the ATR at entry time
	StopTypeATR StopType = "atr"
	// StopTypeTrailingPercent ratchets the level toward price by a percent
	StopTypeTrailingPercent StopType = "trailing_percent"
	// StopTypeTrailingATR ratchets the level toward price by a multiple of
	// the current ATR
	StopTypeTrailingATR StopType = "trailing_atr"
)

type StopStatus string

const (
	StopStatusArmed     StopStatus = "armed"
	StopStatusTriggered StopStatus = "triggered"
)

// StopState is the stop-loss state machine attached to an open position.
// It is owned by the position and recomputed by the risk engine after every
// mark-to-market, before the next signal for the symbol is evaluated.
type StopState struct {
	Type   StopType   `yaml:"type" json:"type"`
	Level  float64    `yaml:"level" json:"level"`
	Status StopStatus `yaml:"status" json:"status"`
}

// Position represents the current holdings of one symbol. Quantity is signed:
// positive for long, negative for short. A position whose quantity reaches
// zero is removed from the portfolio, never retained as a zero row.
type Position struct {
	Symbol        string    `yaml:"symbol" json:"symbol"`
	Quantity      float64   `yaml:"quantity" json:"quantity"`
	AvgEntryPrice float64   `yaml:"avg_entry_price" json:"avg_entry_price"`
	CurrentPrice  float64   `yaml:"current_price" json:"current_price"`
	MarketValue   float64   `yaml:"market_value" json:"market_value"`
	CostBasis     float64   `yaml:"cost_basis" json:"cost_basis"`
	UnrealizedPnL float64   `yaml:"unrealized_pnl" json:"unrealized_pnl"`
	RealizedPnL   float64   `yaml:"realized_pnl" json:"realized_pnl"`
	OpenTimestamp time.Time `yaml:"open_timestamp" json:"open_timestamp"`
	StrategyName  string    `yaml:"strategy_name" json:"strategy_name"`
	// Stop is nil when no stop-loss is configured for the portfolio.
	Stop *StopState `yaml:"stop,omitempty" json:"stop,omitempty"`
}

// NewPosition creates a position with the given signed quantity and entry price.
func NewPosition(symbol string, quantity float64, entryPrice float64) *Position {
	p := &Position{
		Symbol:        symbol,
		Quantity:      quantity,
		AvgEntryPrice: entryPrice,
		CurrentPrice:  entryPrice,
	}
	p.MarketValue = quantity * entryPrice
	p.CostBasis = quantity * entryPrice

	return p
}

func (p *Position) IsLong() bool {
	return p.Quantity > 0
}

func (p *Position) IsShort() bool {
	return p.Quantity < 0
}

func (p *Position) IsFlat() bool {
	return p.Quantity == 0
}

func (p *Position) AbsQuantity() float64 {
	return math.Abs(p.Quantity)
}

// PositionType returns LONG or SHORT based on the sign of the quantity.
func (p *Position) PositionType() PositionType {
	if p.Quantity < 0 {
		return PositionTypeShort
	}

	return PositionTypeLong
}

// UpdatePrice marks the position to the given price and recomputes market
// value and unrealized P&L.
func (p *Position) UpdatePrice(price float64) {
	p.CurrentPrice = price

	marketValueDec := decimal.NewFromFloat(p.Quantity).Mul(decimal.NewFromFloat(price))
	p.MarketValue, _ = marketValueDec.Float64()

	unrealizedDec := marketValueDec.Sub(decimal.NewFromFloat(p.CostBasis))
	p.UnrealizedPnL, _ = unrealizedDec.Float64()
}

// ApplyFill applies an executed trade to the position and returns the realized
// P&L on any closed portion. Adding to a position updates the volume-weighted
// average entry price; reducing past zero reverses the position at the fill
// price.
func (p *Position) ApplyFill(side PurchaseType, quantity float64, price float64) float64 {
	fillQty := quantity
	if side == PurchaseTypeSell {
		fillQty = -quantity
	}

	var realized float64

	sameDirection := (p.Quantity > 0 && fillQty > 0) || (p.Quantity < 0 && fillQty < 0)

	if sameDirection || p.Quantity == 0 {
		// Adding to the position: recompute the volume-weighted entry price
		totalCostDec := decimal.NewFromFloat(p.Quantity).Mul(decimal.NewFromFloat(p.AvgEntryPrice)).
			Add(decimal.NewFromFloat(fillQty).Mul(decimal.NewFromFloat(price)))
		newQuantity := p.Quantity + fillQty

		if newQuantity != 0 {
			avgDec := totalCostDec.Div(decimal.NewFromFloat(newQuantity))
			p.AvgEntryPrice, _ = avgDec.Float64()
		}

		p.Quantity = newQuantity
	} else {
		// Reducing or reversing the position
		closeQty := math.Min(math.Abs(fillQty), math.Abs(p.Quantity))

		var realizedDec decimal.Decimal
		if p.Quantity > 0 {
			// Was long, selling
			realizedDec = decimal.NewFromFloat(closeQty).
				Mul(decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(p.AvgEntryPrice)))
		} else {
			// Was short, buying back
			realizedDec = decimal.NewFromFloat(closeQty).
				Mul(decimal.NewFromFloat(p.AvgEntryPrice).Sub(decimal.NewFromFloat(price)))
		}

		realized, _ = realizedDec.Float64()
		p.RealizedPnL += realized

		remaining := math.Abs(fillQty) - closeQty
		if remaining > 0 {
			// Position reversed: the remainder opens in the fill direction
			p.Quantity = math.Copysign(remaining, fillQty)
			p.AvgEntryPrice = price
		} else {
			p.Quantity += fillQty
		}
	}

	costBasisDec := decimal.NewFromFloat(p.Quantity).Mul(decimal.NewFromFloat(p.AvgEntryPrice))
	p.CostBasis, _ = costBasisDec.Float64()
	p.UpdatePrice(p.CurrentPrice)

	return realized
}
