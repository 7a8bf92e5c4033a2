package types

import "time"

// Trade is the simulated execution outcome of an admitted order. Trades are
// immutable and appended to the run's trade log in execution order.
type Trade struct {
	Order      Order     `yaml:"order" json:"order" csv:"order"`
	ExecutedAt time.Time `yaml:"executed_at" json:"executed_at" csv:"executed_at"`
	// ExecutedQty may be less than the order quantity when the fill is capped
	// by the participation limit. The remainder is discarded, never rested.
	ExecutedQty   float64 `yaml:"executed_qty" json:"executed_qty" csv:"executed_qty"`
	ExecutedPrice float64 `yaml:"executed_price" json:"executed_price" csv:"executed_price"`
	// Commission is the fee charged for this trade, subtracted from cash.
	Commission float64 `yaml:"commission" json:"commission" csv:"commission"`
	// Slippage is the signed difference between the executed price and the
	// reference price, per share.
	Slippage float64 `yaml:"slippage" json:"slippage" csv:"slippage"`
	// PnL is the realized profit and loss booked by this trade. Zero for
	// trades that only open or add to a position.
	PnL float64 `yaml:"pnl" json:"pnl" csv:"pnl"`
}

// Notional returns the gross value exchanged by the trade.
func (t Trade) Notional() float64 {
	return t.ExecutedQty * t.ExecutedPrice
}
