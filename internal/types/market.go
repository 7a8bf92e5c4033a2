package types

import "time"

// MarketData is a single OHLCV bar for one symbol over one interval.
// Bars are immutable once produced by a data source.
type MarketData struct {
	Symbol string    `csv:"symbol" yaml:"symbol" json:"symbol"`
	Time   time.Time `csv:"time" yaml:"time" json:"time"`
	Open   float64   `csv:"open" yaml:"open" json:"open"`
	High   float64   `csv:"high" yaml:"high" json:"high"`
	Low    float64   `csv:"low" yaml:"low" json:"low"`
	Close  float64   `csv:"close" yaml:"close" json:"close"`
	Volume float64   `csv:"volume" yaml:"volume" json:"volume"`
}

// EquitySample is one point of the equity curve, appended on every
// mark-to-market.
type EquitySample struct {
	Time   time.Time `yaml:"time" json:"time"`
	Equity float64   `yaml:"equity" json:"equity"`
}
