// Package datasource provides the market event stream consumed by the
// engine: finite in-memory or CSV-backed sources for backtests, a k-way
// merger for multi-symbol runs, and a buffered replay source for live
// (paper-trading) delivery.
package datasource

import (
	"iter"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/types"
)

// EventSource is a lazy, pull-based sequence of bars.
//
// Implementations must deliver bars with non-decreasing timestamps across the
// whole stream, and strictly increasing timestamps per symbol. The engine
// treats any violation as a fatal data gap.
type EventSource interface {
	// ReadAll yields bars within the optional [start, end] bounds, in
	// timestamp order. Iteration stops when the consumer breaks or the
	// stream ends.
	ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) iter.Seq2[types.MarketData, error]
	// Count returns the number of bars ReadAll would yield, or 0 when the
	// source is unbounded.
	Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error)
}

// inRange reports whether t falls within the optional closed bounds.
func inRange(t time.Time, start optional.Option[time.Time], end optional.Option[time.Time]) bool {
	if start.IsSome() && t.Before(start.Unwrap()) {
		return false
	}

	if end.IsSome() && t.After(end.Unwrap()) {
		return false
	}

	return true
}
