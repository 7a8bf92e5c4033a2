package types

import (
	"time"

	"github.com/moznion/go-optional"
)

type SignalType string

const (
	// SignalTypeLong is a signal to open or add to a long position
	SignalTypeLong SignalType = "long"
	// SignalTypeShort is a signal to open or add to a short position
	SignalTypeShort SignalType = "short"
	// SignalTypeExit is a signal to close the current position
	SignalTypeExit SignalType = "exit"
	// SignalTypeFlat is a signal that tells the engine to take no action
	SignalTypeFlat SignalType = "flat"
)

// Signal is a strategy's directional trading intent for one symbol at one
// bar. Signals are immutable and consumed exactly once by the risk engine.
type Signal struct {
	// Time is the time of the bar that produced the signal
	Time time.Time
	// Symbol is the symbol the signal applies to
	Symbol string
	// Type is the direction of the signal
	Type SignalType
	// Strength is an optional sizing hint in [0, 1]
	Strength optional.Option[float64]
	// StrategyName identifies the strategy that produced the signal
	StrategyName string
	// Reason is a human-readable explanation for the signal
	Reason string
	// Forced marks a stop-loss exit synthesized by the risk engine. Forced
	// exits bypass position sizing and entry limits.
	Forced bool
}

// IsEntry reports whether the signal opens exposure rather than closing it.
func (s Signal) IsEntry() bool {
	return s.Type == SignalTypeLong || s.Type == SignalTypeShort
}
