package engine

import "sort"

// Diagnostics aggregates the non-fatal conditions of a run: recovered
// strategy faults, risk rejections by reason, and infeasible orders. It is
// surfaced once at the end of the run.
type Diagnostics struct {
	StrategyFaults   int            `yaml:"strategy_faults" json:"strategy_faults"`
	RejectionsByKind map[string]int `yaml:"rejections_by_kind,omitempty" json:"rejections_by_kind,omitempty"`
	InfeasibleOrders int            `yaml:"infeasible_orders" json:"infeasible_orders"`
	StopsTriggered   int            `yaml:"stops_triggered" json:"stops_triggered"`
	PartialFills     int            `yaml:"partial_fills" json:"partial_fills"`
}

func newDiagnostics() *Diagnostics {
	return &Diagnostics{RejectionsByKind: make(map[string]int)}
}

func (d *Diagnostics) recordRejection(reason string) {
	d.RejectionsByKind[reason]++
}

// TotalRejections sums the rejection counts across all reasons.
func (d *Diagnostics) TotalRejections() int {
	total := 0
	for _, count := range d.RejectionsByKind {
		total += count
	}

	return total
}

// RejectionReasons returns the recorded reasons in sorted order.
func (d *Diagnostics) RejectionReasons() []string {
	reasons := make([]string, 0, len(d.RejectionsByKind))
	for reason := range d.RejectionsByKind {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	return reasons
}
