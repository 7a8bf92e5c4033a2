package datasource

import (
	"iter"
	"sort"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/types"
)

// SliceSource serves bars from memory. It sorts its input once by timestamp,
// breaking ties by symbol, so callers may construct it from unordered data.
type SliceSource struct {
	bars []types.MarketData
}

func NewSliceSource(bars []types.MarketData) *SliceSource {
	sorted := make([]types.MarketData, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Time.Equal(sorted[j].Time) {
			return sorted[i].Time.Before(sorted[j].Time)
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})

	return &SliceSource{bars: sorted}
}

func (s *SliceSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) iter.Seq2[types.MarketData, error] {
	return func(yield func(types.MarketData, error) bool) {
		for _, bar := range s.bars {
			if !inRange(bar.Time, start, end) {
				continue
			}

			if !yield(bar, nil) {
				return
			}
		}
	}
}

func (s *SliceSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	count := 0
	for _, bar := range s.bars {
		if inRange(bar.Time, start, end) {
			count++
		}
	}

	return count, nil
}
