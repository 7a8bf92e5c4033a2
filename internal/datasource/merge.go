package datasource

import (
	"container/heap"
	"iter"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// MergeSource combines several per-symbol sources into a single ordered
// stream. Bars with equal timestamps are emitted in ascending symbol order
// so multi-symbol runs are deterministic.
//
// MergeSource also enforces the stream contract: per-symbol timestamps must
// be strictly increasing. A duplicate or backwards timestamp for a symbol
// yields a data gap error and ends the stream.
type MergeSource struct {
	sources []EventSource
}

func NewMergeSource(sources ...EventSource) *MergeSource {
	return &MergeSource{sources: sources}
}

type mergeEntry struct {
	bar  types.MarketData
	next func() (types.MarketData, error, bool)
	stop func()
}

type mergeHeap []mergeEntry

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if !h[i].bar.Time.Equal(h[j].bar.Time) {
		return h[i].bar.Time.Before(h[j].bar.Time)
	}
	return h[i].bar.Symbol < h[j].bar.Symbol
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(mergeEntry)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

func (m *MergeSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) iter.Seq2[types.MarketData, error] {
	return func(yield func(types.MarketData, error) bool) {
		h := make(mergeHeap, 0, len(m.sources))
		defer func() {
			for _, entry := range h {
				entry.stop()
			}
		}()

		for _, source := range m.sources {
			next, stop := iter.Pull2(source.ReadAll(start, end))

			bar, err, ok := next()
			if !ok {
				stop()
				continue
			}
			if err != nil {
				stop()
				yield(types.MarketData{}, err)
				return
			}

			h = append(h, mergeEntry{bar: bar, next: next, stop: stop})
		}
		heap.Init(&h)

		lastSeen := make(map[string]time.Time)
		for h.Len() > 0 {
			entry := h[0]
			bar := entry.bar

			if last, ok := lastSeen[bar.Symbol]; ok && !bar.Time.After(last) {
				yield(types.MarketData{}, errors.Newf(errors.ErrCodeDataGap,
					"out of order bar for %s: %s does not advance past %s",
					bar.Symbol, bar.Time.Format(time.RFC3339), last.Format(time.RFC3339)))
				return
			}
			lastSeen[bar.Symbol] = bar.Time

			if !yield(bar, nil) {
				return
			}

			nextBar, err, ok := entry.next()
			if err != nil {
				yield(types.MarketData{}, err)
				return
			}
			if !ok {
				entry.stop()
				heap.Pop(&h)
				continue
			}

			h[0].bar = nextBar
			heap.Fix(&h, 0)
		}
	}
}

func (m *MergeSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	total := 0
	for _, source := range m.sources {
		count, err := source.Count(start, end)
		if err != nil {
			return 0, err
		}
		total += count
	}

	return total, nil
}
