package datasource

import (
	"container/heap"
	"context"
	"iter"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// ReplaySource adapts a push-style live feed to the pull-based EventSource
// contract. Producers call Push as bars arrive; the source buffers up to
// window bars in a min-heap keyed by timestamp so slightly out-of-order
// deliveries are re-sequenced before the engine sees them. Close drains the
// buffer and ends the stream.
type ReplaySource struct {
	ctx    context.Context
	ch     chan types.MarketData
	window int

	// done signals shutdown. The data channel is never closed, so a Push
	// racing Close can not panic; it either delivers or observes done.
	done      chan struct{}
	closeOnce sync.Once
}

// NewReplaySource returns a replay source bound to ctx. The window is the
// number of bars held back for reordering; a window of 0 passes bars through
// as they arrive.
func NewReplaySource(ctx context.Context, window int) *ReplaySource {
	if window < 0 {
		window = 0
	}

	return &ReplaySource{
		ctx:    ctx,
		ch:     make(chan types.MarketData, window+1),
		window: window,
		done:   make(chan struct{}),
	}
}

// Push delivers a bar from the live feed. It fails once the source is closed
// or its context is cancelled; a Push concurrent with Close may still
// deliver its bar.
func (r *ReplaySource) Push(bar types.MarketData) error {
	select {
	case <-r.done:
		return errors.New(errors.ErrCodeDataSourceUnavailable, "replay source is closed")
	default:
	}

	select {
	case r.ch <- bar:
		return nil
	case <-r.done:
		return errors.New(errors.ErrCodeDataSourceUnavailable, "replay source is closed")
	case <-r.ctx.Done():
		return errors.Wrap(errors.ErrCodeDataSourceUnavailable, "replay source context cancelled", r.ctx.Err())
	}
}

// Close ends the stream. Bars already delivered are still drained in order.
func (r *ReplaySource) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

type replayHeap []types.MarketData

func (h replayHeap) Len() int { return len(h) }

func (h replayHeap) Less(i, j int) bool {
	if !h[i].Time.Equal(h[j].Time) {
		return h[i].Time.Before(h[j].Time)
	}
	return h[i].Symbol < h[j].Symbol
}

func (h replayHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *replayHeap) Push(x any) { *h = append(*h, x.(types.MarketData)) }

func (h *replayHeap) Pop() any {
	old := *h
	n := len(old)
	bar := old[n-1]
	*h = old[:n-1]
	return bar
}

func (r *ReplaySource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) iter.Seq2[types.MarketData, error] {
	return func(yield func(types.MarketData, error) bool) {
		buffer := make(replayHeap, 0, r.window+1)
		var lastEmitted time.Time

		emit := func(bar types.MarketData) (bool, bool) {
			if !inRange(bar.Time, start, end) {
				return true, false
			}

			if bar.Time.Before(lastEmitted) {
				return yield(types.MarketData{}, errors.Newf(errors.ErrCodeDataGap,
					"bar for %s at %s arrived beyond the reorder window",
					bar.Symbol, bar.Time.Format(time.RFC3339))), true
			}
			lastEmitted = bar.Time

			return yield(bar, nil), false
		}

		for {
			select {
			case bar := <-r.ch:
				heap.Push(&buffer, bar)
				for buffer.Len() > r.window {
					cont, failed := emit(heap.Pop(&buffer).(types.MarketData))
					if !cont || failed {
						return
					}
				}
			case <-r.done:
				// Shutdown: pick up bars that were already in flight,
				// then release the buffer in order.
				for {
					select {
					case bar := <-r.ch:
						heap.Push(&buffer, bar)
						continue
					default:
					}
					break
				}

				for buffer.Len() > 0 {
					cont, failed := emit(heap.Pop(&buffer).(types.MarketData))
					if !cont || failed {
						return
					}
				}
				return
			case <-r.ctx.Done():
				yield(types.MarketData{}, errors.Wrap(errors.ErrCodeDataSourceUnavailable,
					"replay source context cancelled", r.ctx.Err()))
				return
			}
		}
	}
}

// Count is unknown for a live stream.
func (r *ReplaySource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	return 0, nil
}
