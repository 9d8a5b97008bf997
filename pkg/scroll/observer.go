// Package scroll decides when a scrolling list is close enough to its end
// to request the next page.
package scroll

// DefaultBuffer is the number of trailing items that should still be ahead
// of the viewer when the next page is requested.
const DefaultBuffer = 5

// ShouldTriggerLoadMore reports whether the near-end threshold is crossed.
//
// It is true iff the last visible index is not the first index and equals
// totalItemCount - buffer. The function is pure; callers must guard against
// re-triggering while a fetch is already in flight.
func ShouldTriggerLoadMore(visibleIndices []int, totalItemCount, buffer int) bool {
	if len(visibleIndices) == 0 {
		return false
	}

	last := visibleIndices[len(visibleIndices)-1]

	// A list shorter than the buffer has a negative target and never triggers.
	return last != 0 && last == totalItemCount-buffer
}

// Observer carries a configured buffer for repeated threshold checks.
type Observer struct {
	buffer int
}

// NewObserver creates an observer. Buffers below 1 are raised to 1.
func NewObserver(buffer int) Observer {
	if buffer < 1 {
		buffer = 1
	}
	return Observer{buffer: buffer}
}

// Buffer returns the configured buffer.
func (o Observer) Buffer() int {
	return o.buffer
}

// ShouldTrigger applies ShouldTriggerLoadMore with the observer's buffer.
func (o Observer) ShouldTrigger(visibleIndices []int, totalItemCount int) bool {
	return ShouldTriggerLoadMore(visibleIndices, totalItemCount, o.buffer)
}

// VisibleRange returns the indices [first, first+count) clipped to
// [0, totalItemCount). Rendering surfaces that scroll by offset use it to
// report their window.
func VisibleRange(first, count, totalItemCount int) []int {
	end := first + count
	if first < 0 {
		first = 0
	}
	if end > totalItemCount {
		end = totalItemCount
	}
	if first >= end {
		return nil
	}

	indices := make([]int, 0, end-first)
	for i := first; i < end; i++ {
		indices = append(indices, i)
	}
	return indices
}
