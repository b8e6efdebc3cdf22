package forecast

import (
	"fmt"
	"math"
)

// ClipDrift bounds each step of a raw forecast by the trailing mean absolute
// daily move. The trailing window starts as the last `window` day-over-day
// moves of history and slides forward over the clipped forecast's own moves,
// so step i is clamped to [last-margin, last+margin] with
// margin = sum(ring)/window. history needs at least window+1 points.
func ClipDrift(history, raw []float64, window int) ([]float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("clip window must be positive, got %d", window)
	}
	if len(history) < window+1 {
		return nil, fmt.Errorf("%w: %d points, need %d for a %d-move window",
			ErrInsufficientHistory, len(history), window+1, window)
	}

	ring := make([]float64, window)
	tail := history[len(history)-window-1:]
	var sum float64
	for i := range ring {
		ring[i] = math.Abs(tail[i+1] - tail[i])
		sum += ring[i]
	}

	last := history[len(history)-1]
	out := make([]float64, len(raw))
	for i, p := range raw {
		margin := sum / float64(window)
		price := math.Min(math.Max(p, last-margin), last+margin)
		diff := math.Abs(price - last)

		slot := i % window
		sum = sum - ring[slot] + diff
		ring[slot] = diff

		last = price
		out[i] = price
	}
	return out, nil
}

// Reconcile restores high >= {open, close} >= low at every horizon after
// each field was clipped independently.
func Reconcile(opens, highs, lows, closes []float64) (high, low []float64) {
	high = make([]float64, len(highs))
	low = make([]float64, len(lows))
	for i := range highs {
		high[i] = max(highs[i], opens[i], closes[i], lows[i])
		low[i] = min(lows[i], opens[i], closes[i], highs[i])
	}
	return high, low
}
