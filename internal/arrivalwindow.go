package internal

import (
	"math"
)

// phiFactor scales the ratio of current silence to mean interval into
// phi. 1/log10(10) is exactly 1, so phi is that ratio unscaled.
var phiFactor = float64(1.0 / math.Log10(10.0))

// ArrivalWindow tracks the recent inter-arrival times of frames on one
// connection and derives a phi suspicion value from them: how many times
// larger the current silence is than the mean gap between frames. A
// connection that has gone quiet far longer than its own history
// suggests it should produces a high phi even though no socket error has
// happened yet.
type ArrivalWindow struct {
	lastArrivalNano   uint64
	intervals         *ArrivalIntervals
	bootstrapInterval uint64
}

// NewArrivalWindow returns a window seeded with expectedIntervalNano as a
// bootstrap gap (used only before any real interval has been observed),
// keeping the last sampleSize intervals.
func NewArrivalWindow(expectedIntervalNano uint64, sampleSize int) *ArrivalWindow {
	return &ArrivalWindow{
		intervals:         NewArrivalIntervals(sampleSize),
		bootstrapInterval: expectedIntervalNano * 2,
	}
}

// Phi reports the current suspicion level as of timestampNano, given the
// arrivals recorded so far. It panics if called before any arrival was
// recorded, since there is no baseline interval to compare against.
func (w *ArrivalWindow) Phi(timestampNano uint64) float64 {
	if !(w.lastArrivalNano > 0 && w.intervals.Mean() > 0.0) {
		panic("gossipmesh: cannot sample phi before any frame has arrived")
	}

	silence := timestampNano - w.lastArrivalNano
	return (float64(silence) / w.intervals.Mean()) * phiFactor
}

// Add records a frame arrival at timestampNano.
func (w *ArrivalWindow) Add(timestampNano uint64) {
	if w.lastArrivalNano > 0 {
		w.intervals.Add(timestampNano - w.lastArrivalNano)
	} else {
		// No real interval yet: seed with a generously long one so an
		// isolated first frame doesn't immediately read as suspicious.
		w.intervals.Add(w.bootstrapInterval)
	}
	w.lastArrivalNano = timestampNano
}

// ArrivalIntervals is a fixed-size circular buffer of the most recent
// inter-arrival gaps, with a running mean kept up to date incrementally
// rather than recomputed on every read.
type ArrivalIntervals struct {
	intervals []uint64
	index     int
	isFull    bool

	sum  uint64
	mean float64
}

// NewArrivalIntervals returns an empty buffer holding up to sampleSize
// intervals.
func NewArrivalIntervals(sampleSize int) *ArrivalIntervals {
	return &ArrivalIntervals{
		intervals: make([]uint64, sampleSize),
	}
}

// Mean returns the current running mean, or 0 before the first Add.
func (ai *ArrivalIntervals) Mean() float64 {
	return ai.mean
}

// Add records interval, evicting the oldest sample once the buffer is
// full.
func (ai *ArrivalIntervals) Add(interval uint64) {
	if ai.index == len(ai.intervals) {
		ai.index = 0
		ai.isFull = true
	}
	if ai.isFull {
		ai.sum -= ai.intervals[ai.index]
	}

	ai.intervals[ai.index] = interval
	ai.index++
	ai.sum += interval
	ai.mean = float64(ai.sum) / float64(ai.size())
}

func (ai *ArrivalIntervals) size() int {
	if ai.isFull {
		return len(ai.intervals)
	}
	return ai.index
}
