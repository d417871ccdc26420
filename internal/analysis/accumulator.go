// Package analysis turns ordered wearable samples into sessions and daily
// aggregates. Everything here is pure: no I/O, no shared state, safe to call
// from any number of goroutines.
package analysis

import (
	"errors"
	"math"
)

// ErrOutOfOrder is returned when a sample is older than its predecessor.
var ErrOutOfOrder = errors.New("analysis: timestamps out of order")

// Accumulator keeps count, sum and extremes of a stream of values.
// The zero value is ready to use.
type Accumulator struct {
	count int
	sum   float64
	min   float64
	max   float64
}

func (a *Accumulator) Add(v float64) {
	if a.count == 0 {
		a.min, a.max = v, v
	} else {
		a.min = math.Min(a.min, v)
		a.max = math.Max(a.max, v)
	}
	a.count++
	a.sum += v
}

func (a *Accumulator) Count() int { return a.count }
func (a *Accumulator) Sum() float64 { return a.sum }

// Average returns the mean; ok is false when nothing was added.
func (a *Accumulator) Average() (float64, bool) {
	if a.count == 0 {
		return 0, false
	}
	return a.sum / float64(a.count), true
}

func (a *Accumulator) Min() (float64, bool) {
	return a.min, a.count > 0
}

func (a *Accumulator) Max() (float64, bool) {
	return a.max, a.count > 0
}

// TimeWeightedAverage averages a piecewise-constant signal: each value holds
// until the next one, for at most maxGap seconds.
type TimeWeightedAverage struct {
	maxGap int64
	bucket int64

	count    int
	lastTS   int64
	last     float64
	weighted float64
	weight   int64
	extremes Accumulator
}

// NewTimeWeightedAverage returns an empty average. The last value of the
// series is weighted with bucketSeconds, capped at maxGapSeconds.
func NewTimeWeightedAverage(maxGapSeconds, bucketSeconds int64) (*TimeWeightedAverage, error) {
	if maxGapSeconds <= 0 {
		return nil, errors.New("analysis: max gap must be positive")
	}
	if bucketSeconds <= 0 {
		return nil, errors.New("analysis: bucket must be positive")
	}
	return &TimeWeightedAverage{maxGap: maxGapSeconds, bucket: bucketSeconds}, nil
}

// Add records value v observed at ts. Timestamps must not decrease.
func (w *TimeWeightedAverage) Add(ts int64, v float64) error {
	if w.count > 0 {
		if ts < w.lastTS {
			return ErrOutOfOrder
		}
		d := min(ts-w.lastTS, w.maxGap)
		w.weighted += w.last * float64(d)
		w.weight += d
	}
	w.count++
	w.lastTS = ts
	w.last = v
	w.extremes.Add(v)
	return nil
}

func (w *TimeWeightedAverage) Count() int { return w.count }

// Average returns the weighted mean; ok is false when nothing was added.
func (w *TimeWeightedAverage) Average() (float64, bool) {
	if w.count == 0 {
		return 0, false
	}
	tail := min(w.bucket, w.maxGap)
	return (w.weighted + w.last*float64(tail)) / float64(w.weight+tail), true
}

func (w *TimeWeightedAverage) Min() (float64, bool) { return w.extremes.Min() }
func (w *TimeWeightedAverage) Max() (float64, bool) { return w.extremes.Max() }
