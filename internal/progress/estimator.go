// Package progress estimates the time left for a transfer from a short
// rolling window of (time, fraction) samples.
package progress

import (
	"sync"
	"time"
)

// WindowSize is the number of samples kept per estimator.
const WindowSize = 5

type sample struct {
	at       time.Time
	fraction float64
}

// Estimator keeps the last WindowSize samples in a circular buffer.
// It is safe for concurrent use.
type Estimator struct {
	mu       sync.Mutex
	now      func() time.Time
	samples  [WindowSize]sample
	count    int
	next     int
	estimate time.Duration
	valid    bool
}

// NewEstimator returns an estimator using the wall clock.
func NewEstimator() *Estimator {
	return NewEstimatorWithClock(time.Now)
}

// NewEstimatorWithClock returns an estimator that reads time from now.
func NewEstimatorWithClock(now func() time.Time) *Estimator {
	if now == nil {
		now = time.Now
	}
	return &Estimator{now: now}
}

// RecordSample stores fraction at the current time and recomputes the estimate.
// A sample is rejected when the fraction equals the newest one or when it falls in
// the same whole second as the newest sample.
func (e *Estimator) RecordSample(fraction float64) bool {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	now := e.now().Truncate(time.Second)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.count > 0 {
		newest := e.samples[e.newestIndex()]
		if newest.fraction == fraction || newest.at.Equal(now) {
			return false
		}
	}
	e.samples[e.next] = sample{at: now, fraction: fraction}
	e.next = (e.next + 1) % WindowSize
	if e.count < WindowSize {
		e.count++
	}
	e.recompute()
	return true
}

// Estimate returns the latest time-left estimate. The boolean is false until
// two usable samples have been seen.
func (e *Estimator) Estimate() (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.estimate, e.valid
}

// Fraction returns the newest recorded fraction.
func (e *Estimator) Fraction() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.count == 0 {
		return 0
	}
	return e.samples[e.newestIndex()].fraction
}

// Reset clears all samples and the current estimate.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples = [WindowSize]sample{}
	e.count = 0
	e.next = 0
	e.estimate = 0
	e.valid = false
}

func (e *Estimator) newestIndex() int {
	return (e.next - 1 + WindowSize) % WindowSize
}

// recompute compares the newest sample against the oldest retained one. A
// non-positive fraction or time delta keeps the previous estimate.
func (e *Estimator) recompute() {
	if e.count < 2 {
		return
	}
	newest := e.samples[e.newestIndex()]
	oldest := e.samples[(e.newestIndex()-(e.count-1)+WindowSize)%WindowSize]

	deltaF := newest.fraction - oldest.fraction
	deltaT := newest.at.Sub(oldest.at).Seconds()
	if deltaF <= 0 || deltaT <= 0 {
		return
	}
	rate := deltaF / deltaT
	secondsLeft := (1 - newest.fraction) / rate
	e.estimate = time.Duration(secondsLeft * float64(time.Second))
	e.valid = true
}
