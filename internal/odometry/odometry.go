// Package odometry turns wheel encoder counts into a linear speed.
package odometry

import (
	"gonum.org/v1/gonum/floats"
)

// Estimator averages per-cycle encoder deltas over a fixed window.
//
// Not safe for concurrent use; the balance loop owns it.
type Estimator struct {
	period   float64 // control cycle in seconds
	capacity int
	window   []float64
}

// New returns an estimator for a cycle period in seconds and a window of
// capacity samples.
func New(period float64, capacity int) *Estimator {
	if capacity < 1 {
		capacity = 1
	}
	return &Estimator{
		period:   period,
		capacity: capacity,
		window:   make([]float64, 0, capacity),
	}
}

// Update records one cycle of encoder deltas and returns the speed in
// counts per second. Until the window is full it returns target, so a
// cold start does not look like a stalled robot to the speed controller.
func (e *Estimator) Update(left, right int, target float64) float64 {
	if len(e.window) == e.capacity {
		copy(e.window, e.window[1:])
		e.window = e.window[:len(e.window)-1]
	}
	e.window = append(e.window, float64(left+right)/2)

	if len(e.window) < e.capacity {
		return target
	}
	return floats.Sum(e.window) / (float64(e.capacity) * e.period)
}

// SetCapacity changes the window size and drops all samples.
func (e *Estimator) SetCapacity(n int) {
	if n < 1 {
		n = 1
	}
	e.capacity = n
	e.window = make([]float64, 0, n)
}

// Capacity returns the window size.
func (e *Estimator) Capacity() int {
	return e.capacity
}

// Len returns the number of buffered samples.
func (e *Estimator) Len() int {
	return len(e.window)
}

// Span is the time covered by a full window, used as the speed
// controller's time step.
func (e *Estimator) Span() float64 {
	return float64(e.capacity) * e.period
}
