package avoidance

import "gonum.org/v1/gonum/floats"

// stuckSpread is the largest max-min spread, in cm, of a full window that
// still counts as not moving.
const stuckSpread = 1.0

// StuckDetector watches the last few distance readings. A robot whose
// readings barely change is assumed to be pushing against something.
type StuckDetector struct {
	size   int
	window []float64
}

// NewStuckDetector returns a detector over size readings.
func NewStuckDetector(size int) *StuckDetector {
	return &StuckDetector{size: size, window: make([]float64, 0, size)}
}

// Add records a reading and reports whether the robot looks stuck. It
// never reports stuck before the window is full.
func (s *StuckDetector) Add(distance float64) bool {
	if len(s.window) == s.size {
		copy(s.window, s.window[1:])
		s.window = s.window[:s.size-1]
	}
	s.window = append(s.window, distance)
	if len(s.window) < s.size {
		return false
	}
	return floats.Max(s.window)-floats.Min(s.window) < stuckSpread
}

// Reset drops all readings.
func (s *StuckDetector) Reset() {
	s.window = s.window[:0]
}

// Len returns the number of buffered readings.
func (s *StuckDetector) Len() int {
	return len(s.window)
}
