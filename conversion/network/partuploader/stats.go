package partuploader

import (
	"time"
)

// Stats tracks transfer timings for reporting.
type Stats struct {
	sum           time.Duration
	finishedParts int
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// Update records a successful part transfer duration.
func (s *Stats) Update(d time.Duration) {
	s.sum += d
	s.finishedParts++
}

// Average returns the average transfer duration for completed parts.
func (s *Stats) Average() time.Duration {
	if s.finishedParts == 0 {
		return 0
	}
	return s.sum / time.Duration(s.finishedParts)
}

// FinishedCount returns the number of completed part transfers.
func (s *Stats) FinishedCount() int {
	return s.finishedParts
}

// TotalDuration returns the sum of all transfer durations.
func (s *Stats) TotalDuration() time.Duration {
	return s.sum
}
