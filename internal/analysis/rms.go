// SPDX-License-Identifier: MIT
package analysis

import "math"

// DefaultFrameIntervalMs is the assumed tick period of the frame driver (60 Hz).
const DefaultFrameIntervalMs = 1000.0 / 60.0

// RMSSmoother keeps a bounded history per bin and reports the root mean
// square of each bin over that window.
//
// All bins advance together, so the histories live in a single ring of
// capacity M shared by every bin (row-major, M rows of N bins) with one
// head and one fill count. A running sum of squares per bin makes each push
// O(1) per bin. The sums are rebuilt from the ring every time the head wraps
// so floating point residue from add/subtract cannot build up.
type RMSSmoother struct {
	bins            int
	frameIntervalMs float64
	windowMs        float64
	capacity        int // M

	ring   []float64 // capacity*bins samples
	sumSq  []float64
	values []float64
	head   int // next row to write
	count  int // rows filled, <= capacity
}

// NewRMSSmoother creates a smoother for frames of the given length. A
// non-positive frame interval falls back to DefaultFrameIntervalMs.
func NewRMSSmoother(bins int, windowMs, frameIntervalMs float64) *RMSSmoother {
	if frameIntervalMs <= 0 || math.IsNaN(frameIntervalMs) {
		frameIntervalMs = DefaultFrameIntervalMs
	}
	s := &RMSSmoother{
		bins:            max(bins, 0),
		frameIntervalMs: frameIntervalMs,
	}
	s.Configure(windowMs)
	return s
}

// WindowLength returns M = round(windowMs / frameIntervalMs), never below 1.
func WindowLength(windowMs, frameIntervalMs float64) int {
	if frameIntervalMs <= 0 {
		return 1
	}
	m := math.Round(windowMs / frameIntervalMs)
	if math.IsNaN(m) || m < 1 {
		return 1
	}
	return int(m)
}

// Configure sets the averaging window and clears every bin's history.
// This is a full reset even when M does not change.
func (s *RMSSmoother) Configure(windowMs float64) {
	s.windowMs = windowMs
	s.capacity = WindowLength(windowMs, s.frameIntervalMs)
	s.realloc()
}

// Resize changes the bin count and clears all history.
func (s *RMSSmoother) Resize(bins int) {
	s.bins = max(bins, 0)
	s.realloc()
}

// Reset clears all history without changing the window.
func (s *RMSSmoother) Reset() {
	clear(s.ring)
	clear(s.sumSq)
	clear(s.values)
	s.head = 0
	s.count = 0
}

// Capacity returns M, the number of frames each bin averages over.
func (s *RMSSmoother) Capacity() int {
	return s.capacity
}

// Len returns the number of frames currently held (the same for every bin).
func (s *RMSSmoother) Len() int {
	return s.count
}

// WindowMs returns the configured window in milliseconds.
func (s *RMSSmoother) WindowMs() float64 {
	return s.windowMs
}

// Push appends one frame to the history, evicting the oldest frame once the
// window is full, and updates every bin's RMS. Frames longer than the
// configured bin count are truncated, shorter ones leave the tail bins at 0.
func (s *RMSSmoother) Push(frame []float64) {
	if s.bins == 0 {
		return
	}
	row := s.ring[s.head*s.bins : (s.head+1)*s.bins]
	full := s.count == s.capacity

	for i := range row {
		var v float64
		if i < len(frame) {
			v = frame[i]
		}
		if full {
			old := row[i]
			s.sumSq[i] -= old * old
		}
		row[i] = v
		s.sumSq[i] += v * v
	}

	if !full {
		s.count++
	}
	s.head++
	if s.head == s.capacity {
		s.head = 0
		s.resum()
	}

	inv := 1 / float64(s.count)
	for i, sq := range s.sumSq {
		if sq < 0 {
			sq = 0
			s.sumSq[i] = 0
		}
		s.values[i] = math.Sqrt(sq * inv)
	}
}

// Values returns the current RMS per bin. The slice is owned by the
// smoother and overwritten by the next Push.
func (s *RMSSmoother) Values() []float64 {
	return s.values
}

// resum recomputes the running sums from the stored samples.
func (s *RMSSmoother) resum() {
	clear(s.sumSq)
	for r := range s.count {
		row := s.ring[r*s.bins : (r+1)*s.bins]
		for i, v := range row {
			s.sumSq[i] += v * v
		}
	}
}

func (s *RMSSmoother) realloc() {
	size := s.capacity * s.bins
	if cap(s.ring) >= size {
		s.ring = s.ring[:size]
	} else {
		s.ring = make([]float64, size)
	}
	if cap(s.sumSq) >= s.bins {
		s.sumSq = s.sumSq[:s.bins]
		s.values = s.values[:s.bins]
	} else {
		s.sumSq = make([]float64, s.bins)
		s.values = make([]float64, s.bins)
	}
	s.Reset()
}
