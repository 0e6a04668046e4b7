// SPDX-License-Identifier: MIT
package analysis

import (
	"cmp"
	"slices"
)

// Peak detection defaults on the 0-255 magnitude scale.
const (
	DefaultMinPeakHeight   = 5.0
	DefaultMinPeakDistance = 2
	DefaultMaxCandidates   = 12
)

// Peak is a local maximum of a magnitude frame.
type Peak struct {
	Bin       int
	Magnitude float64
}

// PeakDetector extracts ranked local maxima from a magnitude array.
//
// A bin is a candidate when it exceeds MinHeight and is strictly greater than
// both neighbours. Candidates that fall within MinDistance bins of the last
// accepted one are merged on the fly, keeping the larger. The result is
// sorted by magnitude, strongest first, and cut to MaxCandidates.
type PeakDetector struct {
	MinHeight     float64
	MinDistance   int
	MaxCandidates int

	buf []Peak
}

// NewPeakDetector creates a detector. Non-positive limits fall back to the
// package defaults.
func NewPeakDetector(minHeight float64, minDistance, maxCandidates int) *PeakDetector {
	if minDistance < 0 {
		minDistance = DefaultMinPeakDistance
	}
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	return &PeakDetector{
		MinHeight:     minHeight,
		MinDistance:   minDistance,
		MaxCandidates: maxCandidates,
		buf:           make([]Peak, 0, 64),
	}
}

// Detect returns the ranked candidates of mags. The returned slice is reused
// by the next call.
func (d *PeakDetector) Detect(mags []float64) []Peak {
	d.buf = d.buf[:0]
	for i := 1; i < len(mags)-1; i++ {
		v := mags[i]
		if v <= d.MinHeight || v <= mags[i-1] || v <= mags[i+1] {
			continue
		}
		if n := len(d.buf); n > 0 && i-d.buf[n-1].Bin <= d.MinDistance {
			if v > d.buf[n-1].Magnitude {
				d.buf[n-1] = Peak{Bin: i, Magnitude: v}
			}
			continue
		}
		d.buf = append(d.buf, Peak{Bin: i, Magnitude: v})
	}

	slices.SortStableFunc(d.buf, func(a, b Peak) int {
		return cmp.Compare(b.Magnitude, a.Magnitude)
	})
	if len(d.buf) > d.MaxCandidates {
		d.buf = d.buf[:d.MaxCandidates]
	}
	return d.buf
}
