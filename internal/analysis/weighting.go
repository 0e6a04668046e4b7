// SPDX-License-Identifier: MIT
package analysis

import "math"

// Slope weight limits in dB/octave.
const (
	MinSlopeWeight = 0.0
	MaxSlopeWeight = 6.0
)

// Weighter applies a spectral tilt to magnitude frames. Bin i of an N-bin
// frame is scaled by 10^(S*log10((i+1)/N)/20): the top bin is left
// untouched and bin i loses S*log10((i+1)/N) dB.
//
// The per-bin factors are cached and only rebuilt when the slope or the bin
// count changes, Apply itself never allocates.
type Weighter struct {
	slope   float64
	factors []float64
}

// NewWeighter creates a weighter for frames of the given length.
func NewWeighter(bins int, slope float64) *Weighter {
	w := &Weighter{slope: clamp(slope, MinSlopeWeight, MaxSlopeWeight)}
	w.Resize(bins)
	return w
}

// Slope returns the current slope in dB/octave.
func (w *Weighter) Slope() float64 {
	return w.slope
}

// SetSlope changes the tilt. Values outside [0,6] are clamped.
func (w *Weighter) SetSlope(slope float64) {
	slope = clamp(slope, MinSlopeWeight, MaxSlopeWeight)
	if slope == w.slope {
		return
	}
	w.slope = slope
	w.rebuild()
}

// Resize rebuilds the factor table for a new frame length.
func (w *Weighter) Resize(bins int) {
	if bins < 0 {
		bins = 0
	}
	if cap(w.factors) >= bins {
		w.factors = w.factors[:bins]
	} else {
		w.factors = make([]float64, bins)
	}
	w.rebuild()
}

// Factor returns the gain applied to bin i.
func (w *Weighter) Factor(i int) float64 {
	if i < 0 || i >= len(w.factors) {
		return 0
	}
	return w.factors[i]
}

// Apply weights the frame in place. The frame must have the length the
// weighter was sized for; extra bins are left alone.
func (w *Weighter) Apply(frame []float64) {
	n := min(len(frame), len(w.factors))
	for i := range n {
		frame[i] *= w.factors[i]
	}
}

func (w *Weighter) rebuild() {
	n := float64(len(w.factors))
	for i := range w.factors {
		// 10^(S*log10(x)/20) == x^(S/20)
		w.factors[i] = math.Pow((float64(i)+1)/n, w.slope/20)
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
