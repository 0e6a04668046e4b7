// SPDX-License-Identifier: MIT
package analysis

import "math"

// interpolationEpsilon guards the parabolic fit against flat tops.
const interpolationEpsilon = 1e-10

// ParabolicOffset fits a parabola through (−1,left), (0,center), (1,right)
// and returns the offset of its vertex from the center bin, clamped to
// [-0.5, 0.5]. A near-zero curvature yields 0.
func ParabolicOffset(left, center, right float64) float64 {
	denom := 2 * (2*center - left - right)
	if math.Abs(denom) < interpolationEpsilon || math.IsNaN(denom) {
		return 0
	}
	return clamp((right-left)/denom, -0.5, 0.5)
}

// InterpolateBin refines bin k of mags to a fractional bin position using
// its immediate neighbours. Bins without two neighbours are returned as is.
func InterpolateBin(mags []float64, k int) float64 {
	if k < 1 || k >= len(mags)-1 {
		return float64(k)
	}
	return float64(k) + ParabolicOffset(mags[k-1], mags[k], mags[k+1])
}

// BinToFrequency converts a (fractional) bin position to Hz.
func BinToFrequency(bin, sampleRate float64, fftSize int) float64 {
	if fftSize <= 0 {
		return 0
	}
	return bin * sampleRate / float64(fftSize)
}
