// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpolateParabolicPeak(t *testing.T) {
	const centre = 100.3
	mags := make([]float64, 256)
	for i := range mags {
		d := float64(i) - centre
		mags[i] = max(0, 200-4*d*d)
	}

	assert.InDelta(t, centre, InterpolateBin(mags, 100), 1e-9)
}

func TestInterpolateGaussianPeak(t *testing.T) {
	const centre = 100.3
	mags := make([]float64, 256)
	for i := range mags {
		d := float64(i) - centre
		mags[i] = 200 * math.Exp(-d*d/(2*3*3))
	}

	assert.InDelta(t, centre, InterpolateBin(mags, 100), 0.05)
}

func TestInterpolateTriangularPeak(t *testing.T) {
	const centre = 100.3
	mags := make([]float64, 256)
	for i := range mags {
		mags[i] = max(0, 200-50*math.Abs(float64(i)-centre))
	}

	// A parabola through a triangle's apex falls short of the true offset.
	got := InterpolateBin(mags, 100)
	assert.InDelta(t, 100+0.5*30.0/70, got, 1e-9)
	assert.Greater(t, got, 100.0)
	assert.Less(t, got, centre)
}

func TestParabolicOffset(t *testing.T) {
	tests := []struct {
		name                string
		left, center, right float64
		want                float64
	}{
		{"Symmetric", 50, 100, 50, 0},
		{"Flat top", 80, 80, 80, 0},
		{"Flat zero", 0, 0, 0, 0},
		{"Lean right", 50, 100, 75, 25.0 / 150},
		{"Clamped low", 0, 1, 10, -0.5},
		{"Clamped high", 10, 1, 0, 0.5},
		{"NaN", math.NaN(), 1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParabolicOffset(tt.left, tt.center, tt.right), 1e-12)
		})
	}
}

func TestInterpolateBinEdges(t *testing.T) {
	mags := []float64{10, 5, 1}
	assert.Equal(t, 0.0, InterpolateBin(mags, 0))
	assert.Equal(t, 2.0, InterpolateBin(mags, 2))
}

func TestBinToFrequency(t *testing.T) {
	assert.InDelta(t, 2355.46875, BinToFrequency(100.5, 48000, 2048), 1e-9)
	assert.Equal(t, 0.0, BinToFrequency(10, 48000, 0))
}
