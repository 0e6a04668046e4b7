// SPDX-License-Identifier: MIT
package utils

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTransport(t *testing.T) {
	mt := &MockTransport{}
	assert.Nil(t, mt.Last())

	for i := range 3 {
		require.NoError(t, mt.Send(i))
	}
	assert.Equal(t, []any{0, 1, 2}, mt.Sent())
	assert.Equal(t, 2, mt.Last())

	mt.Err = errors.New("boom")
	assert.EqualError(t, mt.Send(3), "boom")
	assert.Len(t, mt.Sent(), 3, "failed sends are not recorded")

	require.NoError(t, mt.Close())
	assert.True(t, mt.Closed())
}

func TestGenerateSineWave(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate float64
		frequency  float64
	}{
		{"A4", 48000, 440},
		{"Middle C", 44100, 261.63},
		{"Low sample rate", 8000, 1000},
	}
	const size = 4096

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := GenerateSineWave(size, tt.sampleRate, tt.frequency, 0.5)
			require.Len(t, buf, size)

			crossings := 0
			peak := 0.0
			for i := 1; i < size; i++ {
				if (buf[i-1] < 0) != (buf[i] < 0) {
					crossings++
				}
				peak = math.Max(peak, math.Abs(float64(buf[i])))
			}
			want := 2 * tt.frequency * size / tt.sampleRate
			assert.InDelta(t, want, float64(crossings), 2)
			assert.InDelta(t, 0.5, peak/math.MaxInt32, 0.01)
		})
	}
}

func TestGenerateChordClips(t *testing.T) {
	buf := GenerateChord(2048, 48000, 0.6, 440, 880, 1320)
	var hitLimit bool
	for _, v := range buf {
		assert.LessOrEqual(t, math.Abs(float64(v)), float64(math.MaxInt32))
		if v == math.MaxInt32 || v == -math.MaxInt32 {
			hitLimit = true
		}
	}
	assert.True(t, hitLimit, "summed amplitude 1.8 must clip")

	assert.Equal(t, make([]int32, 16), GenerateChord(16, 48000, 0.5), "no tones is silence")
}

func TestFindPeakBin(t *testing.T) {
	mags := make([]float64, 512)
	for i := range mags {
		mags[i] = math.Exp(-0.01 * math.Pow(float64(i-128), 2))
	}

	tests := []struct {
		name       string
		mags       []float64
		start, end int
		want       int
	}{
		{"Full range", mags, 0, 511, 128},
		{"Clamped range", mags, -10, 5000, 128},
		{"Range excludes peak", mags, 200, 511, 200},
		{"Empty", nil, 0, 10, 0},
		{"Single", []float64{1}, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindPeakBin(tt.mags, tt.start, tt.end))
		})
	}

	allocs := testing.AllocsPerRun(100, func() {
		FindPeakBin(mags, 0, len(mags)-1)
	})
	assert.Zero(t, allocs)
}
