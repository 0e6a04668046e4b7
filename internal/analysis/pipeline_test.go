// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testGeometry = Geometry{Bins: 1024, SampleRate: 48000, FFTSize: 2048}

func flatSettings() Settings {
	s := DefaultSettings()
	s.SlopeWeight = 0
	return s
}

func newTestPipeline(t *testing.T, s Settings) *Pipeline {
	t.Helper()
	p, err := NewPipeline(testGeometry, s)
	require.NoError(t, err)
	return p
}

func gaussianFrame(bins int, centre, sigma, height float64) []float64 {
	frame := make([]float64, bins)
	for i := range frame {
		d := float64(i) - centre
		frame[i] = height * math.Exp(-d*d/(2*sigma*sigma))
	}
	return frame
}

func spikeFrame(bins int, spikes map[int]float64) []float64 {
	frame := make([]float64, bins)
	for bin, v := range spikes {
		frame[bin] = v
	}
	return frame
}

func TestNewPipelineRejectsGeometry(t *testing.T) {
	tests := []Geometry{
		{Bins: 2, SampleRate: 48000, FFTSize: 4},
		{Bins: 1024, SampleRate: 0, FFTSize: 2048},
		{Bins: 1024, SampleRate: 48000, FFTSize: 0},
	}
	for _, g := range tests {
		_, err := NewPipeline(g, DefaultSettings())
		assert.ErrorIs(t, err, ErrInvalidGeometry, "%+v", g)
	}
}

func TestProcessRejectsWrongLength(t *testing.T) {
	p := newTestPipeline(t, DefaultSettings())
	frame := []float64{1, 2, 3}

	res, err := p.Process(frame)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrFrameLength)
	assert.Equal(t, []float64{1, 2, 3}, frame, "rejected frame must be untouched")
}

func TestProcessLabelsInterpolatedPeak(t *testing.T) {
	p := newTestPipeline(t, flatSettings())
	template := gaussianFrame(testGeometry.Bins, 100.3, 3, 200)
	frame := make([]float64, len(template))

	var res *Result
	for range 30 {
		copy(frame, template)
		var err error
		res, err = p.Process(frame)
		require.NoError(t, err)
	}

	require.Len(t, res.Labels, 1)
	label := res.Labels[0]
	binWidth := testGeometry.BinWidth()
	assert.InDelta(t, 100.3*binWidth, label.Frequency, 0.05*binWidth)
	assert.True(t, label.AboveThreshold)
	assert.True(t, label.Pitch.Valid)
	assert.Equal(t, NamePitch(label.Frequency), label.Pitch)
	assert.Equal(t, uint64(30), res.Sequence)
	assert.InDelta(t, 200.0, label.Magnitude, 1)
}

func TestProcessAppliesCalibration(t *testing.T) {
	s := flatSettings()
	s.Calibration = MustCalibrationTable([2]float64{100, 200}, [2]float64{10000, 20000})
	p := newTestPipeline(t, s)
	plain := newTestPipeline(t, flatSettings())

	template := gaussianFrame(testGeometry.Bins, 200, 3, 200)
	a := make([]float64, len(template))
	b := make([]float64, len(template))
	copy(a, template)
	copy(b, template)

	calibrated, err := p.Process(a)
	require.NoError(t, err)
	raw, err := plain.Process(b)
	require.NoError(t, err)

	require.Len(t, calibrated.Labels, 1)
	require.Len(t, raw.Labels, 1)
	assert.InDelta(t, 2*raw.Labels[0].Frequency, calibrated.Labels[0].Frequency, 1e-6)
}

func TestProcessLabelVisibility(t *testing.T) {
	s := flatSettings()
	s.ThresholdDb = -6
	p := newTestPipeline(t, s)

	frame := spikeFrame(testGeometry.Bins, map[int]float64{100: 250, 200: 200, 300: 100, 400: 90, 500: 80})
	res, err := p.Process(frame)
	require.NoError(t, err)

	// Two above threshold, one more to reach the minimum, the fourth hidden.
	require.Len(t, res.Labels, DefaultMinLabels)
	assert.True(t, res.Labels[0].AboveThreshold)
	assert.True(t, res.Labels[1].AboveThreshold)
	assert.False(t, res.Labels[2].AboveThreshold)
	assert.Equal(t, 300.0, res.Labels[2].Bin)
	assert.InDelta(t, ThresholdValue(-6), res.Threshold, 1e-9)
}

func TestProcessWeightsInPlace(t *testing.T) {
	p := newTestPipeline(t, DefaultSettings())
	frame := make([]float64, testGeometry.Bins)
	for i := range frame {
		frame[i] = 100
	}

	res, err := p.Process(frame)
	require.NoError(t, err)
	assert.Equal(t, frame, res.Weighted)
	assert.Less(t, frame[0], 100.0)
	assert.InDelta(t, 100.0, frame[len(frame)-1], 1e-9)
}

func TestProcessLevelDb(t *testing.T) {
	p := newTestPipeline(t, flatSettings())

	res, err := p.Process(make([]float64, testGeometry.Bins))
	require.NoError(t, err)
	assert.Equal(t, SilenceDb, res.LevelDb)

	p = newTestPipeline(t, flatSettings())
	full := make([]float64, testGeometry.Bins)
	for i := range full {
		full[i] = FullScale
	}
	res, err = p.Process(full)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, res.LevelDb, 1e-9)
}

func TestReconfigureWindowClearsHistory(t *testing.T) {
	p := newTestPipeline(t, flatSettings())
	for range 10 {
		frame := spikeFrame(testGeometry.Bins, map[int]float64{100: 200})
		_, err := p.Process(frame)
		require.NoError(t, err)
	}

	s := p.Settings()
	s.ThresholdDb = -40
	p.Reconfigure(s)
	res, err := p.Process(make([]float64, testGeometry.Bins))
	require.NoError(t, err)
	assert.Greater(t, res.Smoothed[100], 0.0, "threshold change keeps history")

	s.WindowMs = 800
	p.Reconfigure(s)
	res, err = p.Process(make([]float64, testGeometry.Bins))
	require.NoError(t, err)
	for i, v := range res.Smoothed {
		require.Equal(t, 0.0, v, "bin %d", i)
	}
	assert.Greater(t, res.SlowLine[100], 0.0, "window change keeps the slow line")
}

func TestReconfigureClampsControls(t *testing.T) {
	p := newTestPipeline(t, DefaultSettings())

	s := DefaultSettings()
	s.WindowMs = 50
	s.SlopeWeight = 9
	s.ThresholdDb = 12
	p.Reconfigure(s)

	got := p.Settings()
	assert.Equal(t, MinWindowMs, got.WindowMs)
	assert.Equal(t, MaxSlopeWeight, got.SlopeWeight)
	assert.Equal(t, MaxThresholdDb, got.ThresholdDb)
	assert.InDelta(t, FullScale, p.Threshold(), 1e-9)
}

func TestPipelineSetters(t *testing.T) {
	p := newTestPipeline(t, DefaultSettings())

	p.SetWindowMs(30000)
	assert.Equal(t, MaxWindowMs, p.Settings().WindowMs)

	p.SetSlopeWeight(-1)
	assert.Equal(t, MinSlopeWeight, p.Settings().SlopeWeight)

	p.SetThresholdDb(-20)
	assert.InDelta(t, 25.5, p.Threshold(), 1e-9)

	table := MustCalibrationTable([2]float64{41, 40}, [2]float64{3000, 3000})
	p.SetCalibration(table)
	assert.Same(t, table, p.Settings().Calibration)
}

func TestResizeChangesFrameLength(t *testing.T) {
	p := newTestPipeline(t, DefaultSettings())
	_, err := p.Process(spikeFrame(testGeometry.Bins, map[int]float64{100: 200}))
	require.NoError(t, err)

	g := Geometry{Bins: 512, SampleRate: 48000, FFTSize: 1024}
	require.NoError(t, p.Resize(g))
	assert.Equal(t, g, p.Geometry())

	_, err = p.Process(make([]float64, testGeometry.Bins))
	assert.ErrorIs(t, err, ErrFrameLength)

	res, err := p.Process(make([]float64, 512))
	require.NoError(t, err)
	assert.Empty(t, res.Labels)
	assert.Len(t, res.Smoothed, 512)

	assert.ErrorIs(t, p.Resize(Geometry{Bins: 1}), ErrInvalidGeometry)
}

func TestResultClone(t *testing.T) {
	p := newTestPipeline(t, flatSettings())
	res, err := p.Process(spikeFrame(testGeometry.Bins, map[int]float64{100: 200}))
	require.NoError(t, err)

	kept := res.Clone()
	_, err = p.Process(make([]float64, testGeometry.Bins))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), kept.Sequence)
	assert.Equal(t, 200.0, kept.Weighted[100])
	assert.Equal(t, 0.0, res.Weighted[100])
	require.Len(t, kept.Labels, 1)
}

func TestProcessZeroAllocs(t *testing.T) {
	p := newTestPipeline(t, DefaultSettings())
	template := spikeFrame(testGeometry.Bins, map[int]float64{100: 250, 200: 200, 300: 100, 400: 90, 500: 80})
	frame := make([]float64, len(template))

	for range 5 {
		copy(frame, template)
		_, err := p.Process(frame)
		require.NoError(t, err)
	}

	allocs := testing.AllocsPerRun(100, func() {
		copy(frame, template)
		p.Process(frame)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Pipeline.Process, got %.1f", allocs)
	}
}

func BenchmarkProcess(b *testing.B) {
	p, err := NewPipeline(testGeometry, DefaultSettings())
	if err != nil {
		b.Fatal(err)
	}
	template := gaussianFrame(testGeometry.Bins, 100.3, 3, 200)
	frame := make([]float64, len(template))

	b.ReportAllocs()
	for b.Loop() {
		copy(frame, template)
		p.Process(frame)
	}
}
