// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
)

// Ranges accepted for the user facing controls.
const (
	MinWindowMs    = 100.0
	MaxWindowMs    = 20000.0
	MinThresholdDb = -100.0
	MaxThresholdDb = 0.0

	DefaultWindowMs    = 400.0
	DefaultSlopeWeight = 3.0
	DefaultThresholdDb = -60.0
	DefaultMinLabels   = 3

	// FullScale is the top of the magnitude scale frames are expressed in.
	FullScale = 255.0
	// SilenceDb is reported as the level of an all-zero spectrum.
	SilenceDb = -120.0
)

// ErrInvalidGeometry reports unusable frame geometry.
var ErrInvalidGeometry = errors.New("invalid frame geometry")

// Geometry describes the frames handed to a pipeline. It comes from the
// FFT provider and is fixed until the next Resize.
type Geometry struct {
	Bins       int     `json:"bins"`        // N, values per frame
	SampleRate float64 `json:"sample_rate"` // Hz
	FFTSize    int     `json:"fft_size"`    // points of the transform behind the frame
}

// Validate checks that the geometry can be analysed.
func (g Geometry) Validate() error {
	if g.Bins < 3 {
		return fmt.Errorf("%w: need at least 3 bins, got %d", ErrInvalidGeometry, g.Bins)
	}
	if !(g.SampleRate > 0) || math.IsInf(g.SampleRate, 0) {
		return fmt.Errorf("%w: sample rate must be positive, got %f", ErrInvalidGeometry, g.SampleRate)
	}
	if g.FFTSize <= 0 {
		return fmt.Errorf("%w: fft size must be positive, got %d", ErrInvalidGeometry, g.FFTSize)
	}
	return nil
}

// BinWidth returns the width of one bin in Hz.
func (g Geometry) BinWidth() float64 {
	return g.SampleRate / float64(g.FFTSize)
}

// Settings is the complete, explicit configuration of one pipeline.
type Settings struct {
	WindowMs        float64 // RMS window, [100, 20000]
	FrameIntervalMs float64 // assumed tick period
	SlopeWeight     float64 // dB/octave, [0, 6]
	ThresholdDb     float64 // label threshold, [-100, 0]

	MinPeakHeight   float64
	MinPeakDistance int
	MaxCandidates   int

	MaxLabels        int // tracked slots
	MinLabels        int // labels shown regardless of threshold
	Tracking         TrackingStrategy
	MaxMatchDistance float64
	BinDecay         float64
	MagnitudeDecay   float64
	PositionDecay    float64

	SlowLineDecay  float64
	PitchReference PitchReference
	Calibration    *CalibrationTable // nil means identity
}

// DefaultSettings returns the stock analyzer configuration.
func DefaultSettings() Settings {
	return Settings{
		WindowMs:         DefaultWindowMs,
		FrameIntervalMs:  DefaultFrameIntervalMs,
		SlopeWeight:      DefaultSlopeWeight,
		ThresholdDb:      DefaultThresholdDb,
		MinPeakHeight:    DefaultMinPeakHeight,
		MinPeakDistance:  DefaultMinPeakDistance,
		MaxCandidates:    DefaultMaxCandidates,
		MaxLabels:        DefaultMaxLabels,
		MinLabels:        DefaultMinLabels,
		Tracking:         TrackByRank,
		MaxMatchDistance: DefaultMaxMatchDistance,
		BinDecay:         DefaultBinDecay,
		MagnitudeDecay:   DefaultMagnitudeDecay,
		PositionDecay:    DefaultPositionDecay,
		SlowLineDecay:    DefaultSlowLineDecay,
		PitchReference:   PitchReferenceFloor,
	}
}

// Normalized returns a copy with every out of range control clamped to the
// nearest bound and unset limits replaced by defaults.
func (s Settings) Normalized() Settings {
	s.WindowMs = clamp(s.WindowMs, MinWindowMs, MaxWindowMs)
	if !(s.FrameIntervalMs > 0) {
		s.FrameIntervalMs = DefaultFrameIntervalMs
	}
	s.SlopeWeight = clamp(s.SlopeWeight, MinSlopeWeight, MaxSlopeWeight)
	s.ThresholdDb = clamp(s.ThresholdDb, MinThresholdDb, MaxThresholdDb)
	if s.MinPeakHeight < 0 || math.IsNaN(s.MinPeakHeight) {
		s.MinPeakHeight = 0
	}
	if s.MinPeakDistance < 0 {
		s.MinPeakDistance = 0
	}
	if s.MaxCandidates <= 0 {
		s.MaxCandidates = DefaultMaxCandidates
	}
	if s.MaxLabels <= 0 {
		s.MaxLabels = DefaultMaxLabels
	}
	s.MaxLabels = min(s.MaxLabels, s.MaxCandidates)
	s.MinLabels = max(0, min(s.MinLabels, s.MaxLabels))
	if s.MaxMatchDistance <= 0 {
		s.MaxMatchDistance = DefaultMaxMatchDistance
	}
	s.BinDecay = clamp(s.BinDecay, 0, 1)
	s.MagnitudeDecay = clamp(s.MagnitudeDecay, 0, 1)
	s.PositionDecay = clamp(s.PositionDecay, 0, 1)
	s.SlowLineDecay = clamp(s.SlowLineDecay, 0, 1)
	return s
}

// ThresholdValue converts a threshold in dB to the linear 0-255 scale.
func ThresholdValue(db float64) float64 {
	return math.Pow(10, db/20) * FullScale
}

// LevelDb converts a mean magnitude to dB relative to full scale, floored
// at SilenceDb.
func LevelDb(mean float64) float64 {
	if !(mean > 0) {
		return SilenceDb
	}
	return max(20*math.Log10(mean/FullScale), SilenceDb)
}

func (s Settings) trackerOptions() TrackerOptions {
	return TrackerOptions{
		Strategy:         s.Tracking,
		MaxSlots:         s.MaxLabels,
		BinDecay:         s.BinDecay,
		MagnitudeDecay:   s.MagnitudeDecay,
		PositionDecay:    s.PositionDecay,
		MaxMatchDistance: s.MaxMatchDistance,
		StaleMagnitude:   s.MinPeakHeight,
	}
}
