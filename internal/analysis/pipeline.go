// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"

	applog "pitchscope/internal/log"

	"gonum.org/v1/gonum/stat"
)

// ErrFrameLength reports a frame whose length differs from the configured
// bin count. It is the only error Process returns.
var ErrFrameLength = errors.New("frame length does not match configured bins")

var logger = applog.New("analysis")

// Label is a tracked peak with its frequency and pitch name.
type Label struct {
	Frequency      float64 `json:"frequency"` // Hz, interpolated and calibrated
	Pitch          Pitch   `json:"pitch"`
	Position       float64 `json:"position"`  // label position on the log axis, [0,1]
	Magnitude      float64 `json:"magnitude"` // smoothed peak magnitude
	Bin            float64 `json:"bin"`       // smoothed bin index
	AboveThreshold bool    `json:"above_threshold"`
}

// Result is the output of one pipeline pass. Its slices belong to the
// pipeline and are overwritten by the next Process; use Clone to keep one.
type Result struct {
	Sequence  uint64    `json:"sequence"`
	Weighted  []float64 `json:"weighted"` // instantaneous weighted frame
	Smoothed  []float64 `json:"smoothed"` // rolling RMS per bin
	SlowLine  []float64 `json:"slow_line"`
	Labels    []Label   `json:"labels"`
	Threshold float64   `json:"threshold"` // linear, 0-255 scale
	LevelDb   float64   `json:"level_db"`
}

// Clone returns a deep copy of r.
func (r *Result) Clone() *Result {
	c := *r
	c.Weighted = append([]float64(nil), r.Weighted...)
	c.Smoothed = append([]float64(nil), r.Smoothed...)
	c.SlowLine = append([]float64(nil), r.SlowLine...)
	c.Labels = append([]Label(nil), r.Labels...)
	return &c
}

// Pipeline owns all analysis state for one stream of frames: weighting,
// RMS history, peak detection, tracking and labelling. It is not safe for
// concurrent use; drive it from a single goroutine and apply configuration
// changes between calls to Process.
type Pipeline struct {
	geom     Geometry
	settings Settings

	weighter *Weighter
	rms      *RMSSmoother
	hold     *PeakHold
	detector *PeakDetector
	tracker  *Tracker

	threshold float64
	weighted  []float64
	labels    []Label
	result    Result
}

// NewPipeline creates a pipeline for frames of the given geometry.
// Settings are clamped into their valid ranges.
func NewPipeline(geom Geometry, settings Settings) (*Pipeline, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	s := settings.Normalized()

	p := &Pipeline{
		geom:      geom,
		settings:  s,
		weighter:  NewWeighter(geom.Bins, s.SlopeWeight),
		rms:       NewRMSSmoother(geom.Bins, s.WindowMs, s.FrameIntervalMs),
		hold:      NewPeakHold(geom.Bins, s.SlowLineDecay),
		detector:  NewPeakDetector(s.MinPeakHeight, s.MinPeakDistance, s.MaxCandidates),
		tracker:   NewTracker(geom.Bins, s.trackerOptions()),
		threshold: ThresholdValue(s.ThresholdDb),
		weighted:  make([]float64, geom.Bins),
		labels:    make([]Label, 0, s.MaxLabels),
	}

	logger.Infof("Initializing pipeline (Bins: %d, SampleRate: %.1f Hz, FFT: %d, Window: %.0fms/%d frames, Tracking: %s)",
		geom.Bins, geom.SampleRate, geom.FFTSize, s.WindowMs, p.rms.Capacity(), s.Tracking)
	return p, nil
}

// Geometry returns the frame geometry.
func (p *Pipeline) Geometry() Geometry {
	return p.geom
}

// Settings returns the normalized settings in effect.
func (p *Pipeline) Settings() Settings {
	return p.settings
}

// Threshold returns the label threshold on the linear 0-255 scale.
func (p *Pipeline) Threshold() float64 {
	return p.threshold
}

// SetWindowMs changes the RMS window and clears all history.
func (p *Pipeline) SetWindowMs(ms float64) {
	p.settings.WindowMs = clamp(ms, MinWindowMs, MaxWindowMs)
	p.rms.Configure(p.settings.WindowMs)
	logger.Debugf("RMS window set to %.0fms (%d frames)", p.settings.WindowMs, p.rms.Capacity())
}

// SetSlopeWeight changes the spectral tilt.
func (p *Pipeline) SetSlopeWeight(db float64) {
	p.weighter.SetSlope(db)
	p.settings.SlopeWeight = p.weighter.Slope()
}

// SetThresholdDb changes the label threshold.
func (p *Pipeline) SetThresholdDb(db float64) {
	p.settings.ThresholdDb = clamp(db, MinThresholdDb, MaxThresholdDb)
	p.threshold = ThresholdValue(p.settings.ThresholdDb)
}

// SetCalibration replaces the calibration table; nil disables calibration.
func (p *Pipeline) SetCalibration(t *CalibrationTable) {
	p.settings.Calibration = t
}

// Reconfigure applies a complete settings value. Everything is applied
// before it returns; a change of window or frame interval resets the RMS
// history and a change of tracking strategy drops the tracked peaks.
func (p *Pipeline) Reconfigure(settings Settings) {
	s := settings.Normalized()
	old := p.settings
	p.settings = s

	switch {
	case s.FrameIntervalMs != old.FrameIntervalMs:
		p.rms = NewRMSSmoother(p.geom.Bins, s.WindowMs, s.FrameIntervalMs)
	case s.WindowMs != old.WindowMs:
		p.rms.Configure(s.WindowMs)
	}
	p.weighter.SetSlope(s.SlopeWeight)
	p.threshold = ThresholdValue(s.ThresholdDb)
	p.hold.SetDecay(s.SlowLineDecay)

	p.detector.MinHeight = s.MinPeakHeight
	p.detector.MinDistance = s.MinPeakDistance
	p.detector.MaxCandidates = s.MaxCandidates
	p.tracker.SetOptions(s.trackerOptions())
	if cap(p.labels) < s.MaxLabels {
		p.labels = make([]Label, 0, s.MaxLabels)
	}

	logger.Infof("Reconfigured (Window: %.0fms/%d frames, Slope: %.1f dB/oct, Threshold: %.1f dB, Tracking: %s)",
		s.WindowMs, p.rms.Capacity(), s.SlopeWeight, s.ThresholdDb, s.Tracking)
}

// Resize switches to a new frame geometry (for example after an FFT size
// change). All history and tracked peaks are dropped.
func (p *Pipeline) Resize(geom Geometry) error {
	if err := geom.Validate(); err != nil {
		return err
	}
	p.geom = geom
	p.weighter.Resize(geom.Bins)
	p.rms.Resize(geom.Bins)
	p.hold.Reset(geom.Bins)
	p.tracker.Reset(geom.Bins)
	p.weighted = make([]float64, geom.Bins)

	logger.Infof("Resized to %d bins (SampleRate: %.1f Hz, FFT: %d)", geom.Bins, geom.SampleRate, geom.FFTSize)
	return nil
}

// Process runs one full pass over frame: weight (in place), smooth, detect,
// track and label. A frame of the wrong length is rejected untouched.
func (p *Pipeline) Process(frame []float64) (*Result, error) {
	if len(frame) != p.geom.Bins {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFrameLength, len(frame), p.geom.Bins)
	}

	p.weighter.Apply(frame)
	copy(p.weighted, frame)
	p.rms.Push(frame)
	p.hold.Push(frame)

	smoothed := p.rms.Values()
	p.tracker.Update(p.detector.Detect(smoothed))

	p.labels = p.labels[:0]
	for _, slot := range p.tracker.Slots() {
		above := slot.Magnitude > p.threshold
		if !above && len(p.labels) >= p.settings.MinLabels {
			continue
		}
		p.labels = append(p.labels, p.label(slot, smoothed, above))
	}

	p.result.Sequence++
	p.result.Weighted = p.weighted
	p.result.Smoothed = smoothed
	p.result.SlowLine = p.hold.Values()
	p.result.Labels = p.labels
	p.result.Threshold = p.threshold
	p.result.LevelDb = LevelDb(stat.Mean(smoothed, nil))
	return &p.result, nil
}

// label resolves a tracked peak to a calibrated frequency and pitch.
func (p *Pipeline) label(slot TrackedPeak, smoothed []float64, above bool) Label {
	k := int(math.Round(slot.Bin))
	k = max(1, min(k, len(smoothed)-2))

	hz := BinToFrequency(InterpolateBin(smoothed, k), p.geom.SampleRate, p.geom.FFTSize)
	hz = p.settings.Calibration.Calibrate(hz)

	return Label{
		Frequency:      hz,
		Pitch:          p.settings.PitchReference.Name(hz),
		Position:       slot.Position,
		Magnitude:      slot.Magnitude,
		Bin:            slot.Bin,
		AboveThreshold: above,
	}
}
