// SPDX-License-Identifier: MIT

// Package config loads the pitchscope configuration from YAML, the
// environment and command line flags, and converts it into the settings
// of the analysis, FFT and engine packages.
package config

import (
	"fmt"
	"time"

	"pitchscope/internal/analysis"
	"pitchscope/internal/engine"
	"pitchscope/internal/fft"
	applog "pitchscope/internal/log"
)

var logger = applog.New("config")

// Defaults that are not owned by another package.
const (
	DefaultLogLevel         = "info"
	DefaultSampleRate       = 48000.0
	DefaultWebSocketAddress = "127.0.0.1:8080"
	DefaultUDPTargetAddress = "127.0.0.1:9090"

	MinSampleRate = 8000.0
	MaxSampleRate = 192000.0
	MaxFFTSize    = 32768
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"` // "debug", "info", "warn" or "error"
	Audio     AudioConfig     `yaml:"audio"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Transport TransportConfig `yaml:"transport"`
}

// AudioConfig holds the FFT frame provider and engine settings.
type AudioConfig struct {
	SampleRate            float64       `yaml:"sample_rate"`    // rate of synthesised tones, Hz; files carry their own
	FFTSize               int           `yaml:"fft_size"`       // power of two; frames have fft_size/2 bins
	FFTWindow             string        `yaml:"fft_window"`     // e.g. "blackman", "hann"
	MinDecibels           float64       `yaml:"min_decibels"`   // maps to 0
	MaxDecibels           float64       `yaml:"max_decibels"`   // maps to 255
	SmoothingTimeConstant float64       `yaml:"smoothing_time_constant"`
	FrameInterval         time.Duration `yaml:"frame_interval"` // analysis tick period
	GateThreshold         float64       `yaml:"gate_threshold"` // fraction of full scale, 0 disables
}

// AnalysisConfig mirrors analysis.Settings with config-friendly types.
type AnalysisConfig struct {
	WindowMs    float64 `yaml:"window_ms"`
	SlopeWeight float64 `yaml:"slope_weight"` // dB/octave
	ThresholdDb float64 `yaml:"threshold_db"`

	MaxLabels       int     `yaml:"max_labels"`
	MinLabels       int     `yaml:"min_labels"`
	MinPeakHeight   float64 `yaml:"min_peak_height"`
	MinPeakDistance int     `yaml:"min_peak_distance"`
	MaxCandidates   int     `yaml:"max_candidates"`

	Tracking         string  `yaml:"tracking"` // "rank" or "frequency"
	MaxMatchDistance float64 `yaml:"max_match_distance"`
	PitchReference   string  `yaml:"pitch_reference"` // "floor" or "nearest"

	SlowLineDecay  float64 `yaml:"slow_line_decay"`
	BinDecay       float64 `yaml:"bin_decay"`
	MagnitudeDecay float64 `yaml:"magnitude_decay"`
	PositionDecay  float64 `yaml:"position_decay"`

	// Calibration holds [measured, actual] pairs in Hz.
	Calibration [][]float64 `yaml:"calibration"`
}

// TransportConfig holds settings related to sending results out of the process.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`
	WebSocketAddress string        `yaml:"websocket_address"` // host:port serving /spectrum
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090"
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	s := analysis.DefaultSettings()
	o := fft.DefaultOptions()
	return &Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			SampleRate:            DefaultSampleRate,
			FFTSize:               fft.DefaultFFTSize,
			FFTWindow:             o.Window.String(),
			MinDecibels:           o.MinDecibels,
			MaxDecibels:           o.MaxDecibels,
			SmoothingTimeConstant: o.SmoothingTimeConstant,
			FrameInterval:         msToDuration(s.FrameIntervalMs),
		},
		Analysis: AnalysisConfig{
			WindowMs:         s.WindowMs,
			SlopeWeight:      s.SlopeWeight,
			ThresholdDb:      s.ThresholdDb,
			MaxLabels:        s.MaxLabels,
			MinLabels:        s.MinLabels,
			MinPeakHeight:    s.MinPeakHeight,
			MinPeakDistance:  s.MinPeakDistance,
			MaxCandidates:    s.MaxCandidates,
			Tracking:         s.Tracking.String(),
			MaxMatchDistance: s.MaxMatchDistance,
			PitchReference:   s.PitchReference.String(),
			SlowLineDecay:    s.SlowLineDecay,
			BinDecay:         s.BinDecay,
			MagnitudeDecay:   s.MagnitudeDecay,
			PositionDecay:    s.PositionDecay,
		},
		Transport: TransportConfig{
			WebSocketEnabled: true,
			WebSocketAddress: DefaultWebSocketAddress,
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  16 * time.Millisecond,
		},
	}
}

// CalibrationTable builds the calibration table, or nil when none is
// configured.
func (c *Config) CalibrationTable() (*analysis.CalibrationTable, error) {
	if len(c.Analysis.Calibration) == 0 {
		return nil, nil
	}
	points := make([]analysis.CalibrationPoint, len(c.Analysis.Calibration))
	for i, pair := range c.Analysis.Calibration {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: analysis.calibration[%d] needs [measured, actual], got %d values",
				analysis.ErrInvalidCalibration, i, len(pair))
		}
		points[i] = analysis.CalibrationPoint{Measured: pair[0], Actual: pair[1]}
	}
	return analysis.NewCalibrationTable(points)
}

// AnalysisSettings converts the configuration into pipeline settings.
func (c *Config) AnalysisSettings() (analysis.Settings, error) {
	a := c.Analysis
	tracking, err := analysis.ParseTrackingStrategy(a.Tracking)
	if err != nil {
		return analysis.Settings{}, err
	}
	reference, err := analysis.ParsePitchReference(a.PitchReference)
	if err != nil {
		return analysis.Settings{}, err
	}
	table, err := c.CalibrationTable()
	if err != nil {
		return analysis.Settings{}, err
	}
	return analysis.Settings{
		WindowMs:         a.WindowMs,
		FrameIntervalMs:  float64(c.Audio.FrameInterval) / float64(time.Millisecond),
		SlopeWeight:      a.SlopeWeight,
		ThresholdDb:      a.ThresholdDb,
		MinPeakHeight:    a.MinPeakHeight,
		MinPeakDistance:  a.MinPeakDistance,
		MaxCandidates:    a.MaxCandidates,
		MaxLabels:        a.MaxLabels,
		MinLabels:        a.MinLabels,
		Tracking:         tracking,
		MaxMatchDistance: a.MaxMatchDistance,
		BinDecay:         a.BinDecay,
		MagnitudeDecay:   a.MagnitudeDecay,
		PositionDecay:    a.PositionDecay,
		SlowLineDecay:    a.SlowLineDecay,
		PitchReference:   reference,
		Calibration:      table,
	}, nil
}

// FFTOptions converts the audio section into frame provider options.
func (c *Config) FFTOptions() (fft.Options, error) {
	w, err := fft.ParseWindowFunc(c.Audio.FFTWindow)
	if err != nil {
		return fft.Options{}, err
	}
	return fft.Options{
		Window:                w,
		MinDecibels:           c.Audio.MinDecibels,
		MaxDecibels:           c.Audio.MaxDecibels,
		SmoothingTimeConstant: c.Audio.SmoothingTimeConstant,
	}, nil
}

// EngineConfig assembles the engine configuration.
func (c *Config) EngineConfig() (engine.Config, error) {
	settings, err := c.AnalysisSettings()
	if err != nil {
		return engine.Config{}, err
	}
	opts, err := c.FFTOptions()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		FFTSize:       c.Audio.FFTSize,
		FFT:           opts,
		Settings:      settings,
		GateThreshold: c.Audio.GateThreshold,
	}, nil
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
