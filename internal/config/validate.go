// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"

	"pitchscope/internal/analysis"
	"pitchscope/internal/fft"
	applog "pitchscope/internal/log"
	"pitchscope/pkg/bitint"
)

// Validate clamps out of range values to their nearest bound, logging a
// warning for each, and reports everything it cannot repair.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		fail("log_level: unknown level '%s'", c.LogLevel)
	}

	// Audio
	a := &c.Audio
	if !(a.SampleRate > 0) {
		fail("audio.sample_rate must be positive, got %g", a.SampleRate)
	} else {
		clampFloat("audio.sample_rate", &a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if !bitint.IsPowerOfTwo(a.FFTSize) || a.FFTSize < 8 {
		fail("audio.fft_size must be a power of two >= 8, got %d (try %d)",
			a.FFTSize, max(8, bitint.NextPowerOfTwo(a.FFTSize)))
	} else if a.FFTSize > MaxFFTSize {
		fail("audio.fft_size must not exceed %d, got %d", MaxFFTSize, a.FFTSize)
	}
	if _, err := fft.ParseWindowFunc(a.FFTWindow); err != nil {
		fail("audio.fft_window: %w", err)
	}
	if !(a.MinDecibels < a.MaxDecibels) {
		fail("audio.min_decibels (%g) must be below audio.max_decibels (%g)", a.MinDecibels, a.MaxDecibels)
	}
	clampFloat("audio.smoothing_time_constant", &a.SmoothingTimeConstant, 0, 1)
	if a.FrameInterval <= 0 {
		fail("audio.frame_interval must be positive, got %s", a.FrameInterval)
	}
	clampFloat("audio.gate_threshold", &a.GateThreshold, 0, 1)

	// Analysis
	an := &c.Analysis
	clampFloat("analysis.window_ms", &an.WindowMs, analysis.MinWindowMs, analysis.MaxWindowMs)
	clampFloat("analysis.slope_weight", &an.SlopeWeight, analysis.MinSlopeWeight, analysis.MaxSlopeWeight)
	clampFloat("analysis.threshold_db", &an.ThresholdDb, analysis.MinThresholdDb, analysis.MaxThresholdDb)
	clampFloat("analysis.min_peak_height", &an.MinPeakHeight, 0, analysis.FullScale)
	clampInt("analysis.min_peak_distance", &an.MinPeakDistance, 0, a.FFTSize/2)
	clampInt("analysis.max_candidates", &an.MaxCandidates, 1, a.FFTSize/2)
	clampInt("analysis.max_labels", &an.MaxLabels, 1, an.MaxCandidates)
	clampInt("analysis.min_labels", &an.MinLabels, 0, an.MaxLabels)
	if !(an.MaxMatchDistance > 0) {
		fail("analysis.max_match_distance must be positive, got %g", an.MaxMatchDistance)
	}
	clampFloat("analysis.slow_line_decay", &an.SlowLineDecay, 0, 1)
	clampFloat("analysis.bin_decay", &an.BinDecay, 0, 1)
	clampFloat("analysis.magnitude_decay", &an.MagnitudeDecay, 0, 1)
	clampFloat("analysis.position_decay", &an.PositionDecay, 0, 1)
	if _, err := analysis.ParseTrackingStrategy(an.Tracking); err != nil {
		fail("analysis.tracking: %w", err)
	}
	if _, err := analysis.ParsePitchReference(an.PitchReference); err != nil {
		fail("analysis.pitch_reference: %w", err)
	}
	if _, err := c.CalibrationTable(); err != nil {
		fail("analysis.calibration: %w", err)
	}

	// Transport
	t := &c.Transport
	if t.WebSocketEnabled {
		if _, _, err := net.SplitHostPort(t.WebSocketAddress); err != nil {
			fail("transport.websocket_address '%s' appears invalid: %w", t.WebSocketAddress, err)
		}
	}
	if t.UDPEnabled {
		if _, _, err := net.SplitHostPort(t.UDPTargetAddress); err != nil {
			fail("transport.udp_target_address '%s' appears invalid: %w", t.UDPTargetAddress, err)
		}
		if t.UDPSendInterval <= 0 {
			fail("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}

	return errors.Join(errs...)
}

func clampFloat(key string, v *float64, lo, hi float64) {
	switch {
	case *v < lo:
		logger.Warnf("%s %g below %g, clamping", key, *v, lo)
		*v = lo
	case *v > hi:
		logger.Warnf("%s %g above %g, clamping", key, *v, hi)
		*v = hi
	}
}

func clampInt(key string, v *int, lo, hi int) {
	hi = max(hi, lo)
	switch {
	case *v < lo:
		logger.Warnf("%s %d below %d, clamping", key, *v, lo)
		*v = lo
	case *v > hi:
		logger.Warnf("%s %d above %d, clamping", key, *v, hi)
		*v = hi
	}
}
