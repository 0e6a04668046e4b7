// SPDX-License-Identifier: MIT
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pitchscope/internal/analysis"
	"pitchscope/internal/fft"
	applog "pitchscope/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, fft.DefaultFFTSize, cfg.Audio.FFTSize)
	assert.Equal(t, "blackman", cfg.Audio.FFTWindow)
	assert.Equal(t, analysis.DefaultWindowMs, cfg.Analysis.WindowMs)
	assert.Equal(t, "rank", cfg.Analysis.Tracking)
	assert.Equal(t, "floor", cfg.Analysis.PitchReference)
	assert.True(t, cfg.Transport.WebSocketEnabled)
	assert.False(t, cfg.Transport.UDPEnabled)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	assert.ErrorContains(t, err, "failed to read config file")
	assert.Nil(t, cfg)
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
audio:
  sample_rate: 44100
  fft_size: 4096
  fft_window: hann
  frame_interval: 20ms
  gate_threshold: 0.01
analysis:
  window_ms: 800
  slope_weight: 4.5
  threshold_db: -50
  tracking: frequency
  pitch_reference: nearest
  calibration:
    - [41, 40]
    - [3000, 3000]
transport:
  websocket_address: "0.0.0.0:9000"
  udp_enabled: true
  udp_target_address: "127.0.0.1:7000"
  udp_send_interval: 10ms
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 44100.0, cfg.Audio.SampleRate)
	assert.Equal(t, 4096, cfg.Audio.FFTSize)
	assert.Equal(t, 20*time.Millisecond, cfg.Audio.FrameInterval)
	assert.Equal(t, 0.01, cfg.Audio.GateThreshold)
	assert.Equal(t, 10*time.Millisecond, cfg.Transport.UDPSendInterval)
	assert.Equal(t, [][]float64{{41, 40}, {3000, 3000}}, cfg.Analysis.Calibration)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, analysis.DefaultMaxLabels, cfg.Analysis.MaxLabels)
	assert.Equal(t, analysis.DefaultBinDecay, cfg.Analysis.BinDecay)

	s, err := cfg.AnalysisSettings()
	require.NoError(t, err)
	assert.Equal(t, 800.0, s.WindowMs)
	assert.Equal(t, 4.5, s.SlopeWeight)
	assert.Equal(t, -50.0, s.ThresholdDb)
	assert.InDelta(t, 20.0, s.FrameIntervalMs, 1e-9)
	assert.Equal(t, analysis.TrackByFrequency, s.Tracking)
	assert.Equal(t, analysis.PitchReferenceNearest, s.PitchReference)
	require.NotNil(t, s.Calibration)
	assert.InDelta(t, 40.0, s.Calibration.Calibrate(41), 1e-9)

	ec, err := cfg.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, 4096, ec.FFTSize)
	assert.Equal(t, fft.Hann, ec.FFT.Window)
	assert.Equal(t, 0.01, ec.GateThreshold)
	assert.Equal(t, s.WindowMs, ec.Settings.WindowMs)
}

func TestValidate_Clamps(t *testing.T) {
	var buf bytes.Buffer
	applog.SetOutput(&buf)
	defer applog.SetOutput(os.Stderr)

	cfg := Default()
	cfg.Analysis.WindowMs = 50
	cfg.Analysis.SlopeWeight = 9
	cfg.Analysis.ThresholdDb = 10
	cfg.Analysis.BinDecay = 1.5
	cfg.Analysis.MaxLabels = 20
	cfg.Audio.GateThreshold = -1

	require.NoError(t, cfg.Validate())
	assert.Equal(t, analysis.MinWindowMs, cfg.Analysis.WindowMs)
	assert.Equal(t, analysis.MaxSlopeWeight, cfg.Analysis.SlopeWeight)
	assert.Equal(t, analysis.MaxThresholdDb, cfg.Analysis.ThresholdDb)
	assert.Equal(t, 1.0, cfg.Analysis.BinDecay)
	assert.Equal(t, cfg.Analysis.MaxCandidates, cfg.Analysis.MaxLabels)
	assert.Equal(t, 0.0, cfg.Audio.GateThreshold)

	out := buf.String()
	assert.Contains(t, out, "analysis.window_ms 50 below 100, clamping")
	assert.Contains(t, out, "analysis.slope_weight 9 above 6, clamping")
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"FFT size not a power of two", func(c *Config) { c.Audio.FFTSize = 1000 }, "try 1024"},
		{"FFT size too small", func(c *Config) { c.Audio.FFTSize = 4 }, "try 8"},
		{"FFT size too large", func(c *Config) { c.Audio.FFTSize = 65536 }, "must not exceed"},
		{"Unknown window", func(c *Config) { c.Audio.FFTWindow = "triangle" }, "audio.fft_window"},
		{"Zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }, "audio.sample_rate"},
		{"Inverted decibel range", func(c *Config) { c.Audio.MinDecibels = -20 }, "audio.min_decibels"},
		{"Zero frame interval", func(c *Config) { c.Audio.FrameInterval = 0 }, "audio.frame_interval"},
		{"Unknown tracking", func(c *Config) { c.Analysis.Tracking = "psychic" }, "analysis.tracking"},
		{"Unknown pitch reference", func(c *Config) { c.Analysis.PitchReference = "sharp" }, "analysis.pitch_reference"},
		{"Short calibration pair", func(c *Config) { c.Analysis.Calibration = [][]float64{{41}} }, "needs [measured, actual]"},
		{"Negative calibration", func(c *Config) { c.Analysis.Calibration = [][]float64{{41, -40}, {80, 80}} }, "must be positive"},
		{"Unknown log level", func(c *Config) { c.LogLevel = "chatty" }, "log_level"},
		{"UDP address without port", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "transport.udp_target_address"},
		{"WebSocket address without port", func(c *Config) { c.Transport.WebSocketAddress = "nope" }, "transport.websocket_address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidate_Calibration(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Analysis.Calibration = [][]float64{{41}}
	assert.ErrorIs(t, cfg.Validate(), analysis.ErrInvalidCalibration)

	cfg.Analysis.Calibration = nil
	table, err := cfg.CalibrationTable()
	require.NoError(t, err)
	assert.Nil(t, table)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PITCHSCOPE_WINDOW_MS", "1200")
	t.Setenv("PITCHSCOPE_TRACKING", "frequency")
	t.Setenv("PITCHSCOPE_UDP_ENABLED", "true")
	t.Setenv("PITCHSCOPE_UDP_SEND_INTERVAL", "5ms")
	t.Setenv("PITCHSCOPE_FFT_SIZE", "lots") // ignored

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 1200.0, cfg.Analysis.WindowMs)
	assert.Equal(t, "frequency", cfg.Analysis.Tracking)
	assert.True(t, cfg.Transport.UDPEnabled)
	assert.Equal(t, 5*time.Millisecond, cfg.Transport.UDPSendInterval)
	assert.Equal(t, fft.DefaultFFTSize, cfg.Audio.FFTSize)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("PITCHSCOPE_SLOPE_WEIGHT", "1.5")
	path := writeTempConfig(t, "analysis:\n  slope_weight: 4.5\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1.5, cfg.Analysis.SlopeWeight)
}

func TestLoadEnvFile(t *testing.T) {
	const key = "PITCHSCOPE_THRESHOLD_DB"
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=-42\n"), 0644))
	require.NoError(t, LoadEnvFile(path))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, -42.0, cfg.Analysis.ThresholdDb)

	// Variables already in the environment are kept.
	t.Setenv(key, "-10")
	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "-10", os.Getenv(key))
}

func TestLoadEnvFile_Missing(t *testing.T) {
	t.Chdir(t.TempDir())
	assert.NoError(t, LoadEnvFile(""), "missing default file is not an error")
	assert.Error(t, LoadEnvFile("missing.env"))
}
