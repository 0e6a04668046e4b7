// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PITCHSCOPE_"

// DefaultEnvFile is loaded by LoadEnvFile when no path is given.
const DefaultEnvFile = ".env"

// searchPaths are tried in order when LoadConfig gets an empty path.
var searchPaths = []string{"pitchscope.yaml", "config.yaml"}

// LoadConfig loads configuration from a YAML file specified by path. If path
// is empty, it searches the working directory for pitchscope.yaml and then
// config.yaml, falling back to built-in defaults when neither exists.
// Environment overrides are applied after the file and the result is
// validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range searchPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		logger.Debugf("Loaded %s", path)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=value pairs into the process environment.
// Variables already set win. An empty path loads DefaultEnvFile if it
// exists.
func LoadEnvFile(path string) error {
	if path == "" {
		path = DefaultEnvFile
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	logger.Debugf("Loaded environment from %s", path)
	return nil
}

// applyEnvOverrides replaces selected fields with PITCHSCOPE_* variables.
// Unparseable values are ignored with a warning.
func (cfg *Config) applyEnvOverrides() {
	override("LOG_LEVEL", &cfg.LogLevel, parseString)

	override("SAMPLE_RATE", &cfg.Audio.SampleRate, parseFloat)
	override("FFT_SIZE", &cfg.Audio.FFTSize, strconv.Atoi)
	override("FFT_WINDOW", &cfg.Audio.FFTWindow, parseString)
	override("GATE_THRESHOLD", &cfg.Audio.GateThreshold, parseFloat)

	override("WINDOW_MS", &cfg.Analysis.WindowMs, parseFloat)
	override("SLOPE_WEIGHT", &cfg.Analysis.SlopeWeight, parseFloat)
	override("THRESHOLD_DB", &cfg.Analysis.ThresholdDb, parseFloat)
	override("TRACKING", &cfg.Analysis.Tracking, parseString)
	override("PITCH_REFERENCE", &cfg.Analysis.PitchReference, parseString)

	override("WEBSOCKET_ENABLED", &cfg.Transport.WebSocketEnabled, strconv.ParseBool)
	override("WEBSOCKET_ADDRESS", &cfg.Transport.WebSocketAddress, parseString)
	override("UDP_ENABLED", &cfg.Transport.UDPEnabled, strconv.ParseBool)
	override("UDP_TARGET_ADDRESS", &cfg.Transport.UDPTargetAddress, parseString)
	override("UDP_SEND_INTERVAL", &cfg.Transport.UDPSendInterval, time.ParseDuration)
}

func override[T any](key string, dst *T, parse func(string) (T, error)) {
	name := EnvPrefix + key
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	v, err := parse(strings.TrimSpace(val))
	if err != nil {
		logger.Warnf("Ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = v
	logger.Infof("Overriding from env: %s=%v", name, v)
}

func parseString(s string) (string, error) { return s, nil }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }
