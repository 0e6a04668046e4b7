// SPDX-License-Identifier: MIT

/*
Package engine drives the analysis pipeline from a sample source.

Each tick reads one hop of samples (sampleRate x frame interval), slides
it into a window of the latest fftSize samples, transforms the window into
a 0-255 spectrum frame and runs the frame through the pipeline. Results go
to an optional transport and to the caller.

Thread Safety:
  - Step and Run must be called from a single goroutine
  - Reconfigure may be called from any goroutine; the settings are
    applied before the next tick
  - Buffers are pre-allocated; a tick allocates only when a transport
    needs its own copy of the result
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"pitchscope/internal/analysis"
	"pitchscope/internal/fft"
	applog "pitchscope/internal/log"
	"pitchscope/internal/source"
	"pitchscope/internal/transport"
)

var logger = applog.New("engine")

// Config holds everything the engine needs besides its source.
type Config struct {
	FFTSize  int
	FFT      fft.Options
	Settings analysis.Settings

	// GateThreshold silences blocks whose peak amplitude stays below this
	// fraction of full scale. Zero disables the gate.
	GateThreshold float64
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{
		FFTSize:  fft.DefaultFFTSize,
		FFT:      fft.DefaultOptions(),
		Settings: analysis.DefaultSettings(),
	}
}

// Engine owns the FFT processor and pipeline for one source.
type Engine struct {
	src       source.Source
	processor *fft.Processor
	pipeline  *analysis.Pipeline
	transport transport.Transport

	hop      int
	interval time.Duration
	window   []int32 // latest fftSize samples
	block    []int32 // one hop
	frame    []float64

	gateEnabled   bool
	gateThreshold int32 // absolute amplitude threshold (0-2147483647)

	frames uint64

	mu      sync.Mutex
	pending *analysis.Settings
}

// New creates an engine reading from src. tr may be nil.
func New(src source.Source, cfg Config, tr transport.Transport) (*Engine, error) {
	if src == nil {
		return nil, errors.New("engine requires a source")
	}
	rate := src.SampleRate()
	processor, err := fft.NewProcessor(cfg.FFTSize, rate, cfg.FFT)
	if err != nil {
		return nil, err
	}

	settings := cfg.Settings.Normalized()
	geom := analysis.Geometry{Bins: processor.Bins(), SampleRate: rate, FFTSize: processor.FFTSize()}
	pipeline, err := analysis.NewPipeline(geom, settings)
	if err != nil {
		return nil, err
	}

	hop := HopSize(rate, settings.FrameIntervalMs)
	e := &Engine{
		src:       src,
		processor: processor,
		pipeline:  pipeline,
		transport: tr,
		hop:       hop,
		interval:  time.Duration(settings.FrameIntervalMs * float64(time.Millisecond)),
		window:    make([]int32, cfg.FFTSize),
		block:     make([]int32, hop),
		frame:     make([]float64, processor.Bins()),
	}
	e.SetGateThreshold(cfg.GateThreshold)

	logger.Infof("Initializing engine (SampleRate: %.1f Hz, FFT: %d, Hop: %d samples, Interval: %s, Gate: %.4f)",
		rate, cfg.FFTSize, hop, e.interval, e.GateThreshold())
	return e, nil
}

// HopSize returns the number of samples consumed per tick.
func HopSize(sampleRate, frameIntervalMs float64) int {
	return max(1, int(math.Round(sampleRate*frameIntervalMs/1000)))
}

// Geometry returns the frame geometry fed to the pipeline.
func (e *Engine) Geometry() analysis.Geometry {
	return e.pipeline.Geometry()
}

// Settings returns the settings currently applied to the pipeline.
func (e *Engine) Settings() analysis.Settings {
	return e.pipeline.Settings()
}

// Frames returns the number of ticks processed so far.
func (e *Engine) Frames() uint64 {
	return e.frames
}

// Hop returns the number of samples per tick.
func (e *Engine) Hop() int {
	return e.hop
}

// Interval returns the tick period used when pacing.
func (e *Engine) Interval() time.Duration {
	return e.interval
}

// SetGateThreshold adjusts the noise gate. The value is in the range of
// 0.0-1.0 where 0 disables the gate and 1 keeps it always closed.
func (e *Engine) SetGateThreshold(threshold float64) {
	threshold = min(max(threshold, 0), 1)
	e.gateEnabled = threshold > 0
	e.gateThreshold = int32(threshold * float64(math.MaxInt32))
}

// GateThreshold returns the noise gate threshold as a fraction of full
// scale.
func (e *Engine) GateThreshold() float64 {
	if !e.gateEnabled {
		return 0
	}
	return float64(e.gateThreshold) / float64(math.MaxInt32)
}

// Reconfigure queues new analysis settings. They are applied in full
// before the next tick; a later call replaces an unapplied one. The frame
// interval, and with it the hop size, is fixed at construction.
func (e *Engine) Reconfigure(settings analysis.Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = &settings
}

func (e *Engine) applyPending() {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	if pending == nil {
		return
	}
	s := *pending
	s.FrameIntervalMs = e.pipeline.Settings().FrameIntervalMs
	e.pipeline.Reconfigure(s)
}

// Step runs one tick. It returns io.EOF once the source is exhausted. The
// result belongs to the pipeline and is overwritten by the next Step.
func (e *Engine) Step() (*analysis.Result, error) {
	e.applyPending()

	n, err := e.fill()
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}

	e.gate(e.block)
	e.slide(e.block)
	e.processor.Process(e.window)
	if err := e.processor.ByteFrequencyData(e.frame); err != nil {
		return nil, err
	}
	res, err := e.pipeline.Process(e.frame)
	if err != nil {
		return nil, err
	}
	e.frames++

	if e.transport != nil {
		if err := e.transport.Send(res.Clone()); err != nil {
			logger.Warnf("Transport send failed: %v", err)
		}
	}
	return res, nil
}

// fill reads one hop, zero padding a short final block.
func (e *Engine) fill() (int, error) {
	total := 0
	for total < len(e.block) {
		n, err := e.src.Read(e.block[total:])
		total += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read source: %w", err)
		}
		if n == 0 {
			break
		}
	}
	clear(e.block[total:])
	return total, nil
}

// gate zeroes block when its peak amplitude stays below the threshold.
func (e *Engine) gate(block []int32) {
	if !e.gateEnabled {
		return
	}
	var maxAmplitude int32
	for _, sample := range block {
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask
		diff := amplitude - maxAmplitude
		maxAmplitude += (diff & (diff >> 31)) ^ diff
	}
	if maxAmplitude <= e.gateThreshold {
		clear(block)
	}
}

// slide appends block to the analysis window, dropping the oldest samples.
func (e *Engine) slide(block []int32) {
	if len(block) >= len(e.window) {
		copy(e.window, block[len(block)-len(e.window):])
		return
	}
	keep := len(e.window) - len(block)
	copy(e.window, e.window[len(block):])
	copy(e.window[keep:], block)
}

// Run ticks until the source is exhausted, ctx is cancelled or fn returns
// an error. When paced, ticks follow the frame interval in wall clock
// time; otherwise they run back to back. fn may be nil.
func (e *Engine) Run(ctx context.Context, paced bool, fn func(*analysis.Result) error) error {
	var tick <-chan time.Time
	if paced {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}

		res, err := e.Step()
		if errors.Is(err, io.EOF) {
			logger.Infof("Source exhausted after %d frames", e.frames)
			return nil
		}
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(res); err != nil {
				return err
			}
		}
	}
}
