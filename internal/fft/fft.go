// SPDX-License-Identifier: MIT
package fft

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	applog "pitchscope/internal/log"
	"pitchscope/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Byte spectrum defaults, matching a browser analyser node.
const (
	DefaultFFTSize               = 2048
	DefaultMinDecibels           = -100.0
	DefaultMaxDecibels           = -30.0
	DefaultSmoothingTimeConstant = 0.8
)

var (
	ErrInvalidSize       = errors.New("fft size must be a power of 2")
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	ErrInvalidRange      = errors.New("min decibels must be below max decibels")
	ErrFrameSize         = errors.New("destination frame has the wrong length")
)

var logger = applog.New("fft")

// normFactor maps int32 PCM onto [-1, 1).
const normFactor = 1.0 / float64(0x80000000)

// Options configures the byte spectrum of a Processor.
type Options struct {
	Window                WindowFunc
	MinDecibels           float64
	MaxDecibels           float64
	SmoothingTimeConstant float64 // [0,1], weight of the previous block
}

// DefaultOptions returns the analyser defaults.
func DefaultOptions() Options {
	return Options{
		Window:                Blackman,
		MinDecibels:           DefaultMinDecibels,
		MaxDecibels:           DefaultMaxDecibels,
		SmoothingTimeConstant: DefaultSmoothingTimeConstant,
	}
}

// workspace holds pre-allocated buffers for FFT calculations.
type workspace struct {
	input     []float64    // ...for real input samples (windowed, scaled)
	fftOutput []complex128 // ...for FFT complex output
	smoothed  []float64    // ...for time smoothed magnitudes, fftSize/2
	window    []float64    // ...for window function coefficients
}

// Processor turns blocks of PCM samples into spectrum frames of fftSize/2
// bins on a 0-255 scale. It is not safe for concurrent use.
type Processor struct {
	fftSize    int
	sampleRate float64
	opts       Options
	fftObj     *fourier.FFT
	workspace  workspace
	dbScale    float64
}

// NewProcessor creates a processor and pre-allocates every buffer the hot
// path needs.
func NewProcessor(fftSize int, sampleRate float64, opts Options) (*Processor, error) {
	if !bitint.IsPowerOfTwo(fftSize) || fftSize < 8 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidSize, fftSize)
	}
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("%w, got %f", ErrInvalidSampleRate, sampleRate)
	}
	if !(opts.MinDecibels < opts.MaxDecibels) {
		return nil, fmt.Errorf("%w: [%.1f, %.1f]", ErrInvalidRange, opts.MinDecibels, opts.MaxDecibels)
	}
	opts.SmoothingTimeConstant = min(max(opts.SmoothingTimeConstant, 0), 1)

	logger.Infof("Initializing processor (Size: %d, SampleRate: %.1f Hz, Window: %s, Range: [%.0f, %.0f] dB, Smoothing: %.2f)",
		fftSize, sampleRate, opts.Window, opts.MinDecibels, opts.MaxDecibels, opts.SmoothingTimeConstant)

	return &Processor{
		fftSize:    fftSize,
		sampleRate: sampleRate,
		opts:       opts,
		fftObj:     fourier.NewFFT(fftSize),
		dbScale:    255 / (opts.MaxDecibels - opts.MinDecibels),
		workspace: workspace{
			input:     make([]float64, fftSize),
			fftOutput: make([]complex128, fftSize/2+1),
			smoothed:  make([]float64, fftSize/2),
			window:    windowCoefficients(opts.Window, fftSize),
		},
	}, nil
}

// Process windows one block of fftSize samples, transforms it and folds
// the normalised magnitudes into the time smoothed spectrum. Short blocks
// are zero padded.
func (p *Processor) Process(samples []int32) {
	ws := &p.workspace
	for i := range p.fftSize {
		if i < len(samples) {
			ws.input[i] = float64(samples[i]) * normFactor * ws.window[i]
		} else {
			ws.input[i] = 0
		}
	}

	p.fftObj.Coefficients(ws.fftOutput, ws.input)

	tau := p.opts.SmoothingTimeConstant
	scale := 1 / float64(p.fftSize)
	for i := range ws.smoothed {
		mag := cmplx.Abs(ws.fftOutput[i]) * scale
		ws.smoothed[i] = tau*ws.smoothed[i] + (1-tau)*mag
	}
}

// ByteFrequencyData writes the current spectrum into dst as whole values
// in [0,255]: each bin is converted to dB and mapped linearly from
// [MinDecibels, MaxDecibels]. dst must have Bins() values.
func (p *Processor) ByteFrequencyData(dst []float64) error {
	if len(dst) != len(p.workspace.smoothed) {
		return fmt.Errorf("%w: got %d, want %d", ErrFrameSize, len(dst), len(p.workspace.smoothed))
	}
	for i, mag := range p.workspace.smoothed {
		if mag <= 0 {
			dst[i] = 0
			continue
		}
		db := 20 * math.Log10(mag)
		dst[i] = math.Floor(min(max((db-p.opts.MinDecibels)*p.dbScale, 0), 255))
	}
	return nil
}

// Reset clears the smoothing history.
func (p *Processor) Reset() {
	clear(p.workspace.smoothed)
}

// FrequencyForBin returns the centre frequency in Hz of bin i.
func (p *Processor) FrequencyForBin(i int) float64 {
	if i < 0 || i >= len(p.workspace.fftOutput) {
		return 0
	}
	return p.fftObj.Freq(i) * p.sampleRate
}

// FFTSize returns the number of points per transform.
func (p *Processor) FFTSize() int {
	return p.fftSize
}

// SampleRate returns the sample rate in Hz.
func (p *Processor) SampleRate() float64 {
	return p.sampleRate
}

// Bins returns the length of a spectrum frame.
func (p *Processor) Bins() int {
	return p.fftSize / 2
}

// Options returns the options in effect.
func (p *Processor) Options() Options {
	return p.opts
}
