// SPDX-License-Identifier: MIT
package source

import (
	"io"
	"math"
)

// Tone synthesises a sum of sines. Every tone gets the same amplitude
// relative to full scale; the sum is clipped.
type Tone struct {
	sampleRate  float64
	amplitude   float64
	frequencies []float64
	limit       int64 // samples, 0 means endless
	pos         int64
}

// NewTone creates a tone source. A non-positive duration never ends.
func NewTone(sampleRate, amplitude, seconds float64, frequencies ...float64) *Tone {
	t := &Tone{
		sampleRate:  sampleRate,
		amplitude:   amplitude,
		frequencies: append([]float64(nil), frequencies...),
	}
	if seconds > 0 {
		t.limit = int64(math.Round(seconds * sampleRate))
	}
	return t
}

// Read implements Source.
func (t *Tone) Read(dst []int32) (int, error) {
	n := len(dst)
	if t.limit > 0 {
		n = int(min(int64(n), t.limit-t.pos))
		if n <= 0 {
			return 0, io.EOF
		}
	}
	for i := range n {
		tm := float64(t.pos+int64(i)) / t.sampleRate
		var v float64
		for _, f := range t.frequencies {
			v += math.Sin(2 * math.Pi * f * tm)
		}
		dst[i] = int32(max(-1, min(v*t.amplitude, 1)) * math.MaxInt32)
	}
	t.pos += int64(n)
	return n, nil
}

// SampleRate implements Source.
func (t *Tone) SampleRate() float64 {
	return t.sampleRate
}

// Rewind restarts the tone at phase zero.
func (t *Tone) Rewind() error {
	t.pos = 0
	return nil
}
