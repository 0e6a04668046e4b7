// SPDX-License-Identifier: MIT
package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// WAV reads the first channel of a PCM WAV stream.
type WAV struct {
	r          io.ReadSeeker
	closer     io.Closer
	dec        *wav.Decoder
	buf        *audio.IntBuffer
	channels   int
	bitDepth   int
	sampleRate float64
}

// OpenWAV opens a WAV file. Close releases it.
func OpenWAV(path string) (*WAV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}
	w, err := NewWAV(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	w.closer = f
	return w, nil
}

// NewWAV decodes the header of r and prepares to stream its samples.
func NewWAV(r io.ReadSeeker) (*WAV, error) {
	dec, err := newDecoder(r)
	if err != nil {
		return nil, err
	}
	format := dec.Format()
	w := &WAV{
		r:          r,
		dec:        dec,
		channels:   format.NumChannels,
		bitDepth:   int(dec.BitDepth),
		sampleRate: float64(format.SampleRate),
		buf:        &audio.IntBuffer{Format: format},
	}
	logger.Infof("WAV format (SampleRate: %d Hz, Channels: %d, BitDepth: %d)", format.SampleRate, format.NumChannels, w.bitDepth)
	return w, nil
}

func newDecoder(r io.ReadSeeker) (*wav.Decoder, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav file", ErrUnsupportedFormat)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: wav audio format %d is not integer PCM", ErrUnsupportedFormat, dec.WavAudioFormat)
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: bit depth %d", ErrUnsupportedFormat, dec.BitDepth)
	}
	if dec.NumChans == 0 {
		return nil, fmt.Errorf("%w: no channels", ErrUnsupportedFormat)
	}
	return dec, nil
}

// Read implements Source. Multichannel files are reduced to their first
// channel.
func (w *WAV) Read(dst []int32) (int, error) {
	need := len(dst) * w.channels
	if cap(w.buf.Data) < need {
		w.buf.Data = make([]int, need)
	}
	w.buf.Data = w.buf.Data[:need]

	n, err := w.dec.PCMBuffer(w.buf)
	frames := n / w.channels
	for i := range frames {
		dst[i] = w.scale(w.buf.Data[i*w.channels])
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return frames, fmt.Errorf("error reading PCM: %w", err)
	}
	if frames == 0 {
		return 0, io.EOF
	}
	return frames, nil
}

// scale lifts a sample of the file's bit depth to the int32 range.
func (w *WAV) scale(v int) int32 {
	switch w.bitDepth {
	case 8:
		// 8 bit WAV is unsigned.
		return int32(v-128) << 24
	case 16:
		return int32(v) << 16
	case 24:
		return int32(v) << 8
	default:
		return int32(v)
	}
}

// SampleRate implements Source.
func (w *WAV) SampleRate() float64 {
	return w.sampleRate
}

// Channels returns the channel count of the file.
func (w *WAV) Channels() int {
	return w.channels
}

// Rewind restarts decoding at the first sample.
func (w *WAV) Rewind() error {
	if _, err := w.r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	dec, err := newDecoder(w.r)
	if err != nil {
		return err
	}
	w.dec = dec
	return nil
}

// Close releases the underlying file, if OpenWAV opened one.
func (w *WAV) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
