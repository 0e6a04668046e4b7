// SPDX-License-Identifier: MIT

// Package utils holds signal generators and fakes shared by tests.
package utils

import (
	"math"
	"sync"
)

// MockTransport records everything sent through it instead of transmitting.
type MockTransport struct {
	mu     sync.Mutex
	sent   []any
	closed bool
	Err    error // returned by Send when set
}

// Send stores msg for later inspection.
func (m *MockTransport) Send(msg any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MockTransport) Sent() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.sent...)
}

// Last returns the most recent message, or nil.
func (m *MockTransport) Last() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GenerateSineWave returns size int32 samples of a sine at frequency Hz
// with the given peak amplitude relative to full scale.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []int32 {
	return GenerateChord(size, sampleRate, amplitude, frequency)
}

// GenerateChord sums equal-amplitude sines; amplitude applies to each tone.
func GenerateChord(size int, sampleRate, amplitude float64, frequencies ...float64) []int32 {
	buffer := make([]int32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		var signal float64
		for _, f := range frequencies {
			signal += math.Sin(2 * math.Pi * f * tm)
		}
		buffer[i] = int32(max(-1, min(signal*amplitude, 1)) * math.MaxInt32)
	}
	return buffer
}

// FindPeakBin returns the index of the largest value in
// magnitudes[startBin:endBin+1].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	startBin = max(startBin, 0)
	endBin = min(endBin, len(magnitudes)-1)

	peakBin := startBin
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > magnitudes[peakBin] {
			peakBin = bin
		}
	}
	return peakBin
}
