// SPDX-License-Identifier: MIT
package fft

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the window applied to each block before the transform.
type WindowFunc int

const (
	Blackman WindowFunc = iota
	BartlettHann
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

var windowNames = map[WindowFunc]string{
	Blackman:        "blackman",
	BartlettHann:    "bartletthann",
	BlackmanNuttall: "blackmannuttall",
	Hann:            "hann",
	Hamming:         "hamming",
	Lanczos:         "lanczos",
	Nuttall:         "nuttall",
}

// String implements fmt.Stringer.
func (w WindowFunc) String() string {
	if name, ok := windowNames[w]; ok {
		return name
	}
	return fmt.Sprintf("window(%d)", int(w))
}

// ParseWindowFunc converts a case-insensitive name to a WindowFunc. Unknown
// names return Blackman and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "blackman":
		return Blackman, nil
	case "bartletthann":
		return BartlettHann, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Blackman, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// windowCoefficients returns the coefficients of w for n points.
func windowCoefficients(w WindowFunc, n int) []float64 {
	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1
	}
	switch w {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		if w != Blackman {
			logger.Warnf("Unknown window function %s, defaulting to blackman", w)
		}
		window.Blackman(coeffs)
	}
	return coeffs
}
