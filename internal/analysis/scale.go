// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"strconv"
)

// NormalizedPosition maps a bin of an N-bin frame onto a logarithmic
// frequency axis in [0,1]: ln((bin/N)*(N-1)+1) / ln(N).
func NormalizedPosition(bin float64, bins int) float64 {
	if bins < 2 {
		return 0
	}
	n := float64(bins)
	return math.Log((bin/n)*(n-1)+1) / math.Log(n)
}

// GuideMark is one tick of the frequency axis guide.
type GuideMark struct {
	Hz       float64 `json:"hz"`
	Label    string  `json:"label"`
	Position float64 `json:"position"`
}

var guideFrequencies = [...]float64{20, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 20000}

// FrequencyGuide returns the axis marks for a display of the given geometry.
// Marks above Nyquist are dropped.
func FrequencyGuide(sampleRate float64, bins int) []GuideMark {
	nyquist := sampleRate / 2
	if nyquist <= 0 || bins < 2 {
		return nil
	}
	marks := make([]GuideMark, 0, len(guideFrequencies))
	for _, hz := range guideFrequencies {
		if hz > nyquist {
			break
		}
		// The axis maps hz/nyquist the same way a bin maps bin/N.
		pos := NormalizedPosition(hz/nyquist*float64(bins), bins)
		marks = append(marks, GuideMark{Hz: hz, Label: guideLabel(hz), Position: pos})
	}
	return marks
}

func guideLabel(hz float64) string {
	if hz >= 1000 {
		return strconv.FormatFloat(hz/1000, 'f', -1, 64) + "kHz"
	}
	return strconv.FormatFloat(hz, 'f', -1, 64) + "Hz"
}
