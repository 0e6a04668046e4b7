// SPDX-License-Identifier: MIT
package analysis

// DefaultSlowLineDecay is the per-frame decay of the peak-hold line.
const DefaultSlowLineDecay = 0.98

// PeakHold tracks a slowly falling envelope over the weighted frames: each
// bin jumps up to a new maximum immediately and decays geometrically after.
type PeakHold struct {
	decay  float64
	values []float64
}

// NewPeakHold creates a peak-hold line for frames of the given length.
func NewPeakHold(bins int, decay float64) *PeakHold {
	return &PeakHold{decay: clamp(decay, 0, 1), values: make([]float64, max(bins, 0))}
}

// SetDecay changes the decay factor without touching the held values.
func (h *PeakHold) SetDecay(decay float64) {
	h.decay = clamp(decay, 0, 1)
}

// Push folds one frame into the envelope.
func (h *PeakHold) Push(frame []float64) {
	for i := range h.values {
		held := h.values[i] * h.decay
		if i < len(frame) && frame[i] > held {
			held = frame[i]
		}
		h.values[i] = held
	}
}

// Reset zeroes the envelope, resizing it when bins differs.
func (h *PeakHold) Reset(bins int) {
	if bins != len(h.values) {
		h.values = make([]float64, max(bins, 0))
		return
	}
	clear(h.values)
}

// Values returns the envelope, owned by the PeakHold.
func (h *PeakHold) Values() []float64 {
	return h.values
}
