// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
)

// Tracker smoothing defaults. Each is the weight kept from the previous
// frame; the new observation gets the remainder.
const (
	DefaultBinDecay       = 0.99
	DefaultMagnitudeDecay = 0.9
	DefaultPositionDecay  = 0.995

	DefaultMaxLabels        = 4
	DefaultMaxMatchDistance = 8.0
)

// TrackingStrategy decides which candidate each tracked slot follows.
type TrackingStrategy int

const (
	// TrackByRank pairs slot i with the i-th strongest candidate. Cheap and
	// stable while the ranking holds; when two peaks swap rank their slots
	// swap targets and glide across to each other.
	TrackByRank TrackingStrategy = iota
	// TrackByFrequency pairs each slot with the nearest unclaimed candidate.
	TrackByFrequency
)

// String implements fmt.Stringer.
func (s TrackingStrategy) String() string {
	switch s {
	case TrackByRank:
		return "rank"
	case TrackByFrequency:
		return "frequency"
	default:
		return "unknown"
	}
}

// ParseTrackingStrategy converts a config name to a TrackingStrategy.
func ParseTrackingStrategy(name string) (TrackingStrategy, error) {
	switch name {
	case "", "rank":
		return TrackByRank, nil
	case "frequency", "nearest":
		return TrackByFrequency, nil
	default:
		return TrackByRank, fmt.Errorf("unknown tracking strategy: '%s'", name)
	}
}

// TrackedPeak is a peak smoothed across frames.
type TrackedPeak struct {
	Bin       float64 // smoothed bin index
	Magnitude float64 // smoothed magnitude
	Position  float64 // smoothed label position on the log axis, [0,1]
}

// TrackerOptions configures a Tracker.
type TrackerOptions struct {
	Strategy         TrackingStrategy
	MaxSlots         int
	BinDecay         float64
	MagnitudeDecay   float64
	PositionDecay    float64
	MaxMatchDistance float64 // bins, TrackByFrequency only
	StaleMagnitude   float64 // TrackByFrequency re-seeds slots below this
}

// Tracker holds a fixed number of slots that follow the detected peaks.
type Tracker struct {
	opts    TrackerOptions
	bins    int
	slots   []TrackedPeak
	claimed []bool
}

// NewTracker creates an empty tracker for frames of the given length.
func NewTracker(bins int, opts TrackerOptions) *Tracker {
	if opts.MaxSlots <= 0 {
		opts.MaxSlots = DefaultMaxLabels
	}
	opts.BinDecay = clamp(opts.BinDecay, 0, 1)
	opts.MagnitudeDecay = clamp(opts.MagnitudeDecay, 0, 1)
	opts.PositionDecay = clamp(opts.PositionDecay, 0, 1)
	if opts.MaxMatchDistance <= 0 {
		opts.MaxMatchDistance = DefaultMaxMatchDistance
	}
	return &Tracker{
		opts:    opts,
		bins:    bins,
		slots:   make([]TrackedPeak, 0, opts.MaxSlots),
		claimed: make([]bool, 0, DefaultMaxCandidates),
	}
}

// Slots returns the tracked peaks. The slice is owned by the tracker.
func (t *Tracker) Slots() []TrackedPeak {
	return t.slots
}

// Strategy returns the active strategy.
func (t *Tracker) Strategy() TrackingStrategy {
	return t.opts.Strategy
}

// Reset drops all slots; the next Update seeds them from raw candidates.
func (t *Tracker) Reset(bins int) {
	t.bins = bins
	t.slots = t.slots[:0]
}

// Update folds the ranked candidates of the current frame into the slots.
func (t *Tracker) Update(cands []Peak) {
	switch t.opts.Strategy {
	case TrackByFrequency:
		t.updateByFrequency(cands)
	default:
		t.updateByRank(cands)
	}
}

func (t *Tracker) updateByRank(cands []Peak) {
	for i := range t.slots {
		if i < len(cands) {
			t.follow(&t.slots[i], cands[i])
		} else {
			t.fade(&t.slots[i])
		}
	}
	for i := len(t.slots); i < len(cands) && len(t.slots) < t.opts.MaxSlots; i++ {
		t.seed(cands[i])
	}
}

func (t *Tracker) updateByFrequency(cands []Peak) {
	t.claimed = t.claimed[:0]
	for range cands {
		t.claimed = append(t.claimed, false)
	}

	var unmatched [DefaultMaxCandidates]int // slot indices, MaxSlots is small
	nUnmatched := 0
	for s := range t.slots {
		best, bestDist := -1, t.opts.MaxMatchDistance
		for c, cand := range cands {
			if t.claimed[c] {
				continue
			}
			if d := math.Abs(float64(cand.Bin) - t.slots[s].Bin); d <= bestDist {
				best, bestDist = c, d
			}
		}
		if best >= 0 {
			t.claimed[best] = true
			t.follow(&t.slots[s], cands[best])
			continue
		}
		if nUnmatched < len(unmatched) {
			unmatched[nUnmatched] = s
			nUnmatched++
		} else {
			t.fade(&t.slots[s])
		}
	}

	for _, s := range unmatched[:nUnmatched] {
		slot := &t.slots[s]
		if c := t.strongestUnclaimed(); c >= 0 && slot.Magnitude < t.opts.StaleMagnitude {
			t.claimed[c] = true
			*slot = t.raw(cands[c])
			continue
		}
		t.fade(slot)
	}

	for c, cand := range cands {
		if len(t.slots) >= t.opts.MaxSlots {
			break
		}
		if !t.claimed[c] {
			t.claimed[c] = true
			t.seed(cand)
		}
	}
}

// strongestUnclaimed returns the first unclaimed candidate; candidates are
// ranked so that is the strongest.
func (t *Tracker) strongestUnclaimed() int {
	for c, taken := range t.claimed {
		if !taken {
			return c
		}
	}
	return -1
}

func (t *Tracker) follow(slot *TrackedPeak, p Peak) {
	o := t.opts
	bin := float64(p.Bin)
	slot.Bin = slot.Bin*o.BinDecay + bin*(1-o.BinDecay)
	slot.Magnitude = slot.Magnitude*o.MagnitudeDecay + p.Magnitude*(1-o.MagnitudeDecay)
	slot.Position = slot.Position*o.PositionDecay + NormalizedPosition(bin, t.bins)*(1-o.PositionDecay)
}

// fade lets a slot without a target keep its place and lose magnitude.
func (t *Tracker) fade(slot *TrackedPeak) {
	slot.Magnitude *= t.opts.MagnitudeDecay
}

func (t *Tracker) seed(p Peak) {
	t.slots = append(t.slots, t.raw(p))
}

func (t *Tracker) raw(p Peak) TrackedPeak {
	bin := float64(p.Bin)
	return TrackedPeak{Bin: bin, Magnitude: p.Magnitude, Position: NormalizedPosition(bin, t.bins)}
}

// SetOptions swaps the tracker configuration between frames. Slots survive
// unless the strategy changes or they no longer fit.
func (t *Tracker) SetOptions(opts TrackerOptions) {
	reset := opts.Strategy != t.opts.Strategy
	fresh := NewTracker(t.bins, opts)
	t.opts = fresh.opts
	if reset || len(t.slots) > t.opts.MaxSlots {
		t.slots = fresh.slots
	}
}
