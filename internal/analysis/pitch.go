// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
)

// NotApplicable is the note name of the sentinel pitch.
const NotApplicable = "N/A"

// ReferenceA4 is the tuning reference in Hz.
const ReferenceA4 = 440.0

// c0 is C0 under A4 = 440 Hz (A4 sits 4.75 octaves above C0).
var c0 = ReferenceA4 * math.Pow(2, -4.75)

// semitoneSnap absorbs log2 rounding so exact tones land on whole semitones.
const semitoneSnap = 1e-9

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchReference selects the tone cents are measured against.
type PitchReference int

const (
	// PitchReferenceFloor measures cents from the semitone at or below the
	// frequency while the note name comes from the nearest semitone and the
	// octave from the unrounded position. Cents fall in [0,100).
	PitchReferenceFloor PitchReference = iota
	// PitchReferenceNearest measures cents, note and octave from the
	// nearest semitone. Cents fall in (-50,50].
	PitchReferenceNearest
)

// String implements fmt.Stringer.
func (r PitchReference) String() string {
	switch r {
	case PitchReferenceFloor:
		return "floor"
	case PitchReferenceNearest:
		return "nearest"
	default:
		return "unknown"
	}
}

// ParsePitchReference converts a config name to a PitchReference.
func ParsePitchReference(name string) (PitchReference, error) {
	switch name {
	case "", "floor":
		return PitchReferenceFloor, nil
	case "nearest":
		return PitchReferenceNearest, nil
	default:
		return PitchReferenceFloor, fmt.Errorf("unknown pitch reference: '%s'", name)
	}
}

// Pitch is the equal-tempered name of a frequency.
type Pitch struct {
	Note   string  `json:"note"`
	Octave int     `json:"octave"`
	Cents  float64 `json:"cents"`
	Valid  bool    `json:"valid"`
}

// String formats the pitch like "A4 (+3 cents)".
func (p Pitch) String() string {
	if !p.Valid {
		return NotApplicable
	}
	return fmt.Sprintf("%s%d (%+.0f cents)", p.Note, p.Octave, p.Cents)
}

// NamePitch names f with the default floor reference.
func NamePitch(f float64) Pitch {
	return PitchReferenceFloor.Name(f)
}

// Name maps a frequency in Hz to note, octave and cents. Non-positive or
// non-finite frequencies yield the N/A sentinel.
func (r PitchReference) Name(f float64) Pitch {
	if !(f > 0) || math.IsInf(f, 1) {
		return Pitch{Note: NotApplicable}
	}

	halfSteps := 12 * math.Log2(f/c0)
	if rounded := math.Round(halfSteps); math.Abs(halfSteps-rounded) < semitoneSnap {
		halfSteps = rounded
	}
	nearest := math.Round(halfSteps)

	var octave, reference float64
	switch r {
	case PitchReferenceNearest:
		octave = math.Floor(nearest / 12)
		reference = nearest
	default:
		octave = math.Floor(halfSteps / 12)
		reference = math.Floor(halfSteps)
	}

	exact := c0 * math.Pow(2, reference/12)
	return Pitch{
		Note:   noteNames[mod12(int(nearest))],
		Octave: int(octave),
		Cents:  1200 * math.Log2(f/exact),
		Valid:  true,
	}
}

// NoteFrequency returns the equal-tempered frequency of a note name and
// octave, or false for unknown names.
func NoteFrequency(note string, octave int) (float64, bool) {
	i := NoteIndex(note)
	if i < 0 {
		return 0, false
	}
	return c0 * math.Pow(2, float64(octave)+float64(i)/12), true
}

// NoteIndex returns the chromatic index of a note name counted from C, or
// -1 for unknown names.
func NoteIndex(note string) int {
	for i, n := range noteNames {
		if n == note {
			return i
		}
	}
	return -1
}

// NoteName returns the name of chromatic index i, taken modulo 12.
func NoteName(i int) string {
	return noteNames[mod12(i)]
}

func mod12(n int) int {
	return ((n % 12) + 12) % 12
}
