// SPDX-License-Identifier: MIT
package analysis

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidCalibration reports a calibration table that cannot be used.
var ErrInvalidCalibration = errors.New("invalid calibration table")

// CalibrationPoint pairs a measured frequency with the frequency it should
// have reported.
type CalibrationPoint struct {
	Measured float64 `json:"measured" yaml:"measured"`
	Actual   float64 `json:"actual" yaml:"actual"`
}

// CalibrationTable corrects systematic frequency bias with a piecewise
// linear map. Below the first and above the last point the correction is
// the ratio of that end point, not a continuation of the adjacent segment.
// A table with fewer than two points is the identity.
//
// Tables are immutable; replace the whole table to change it.
type CalibrationTable struct {
	points []CalibrationPoint
}

// NewCalibrationTable copies and sorts the points by measured frequency.
// Measured and actual frequencies must be positive and measured values
// distinct.
func NewCalibrationTable(points []CalibrationPoint) (*CalibrationTable, error) {
	sorted := slices.Clone(points)
	slices.SortFunc(sorted, func(a, b CalibrationPoint) int {
		return cmp.Compare(a.Measured, b.Measured)
	})
	for i, p := range sorted {
		if !(p.Measured > 0) || !(p.Actual > 0) {
			return nil, fmt.Errorf("%w: point %d (%g -> %g) must be positive", ErrInvalidCalibration, i, p.Measured, p.Actual)
		}
		if i > 0 && sorted[i-1].Measured == p.Measured {
			return nil, fmt.Errorf("%w: duplicate measured frequency %g", ErrInvalidCalibration, p.Measured)
		}
	}
	return &CalibrationTable{points: sorted}, nil
}

// MustCalibrationTable is NewCalibrationTable for literal tables.
func MustCalibrationTable(pairs ...[2]float64) *CalibrationTable {
	points := make([]CalibrationPoint, len(pairs))
	for i, p := range pairs {
		points[i] = CalibrationPoint{Measured: p[0], Actual: p[1]}
	}
	t, err := NewCalibrationTable(points)
	if err != nil {
		panic(err)
	}
	return t
}

// Points returns a copy of the sorted points.
func (t *CalibrationTable) Points() []CalibrationPoint {
	if t == nil {
		return nil
	}
	return slices.Clone(t.points)
}

// Active reports whether the table changes anything at all.
func (t *CalibrationTable) Active() bool {
	return t != nil && len(t.points) >= 2
}

// Calibrate maps a measured frequency to the corrected frequency.
func (t *CalibrationTable) Calibrate(f float64) float64 {
	if !t.Active() {
		return f
	}
	pts := t.points
	first, last := pts[0], pts[len(pts)-1]
	if f < first.Measured {
		return f * (first.Actual / first.Measured)
	}
	if f > last.Measured {
		return f * (last.Actual / last.Measured)
	}

	// Index of the first point at or above f.
	i, _ := slices.BinarySearchFunc(pts, f, func(p CalibrationPoint, f float64) int {
		return cmp.Compare(p.Measured, f)
	})
	if i == 0 {
		return first.Actual
	}
	if i >= len(pts) {
		return last.Actual
	}
	if pts[i].Measured == f {
		return pts[i].Actual
	}
	lo, hi := pts[i-1], pts[i]
	ratio := (f - lo.Measured) / (hi.Measured - lo.Measured)
	return lo.Actual + ratio*(hi.Actual-lo.Actual)
}
