// SPDX-License-Identifier: MIT

// Package tui renders analysis results for the terminal.
package tui

import (
	"fmt"
	"strings"

	"pitchscope/internal/analysis"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))

	spectrumStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4"))
)

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// Title renders a heading.
func Title(s string) string {
	return titleStyle.Render(s)
}

// Session describes the analysis set up in one line.
func Session(source string, geom analysis.Geometry, s analysis.Settings) string {
	return infoStyle.Render(fmt.Sprintf("%s: %.0f Hz, FFT %d (%d bins, %.2f Hz/bin), window %.0f ms, slope %.1f dB/oct, threshold %.0f dB, tracking %s",
		source, geom.SampleRate, geom.FFTSize, geom.Bins, geom.BinWidth(),
		s.WindowMs, s.SlopeWeight, s.ThresholdDb, s.Tracking))
}

// Result renders one analysis result: a header line, a spectrum sparkline
// of the given width and one line per label. Labels below the threshold
// are dimmed.
func Result(res *analysis.Result, width int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("#%-5d level %6.1f dB  threshold %5.1f\n", res.Sequence, res.LevelDb, res.Threshold))
	if width > 0 && len(res.Smoothed) > 0 {
		sb.WriteString(spectrumStyle.Render(Sparkline(res.Smoothed, width)))
		sb.WriteString("\n")
	}
	if len(res.Labels) == 0 {
		sb.WriteString(dimStyle.Render("  no peaks"))
		sb.WriteString("\n")
		return sb.String()
	}
	for _, l := range res.Labels {
		line := "  " + Label(l)
		if l.AboveThreshold {
			line = highlightStyle.Render(line)
		} else {
			line = dimStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Label formats a single label as fixed-width text.
func Label(l analysis.Label) string {
	note := analysis.NotApplicable
	cents := ""
	if l.Pitch.Valid {
		note = fmt.Sprintf("%s%d", l.Pitch.Note, l.Pitch.Octave)
		cents = fmt.Sprintf("%+4.0f¢", l.Pitch.Cents)
	}
	return fmt.Sprintf("%-4s %6s %9.2f Hz  mag %5.1f", note, cents, l.Frequency, l.Magnitude)
}

// NoteRow is one line of a Notes table.
type NoteRow struct {
	Frequency  float64 // as given
	Calibrated float64
	Pitch      analysis.Pitch
}

// Notes renders a frequency to pitch table.
func Notes(rows []NoteRow) string {
	var sb strings.Builder
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%9.2f Hz", r.Frequency))
		if r.Calibrated != r.Frequency {
			sb.WriteString(fmt.Sprintf(" -> %9.2f Hz", r.Calibrated))
		}
		sb.WriteString("  ")
		sb.WriteString(highlightStyle.Render(r.Pitch.String()))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Sparkline draws values on a logarithmic frequency axis with width
// columns. Each column shows the loudest bin it covers on the 0-255 scale;
// columns no bin lands in repeat their left neighbour.
func Sparkline(values []float64, width int) string {
	n := len(values)
	if n == 0 || width <= 0 {
		return ""
	}
	cols := make([]float64, width)
	has := make([]bool, width)
	for i, v := range values {
		col := int(analysis.NormalizedPosition(float64(i), n) * float64(width))
		col = min(max(col, 0), width-1)
		if !has[col] || v > cols[col] {
			cols[col] = v
		}
		has[col] = true
	}

	runes := make([]rune, width)
	for i := range cols {
		if !has[i] && i > 0 {
			cols[i] = cols[i-1]
		}
		runes[i] = sparkRune(cols[i])
	}
	return string(runes)
}

func sparkRune(v float64) rune {
	idx := int(v / analysis.FullScale * float64(len(sparkLevels)))
	return sparkLevels[min(max(idx, 0), len(sparkLevels)-1)]
}
