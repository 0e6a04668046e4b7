// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"pitchscope/internal/analysis"
)

/*
UDP Packet Structure (BigEndian)

+--------------------------------------------------------------------------+
| Field           | Data Type  | Size (Bytes) | Description                |
|-----------------|------------|--------------|----------------------------|
| Sequence Number | uint32     | 4            | Monotonically increasing   |
| Timestamp       | int64      | 8            | Nanoseconds since epoch    |
| Level           | float32    | 4            | Mean level, dB full scale  |
| Threshold       | float32    | 4            | Label threshold, 0-255     |
| Bin Count       | uint16     | 2            | Number of floats (N)       |
| Spectrum        | []float32  | N * 4        | Smoothed spectrum, 0-255   |
| Label Count     | uint8      | 1            | Number of labels (L)       |
| Labels          | []label    | L * 20       | See below                  |
+--------------------------------------------------------------------------+

Label:

|<- 4 ->|<- 4 ->|<- 4 ->|<- 4 ->|<-1->|<-1->|<-1->|<-1->|
+-------+-------+-------+-------+-----+-----+-----+-----+
| Freq  |  Mag  |  Pos  | Cents | Note| Oct | Flg | Pad |
| f32   |  f32  |  f32  |  f32  | u8  | i8  | u8  | u8  |
+-------+-------+-------+-------+-----+-----+-----+-----+

Spectra too large for one datagram are decimated by taking the maximum of
each run of adjacent bins, so N may be smaller than the result's bin count.

Note is the chromatic index from C, or 0xFF when the pitch is N/A.
Flag bit 0 marks a label above the threshold.
*/

const (
	headerSize   = 4 + 8 + 4 + 4 + 2
	labelSize    = 20
	noteNone     = 0xFF
	flagAbove    = 1
	maxLabelsOut = math.MaxUint8

	// MaxDatagram is the largest UDP payload over IPv4.
	MaxDatagram = 65507
)

// ErrShortPacket reports a packet that ends before its declared content.
var ErrShortPacket = errors.New("short UDP packet")

// PacketLabel is a decoded label.
type PacketLabel struct {
	Frequency      float32
	Magnitude      float32
	Position       float32
	Cents          float32
	Note           string
	Octave         int
	AboveThreshold bool
}

// Packet is a decoded UDP packet.
type Packet struct {
	Sequence  uint32
	Timestamp time.Time
	LevelDb   float32
	Threshold float32
	Spectrum  []float32
	Labels    []PacketLabel
}

type wireLabel struct {
	Frequency float32
	Magnitude float32
	Position  float32
	Cents     float32
	Note      uint8
	Octave    int8
	Flags     uint8
	_         uint8
}

// encoder packs results into reusable buffers.
type encoder struct {
	spectrum []float32
	labels   []wireLabel
	buf      bytes.Buffer
}

// encode packs res into the internal buffer and returns its bytes, valid
// until the next call.
func (e *encoder) encode(seq uint32, ts time.Time, res *analysis.Result) ([]byte, error) {
	e.labels = e.labels[:0]
	for _, l := range res.Labels[:min(len(res.Labels), maxLabelsOut)] {
		e.labels = append(e.labels, toWire(l))
	}

	room := (MaxDatagram - headerSize - 1 - len(e.labels)*labelSize) / 4
	n := len(res.Smoothed)
	step := max(1, (n+room-1)/room)
	bins := (n + step - 1) / step
	if cap(e.spectrum) < bins {
		e.spectrum = make([]float32, bins)
	}
	e.spectrum = e.spectrum[:bins]
	for i := range e.spectrum {
		lo := i * step
		peak := res.Smoothed[lo]
		for _, v := range res.Smoothed[lo+1 : min(lo+step, n)] {
			peak = max(peak, v)
		}
		e.spectrum[i] = float32(peak)
	}

	e.buf.Reset()
	for _, v := range []any{
		seq, ts.UnixNano(), float32(res.LevelDb), float32(res.Threshold), uint16(bins),
		e.spectrum, uint8(len(e.labels)), e.labels,
	} {
		if err := binary.Write(&e.buf, binary.BigEndian, v); err != nil {
			return nil, fmt.Errorf("failed to pack UDP packet: %w", err)
		}
	}
	return e.buf.Bytes(), nil
}

func toWire(l analysis.Label) wireLabel {
	w := wireLabel{
		Frequency: float32(l.Frequency),
		Magnitude: float32(l.Magnitude),
		Position:  float32(l.Position),
		Cents:     float32(l.Pitch.Cents),
		Note:      noteNone,
	}
	if l.Pitch.Valid {
		w.Note = uint8(analysis.NoteIndex(l.Pitch.Note))
		w.Octave = int8(max(math.MinInt8, min(l.Pitch.Octave, math.MaxInt8)))
	}
	if l.AboveThreshold {
		w.Flags |= flagAbove
	}
	return w
}

// DecodePacket parses a packet produced by the publisher.
func DecodePacket(b []byte) (*Packet, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	r := bytes.NewReader(b)

	var head struct {
		Sequence  uint32
		Timestamp int64
		LevelDb   float32
		Threshold float32
		Bins      uint16
	}
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return nil, decodeErr(err)
	}

	p := &Packet{
		Sequence:  head.Sequence,
		Timestamp: time.Unix(0, head.Timestamp),
		LevelDb:   head.LevelDb,
		Threshold: head.Threshold,
		Spectrum:  make([]float32, head.Bins),
	}
	if err := binary.Read(r, binary.BigEndian, p.Spectrum); err != nil {
		return nil, decodeErr(err)
	}

	var count uint8
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, decodeErr(err)
	}
	wire := make([]wireLabel, count)
	if err := binary.Read(r, binary.BigEndian, wire); err != nil {
		return nil, decodeErr(err)
	}

	p.Labels = make([]PacketLabel, len(wire))
	for i, w := range wire {
		l := PacketLabel{
			Frequency:      w.Frequency,
			Magnitude:      w.Magnitude,
			Position:       w.Position,
			Cents:          w.Cents,
			Note:           analysis.NotApplicable,
			AboveThreshold: w.Flags&flagAbove != 0,
		}
		if w.Note != noteNone {
			l.Note = analysis.NoteName(int(w.Note))
			l.Octave = int(w.Octave)
		}
		p.Labels[i] = l
	}
	return p, nil
}

func decodeErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrShortPacket, err)
	}
	return err
}
