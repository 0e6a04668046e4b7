// SPDX-License-Identifier: MIT

// Package source supplies mono int32 PCM to the engine.
package source

import (
	"errors"
	"io"

	applog "pitchscope/internal/log"
)

var logger = applog.New("source")

// ErrUnsupportedFormat reports audio the decoder cannot turn into PCM.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Source produces mono samples scaled to the full int32 range.
type Source interface {
	// Read fills dst and returns the number of samples written. It returns
	// io.EOF once the stream is exhausted and no samples were written.
	Read(dst []int32) (int, error)
	SampleRate() float64
}

// Rewinder is a Source that can restart from the beginning.
type Rewinder interface {
	Source
	Rewind() error
}

type looped struct {
	Rewinder
}

// Loop restarts src whenever it reaches the end.
func Loop(src Rewinder) Source {
	return &looped{Rewinder: src}
}

func (l *looped) Read(dst []int32) (int, error) {
	total := 0
	rewound := false
	for total < len(dst) {
		n, err := l.Rewinder.Read(dst[total:])
		total += n
		switch {
		case errors.Is(err, io.EOF):
			if n == 0 && rewound {
				// Empty source.
				if total == 0 {
					return 0, io.EOF
				}
				return total, nil
			}
			if err := l.Rewind(); err != nil {
				return total, err
			}
			rewound = true
			logger.Debugf("Looping source")
		case err != nil:
			return total, err
		case n > 0:
			rewound = false
		}
	}
	return total, nil
}
