// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"strings"
	"sync"

	"pitchscope/internal/analysis"
)

// LoggingTransport implements the Transport interface by logging a summary
// of every Nth result.
type LoggingTransport struct {
	every int
	mu    sync.Mutex
	count int
}

// NewLoggingTransport creates a LoggingTransport that logs one result out
// of every (values below 1 log all of them).
func NewLoggingTransport(every int) *LoggingTransport {
	logger.Infof("Using LoggingTransport (every %d frames)", max(every, 1))
	return &LoggingTransport{every: max(every, 1)}
}

// Send logs data. Results are summarised; anything else is logged at
// debug level.
func (lt *LoggingTransport) Send(data any) error {
	lt.mu.Lock()
	lt.count++
	skip := (lt.count-1)%lt.every != 0
	lt.mu.Unlock()
	if skip {
		return nil
	}

	res, ok := data.(*analysis.Result)
	if !ok {
		logger.Debugf("Received %T", data)
		return nil
	}
	logger.Infof("Frame %d: level %.1f dB, %s", res.Sequence, res.LevelDb, SummarizeLabels(res.Labels))
	return nil
}

// SummarizeLabels renders labels as "A4 (+0 cents) @ 440.0 Hz, ...".
func SummarizeLabels(labels []analysis.Label) string {
	if len(labels) == 0 {
		return "no peaks"
	}
	var b strings.Builder
	for i, l := range labels {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s @ %.1f Hz", l.Pitch, l.Frequency)
		if !l.AboveThreshold {
			b.WriteString(" (below threshold)")
		}
	}
	return b.String()
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	logger.Debugf("LoggingTransport closed after %d messages", lt.count)
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
