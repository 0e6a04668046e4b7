// SPDX-License-Identifier: MIT

// Package udp publishes analysis results as compact binary UDP packets.
package udp

import (
	"errors"
	"sync"
	"time"

	"pitchscope/internal/analysis"
	"pitchscope/internal/transport"
)

// DefaultInterval is the publishing period used when none is given.
const DefaultInterval = 16 * time.Millisecond

// PacketSender is where packed packets go; *UDPSender in production.
type PacketSender interface {
	Send(data []byte) error
	Close() error
}

// UDPPublisher keeps the latest analysis result and, on every tick of its
// interval, packs it into the binary format described in packet.go and
// hands it to the sender. Results that were already published are not
// sent again. It runs in a separate goroutine managed by Start and Stop.
type UDPPublisher struct {
	sender   PacketSender
	interval time.Duration

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Channel used to signal the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects ticker, doneChan and latest.

	latest      *analysis.Result
	published   uint64 // Result.Sequence of the last packet
	sequenceNum uint32 // Packet sequence number.
	enc         encoder
	closed      bool
}

// NewUDPPublisher creates a publisher. An invalid interval (<= 0) defaults
// to DefaultInterval.
func NewUDPPublisher(interval time.Duration, sender PacketSender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, errors.New("UDPPublisher: UDP sender cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultInterval
		logger.Warnf("Invalid interval provided, defaulting to %s", interval)
	}
	logger.Infof("Initializing publisher (Interval: %s)", interval)
	return &UDPPublisher{sender: sender, interval: interval}, nil
}

// Send stores the latest result for the next tick. Values other than
// *analysis.Result are ignored.
func (p *UDPPublisher) Send(data any) error {
	res, ok := data.(*analysis.Result)
	if !ok || res == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.latest = res
	return nil
}

// Start begins the periodic publishing process. Calling Start while
// running is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		logger.Warnf("Start called but already running")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Capture for the goroutine to avoid races on p.ticker/p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		logger.Debugf("Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to
// exit. Calling Stop when not running is a no-op.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	logger.Debugf("Publisher goroutine finished")
	return nil
}

// publish sends the latest result if it has not been sent yet.
func (p *UDPPublisher) publish() {
	p.mu.Lock()
	res := p.latest
	if res == nil || res.Sequence == p.published {
		p.mu.Unlock()
		return
	}
	p.published = res.Sequence
	p.mu.Unlock()

	p.sequenceNum++
	packet, err := p.enc.encode(p.sequenceNum, time.Now(), res)
	if err != nil {
		logger.Errorf("%v", err)
		return
	}
	if err := p.sender.Send(packet); err != nil {
		logger.Warnf("Error sending packet %d: %v", p.sequenceNum, err)
		return
	}
	logger.Debugf("Sent packet %d (%d bytes)", p.sequenceNum, len(packet))
}

// Close stops the publisher and closes its sender.
func (p *UDPPublisher) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.sender.Close()
}

// Ensure UDPPublisher satisfies the interface at compile time.
var _ transport.Transport = (*UDPPublisher)(nil)
