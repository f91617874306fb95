// SPDX-License-Identifier: MIT
// Package udp publishes heat-map frames as compact binary UDP packets.
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"soundcam/internal/camera"
	applog "soundcam/internal/log"
)

var logger = applog.New("udp")

// DefaultInterval is used when the publisher is given a non-positive interval (~60Hz).
const DefaultInterval = 16 * time.Millisecond

// HeaderSize is the number of bytes before the cell values.
const HeaderSize = 4 + 8 + 2 + 2 + 2 + 4

// ErrShortPacket is returned by ParsePacket for truncated packets.
var ErrShortPacket = errors.New("udp: short packet")

// FrameSource is anything that holds a latest frame, usually *camera.Engine.
type FrameSource interface {
	Snapshot() (camera.Frame, bool)
}

// PacketSender transmits one datagram, usually *Sender.
type PacketSender interface {
	Send(data []byte) error
}

// Publisher periodically takes the latest frame from a FrameSource, packs it
// and sends it. A frame is sent once; ticks without a new frame are skipped.
type Publisher struct {
	sender   PacketSender
	source   FrameSource
	interval time.Duration

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Signals the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine during Stop.
	mu       sync.Mutex     // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32 // Packet counter, independent of frame sequence numbers.
	lastFrame   uint64 // Sequence of the last frame sent.
	packet      []byte // Reused packet buffer.
}

// NewPublisher creates a publisher. Both sender and source are required.
func NewPublisher(interval time.Duration, sender PacketSender, source FrameSource) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp publisher: sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("udp publisher: frame source cannot be nil")
	}
	if interval <= 0 {
		logger.Warnf("invalid interval %v, defaulting to %s", interval, DefaultInterval)
		interval = DefaultInterval
	}
	logger.Infof("publisher interval %s", interval)
	return &Publisher{
		sender:   sender,
		source:   source,
		interval: interval,
	}, nil
}

// Start launches the publishing goroutine. Calling Start on a running
// publisher is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		logger.Warnf("Start called but already running")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Local copies so the goroutine never reads the fields Stop resets.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.Publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publishing goroutine and waits for it to exit.
// Stopping a stopped publisher is a no-op.
func (p *Publisher) Stop() error {
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
	logger.Debugf("publisher stopped after %d packet(s)", p.sequenceNum)
	return nil
}

/*
UDP Packet Structure (BigEndian)

+------------------------------------------------------------------------------+
| Field           | Data Type | Size (Bytes) | Description                       |
|-----------------|-----------|--------------|-----------------------------------|
| Sequence Number | uint32    | 4            | Packet counter                    |
| Timestamp       | int64     | 8            | Frame time, nanoseconds since epoch|
| Azimuths        | uint16    | 2            | Grid columns (A)                  |
| Polars          | uint16    | 2            | Grid rows per column (P)          |
| Threshold       | uint16    | 2            | Display threshold in dB           |
| Max             | float32   | 4            | Loudest cell in dB                |
| Cells           | []float32 | A * P * 4    | Row-major [azimuth][polar] in dB  |
+------------------------------------------------------------------------------+
*/

// AppendPacket appends the packet for f to dst and returns the extended slice.
func AppendPacket(dst []byte, seq uint32, f camera.Frame) []byte {
	dst = binary.BigEndian.AppendUint32(dst, seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(f.Timestamp.UnixNano()))
	dst = binary.BigEndian.AppendUint16(dst, uint16(f.Azimuths))
	dst = binary.BigEndian.AppendUint16(dst, uint16(f.Polars))
	dst = binary.BigEndian.AppendUint16(dst, f.Threshold)
	dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(f.Max)))
	for _, v := range f.Grid {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(v)))
	}
	return dst
}

// Packet is a decoded heat-map packet.
type Packet struct {
	Sequence  uint32
	Timestamp time.Time
	Azimuths  int
	Polars    int
	Threshold uint16
	Max       float32
	Cells     []float32
}

// ParsePacket decodes a packet built by AppendPacket.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	p := Packet{
		Sequence:  binary.BigEndian.Uint32(b[0:]),
		Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(b[4:]))),
		Azimuths:  int(binary.BigEndian.Uint16(b[12:])),
		Polars:    int(binary.BigEndian.Uint16(b[14:])),
		Threshold: binary.BigEndian.Uint16(b[16:]),
		Max:       math.Float32frombits(binary.BigEndian.Uint32(b[18:])),
	}
	cells := p.Azimuths * p.Polars
	if want := HeaderSize + 4*cells; len(b) < want {
		return Packet{}, fmt.Errorf("%w: %d bytes, want %d", ErrShortPacket, len(b), want)
	}
	p.Cells = make([]float32, cells)
	for i := range p.Cells {
		p.Cells[i] = math.Float32frombits(binary.BigEndian.Uint32(b[HeaderSize+4*i:]))
	}
	return p, nil
}

// Publish sends the latest frame if it has not been sent yet. It reports
// whether a packet went out.
func (p *Publisher) Publish() bool {
	frame, ok := p.source.Snapshot()
	if !ok || frame.Sequence == p.lastFrame {
		return false
	}

	p.sequenceNum++
	p.packet = AppendPacket(p.packet[:0], p.sequenceNum, frame)
	if err := p.sender.Send(p.packet); err != nil {
		logger.Debugf("packet %d not sent: %v", p.sequenceNum, err)
		return false
	}
	p.lastFrame = frame.Sequence
	logger.Debugf("sent packet %d for frame %d (%d bytes)", p.sequenceNum, frame.Sequence, len(p.packet))
	return true
}

// Close implements io.Closer by stopping the publisher.
func (p *Publisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*Publisher)(nil)
