// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"soundcam/internal/camera"
)

type fakeSource struct {
	mu    sync.Mutex
	frame camera.Frame
	ok    bool
}

func (s *fakeSource) Snapshot() (camera.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.ok
}

func (s *fakeSource) set(f camera.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame, s.ok = f, true
}

type fakeSender struct {
	mu      sync.Mutex
	packets [][]byte
	err     error
}

func (s *fakeSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.packets = append(s.packets, append([]byte(nil), data...))
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.packets)
}

func testFrame(seq uint64) camera.Frame {
	return camera.Frame{
		Sequence:  seq,
		Timestamp: time.Unix(0, 1_700_000_000_123_456_789),
		Azimuths:  2,
		Polars:    3,
		Grid:      []float64{10, 20, 30, 40, 50, 60.5},
		Max:       60.5,
		Threshold: 45,
	}
}

func TestPacketLayout(t *testing.T) {
	f := testFrame(9)
	b := AppendPacket(nil, 0x01020304, f)

	if len(b) != HeaderSize+6*4 {
		t.Fatalf("packet length %d, want %d", len(b), HeaderSize+24)
	}
	if got := b[:4]; got[0] != 1 || got[1] != 2 || got[2] != 3 || got[3] != 4 {
		t.Errorf("sequence bytes % x, want big-endian 01 02 03 04", got)
	}
	if ts := int64(binary.BigEndian.Uint64(b[4:12])); ts != f.Timestamp.UnixNano() {
		t.Errorf("timestamp %d", ts)
	}
	if az, pol := binary.BigEndian.Uint16(b[12:]), binary.BigEndian.Uint16(b[14:]); az != 2 || pol != 3 {
		t.Errorf("grid %dx%d", az, pol)
	}
	if th := binary.BigEndian.Uint16(b[16:]); th != 45 {
		t.Errorf("threshold %d", th)
	}
	if peak := math.Float32frombits(binary.BigEndian.Uint32(b[18:])); peak != 60.5 {
		t.Errorf("max %v", peak)
	}
	if last := math.Float32frombits(binary.BigEndian.Uint32(b[len(b)-4:])); last != 60.5 {
		t.Errorf("last cell %v", last)
	}

	p, err := ParsePacket(b)
	if err != nil {
		t.Fatal(err)
	}
	if p.Sequence != 0x01020304 || !p.Timestamp.Equal(f.Timestamp) || len(p.Cells) != 6 || p.Cells[1] != 20 {
		t.Errorf("ParsePacket() = %+v", p)
	}

	for _, n := range []int{0, HeaderSize - 1, len(b) - 1} {
		if _, err := ParsePacket(b[:n]); !errors.Is(err, ErrShortPacket) {
			t.Errorf("ParsePacket(%d bytes) error = %v, want ErrShortPacket", n, err)
		}
	}
}

func TestAppendPacketReusesBuffer(t *testing.T) {
	f := testFrame(1)
	buf := make([]byte, 0, HeaderSize+len(f.Grid)*4)
	allocs := testing.AllocsPerRun(100, func() {
		buf = AppendPacket(buf[:0], 1, f)
	})
	if allocs > 0 {
		t.Errorf("AppendPacket allocated %.1f times with a large enough buffer", allocs)
	}
}

func TestPublisherSendsEachFrameOnce(t *testing.T) {
	src := &fakeSource{}
	snd := &fakeSender{}
	p, err := NewPublisher(time.Hour, snd, src)
	if err != nil {
		t.Fatal(err)
	}

	if p.Publish() {
		t.Error("Publish() sent without a frame")
	}
	src.set(testFrame(1))
	if !p.Publish() {
		t.Error("Publish() skipped a new frame")
	}
	if p.Publish() {
		t.Error("Publish() resent the same frame")
	}
	src.set(testFrame(2))
	if !p.Publish() {
		t.Error("Publish() skipped the second frame")
	}

	if snd.count() != 2 {
		t.Fatalf("sent %d packets, want 2", snd.count())
	}
	second, err := ParsePacket(snd.packets[1])
	if err != nil {
		t.Fatal(err)
	}
	if second.Sequence != 2 {
		t.Errorf("packet sequence %d, want 2", second.Sequence)
	}

	// A failed send is retried on the next tick.
	snd.err = errors.New("network down")
	src.set(testFrame(3))
	if p.Publish() {
		t.Error("Publish() reported success on send error")
	}
	snd.err = nil
	if !p.Publish() {
		t.Error("Publish() did not retry after a send error")
	}
}

func TestNewPublisherValidation(t *testing.T) {
	if _, err := NewPublisher(time.Second, nil, &fakeSource{}); err == nil {
		t.Error("expected error for nil sender")
	}
	if _, err := NewPublisher(time.Second, &fakeSender{}, nil); err == nil {
		t.Error("expected error for nil source")
	}
	p, err := NewPublisher(0, &fakeSender{}, &fakeSource{})
	if err != nil {
		t.Fatal(err)
	}
	if p.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", p.interval, DefaultInterval)
	}
}

func TestPublisherOverUDP(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}
	defer conn.Close()

	sender, err := NewSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewSender() error = %v", err)
	}
	defer sender.Close()

	src := &fakeSource{}
	src.set(testFrame(5))
	p, err := NewPublisher(time.Millisecond, sender, src)
	if err != nil {
		t.Fatal(err)
	}
	p.Start()
	p.Start() // no-op
	defer p.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 2048)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP() error = %v", err)
	}
	packet, err := ParsePacket(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if packet.Sequence != 1 || packet.Max != 60.5 || packet.Threshold != 45 {
		t.Errorf("received %+v", packet)
	}

	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestSenderClosed(t *testing.T) {
	s, err := NewSender("127.0.0.1:9")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := s.Send([]byte{1}); !errors.Is(err, ErrSenderClosed) {
		t.Errorf("Send() after Close = %v, want ErrSenderClosed", err)
	}
}

func TestNewSenderBadAddress(t *testing.T) {
	if _, err := NewSender("no-port"); err == nil {
		t.Error("expected resolve error")
	}
}
