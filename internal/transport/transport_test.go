// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"soundcam/internal/beamform"
	"soundcam/internal/camera"
	applog "soundcam/internal/log"
	"soundcam/pkg/utils"

	"github.com/gorilla/websocket"
)

func testFrame(seq uint64) camera.Frame {
	return camera.Frame{
		Sequence:   seq,
		Timestamp:  time.Unix(1700000000, 0).UTC(),
		Mode:       beamform.FrequencyMode,
		Azimuths:   2,
		Polars:     3,
		Grid:       []float64{1, 2, 3, 4, 5, 6},
		Max:        6,
		Min:        1,
		MaxCell:    5,
		MaxAzimuth: 26.8,
		MaxPolar:   20.7,
		Threshold:  40,
	}
}

type failingTransport struct{ err error }

func (f failingTransport) Send(any) error { return f.err }
func (f failingTransport) Close() error   { return f.err }

func TestMultiFanOut(t *testing.T) {
	a, b := &utils.MockTransport{}, &utils.MockTransport{}
	boom := errors.New("boom")
	m := NewMulti(a, nil, failingTransport{boom}, b)
	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (nil skipped)", m.Len())
	}

	err := m.Send(testFrame(1))
	if !errors.Is(err, boom) {
		t.Errorf("Send() error = %v, want %v", err, boom)
	}
	// The failing target does not stop delivery to the others.
	for i, mt := range []*utils.MockTransport{a, b} {
		if n, last := mt.Sent(); n != 1 || last.(camera.Frame).Sequence != 1 {
			t.Errorf("target %d got %d sends, last %v", i, n, last)
		}
	}

	if err := m.Close(); !errors.Is(err, boom) {
		t.Errorf("Close() error = %v", err)
	}
	if !a.Closed || !b.Closed {
		t.Error("targets were not closed")
	}
	if m.Len() != 0 {
		t.Error("Close() should drop targets")
	}
}

func TestLoggingTransport(t *testing.T) {
	var buf bytes.Buffer
	applog.SetOutput(&buf)
	defer applog.SetOutput(os.Stderr)

	lt := NewLoggingTransport(2)
	for seq := uint64(1); seq <= 4; seq++ {
		f := testFrame(seq)
		if err := lt.Send(&f); err != nil {
			t.Fatal(err)
		}
	}
	out := buf.String()
	for _, want := range []string{"frame 1 [frequency]", "frame 3 [frequency]", "max 6.0 dB at (26.8°, 20.7°)"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "frame 2 ") || strings.Contains(out, "frame 4 ") {
		t.Errorf("every second frame should be skipped:\n%s", out)
	}
	if err := lt.Close(); err != nil {
		t.Error(err)
	}
}

func TestWebSocketTransport(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewWebSocketTransport() error = %v", err)
	}
	defer wst.Close()

	url := "ws://" + wst.Addr().String() + WebSocketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", url, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for wst.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client was never registered")
		}
		time.Sleep(time.Millisecond)
	}

	want := testFrame(7)
	if err := wst.Send(want); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got camera.Frame
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got.Sequence != want.Sequence || got.Mode != want.Mode || got.Cell(1, 2) != 6 {
		t.Errorf("received %+v, want %+v", got, want)
	}
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("timestamp %v, want %v", got.Timestamp, want.Timestamp)
	}

	if err := wst.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := wst.Send(want); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Send() after Close = %v, want net.ErrClosed", err)
	}
	if err := wst.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestWebSocketTransportBadAddress(t *testing.T) {
	if _, err := NewWebSocketTransport("127.0.0.1:not-a-port"); err == nil {
		t.Error("expected listen error")
	}
}
