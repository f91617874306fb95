// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	"soundcam/internal/camera"
)

// LoggingTransport implements the Transport interface by logging a one-line
// summary of every Nth frame.
type LoggingTransport struct {
	every uint64
	seen  atomic.Uint64
}

// NewLoggingTransport creates a LoggingTransport that logs every nth frame.
// n <= 1 logs every frame.
func NewLoggingTransport(n int) *LoggingTransport {
	if n < 1 {
		n = 1
	}
	logger.Infof("logging every %d frame(s)", n)
	return &LoggingTransport{every: uint64(n)}
}

// Send logs a summary of frames; other payloads are logged by type only.
func (lt *LoggingTransport) Send(data any) error {
	if (lt.seen.Add(1)-1)%lt.every != 0 {
		return nil
	}
	switch v := data.(type) {
	case camera.Frame:
		logFrame(v)
	case *camera.Frame:
		logFrame(*v)
	default:
		logger.Infof("received %T", data)
	}
	return nil // Logging transport never fails to "send"
}

func logFrame(f camera.Frame) {
	state := "above"
	if f.BelowThreshold {
		state = "below"
	}
	logger.Infof("frame %d [%s] max %.1f dB at (%.1f°, %.1f°), min %.1f dB, %s threshold %d",
		f.Sequence, f.Mode, f.Max, f.MaxAzimuth, f.MaxPolar, f.Min, state, f.Threshold)
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	logger.Debugf("logging transport closed after %d frame(s)", lt.seen.Load())
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
