// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"sync"
)

// MockTransport implements the transport.Transport interface for testing.
type MockTransport struct {
	mu       sync.Mutex
	LastData any
	Count    int
	Closed   bool
}

// Send stores the data for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := data.([]float64); ok {
		data = append([]float64(nil), f...)
	}
	m.LastData = data
	m.Count++
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Sent returns the number of Send calls and the last payload.
func (m *MockTransport) Sent() (int, any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Count, m.LastData
}

// GenerateTone returns size samples of amplitude*sin(2π·frequency·t), rounded
// and saturated to int16.
func GenerateTone(size int, sampleRate, frequency, amplitude float64) []int16 {
	return GenerateDelayedTone(size, sampleRate, frequency, amplitude, 0)
}

// GenerateDelayedTone returns the same tone as GenerateTone, delayed by
// delay seconds (fractional delays are exact, the tone is analytic).
func GenerateDelayedTone(size int, sampleRate, frequency, amplitude, delay float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		t := float64(i)/sampleRate - delay
		buffer[i] = saturate(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// GenerateNoise returns deterministic white noise in [-amplitude, amplitude]
// from a small LCG, so tests stay reproducible without math/rand seeding.
func GenerateNoise(size int, amplitude float64, seed uint32) []int16 {
	buffer := make([]int16, size)
	state := seed | 1
	for i := range buffer {
		state = state*1664525 + 1013904223
		u := float64(state)/float64(math.MaxUint32)*2 - 1
		buffer[i] = saturate(u * amplitude)
	}
	return buffer
}

// Shift returns src delayed by n samples (n may be negative); vacated
// samples are zero.
func Shift(src []int16, n int) []int16 {
	dst := make([]int16, len(src))
	for i := range dst {
		j := i - n
		if j >= 0 && j < len(src) {
			dst[i] = src[j]
		}
	}
	return dst
}

// Interleave builds a [sample][channel] block from equally long channels.
func Interleave(channels ...[]int16) []int16 {
	if len(channels) == 0 {
		return nil
	}
	size := len(channels[0])
	out := make([]int16, size*len(channels))
	for c, ch := range channels {
		for i := 0; i < size && i < len(ch); i++ {
			out[i*len(channels)+c] = ch[i]
		}
	}
	return out
}

// MeanChannel returns the per-sample mean of the given channels, the same
// boresight beam the acquisition layer appends as its last channel.
func MeanChannel(channels ...[]int16) []int16 {
	if len(channels) == 0 {
		return nil
	}
	out := make([]int16, len(channels[0]))
	for i := range out {
		var sum int
		for _, ch := range channels {
			sum += int(ch[i])
		}
		out[i] = int16(sum / len(channels))
	}
	return out
}

func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}

func saturate(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
