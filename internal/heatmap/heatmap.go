// SPDX-License-Identifier: MIT
/*
Package heatmap keeps the temporally smoothed SPL of every grid cell and the
threshold that gates what is worth displaying.

Update may be called concurrently for different cells; each call touches only
its own slot. Alpha and threshold are atomics so a UI goroutine can change
them while a frame is being swept.
*/
package heatmap

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"
)

// DisplaySpan is the dB range shown when the loudest cell is below threshold.
const DisplaySpan = 5

// DefaultAlpha weights the newest frame fully, i.e. no smoothing.
const DefaultAlpha = 1.0

// ErrInvalidAlpha is returned for a smoothing factor outside (0, 1].
var ErrInvalidAlpha = errors.New("heatmap: alpha must be in (0, 1]")

// Map is a grid of exponentially smoothed SPL values in dB.
type Map struct {
	values    []float64
	alpha     atomic.Uint64 // math.Float64bits
	threshold atomic.Uint32
}

// New returns a zeroed map of cells slots.
func New(cells int, alpha float64, threshold uint16) (*Map, error) {
	if cells < 1 {
		return nil, fmt.Errorf("heatmap: cell count must be positive, got %d", cells)
	}
	m := &Map{values: make([]float64, cells)}
	if err := m.SetAlpha(alpha); err != nil {
		return nil, err
	}
	m.SetThreshold(threshold)
	return m, nil
}

// Len returns the number of cells.
func (m *Map) Len() int { return len(m.values) }

// Update blends v into the cell, stores and returns the smoothed value.
func (m *Map) Update(cell int, v float64) float64 {
	a := m.Alpha()
	s := a*v + (1-a)*m.values[cell]
	m.values[cell] = s
	return s
}

// Value returns the smoothed value of a cell.
func (m *Map) Value(cell int) float64 { return m.values[cell] }

// Values copies the grid into dst, growing it if needed.
func (m *Map) Values(dst []float64) []float64 {
	if cap(dst) < len(m.values) {
		dst = make([]float64, len(m.values))
	}
	dst = dst[:len(m.values)]
	copy(dst, m.values)
	return dst
}

// Reset zeroes every cell.
func (m *Map) Reset() {
	clear(m.values)
}

// SetAlpha sets the weight of the newest frame. Values outside (0, 1] are
// rejected and leave the current alpha unchanged.
func (m *Map) SetAlpha(alpha float64) error {
	if !(alpha > 0 && alpha <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidAlpha, alpha)
	}
	m.alpha.Store(math.Float64bits(alpha))
	return nil
}

// Alpha returns the current smoothing factor.
func (m *Map) Alpha() float64 {
	return math.Float64frombits(m.alpha.Load())
}

// SetThreshold sets the display threshold in dB.
func (m *Map) SetThreshold(level uint16) {
	m.threshold.Store(uint32(level))
}

// Threshold returns the display threshold in dB.
func (m *Map) Threshold() uint16 {
	return uint16(m.threshold.Load())
}

// Max returns the largest smoothed value and its cell.
func (m *Map) Max() (float64, int) {
	i := floats.MaxIdx(m.values)
	return m.values[i], i
}

// Min returns the smallest smoothed value and its cell.
func (m *Map) Min() (float64, int) {
	i := floats.MinIdx(m.values)
	return m.values[i], i
}

// BelowThreshold reports whether peak is quieter than the threshold.
func (m *Map) BelowThreshold(peak float64) bool {
	return peak < float64(m.Threshold())
}

// DisplayRange returns the colour scale for a frame: the frame's own
// [min, max] normally, or a flat [threshold, threshold+DisplaySpan] when the
// loudest cell is below threshold so quiet scenes render uniformly cold.
func DisplayRange(quietest, loudest float64, threshold uint16) (lo, hi float64) {
	th := float64(threshold)
	if loudest < th {
		return th, th + DisplaySpan
	}
	return quietest, loudest
}
