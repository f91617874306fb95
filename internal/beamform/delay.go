// SPDX-License-Identifier: MIT
/*
Package beamform implements delay-and-sum beamforming over a direction grid.

Two tables are built once from the array geometry: a DelayTable of integer
sample offsets for the time-domain beamformer, and a PhaseTable of unit
phasors for the frequency-domain beamformer. Both are read-only after
construction and may be shared by goroutines sweeping different cells.

Sign convention: the delay of microphone m towards direction u is
-(p_m·u)/c, positive when the microphone hears a wavefront from u later than
the array centre.
*/
package beamform

import (
	"fmt"
	"math"

	"soundcam/internal/geometry"
	applog "soundcam/internal/log"
)

// DefaultSpeedOfSound is the speed of sound in mm/s used by the MATRIX HAL.
const DefaultSpeedOfSound = 344 * 1000

var logger = applog.New("beamform")

// DelayTable holds, for every (cell, microphone), the geometric delay in
// seconds and its nearest-sample index. Storage is flat [cell][mic].
type DelayTable struct {
	grid       geometry.GridSpec
	mics       int
	samples    int
	sampleRate float64

	seconds    []float64
	index      []int
	normalized []int // index - minIndex, always in [0, samples)

	minIndex int
	maxIndex int
	clamped  int
}

// NewDelayTable projects every microphone onto every steering direction of
// the grid. speedOfSound is in mm/s to match the geometry, samples is the
// block length the indices must fit into.
func NewDelayTable(geo geometry.Geometry, grid geometry.GridSpec, sampleRate, speedOfSound float64, samples int) (*DelayTable, error) {
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("beamform: %w", err)
	}
	if geo.Len() == 0 {
		return nil, fmt.Errorf("beamform: geometry has no microphones")
	}
	if sampleRate <= 0 || speedOfSound <= 0 {
		return nil, fmt.Errorf("beamform: sample rate and speed of sound must be positive (got %f, %f)", sampleRate, speedOfSound)
	}
	if samples < 1 {
		return nil, fmt.Errorf("beamform: block length must be positive, got %d", samples)
	}

	mics := geo.Len()
	n := grid.Cells() * mics
	t := &DelayTable{
		grid:       grid,
		mics:       mics,
		samples:    samples,
		sampleRate: sampleRate,
		seconds:    make([]float64, n),
		index:      make([]int, n),
		normalized: make([]int, n),
		minIndex:   math.MaxInt,
		maxIndex:   math.MinInt,
	}

	for az := range grid.Azimuths {
		for pol := range grid.Polars {
			u := grid.Direction(az, pol)
			base := grid.Cell(az, pol) * mics
			for m := range mics {
				delay := -geo.Projection(m, u) / speedOfSound
				idx := int(math.Round(delay * sampleRate))
				t.seconds[base+m] = delay
				t.index[base+m] = idx
				t.minIndex = min(t.minIndex, idx)
				t.maxIndex = max(t.maxIndex, idx)
			}
		}
	}

	// Offsets that would not fit the block are pulled to the last sample
	// rather than dropped, so neighbouring cells stay continuous.
	limit := t.minIndex + samples - 1
	for i, idx := range t.index {
		if idx > limit {
			t.index[i] = limit
			t.clamped++
		}
		t.normalized[i] = t.index[i] - t.minIndex
	}
	if t.clamped > 0 {
		t.maxIndex = limit
		logger.Warnf("%d delay entries exceed a %d-sample block and were clamped", t.clamped, samples)
	}

	logger.Debugf("delay table built (cells: %d, mics: %d, index range: [%d, %d])",
		grid.Cells(), mics, t.minIndex, t.maxIndex)
	return t, nil
}

// Grid returns the direction grid the table was built for.
func (t *DelayTable) Grid() geometry.GridSpec { return t.grid }

// Mics returns the number of microphones.
func (t *DelayTable) Mics() int { return t.mics }

// Samples returns the block length the table was built for.
func (t *DelayTable) Samples() int { return t.samples }

// SampleRate returns the sample rate in Hz.
func (t *DelayTable) SampleRate() float64 { return t.sampleRate }

// MinIndex returns the smallest sample offset in the table.
func (t *DelayTable) MinIndex() int { return t.minIndex }

// MaxIndex returns the largest sample offset in the table.
func (t *DelayTable) MaxIndex() int { return t.maxIndex }

// Span returns MaxIndex - MinIndex.
func (t *DelayTable) Span() int { return t.maxIndex - t.minIndex }

// Clamped returns how many entries were clamped into the block.
func (t *DelayTable) Clamped() int { return t.clamped }

// Index returns the signed sample offset of mic m towards (az, pol).
func (t *DelayTable) Index(m, az, pol int) int {
	return t.index[t.grid.Cell(az, pol)*t.mics+m]
}

// Normalized returns Index(m, az, pol) - MinIndex.
func (t *DelayTable) Normalized(m, az, pol int) int {
	return t.normalized[t.grid.Cell(az, pol)*t.mics+m]
}

// Seconds returns the unrounded delay of mic m towards (az, pol).
func (t *DelayTable) Seconds(m, az, pol int) float64 {
	return t.seconds[t.grid.Cell(az, pol)*t.mics+m]
}

// cellNormalized returns the normalized offsets of every mic for one cell.
func (t *DelayTable) cellNormalized(cell int) []int {
	return t.normalized[cell*t.mics : (cell+1)*t.mics]
}

// cellSeconds returns the delays in seconds of every mic for one cell.
func (t *DelayTable) cellSeconds(cell int) []float64 {
	return t.seconds[cell*t.mics : (cell+1)*t.mics]
}
