// SPDX-License-Identifier: MIT
package beamform

import (
	"fmt"
	"math"
	"math/cmplx"
)

// PhaseTable holds exp(-j·2π·f·delay) for every (cell, bin, mic), stored flat
// as [cell][bin][mic] so one cell's sweep reads contiguous memory.
type PhaseTable struct {
	cells int
	bins  int
	mics  int
	freqs []float64

	phasors []complex128
}

// NewPhaseTable builds the phase table from the fractional delays of a
// DelayTable and the analyzer's frequency axis.
func NewPhaseTable(delays *DelayTable, freqs []float64) (*PhaseTable, error) {
	if len(freqs) == 0 {
		return nil, fmt.Errorf("beamform: empty frequency axis")
	}
	cells := delays.Grid().Cells()
	mics := delays.Mics()
	bins := len(freqs)

	p := &PhaseTable{
		cells:   cells,
		bins:    bins,
		mics:    mics,
		freqs:   append([]float64(nil), freqs...),
		phasors: make([]complex128, cells*bins*mics),
	}

	for cell := range cells {
		tau := delays.cellSeconds(cell)
		block := p.cell(cell)
		for k, f := range p.freqs {
			row := block[k*mics : (k+1)*mics]
			for m := range mics {
				row[m] = cmplx.Rect(1, -2*math.Pi*f*tau[m])
			}
		}
	}

	logger.Debugf("phase table built (cells: %d, bins: %d, mics: %d, entries: %d)",
		cells, bins, mics, len(p.phasors))
	return p, nil
}

// Bins returns the number of frequency bins.
func (p *PhaseTable) Bins() int { return p.bins }

// Mics returns the number of microphones.
func (p *PhaseTable) Mics() int { return p.mics }

// Frequency returns the frequency of bin k in Hz.
func (p *PhaseTable) Frequency(k int) float64 { return p.freqs[k] }

// At returns the phasor of bin k, mic m at a cell index.
func (p *PhaseTable) At(k, m, cell int) complex128 {
	return p.phasors[(cell*p.bins+k)*p.mics+m]
}

// cell returns the [bin][mic] block of one cell.
func (p *PhaseTable) cell(cell int) []complex128 {
	size := p.bins * p.mics
	return p.phasors[cell*size : (cell+1)*size]
}
