// SPDX-License-Identifier: MIT
package beamform

import (
	"fmt"
	"math"

	"soundcam/internal/analysis"
)

// FrequencyDomain is a delay-and-sum beamformer over per-microphone spectra.
// Each bin is aligned by the conjugate of its steering phasor and summed
// across microphones; the beam power is accumulated over a bin band.
type FrequencyDomain struct {
	phases    *PhaseTable
	lo, hi    int
	scale     float64 // 2 / (N·Σw²), turns Σ|Y|² into mean-square LSB².
	reference float64
}

// NewFrequencyDomain returns a beamformer over bins [lo, hi) of the spectra
// the provider produces. reference is the power mapped to 0 dB; 0 means 1 LSB².
func NewFrequencyDomain(phases *PhaseTable, spectra analysis.SpectrumProvider, lo, hi int, reference float64) (*FrequencyDomain, error) {
	if lo < 0 || hi > phases.Bins() || lo >= hi {
		return nil, fmt.Errorf("beamform: bin range [%d, %d) outside [0, %d)", lo, hi, phases.Bins())
	}
	if spectra.WindowEnergy() <= 0 {
		return nil, fmt.Errorf("beamform: window energy must be positive")
	}
	if reference <= 0 {
		reference = 1
	}
	logger.Debugf("frequency beamformer over bins [%d, %d) (%.1f - %.1f Hz)",
		lo, hi, phases.Frequency(lo), phases.Frequency(hi-1))
	return &FrequencyDomain{
		phases:    phases,
		lo:        lo,
		hi:        hi,
		scale:     2 / (float64(spectra.Size()) * spectra.WindowEnergy()),
		reference: reference,
	}, nil
}

// Band returns the beamformed bin range [lo, hi).
func (b *FrequencyDomain) Band() (lo, hi int) { return b.lo, b.hi }

// Views fills dst with the spectrum of every microphone channel, reusing its
// backing array. The views alias the provider's workspace.
func (b *FrequencyDomain) Views(dst [][]complex128, spectra analysis.SpectrumProvider) [][]complex128 {
	dst = dst[:0]
	for m := range b.phases.Mics() {
		dst = append(dst, spectra.Spectrum(m))
	}
	return dst
}

// Power returns the band power of the beam steered at cell. views holds one
// spectrum per microphone as returned by Views; a missing or short view
// contributes nothing.
func (b *FrequencyDomain) Power(views [][]complex128, cell int) float64 {
	mics := b.phases.Mics()
	block := b.phases.cell(cell)

	var acc float64
	for k := b.lo; k < b.hi; k++ {
		row := block[k*mics : (k+1)*mics]
		var y complex128
		for m, w := range row {
			if m >= len(views) || k >= len(views[m]) {
				continue
			}
			x := views[m][k]
			// conj(w)·x
			y += complex(real(w)*real(x)+imag(w)*imag(x), real(w)*imag(x)-imag(w)*real(x))
		}
		acc += real(y)*real(y) + imag(y)*imag(y)
	}
	return acc * b.scale
}

// SPL returns Power in dB relative to the reference power.
func (b *FrequencyDomain) SPL(views [][]complex128, cell int) float64 {
	return 10 * math.Log10(math.Max(b.Power(views, cell), PowerFloor)/b.reference)
}
