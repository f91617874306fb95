// SPDX-License-Identifier: MIT
package analysis

// SpectrumProvider exposes the complex spectra of the most recently processed
// block. The frequency-domain beamformer consumes it, so the
// beamformer never depends on the concrete Analyzer or its FFT backend.
type SpectrumProvider interface {
	// Spectrum returns the N/2+1 complex bins of a channel. The slice is a
	// view into the provider's workspace and is overwritten by the next block.
	Spectrum(channel int) []complex128
	// Size returns the FFT length N.
	Size() int
	// WindowEnergy returns the sum of squared window coefficients, used to
	// turn accumulated |X|^2 back into a mean-square power.
	WindowEnergy() float64
}

// FrequencyAxis maps FFT bins to frequencies.
type FrequencyAxis interface {
	Bins() int
	FrequencyForBin(binIndex int) float64
}

// Compile-time checks for interface implementations.
var _ SpectrumProvider = (*Analyzer)(nil)
var _ FrequencyAxis = (*Analyzer)(nil)
