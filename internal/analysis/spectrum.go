// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	applog "soundcam/internal/log"

	"gonum.org/v1/gonum/floats"
)

// MagnitudeFloor is the smallest amplitude passed to the logarithm, so a
// silent bin reads -200 dB instead of -Inf.
const MagnitudeFloor = 1e-10

// ErrBlockSize is returned when a block does not hold Size()*Channels() samples.
var ErrBlockSize = errors.New("analysis: block size mismatch")

var logger = applog.New("analysis")

// Options configures an Analyzer.
type Options struct {
	Size       int         // FFT length N, equal to the number of samples per block.
	SampleRate float64     // Hz.
	Channels   int         // Interleaved channels per sample frame.
	Window     WindowFunc  // Window applied before the transform.
	Backend    BackendKind // FFT implementation.
	Reference  float64     // Amplitude reference for dB conversion; 0 means 1 LSB.
}

// Analyzer computes per-channel spectra of an interleaved int16 block.
// Process recomputes every buffer in place; nothing carries over between blocks.
type Analyzer struct {
	size       int
	bins       int
	channels   int
	sampleRate float64
	reference  float64

	fft transformer

	window       []float64
	windowSum    float64 // Σw, the coherent gain.
	windowEnergy float64 // Σw², the power gain.

	// Pre-allocated workspace, flat [channel][bin].
	input   []float64
	spectra []complex128
	db      []float64
}

// NewAnalyzer pre-allocates all buffers and computes the window coefficients.
func NewAnalyzer(opts Options) (*Analyzer, error) {
	if opts.Size < 2 {
		return nil, fmt.Errorf("analysis: fft size must be at least 2, got %d", opts.Size)
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("analysis: sample rate must be positive, got %f", opts.SampleRate)
	}
	if opts.Channels < 1 {
		return nil, fmt.Errorf("analysis: channel count must be positive, got %d", opts.Channels)
	}
	if opts.Reference <= 0 {
		opts.Reference = 1
	}

	fft, err := newTransformer(opts.Backend, opts.Size)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	coeffs := make([]float64, opts.Size)
	applyWindow(coeffs, opts.Window)
	var energy float64
	for _, w := range coeffs {
		energy += w * w
	}

	// FFT output size for real input is N/2 + 1 complex values.
	bins := opts.Size/2 + 1

	logger.Infof("initializing analyzer (Size: %d, SampleRate: %.1f Hz, Channels: %d, Window: %v, Backend: %v)",
		opts.Size, opts.SampleRate, opts.Channels, opts.Window, opts.Backend)

	return &Analyzer{
		size:         opts.Size,
		bins:         bins,
		channels:     opts.Channels,
		sampleRate:   opts.SampleRate,
		reference:    opts.Reference,
		fft:          fft,
		window:       coeffs,
		windowSum:    floats.Sum(coeffs),
		windowEnergy: energy,
		input:        make([]float64, opts.Size),
		spectra:      make([]complex128, bins*opts.Channels),
		db:           make([]float64, bins*opts.Channels),
	}, nil
}

// Process windows and transforms every channel of an interleaved block
// [sample][channel] and refreshes the dB magnitudes.
func (a *Analyzer) Process(block []int16) error {
	if len(block) != a.size*a.channels {
		return fmt.Errorf("%w: got %d samples, want %d", ErrBlockSize, len(block), a.size*a.channels)
	}

	for ch := range a.channels {
		// --- 1. De-interleave & window ---
		for i := range a.size {
			a.input[i] = float64(block[i*a.channels+ch]) * a.window[i]
		}

		// --- 2. Transform ---
		spectrum := a.spectra[ch*a.bins : (ch+1)*a.bins]
		a.fft.transform(spectrum, a.input)

		// --- 3. dB magnitudes ---
		db := a.db[ch*a.bins : (ch+1)*a.bins]
		for k, c := range spectrum {
			db[k] = 20 * math.Log10(math.Max(a.amplitude(k, c), MagnitudeFloor)/a.reference)
		}
	}
	return nil
}

// amplitude scales |X[k]| so a tone of amplitude A (in LSB) reads A.
func (a *Analyzer) amplitude(k int, c complex128) float64 {
	scale := 2 / a.windowSum
	if k == 0 || (a.size%2 == 0 && k == a.bins-1) {
		// DC and Nyquist have no mirrored negative-frequency twin.
		scale = 1 / a.windowSum
	}
	return cmplx.Abs(c) * scale
}

// Spectrum returns the complex bins of a channel. The slice aliases the
// analyzer workspace; callers must not keep it across blocks.
func (a *Analyzer) Spectrum(channel int) []complex128 {
	if channel < 0 || channel >= a.channels {
		return nil
	}
	return a.spectra[channel*a.bins : (channel+1)*a.bins]
}

// MagnitudesDB copies the dB magnitudes of a channel into dst, growing it if
// needed, and returns it.
func (a *Analyzer) MagnitudesDB(dst []float64, channel int) ([]float64, error) {
	if channel < 0 || channel >= a.channels {
		return dst, fmt.Errorf("analysis: channel %d out of range [0, %d)", channel, a.channels)
	}
	if cap(dst) < a.bins {
		dst = make([]float64, a.bins)
	}
	dst = dst[:a.bins]
	copy(dst, a.db[channel*a.bins:(channel+1)*a.bins])
	return dst, nil
}

// Frequencies writes the frequency axis (Hz) into dst, growing it if needed.
func (a *Analyzer) Frequencies(dst []float64) []float64 {
	if cap(dst) < a.bins {
		dst = make([]float64, a.bins)
	}
	dst = dst[:a.bins]
	for k := range dst {
		dst[k] = a.FrequencyForBin(k)
	}
	return dst
}

// FrequencyForBin returns the centre frequency (Hz) of a bin, or 0 when the
// index is out of range.
func (a *Analyzer) FrequencyForBin(binIndex int) float64 {
	if binIndex < 0 || binIndex >= a.bins {
		return 0.0
	}
	return float64(binIndex) * a.sampleRate / float64(a.size)
}

// Size returns the FFT length N.
func (a *Analyzer) Size() int { return a.size }

// Bins returns N/2+1.
func (a *Analyzer) Bins() int { return a.bins }

// Channels returns the number of interleaved channels per block.
func (a *Analyzer) Channels() int { return a.channels }

// SampleRate returns the configured sample rate (Hz).
func (a *Analyzer) SampleRate() float64 { return a.sampleRate }

// WindowEnergy returns Σw² of the window.
func (a *Analyzer) WindowEnergy() float64 { return a.windowEnergy }
