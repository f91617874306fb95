// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"strings"

	dspfft "github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/fourier"
)

// BackendKind selects the FFT implementation used by the Analyzer.
type BackendKind int

const (
	// GonumBackend uses gonum's real FFT with a reusable plan. It does not
	// allocate per block and is the default.
	GonumBackend BackendKind = iota
	// DSPBackend uses go-dsp's mixed-radix FFT. It allocates per call and is
	// kept as a cross-check against the gonum plan.
	DSPBackend
)

func (b BackendKind) String() string {
	switch b {
	case GonumBackend:
		return "gonum"
	case DSPBackend:
		return "go-dsp"
	default:
		return fmt.Sprintf("BackendKind(%d)", int(b))
	}
}

// ParseBackend converts a backend name to a BackendKind.
func ParseBackend(name string) (BackendKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gonum", "":
		return GonumBackend, nil
	case "go-dsp", "godsp", "dsp":
		return DSPBackend, nil
	default:
		return GonumBackend, fmt.Errorf("unknown FFT backend: '%s'", name)
	}
}

// transformer computes the N/2+1 non-negative frequency bins of a real block.
type transformer interface {
	transform(dst []complex128, src []float64)
}

type gonumTransformer struct {
	fft *fourier.FFT
}

func (g gonumTransformer) transform(dst []complex128, src []float64) {
	g.fft.Coefficients(dst, src)
}

type dspTransformer struct{}

func (dspTransformer) transform(dst []complex128, src []float64) {
	full := dspfft.FFTReal(src)
	copy(dst, full[:len(dst)])
}

func newTransformer(kind BackendKind, size int) (transformer, error) {
	switch kind {
	case GonumBackend:
		return gonumTransformer{fft: fourier.NewFFT(size)}, nil
	case DSPBackend:
		return dspTransformer{}, nil
	default:
		return nil, fmt.Errorf("unsupported FFT backend %v", kind)
	}
}
