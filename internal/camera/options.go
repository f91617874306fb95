// SPDX-License-Identifier: MIT
package camera

import (
	"soundcam/internal/analysis"
	"soundcam/internal/beamform"
	"soundcam/internal/geometry"
	"soundcam/internal/heatmap"
)

// BeamChannel selects the synthetic beam channel (index = microphone count)
// wherever a channel index is expected.
const BeamChannel = -1

// Options configures an Engine. Zero numeric fields take the defaults of
// DefaultOptions, except SpectrumChannel where 0 is microphone 0.
type Options struct {
	Geometry     geometry.Geometry
	Grid         geometry.GridSpec
	SampleRate   float64
	Samples      int     // Block length N, also the FFT length.
	SpeedOfSound float64 // mm/s

	Window  analysis.WindowFunc
	Backend analysis.BackendKind
	Band    analysis.Band // Frequency-domain band; zero means DisplayBand.

	Alpha     float64
	Threshold uint16

	SpectrumChannel int     // Channel shown in Frame.Spectrum, BeamChannel for the beam.
	ReferencePower  float64 // Power mapped to 0 dB; 0 means 1 LSB².
	Workers         int     // Parallel cell workers; 0 means GOMAXPROCS.
}

// DefaultOptions returns the MATRIX Creator array at 48 kHz with 512-sample
// blocks, the camera's 21×16 grid and the beam channel on the spectrum.
func DefaultOptions() Options {
	return Options{
		Geometry:        geometry.MatrixCreator(),
		Grid:            geometry.DefaultGrid(),
		SampleRate:      48000,
		Samples:         512,
		SpeedOfSound:    beamform.DefaultSpeedOfSound,
		Window:          analysis.Hann,
		Backend:         analysis.GonumBackend,
		Alpha:           heatmap.DefaultAlpha,
		SpectrumChannel: BeamChannel,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Geometry.Len() == 0 {
		o.Geometry = d.Geometry
	}
	if o.Grid == (geometry.GridSpec{}) {
		o.Grid = d.Grid
	}
	if o.SampleRate == 0 {
		o.SampleRate = d.SampleRate
	}
	if o.Samples == 0 {
		o.Samples = d.Samples
	}
	if o.SpeedOfSound == 0 {
		o.SpeedOfSound = d.SpeedOfSound
	}
	if o.Alpha == 0 {
		o.Alpha = d.Alpha
	}
	if o.Band == (analysis.Band{}) {
		o.Band = analysis.DisplayBand(o.SampleRate)
	}
	return o
}
