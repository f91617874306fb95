// SPDX-License-Identifier: MIT
package camera

import (
	"time"

	"soundcam/internal/beamform"
	"soundcam/internal/heatmap"
)

// Frame is one published heat map. Grid is row-major [azimuth][polar] in dB;
// Spectrum and Frequencies cover the display band [0, fs/5).
type Frame struct {
	Sequence  uint64        `json:"seq"`
	Timestamp time.Time     `json:"ts"`
	Mode      beamform.Mode `json:"mode"`

	Azimuths int       `json:"azimuths"`
	Polars   int       `json:"polars"`
	Grid     []float64 `json:"grid"`

	Max        float64 `json:"max"`
	Min        float64 `json:"min"`
	MaxCell    int     `json:"max_cell"`
	MaxAzimuth float64 `json:"max_azimuth"` // degrees
	MaxPolar   float64 `json:"max_polar"`   // degrees

	Threshold      uint16 `json:"threshold"`
	BelowThreshold bool   `json:"below_threshold"`

	SpectrumChannel int       `json:"spectrum_channel"`
	Spectrum        []float64 `json:"spectrum"`
	Frequencies     []float64 `json:"frequencies"`
}

// Cell returns the value of (az, pol), or 0 when out of range.
func (f Frame) Cell(az, pol int) float64 {
	if az < 0 || az >= f.Azimuths || pol < 0 || pol >= f.Polars {
		return 0
	}
	return f.Grid[az*f.Polars+pol]
}

// DisplayRange returns the colour scale the frame should be drawn with.
func (f Frame) DisplayRange() (lo, hi float64) {
	return heatmap.DisplayRange(f.Min, f.Max, f.Threshold)
}
