// SPDX-License-Identifier: MIT
package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Default direction grid, matching the field of view of the Raspberry Pi
// camera module v1 (53.50 x 41.41 degrees).
const (
	DefaultAzimuths   = 21
	DefaultPolars     = 16
	DefaultMaxAzimuth = 53.50 // degrees, full horizontal span
	DefaultMaxPolar   = 41.41 // degrees, full vertical span
)

// GridSpec describes the look-direction grid. Angles are in degrees and span
// [-Max/2, +Max/2] on each axis.
type GridSpec struct {
	Azimuths   int
	Polars     int
	MaxAzimuth float64
	MaxPolar   float64
}

// DefaultGrid returns the 21x16 grid covering the camera field of view.
func DefaultGrid() GridSpec {
	return GridSpec{
		Azimuths:   DefaultAzimuths,
		Polars:     DefaultPolars,
		MaxAzimuth: DefaultMaxAzimuth,
		MaxPolar:   DefaultMaxPolar,
	}
}

// Validate checks the grid has at least one cell and non-negative spans.
func (g GridSpec) Validate() error {
	if g.Azimuths < 1 || g.Polars < 1 {
		return fmt.Errorf("grid: dimensions must be positive, got %dx%d", g.Azimuths, g.Polars)
	}
	if g.MaxAzimuth < 0 || g.MaxAzimuth >= 180 || g.MaxPolar < 0 || g.MaxPolar >= 180 {
		return fmt.Errorf("grid: spans must be in [0, 180) degrees, got %.2fx%.2f", g.MaxAzimuth, g.MaxPolar)
	}
	return nil
}

// Cells returns the number of grid cells.
func (g GridSpec) Cells() int { return g.Azimuths * g.Polars }

// Cell returns the row-major index of (az, pol).
func (g GridSpec) Cell(az, pol int) int { return az*g.Polars + pol }

// Split is the inverse of Cell.
func (g GridSpec) Split(cell int) (az, pol int) { return cell / g.Polars, cell % g.Polars }

// Azimuth returns the azimuth of column az in degrees.
func (g GridSpec) Azimuth(az int) float64 {
	return linspace(g.MaxAzimuth, g.Azimuths, az)
}

// Polar returns the polar angle of row pol in degrees.
func (g GridSpec) Polar(pol int) float64 {
	return linspace(g.MaxPolar, g.Polars, pol)
}

// Direction returns the unit steering vector of (az, pol).
func (g GridSpec) Direction(az, pol int) r3.Vec {
	return Steering(g.Azimuth(az)*math.Pi/180, g.Polar(pol)*math.Pi/180)
}

// Steering converts an azimuth/polar pair in radians to a unit vector.
// (0, 0) is the boresight +z; azimuth turns towards +x, polar towards +y.
func Steering(az, pol float64) r3.Vec {
	sinAz, cosAz := math.Sincos(az)
	sinPol, cosPol := math.Sincos(pol)
	return r3.Vec{
		X: sinAz * cosPol,
		Y: sinPol,
		Z: cosAz * cosPol,
	}
}

// linspace returns sample i of n points spread evenly over [-span/2, span/2].
// The centre of an odd n is exactly 0 and samples i and n-1-i are exact
// negatives of each other.
func linspace(span float64, n, i int) float64 {
	if n == 1 {
		return 0
	}
	return span * float64(2*i-(n-1)) / float64(2*(n-1))
}
