// SPDX-License-Identifier: MIT
/*
Package geometry describes the microphone array and the grid of look
directions the beamformers are steered over.

Both values are immutable once built. Positions are in millimetres in the
array plane (z = 0) with the origin at the array centre; the boresight of
the array (and of the camera mounted behind it) is +z.
*/
package geometry

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Microphone positions of the MATRIX Creator array, in millimetres.
var matrixCreatorPositions = [...][2]float64{
	{-48.5036755, -20.0908795},
	{-48.5036755, 20.0908795},
	{-20.0908795, 48.5036755},
	{20.0908795, 48.5036755},
	{48.5036755, 20.0908795},
	{48.5036755, -20.0908795},
	{20.0908795, -48.5036755},
	{-20.0908795, -48.5036755},
}

// Geometry is a fixed set of microphone positions.
type Geometry struct {
	mics []r3.Vec
}

// New builds a planar geometry from (x, y) positions in millimetres.
func New(positions [][2]float64) (Geometry, error) {
	if len(positions) == 0 {
		return Geometry{}, fmt.Errorf("geometry: at least one microphone is required")
	}
	mics := make([]r3.Vec, len(positions))
	for i, p := range positions {
		mics[i] = r3.Vec{X: p[0], Y: p[1]}
	}
	return Geometry{mics: mics}, nil
}

// MatrixCreator returns the 8-microphone circular array used by default.
func MatrixCreator() Geometry {
	mics := make([]r3.Vec, len(matrixCreatorPositions))
	for i, p := range matrixCreatorPositions {
		mics[i] = r3.Vec{X: p[0], Y: p[1]}
	}
	return Geometry{mics: mics}
}

// Len returns the number of microphones.
func (g Geometry) Len() int { return len(g.mics) }

// Position returns the position of microphone i in millimetres.
func (g Geometry) Position(i int) r3.Vec { return g.mics[i] }

// Projection returns the signed distance (mm) of microphone i along the unit
// direction u. Positive values mean the microphone is closer to a source in
// that direction than the array centre.
func (g Geometry) Projection(i int, u r3.Vec) float64 {
	return r3.Dot(g.mics[i], u)
}

// Aperture returns the largest distance between two microphones in mm.
func (g Geometry) Aperture() float64 {
	var widest float64
	for i := range g.mics {
		for j := i + 1; j < len(g.mics); j++ {
			if d := r3.Norm(r3.Sub(g.mics[i], g.mics[j])); d > widest {
				widest = d
			}
		}
	}
	return widest
}
