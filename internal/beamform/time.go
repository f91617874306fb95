// SPDX-License-Identifier: MIT
package beamform

import (
	"fmt"
	"math"
)

// PowerFloor keeps the logarithm finite for a silent beam (-200 dB re 1 LSB²).
const PowerFloor = 1e-20

// TimeDomain is a delay-and-sum beamformer over raw interleaved samples.
type TimeDomain struct {
	delays    *DelayTable
	channels  int
	length    int // samples summed per cell: N - span
	reference float64
}

// NewTimeDomain returns a beamformer reading blocks of delays.Samples()
// frames with the given channel stride. The first delays.Mics() channels of
// each frame are the microphones. reference is the power mapped to 0 dB; 0
// means 1 LSB².
func NewTimeDomain(delays *DelayTable, channels int, reference float64) (*TimeDomain, error) {
	if channels < delays.Mics() {
		return nil, fmt.Errorf("beamform: %d channels cannot hold %d microphones", channels, delays.Mics())
	}
	if reference <= 0 {
		reference = 1
	}
	return &TimeDomain{
		delays:    delays,
		channels:  channels,
		length:    max(delays.Samples()-delays.Span(), 1),
		reference: reference,
	}, nil
}

// Length returns the number of output samples summed per cell.
func (b *TimeDomain) Length() int { return b.length }

// Power returns the mean square of the delay-and-sum beam steered at cell.
// Reads outside buf contribute nothing, so a short block degrades the
// estimate instead of panicking.
func (b *TimeDomain) Power(buf []int16, cell int) float64 {
	offsets := b.delays.cellNormalized(cell)
	frames := len(buf) / b.channels

	var acc float64
	for s := range b.length {
		var sum float64
		for m, d := range offsets {
			if i := s + d; i < frames {
				sum += float64(buf[i*b.channels+m])
			}
		}
		acc += sum * sum
	}
	return acc / float64(b.length)
}

// SPL returns Power in dB relative to the reference power.
func (b *TimeDomain) SPL(buf []int16, cell int) float64 {
	return 10 * math.Log10(math.Max(b.Power(buf, cell), PowerFloor)/b.reference)
}
