// SPDX-License-Identifier: MIT
package analysis

import "fmt"

// DisplayFraction is the share of the sample rate shown on the spectrum plot
// and, by default, beamformed in the frequency domain (fs/5 = 9.6 kHz at 48 kHz).
const DisplayFraction = 5.0

// Band is a half-open frequency range [LowHz, HighHz).
type Band struct {
	LowHz  float64
	HighHz float64
}

// DisplayBand returns [0, sampleRate/5).
func DisplayBand(sampleRate float64) Band {
	return Band{LowHz: 0, HighHz: sampleRate / DisplayFraction}
}

// Validate checks the band is ordered and non-negative.
func (b Band) Validate() error {
	if b.LowHz < 0 || b.HighHz <= b.LowHz {
		return fmt.Errorf("analysis: invalid band [%.1f, %.1f) Hz", b.LowHz, b.HighHz)
	}
	return nil
}

// BinRange returns the bins [lo, hi) whose centre frequency lies in the band.
// Bin 0 (DC) is never included: a constant offset has no direction. An empty
// range is returned as lo == hi.
func BinRange(axis FrequencyAxis, b Band) (lo, hi int) {
	lo, hi = -1, 1
	for k := 1; k < axis.Bins(); k++ {
		f := axis.FrequencyForBin(k)
		if f < b.LowHz {
			continue
		}
		if f >= b.HighHz {
			break
		}
		if lo < 0 {
			lo = k
		}
		hi = k + 1
	}
	if lo < 0 {
		return 1, 1
	}
	return lo, hi
}
