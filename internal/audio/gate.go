// SPDX-License-Identifier: MIT
package audio

import "sync/atomic"

// Gate skips blocks whose peak amplitude does not exceed a threshold, so a
// silent room does not keep the beamformers busy.
type Gate struct {
	enabled   atomic.Bool
	threshold atomic.Int32 // Absolute amplitude threshold (0-32767)
}

// NewGate returns a gate enabled when threshold > 0.
func NewGate(threshold int) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	g.enabled.Store(threshold > 0)
	return g
}

func (g *Gate) Enable()  { g.enabled.Store(true) }
func (g *Gate) Disable() { g.enabled.Store(false) }

// Enabled reports whether the gate is active.
func (g *Gate) Enabled() bool { return g.enabled.Load() }

// SetThreshold adjusts the gate threshold, clamped to [0, 32767].
func (g *Gate) SetThreshold(threshold int) {
	threshold = max(0, min(threshold, 32767))
	g.threshold.Store(int32(threshold))
}

// Threshold returns the gate threshold.
func (g *Gate) Threshold() int { return int(g.threshold.Load()) }

// Open reports whether a block should be processed. A disabled gate is
// always open.
func (g *Gate) Open(block []int16) bool {
	if !g.enabled.Load() {
		return true
	}
	return Peak(block) > g.threshold.Load()
}

// Peak returns the largest absolute sample of a block, widened so that
// |-32768| is representable. Branchless; no allocations.
func Peak(block []int16) int32 {
	var maxAmplitude int32
	for _, s := range block {
		sample := int32(s)
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask
		diff := amplitude - maxAmplitude
		maxAmplitude += (diff & (diff >> 31)) ^ diff
	}
	return maxAmplitude
}
