// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"strconv"
	"testing"
)

func TestGateEnable(t *testing.T) {
	g := NewGate(0)
	if g.Enabled() {
		t.Error("Gate with zero threshold should start disabled")
	}

	g.Enable()
	g.Enable() // Multiple calls should be idempotent
	if !g.Enabled() {
		t.Error("Gate should be enabled after Enable()")
	}

	g.Disable()
	g.Disable()
	if g.Enabled() {
		t.Error("Gate should be disabled after Disable()")
	}

	if !NewGate(100).Enabled() {
		t.Error("Gate with a threshold should start enabled")
	}
}

func TestGateThresholdBoundaries(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{-10, 0},
		{0, 0},
		{1000, 1000},
		{32767, 32767},
		{40000, 32767},
	}

	g := NewGate(0)
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.input), func(t *testing.T) {
			g.SetThreshold(tt.input)
			if got := g.Threshold(); got != tt.expected {
				t.Errorf("SetThreshold(%d): got %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPeak(t *testing.T) {
	tests := []struct {
		name  string
		block []int16
		want  int32
	}{
		{"empty", nil, 0},
		{"silence", make([]int16, 16), 0},
		{"positive", []int16{1, 5, 3}, 5},
		{"negative", []int16{-1, -900, 300}, 900},
		{"min int16", []int16{math.MinInt16, 100}, 32768},
		{"max int16", []int16{-5, math.MaxInt16}, 32767},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Peak(tt.block); got != tt.want {
				t.Errorf("Peak() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGateOpen(t *testing.T) {
	quiet := []int16{10, -20, 15, -5}
	loud := []int16{10, -2000, 15, -5}

	g := NewGate(500)
	if g.Open(quiet) {
		t.Error("quiet block should be gated")
	}
	if !g.Open(loud) {
		t.Error("loud block should pass")
	}

	// At threshold is still closed.
	g.SetThreshold(2000)
	if g.Open(loud) {
		t.Error("block at threshold should be gated")
	}

	g.Disable()
	if !g.Open(quiet) {
		t.Error("disabled gate should pass everything")
	}
}

func TestGateHotPath(t *testing.T) {
	block := make([]int16, 4096)
	for i := range block {
		block[i] = int16((i%200 - 100) * 300)
	}
	g := NewGate(1000)

	allocs := testing.AllocsPerRun(100, func() {
		g.Open(block)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in gate hot path, got %.1f", allocs)
	}
}

func BenchmarkPeak(b *testing.B) {
	block := make([]int16, 512*9)
	for i := range block {
		block[i] = int16(i * 7)
	}
	b.ReportAllocs()
	for b.Loop() {
		Peak(block)
	}
}
