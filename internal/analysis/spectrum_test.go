// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"soundcam/pkg/utils"
)

const (
	testSize       = 512
	testSampleRate = 48000
	testChannels   = 9
)

func newTestAnalyzer(t testing.TB, window WindowFunc, backend BackendKind) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(Options{
		Size:       testSize,
		SampleRate: testSampleRate,
		Channels:   testChannels,
		Window:     window,
		Backend:    backend,
	})
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}
	return a
}

// toneBlock puts the same tone on every channel.
func toneBlock(frequency, amplitude float64) []int16 {
	tone := utils.GenerateTone(testSize, testSampleRate, frequency, amplitude)
	channels := make([][]int16, testChannels)
	for c := range channels {
		channels[c] = tone
	}
	return utils.Interleave(channels...)
}

func TestSingleTonePeak(t *testing.T) {
	tests := []struct {
		name      string
		frequency float64
		window    WindowFunc
	}{
		{"bin-centred/Hann", 3000, Hann},
		{"bin-centred/Rectangular", 3000, Rectangular},
		{"off-bin/Hann", 1000, Hann},
		{"off-bin/Blackman", 4321, Blackman},
		{"high/Hamming", 15000, Hamming},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyzer(t, tt.window, GonumBackend)
			if err := a.Process(toneBlock(tt.frequency, 8000)); err != nil {
				t.Fatalf("Process() error = %v", err)
			}

			expected := tt.frequency * testSize / testSampleRate
			for ch := range testChannels {
				db, err := a.MagnitudesDB(nil, ch)
				if err != nil {
					t.Fatalf("MagnitudesDB() error = %v", err)
				}
				peak := utils.FindPeakBin(db, 0, len(db)-1)
				if math.Abs(float64(peak)-expected) > 1 {
					t.Errorf("channel %d: peak bin %d, expected %.2f ± 1", ch, peak, expected)
				}
			}
		})
	}
}

func TestToneAmplitudeCalibration(t *testing.T) {
	// A bin-centred tone of amplitude A LSB reads 20·log10(A) dB.
	a := newTestAnalyzer(t, Rectangular, GonumBackend)
	if err := a.Process(toneBlock(3000, 1000)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	db, _ := a.MagnitudesDB(nil, 0)
	if got := db[32]; math.Abs(got-60) > 0.05 {
		t.Errorf("bin 32 = %.3f dB, want 60 dB", got)
	}
}

func TestSilentBlockIsFinite(t *testing.T) {
	a := newTestAnalyzer(t, Hann, GonumBackend)
	if err := a.Process(make([]int16, testSize*testChannels)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	want := 20 * math.Log10(MagnitudeFloor)
	for ch := range testChannels {
		db, _ := a.MagnitudesDB(nil, ch)
		for k, v := range db {
			if math.IsInf(v, 0) || math.IsNaN(v) {
				t.Fatalf("channel %d bin %d is not finite: %v", ch, k, v)
			}
			if v != want {
				t.Fatalf("channel %d bin %d = %v, want floor %v", ch, k, v, want)
			}
		}
	}
}

func TestFrequencyAxis(t *testing.T) {
	a := newTestAnalyzer(t, Hann, GonumBackend)
	freqs := a.Frequencies(nil)
	if len(freqs) != testSize/2+1 {
		t.Fatalf("len(Frequencies()) = %d, want %d", len(freqs), testSize/2+1)
	}
	for k, f := range freqs {
		if want := float64(k) * testSampleRate / testSize; f != want {
			t.Fatalf("Frequencies()[%d] = %v, want %v", k, f, want)
		}
	}
	if f := freqs[len(freqs)-1]; f != testSampleRate/2 {
		t.Errorf("last bin = %v, want Nyquist", f)
	}
	if a.FrequencyForBin(-1) != 0 || a.FrequencyForBin(a.Bins()) != 0 {
		t.Error("out of range bins should map to 0 Hz")
	}

	// A large enough destination is reused.
	dst := make([]float64, 0, 1024)
	if out := a.Frequencies(dst); &out[0] != &dst[:1][0] {
		t.Error("Frequencies did not reuse the destination slice")
	}
}

func TestBackendsAgree(t *testing.T) {
	block := toneBlock(2500, 6000)
	noise := utils.GenerateNoise(testSize*testChannels, 500, 3)
	for i := range block {
		block[i] += noise[i]
	}

	g := newTestAnalyzer(t, Hann, GonumBackend)
	d := newTestAnalyzer(t, Hann, DSPBackend)
	if err := g.Process(block); err != nil {
		t.Fatal(err)
	}
	if err := d.Process(block); err != nil {
		t.Fatal(err)
	}

	for ch := range testChannels {
		gs, ds := g.Spectrum(ch), d.Spectrum(ch)
		for k := range gs {
			if diff := cmplx.Abs(gs[k] - ds[k]); diff > 1e-6*math.Max(1, cmplx.Abs(gs[k])) {
				t.Fatalf("channel %d bin %d: gonum %v, go-dsp %v", ch, k, gs[k], ds[k])
			}
		}
	}
}

func TestProcessRejectsWrongBlockSize(t *testing.T) {
	a := newTestAnalyzer(t, Hann, GonumBackend)
	err := a.Process(make([]int16, testSize))
	if !errors.Is(err, ErrBlockSize) {
		t.Errorf("Process() error = %v, want ErrBlockSize", err)
	}
}

func TestChannelBounds(t *testing.T) {
	a := newTestAnalyzer(t, Hann, GonumBackend)
	if a.Spectrum(-1) != nil || a.Spectrum(testChannels) != nil {
		t.Error("Spectrum() out of range should be nil")
	}
	if _, err := a.MagnitudesDB(nil, testChannels); err == nil {
		t.Error("MagnitudesDB() out of range should fail")
	}
}

func TestNewAnalyzerValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"tiny size", Options{Size: 1, SampleRate: 48000, Channels: 1}},
		{"zero rate", Options{Size: 512, SampleRate: 0, Channels: 1}},
		{"no channels", Options{Size: 512, SampleRate: 48000, Channels: 0}},
		{"bad backend", Options{Size: 512, SampleRate: 48000, Channels: 1, Backend: BackendKind(9)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAnalyzer(tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestProcessHotPath(t *testing.T) {
	a := newTestAnalyzer(t, Hann, GonumBackend)
	block := toneBlock(1000, 4000)

	// Warm-up call so lazily initialised FFT state is not counted.
	_ = a.Process(block)
	allocs := testing.AllocsPerRun(50, func() {
		_ = a.Process(block)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Process hot path, got %.1f", allocs)
	}
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		in      string
		want    WindowFunc
		wantErr bool
	}{
		{"hann", Hann, false},
		{"Hanning", Hann, false},
		{"", Hann, false},
		{"rectangular", Rectangular, false},
		{"none", Rectangular, false},
		{"BlackmanNuttall", BlackmanNuttall, false},
		{"kaiser", Hann, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.in)
			if got != tt.want || (err != nil) != tt.wantErr {
				t.Errorf("ParseWindowFunc(%q) = (%v, %v)", tt.in, got, err)
			}
		})
	}
}

func TestParseBackend(t *testing.T) {
	if b, err := ParseBackend("go-dsp"); err != nil || b != DSPBackend {
		t.Errorf("ParseBackend(go-dsp) = (%v, %v)", b, err)
	}
	if b, err := ParseBackend(""); err != nil || b != GonumBackend {
		t.Errorf("ParseBackend(\"\") = (%v, %v)", b, err)
	}
	if _, err := ParseBackend("fftw"); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func BenchmarkProcess(b *testing.B) {
	for _, backend := range []BackendKind{GonumBackend, DSPBackend} {
		b.Run(backend.String(), func(b *testing.B) {
			a := newTestAnalyzer(b, Hann, backend)
			block := toneBlock(1000, 4000)
			b.ReportAllocs()
			for b.Loop() {
				_ = a.Process(block)
			}
		})
	}
}
