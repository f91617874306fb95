// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"soundcam/internal/analysis"
	"soundcam/internal/audio"
	"soundcam/internal/camera"
	"soundcam/internal/config"
	"soundcam/internal/geometry"
	"soundcam/pkg/utils"

	"github.com/spf13/pflag"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestEngineOptionsFromDefaults(t *testing.T) {
	cfg := config.Default()
	opts, err := engineOptions(&cfg)
	if err != nil {
		t.Fatalf("engineOptions() error = %v", err)
	}
	if opts.Grid != geometry.DefaultGrid() {
		t.Errorf("Grid = %+v", opts.Grid)
	}
	if opts.Band != analysis.DisplayBand(48000) {
		t.Errorf("Band = %+v, want the display band", opts.Band)
	}
	if opts.Window != analysis.Hann || opts.Backend != analysis.GonumBackend {
		t.Errorf("Window %v Backend %v", opts.Window, opts.Backend)
	}
	if opts.SpectrumChannel != camera.BeamChannel || opts.Samples != 512 {
		t.Errorf("SpectrumChannel %d Samples %d", opts.SpectrumChannel, opts.Samples)
	}
	if _, err := camera.New(opts); err != nil {
		t.Errorf("camera.New() with default options error = %v", err)
	}
}

func TestApplyFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := &cliFlags{}
	bindFlags(fs, f)
	if err := fs.Parse([]string{"--mode", "frequency", "-t", "42", "--backend", "go-dsp", "--udp"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Camera.Alpha = 0.25 // from a config file; no flag given
	applyFlags(fs, f, &cfg)

	if cfg.Camera.Mode != "frequency" || cfg.Camera.Threshold != 42 || cfg.Camera.FFTBackend != "go-dsp" {
		t.Errorf("camera = %+v", cfg.Camera)
	}
	if !cfg.Transport.UDPEnabled {
		t.Error("--udp was not applied")
	}
	if cfg.Camera.Alpha != 0.25 {
		t.Errorf("alpha = %v, unset flags must not override the file", cfg.Camera.Alpha)
	}
}

func TestDelaysCommand(t *testing.T) {
	out, err := execute(t, "delays")
	if err != nil {
		t.Fatalf("delays error = %v\n%s", err, out)
	}
	for _, want := range []string{"grid 21x16, 8 mics, 48000 Hz, 512 samples", "clamped 0", "m7"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// Header lines, blank line, column titles, one row per azimuth.
	if lines := strings.Count(out, "\n"); lines != 2+1+1+21 {
		t.Errorf("%d lines, want %d:\n%s", lines, 25, out)
	}

	all, err := execute(t, "delays", "--all", "--frames-per-buffer", "256")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(all, "256 samples") || strings.Count(all, "\n") != 2+1+1+21*16 {
		t.Errorf("--all output:\n%s", all)
	}
}

func TestInvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"block size", []string{"delays", "--frames-per-buffer", "500"}, "power of two"},
		{"mode", []string{"delays", "--mode", "sideways"}, "camera.mode"},
		{"alpha", []string{"delays", "--alpha", "1.5"}, "alpha"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestReplayCommand(t *testing.T) {
	const (
		rate   = 48000
		frames = 512
		blocks = 3
	)
	mics := geometry.MatrixCreator().Len()
	path := filepath.Join(t.TempDir(), "tone.wav")

	rec := audio.NewRecorder(rate, mics, frames, 0)
	if err := rec.Start(path); err != nil {
		t.Fatal(err)
	}
	tone := utils.GenerateTone(frames, rate, 2000, 4000)
	channels := make([][]int16, mics)
	for m := range channels {
		channels[m] = tone
	}
	block := utils.Interleave(channels...)
	for range blocks {
		if err := rec.Write(block, mics); err != nil {
			t.Fatal(err)
		}
	}
	if err := rec.Stop(); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "replay", path)
	if err != nil {
		t.Fatalf("replay error = %v\n%s", err, out)
	}
	for _, want := range []string{"tone.wav: 3 blocks at 48000 Hz, 3 frames, 0 gated", "loudest: frame", "(time domain)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	gated, err := execute(t, "replay", path, "--gate", "30000")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(gated, "3 gated") || !strings.Contains(gated, "no frames above the gate") {
		t.Errorf("gated replay output:\n%s", gated)
	}
}

func TestReplayMissingFile(t *testing.T) {
	if _, err := execute(t, "replay", filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("expected error for a missing recording")
	}
}
