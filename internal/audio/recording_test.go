// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"soundcam/pkg/utils"
)

const (
	testSampleRate = 48000
	testFrames     = 64
	testMics       = 4
)

// testBlock returns a [frame][mic+1] block where every mic carries a
// different tone and the last channel is a stand-in beam.
func testBlock(seed int) []int16 {
	channels := make([][]int16, testMics+1)
	for m := range testMics {
		channels[m] = utils.GenerateTone(testFrames, testSampleRate, float64(500*(m+1)+seed), 3000)
	}
	channels[testMics] = make([]int16, testFrames)
	for i := range channels[testMics] {
		channels[testMics][i] = 12345
	}
	return utils.Interleave(channels...)
}

func TestRecordingStartStop(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test_recording.wav")
	r := NewRecorder(testSampleRate, testMics, testFrames, 0)

	if err := r.Start(filename); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	if !r.Recording() {
		t.Error("Recorder should be in recording state")
	}
	if r.outputFile == nil || r.wavEncoder == nil {
		t.Error("Output file and encoder should be initialized")
	}
	if r.sampleBuf.Format.NumChannels != testMics || r.sampleBuf.Format.SampleRate != testSampleRate {
		t.Errorf("Buffer format mismatch: %+v", r.sampleBuf.Format)
	}

	outputFile := r.outputFile
	if err := r.Stop(); err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}
	if r.Recording() {
		t.Error("Recorder should not be in recording state after stopping")
	}
	if r.outputFile != nil || r.wavEncoder != nil {
		t.Error("Output file and encoder should be nil after stopping")
	}
	if err := outputFile.Close(); err == nil {
		t.Error("File should already be closed")
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		t.Error("Recording file was not created")
	}
}

func TestRecordingErrorCases(t *testing.T) {
	dir := t.TempDir()

	t.Run("Already recording", func(t *testing.T) {
		r := NewRecorder(testSampleRate, testMics, testFrames, 0)
		if err := r.Start(filepath.Join(dir, "a.wav")); err != nil {
			t.Fatal(err)
		}
		defer r.Stop()
		if err := r.Start(filepath.Join(dir, "b.wav")); err == nil || !strings.Contains(err.Error(), "already recording") {
			t.Errorf("expected already recording error, got %v", err)
		}
	})

	t.Run("Invalid path", func(t *testing.T) {
		r := NewRecorder(testSampleRate, testMics, testFrames, 0)
		if err := r.Start("/nonexistent/path/file.wav"); err == nil {
			t.Error("Expected error but got none")
		}
	})

	t.Run("Stop when not recording", func(t *testing.T) {
		r := NewRecorder(testSampleRate, testMics, testFrames, 0)
		if err := r.Stop(); err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
	})

	t.Run("Write when not recording", func(t *testing.T) {
		r := NewRecorder(testSampleRate, testMics, testFrames, 0)
		if err := r.Write(testBlock(0), testMics+1); err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
	})

	t.Run("Narrow stride", func(t *testing.T) {
		r := NewRecorder(testSampleRate, testMics, testFrames, 0)
		if err := r.Start(filepath.Join(dir, "c.wav")); err != nil {
			t.Fatal(err)
		}
		defer r.Stop()
		if err := r.Write(make([]int16, 10), testMics-1); err == nil {
			t.Error("expected stride error")
		}
	})
}

func TestRecordReplayRoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "roundtrip.wav")
	r := NewRecorder(testSampleRate, testMics, testFrames, 0)
	if err := r.Start(filename); err != nil {
		t.Fatal(err)
	}
	blocks := [][]int16{testBlock(0), testBlock(7), testBlock(13)}
	for _, b := range blocks {
		if err := r.Write(b, testMics+1); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if r.Written() != len(blocks)*testFrames {
		t.Errorf("Written() = %d, want %d", r.Written(), len(blocks)*testFrames)
	}
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}

	replay, err := OpenReplay(filename, testMics, testFrames)
	if err != nil {
		t.Fatalf("OpenReplay() error = %v", err)
	}
	defer replay.Close()
	if replay.SampleRate() != testSampleRate {
		t.Errorf("SampleRate() = %d", replay.SampleRate())
	}

	var got []int16
	for i, b := range blocks {
		got, err = replay.Next(got)
		if err != nil {
			t.Fatalf("block %d: Next() error = %v", i, err)
		}
		// Replay yields microphone channels only; the beam was not recorded.
		for f := range testFrames {
			for m := range testMics {
				if want := b[f*(testMics+1)+m]; got[f*testMics+m] != want {
					t.Fatalf("block %d frame %d mic %d = %d, want %d", i, f, m, got[f*testMics+m], want)
				}
			}
		}
	}
	if _, err := replay.Next(got); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after last block error = %v, want io.EOF", err)
	}
}

func TestRecordingMaxDuration(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "limited.wav")
	// One second at a tiny rate: 100 frames.
	r := NewRecorder(100, testMics, testFrames, 1)
	if err := r.Start(filename); err != nil {
		t.Fatal(err)
	}
	for range 3 {
		if err := r.Write(testBlock(0), testMics+1); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if r.Recording() {
		t.Error("recording should stop at its duration limit")
	}
	if r.Written() != 100 {
		t.Errorf("Written() = %d, want 100", r.Written())
	}
}

func TestOpenReplayErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := OpenReplay(filepath.Join(dir, "missing.wav"), testMics, testFrames); err == nil {
		t.Error("expected error for a missing file")
	}

	garbage := filepath.Join(dir, "garbage.wav")
	if err := os.WriteFile(garbage, []byte("not a wav file at all"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenReplay(garbage, testMics, testFrames); err == nil {
		t.Error("expected error for an invalid file")
	}

	stereo := filepath.Join(dir, "stereo.wav")
	r := NewRecorder(testSampleRate, 2, testFrames, 0)
	if err := r.Start(stereo); err != nil {
		t.Fatal(err)
	}
	if err := r.Write(testBlock(0), testMics+1); err != nil {
		t.Fatal(err)
	}
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenReplay(stereo, testMics, testFrames); err == nil || !strings.Contains(err.Error(), "has 2 channels") {
		t.Errorf("expected channel count error, got %v", err)
	}
}

func TestRecordingStopReleasesFileOnEncoderError(t *testing.T) {
	r := NewRecorder(testSampleRate, testMics, testFrames, 0)
	if err := r.Start(filepath.Join(t.TempDir(), "broken.wav")); err != nil {
		t.Fatal(err)
	}
	// Closing the file underneath makes finalising the header fail.
	if err := r.outputFile.Close(); err != nil {
		t.Fatal(err)
	}

	if err := r.Stop(); err == nil {
		t.Error("Stop() error = nil, want the header write failure")
	}
	if r.outputFile != nil || r.wavEncoder != nil {
		t.Error("file and encoder must be released even when the encoder fails")
	}
	if r.Recording() {
		t.Error("still recording after Stop")
	}
	if err := r.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}
