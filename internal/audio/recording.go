// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder writes the microphone channels of captured blocks to a 16-bit
// PCM WAV file, one WAV channel per microphone.
type Recorder struct {
	sampleRate int
	channels   int
	maxFrames  int // 0 for unlimited

	mu          sync.Mutex
	isRecording atomic.Bool
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *audio.IntBuffer // Reusable buffer for format conversion
	written     int
}

// NewRecorder prepares a recorder for blocks of framesPerBuffer frames.
// maxSeconds > 0 stops the recording automatically after that long.
func NewRecorder(sampleRate, channels, framesPerBuffer, maxSeconds int) *Recorder {
	return &Recorder{
		sampleRate: sampleRate,
		channels:   channels,
		maxFrames:  maxSeconds * sampleRate,
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			Data:           make([]int, framesPerBuffer*channels),
			SourceBitDepth: 16,
		},
	}
}

// Start creates filename and begins recording.
func (r *Recorder) Start(filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRecording.Load() {
		return fmt.Errorf("already recording")
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	r.outputFile = file
	r.wavEncoder = wav.NewEncoder(file, r.sampleRate, 16, r.channels, 1)
	r.written = 0

	r.isRecording.Store(true)
	logger.Infof("recording %d channels to %s", r.channels, filename)
	return nil
}

// Recording reports whether a file is open.
func (r *Recorder) Recording() bool { return r.isRecording.Load() }

// Write appends one interleaved block. stride is the channel count of the
// block; only its first Channels() channels are recorded. Writing while
// stopped is a no-op.
func (r *Recorder) Write(block []int16, stride int) error {
	if !r.isRecording.Load() {
		return nil
	}
	if stride < r.channels {
		return fmt.Errorf("recording: block stride %d is narrower than %d channels", stride, r.channels)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wavEncoder == nil {
		return nil
	}

	frames := len(block) / stride
	if r.maxFrames > 0 {
		frames = min(frames, r.maxFrames-r.written)
	}
	need := frames * r.channels
	if cap(r.sampleBuf.Data) < need {
		r.sampleBuf.Data = make([]int, need)
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:need]
	for f := range frames {
		for c := range r.channels {
			r.sampleBuf.Data[f*r.channels+c] = int(block[f*stride+c])
		}
	}

	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	r.written += frames

	if r.maxFrames > 0 && r.written >= r.maxFrames {
		logger.Infof("recording reached its %d s limit", r.maxFrames/r.sampleRate)
		return r.stopLocked()
	}
	return nil
}

// Channels returns the number of recorded channels.
func (r *Recorder) Channels() int { return r.channels }

// Written returns the number of frames written to the current file.
func (r *Recorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Stop finalises the WAV header and closes the file.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked()
}

func (r *Recorder) stopLocked() error {
	if !r.isRecording.Load() {
		return nil
	}
	r.isRecording.Store(false)

	var errs []error
	if r.wavEncoder != nil {
		errs = append(errs, r.wavEncoder.Close())
		r.wavEncoder = nil
	}
	if r.outputFile != nil {
		errs = append(errs, r.outputFile.Close())
		r.outputFile = nil
	}
	return errors.Join(errs...)
}
