// SPDX-License-Identifier: MIT
/*
Package audio feeds microphone blocks into the camera engine:
- Live capture from a multichannel PortAudio input device
- Replay of multichannel WAV recordings
- Amplitude gate with a branchless peak detector
- WAV recording of the raw microphone channels

Thread Safety:
  - The PortAudio callback only copies into a pre-allocated ring and never blocks
  - One worker goroutine runs the engine; frames are fanned out to sinks from it
  - Gate, mode and recording state are atomics
*/
package audio

import (
	"fmt"
	"runtime"
	"time"

	applog "soundcam/internal/log"

	"github.com/gordonklaus/portaudio"
)

var logger = applog.New("audio")

// Capture streams int16 blocks from a PortAudio input device into a Pipeline.
type Capture struct {
	pipeline *Pipeline

	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream
}

// NewCapture opens no stream yet; it resolves the device and checks it can
// deliver one channel per microphone. PortAudio must be initialized.
func NewCapture(deviceID int, lowLatency bool, pipeline *Pipeline) (*Capture, error) {
	mics := pipeline.Engine().Mics()
	inputDevice, err := InputDevice(deviceID, mics)
	if err != nil {
		return nil, err
	}

	c := &Capture{
		pipeline:    pipeline,
		inputDevice: inputDevice,
	}
	if lowLatency {
		c.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		c.inputLatency = inputDevice.DefaultHighInputLatency
	}
	return c, nil
}

// Start opens and starts the input stream.
func (c *Capture) Start() error {
	engine := c.pipeline.Engine()
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: engine.Mics(),
			Device:   c.inputDevice,
			Latency:  c.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: engine.Samples(),
		SampleRate:      engine.SampleRate(),
	}

	stream, err := portaudio.OpenStream(params, c.processInputStream)
	if err != nil {
		return fmt.Errorf("open input stream on %q: %w", c.inputDevice.Name, err)
	}
	c.inputStream = stream

	if err := c.inputStream.Start(); err != nil {
		c.inputStream.Close()
		c.inputStream = nil
		return err
	}

	logger.Infof("capturing %d channels from %q at %.0f Hz (latency %v)",
		engine.Mics(), c.inputDevice.Name, engine.SampleRate(), c.inputLatency)
	return nil
}

// Stop stops and closes the input stream.
func (c *Capture) Stop() error {
	if c.inputStream != nil {
		if err := c.inputStream.Stop(); err != nil {
			return err
		}

		if err := c.inputStream.Close(); err != nil {
			return err
		}

		c.inputStream = nil
	}

	return nil
}

// processInputStream is the PortAudio callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Copies into pre-allocated buffers only
// - Never waits for the beamforming worker
func (c *Capture) processInputStream(in []int16) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c.pipeline.Submit(in)
}
