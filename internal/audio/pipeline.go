// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"soundcam/internal/beamform"
	"soundcam/internal/camera"
)

// pipelineDepth is the number of blocks in flight between the capture
// callback and the worker.
const pipelineDepth = 3

// Sink receives every published frame (transports, UIs).
type Sink interface {
	Send(data any) error
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	Mode          beamform.Mode
	GateThreshold int       // 0 disables the gate
	Recorder      *Recorder // optional
	Sinks         []Sink
}

// Pipeline moves microphone blocks from a source (live capture or replay)
// through the camera engine to the sinks. The source side never blocks:
// Submit drops a block when the worker is still busy with earlier ones.
type Pipeline struct {
	engine   *camera.Engine
	gate     *Gate
	recorder *Recorder
	sinks    []Sink
	mode     atomic.Int32

	free   chan []int16
	blocks chan []int16

	frames  atomic.Uint64
	dropped atomic.Uint64
	gated   atomic.Uint64
}

// NewPipeline pre-allocates the block ring.
func NewPipeline(engine *camera.Engine, opts PipelineOptions) *Pipeline {
	p := &Pipeline{
		engine:   engine,
		gate:     NewGate(opts.GateThreshold),
		recorder: opts.Recorder,
		sinks:    opts.Sinks,
		free:     make(chan []int16, pipelineDepth),
		blocks:   make(chan []int16, pipelineDepth),
	}
	p.mode.Store(int32(opts.Mode))
	for range pipelineDepth {
		p.free <- make([]int16, engine.Samples()*engine.Channels())
	}
	return p
}

// Engine returns the camera engine the pipeline drives.
func (p *Pipeline) Engine() *camera.Engine { return p.engine }

// Gate returns the pipeline's amplitude gate.
func (p *Pipeline) Gate() *Gate { return p.gate }

// Mode returns the beamforming mode used for the next frame.
func (p *Pipeline) Mode() beamform.Mode { return beamform.Mode(p.mode.Load()) }

// SetMode changes the beamforming mode from the next frame on.
func (p *Pipeline) SetMode(mode beamform.Mode) {
	p.mode.Store(int32(mode))
	logger.Infof("beamforming mode: %v", mode)
}

// ToggleMode switches between time and frequency mode and returns the new mode.
func (p *Pipeline) ToggleMode() beamform.Mode {
	mode := p.Mode().Toggle()
	p.SetMode(mode)
	return mode
}

// Stats returns the processed, dropped and gated block counts.
func (p *Pipeline) Stats() (frames, dropped, gated uint64) {
	return p.frames.Load(), p.dropped.Load(), p.gated.Load()
}

// Submit queues one interleaved microphone-only block ([frame][mic]) and
// appends the beam channel. It never blocks and reports false when the block
// was dropped. Safe to call from an audio callback.
func (p *Pipeline) Submit(mics []int16) bool {
	select {
	case buf := <-p.free:
		WithBeam(buf, mics, p.engine.Mics())
		p.blocks <- buf
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Run processes queued blocks until ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case buf := <-p.blocks:
			_, _, err := p.process(ctx, buf)
			p.free <- buf
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("frame failed: %v", err)
			}
		}
	}
}

// Process runs one microphone-only block synchronously. It reports false
// when the gate skipped the block.
func (p *Pipeline) Process(ctx context.Context, mics []int16) (camera.Frame, bool, error) {
	buf := <-p.free
	defer func() { p.free <- buf }()
	WithBeam(buf, mics, p.engine.Mics())
	return p.process(ctx, buf)
}

func (p *Pipeline) process(ctx context.Context, block []int16) (camera.Frame, bool, error) {
	if p.recorder != nil {
		if err := p.recorder.Write(block, p.engine.Channels()); err != nil {
			logger.Warnf("recording: %v", err)
		}
	}

	if !p.gate.Open(block) {
		p.gated.Add(1)
		return camera.Frame{}, false, nil
	}

	if err := p.engine.WriteInterleaved(block); err != nil {
		return camera.Frame{}, false, err
	}
	frame, err := p.engine.ProcessFrame(ctx, p.Mode())
	if err != nil {
		return camera.Frame{}, false, fmt.Errorf("process frame: %w", err)
	}
	p.frames.Add(1)

	for _, sink := range p.sinks {
		if err := sink.Send(frame); err != nil {
			logger.Warnf("sink %T: %v", sink, err)
		}
	}
	return frame, true, nil
}

// WithBeam copies a [frame][mic] block into dst ([frame][mic+1]) and fills
// the extra channel with the mean of the microphones, the boresight
// delay-and-sum beam. Missing input frames are zero.
func WithBeam(dst, mics []int16, n int) {
	stride := n + 1
	frames := len(dst) / stride
	for f := range frames {
		out := dst[f*stride : (f+1)*stride]
		var sum int
		for m := range n {
			var v int16
			if i := f*n + m; i < len(mics) {
				v = mics[i]
			}
			out[m] = v
			sum += int(v)
		}
		out[n] = int16(sum / n)
	}
}
