// SPDX-License-Identifier: MIT
/*
Package camera ties the acoustic camera together: it owns the interleaved
sample buffer, runs the spectral analyzer and one of the two beamformers over
every grid cell, smooths the result and publishes it as a Frame.

Thread Safety:
  - Writes to the sample buffer and ProcessFrame belong to one caller (the
    capture worker); they are not synchronised against each other.
  - ProcessFrame sweeps cells in parallel; each worker writes only its own cells.
  - Snapshot, Reset, threshold, alpha and spectrum channel accessors are
    safe from any goroutine. Reset is applied by the next ProcessFrame or
    Beamform call, before any cell is touched.
*/
package camera

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"soundcam/internal/analysis"
	"soundcam/internal/beamform"
	"soundcam/internal/geometry"
	"soundcam/internal/heatmap"
	applog "soundcam/internal/log"

	"golang.org/x/sync/errgroup"
)

var (
	ErrChannelOutOfRange = errors.New("camera: channel out of range")
	ErrSampleOutOfRange  = errors.New("camera: sample out of range")
	ErrCellOutOfRange    = errors.New("camera: cell out of range")
	ErrFrameSize         = errors.New("camera: frame size mismatch")
)

var logger = applog.New("camera")

// Engine is the per-frame orchestrator.
type Engine struct {
	opts     Options
	grid     geometry.GridSpec
	mics     int
	channels int
	samples  int
	workers  int

	buf []int16 // [sample][channel], mics followed by the beam channel

	analyzer *analysis.Analyzer
	delays   *beamform.DelayTable
	phases   *beamform.PhaseTable
	timeBF   *beamform.TimeDomain
	freqBF   *beamform.FrequencyDomain
	views    [][]complex128
	heat     *heatmap.Map

	spectrumChannel int
	displayBins     int

	resetPending atomic.Bool

	mu       sync.RWMutex
	sequence uint64
	last     Frame
	hasFrame bool
}

// New builds the delay and phase tables and pre-allocates every buffer.
func New(opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	mics := opts.Geometry.Len()
	channels := mics + 1

	analyzer, err := analysis.NewAnalyzer(analysis.Options{
		Size:       opts.Samples,
		SampleRate: opts.SampleRate,
		Channels:   channels,
		Window:     opts.Window,
		Backend:    opts.Backend,
	})
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}

	delays, err := beamform.NewDelayTable(opts.Geometry, opts.Grid, opts.SampleRate, opts.SpeedOfSound, opts.Samples)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	phases, err := beamform.NewPhaseTable(delays, analyzer.Frequencies(nil))
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	timeBF, err := beamform.NewTimeDomain(delays, channels, opts.ReferencePower)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}

	if err := opts.Band.Validate(); err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	lo, hi := analysis.BinRange(analyzer, opts.Band)
	freqBF, err := beamform.NewFrequencyDomain(phases, analyzer, lo, hi, opts.ReferencePower)
	if err != nil {
		return nil, fmt.Errorf("camera: band %.1f-%.1f Hz: %w", opts.Band.LowHz, opts.Band.HighHz, err)
	}

	heat, err := heatmap.New(opts.Grid.Cells(), opts.Alpha, opts.Threshold)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}

	_, displayBins := analysis.BinRange(analyzer, analysis.DisplayBand(opts.SampleRate))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	e := &Engine{
		opts:        opts,
		grid:        opts.Grid,
		mics:        mics,
		channels:    channels,
		samples:     opts.Samples,
		workers:     workers,
		buf:         make([]int16, opts.Samples*channels),
		analyzer:    analyzer,
		delays:      delays,
		phases:      phases,
		timeBF:      timeBF,
		freqBF:      freqBF,
		heat:        heat,
		displayBins: displayBins,
	}
	// Spectrum views alias fixed analyzer storage, so they are taken once.
	e.views = freqBF.Views(make([][]complex128, 0, mics), analyzer)

	if err := e.SetSpectrumChannel(opts.SpectrumChannel); err != nil {
		return nil, err
	}

	logger.Infof("engine ready (mics: %d, grid: %dx%d, samples: %d, rate: %.0f Hz, band bins: [%d, %d), workers: %d)",
		mics, opts.Grid.Azimuths, opts.Grid.Polars, opts.Samples, opts.SampleRate, lo, hi, workers)
	return e, nil
}

// Mics returns the number of microphones.
func (e *Engine) Mics() int { return e.mics }

// Channels returns the interleaved channel count (mics + beam).
func (e *Engine) Channels() int { return e.channels }

// Samples returns the block length N.
func (e *Engine) Samples() int { return e.samples }

// SampleRate returns the sample rate in Hz.
func (e *Engine) SampleRate() float64 { return e.opts.SampleRate }

// Grid returns the direction grid.
func (e *Engine) Grid() geometry.GridSpec { return e.grid }

// Delays returns the time-domain delay table.
func (e *Engine) Delays() *beamform.DelayTable { return e.delays }

// WriteMicrophoneData stores one sample. channel may be the beam channel
// (index Mics()).
func (e *Engine) WriteMicrophoneData(sample, channel int, value int16) error {
	i, err := e.index(sample, channel)
	if err != nil {
		return err
	}
	e.buf[i] = value
	return nil
}

// ReadMicrophoneData returns one sample of the buffer.
func (e *Engine) ReadMicrophoneData(sample, channel int) (int16, error) {
	i, err := e.index(sample, channel)
	if err != nil {
		return 0, err
	}
	return e.buf[i], nil
}

// WriteInterleaved replaces the whole buffer with a [sample][channel] block.
func (e *Engine) WriteInterleaved(block []int16) error {
	if len(block) != len(e.buf) {
		return fmt.Errorf("%w: got %d samples, want %d", ErrFrameSize, len(block), len(e.buf))
	}
	copy(e.buf, block)
	return nil
}

func (e *Engine) index(sample, channel int) (int, error) {
	if sample < 0 || sample >= e.samples {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", ErrSampleOutOfRange, sample, e.samples)
	}
	if channel < 0 || channel >= e.channels {
		return 0, fmt.Errorf("%w: %d not in [0, %d]", ErrChannelOutOfRange, channel, e.mics)
	}
	return sample*e.channels + channel, nil
}

// FFTDataInBuffer computes the spectra of every channel of the buffer.
func (e *Engine) FFTDataInBuffer() error {
	return e.analyzer.Process(e.buf)
}

// FFTFrequency writes the frequency axis in Hz into dst.
func (e *Engine) FFTFrequency(dst []float64) []float64 {
	return e.analyzer.Frequencies(dst)
}

// FFTMagnitudeDB copies the dB spectrum of a channel into dst.
func (e *Engine) FFTMagnitudeDB(dst []float64, channel int) ([]float64, error) {
	if channel == BeamChannel {
		channel = e.mics
	}
	db, err := e.analyzer.MagnitudesDB(dst, channel)
	if err != nil {
		return db, fmt.Errorf("%w: %v", ErrChannelOutOfRange, err)
	}
	return db, nil
}

// BeamformTime steers the time-domain beamformer at (az, pol), smooths the
// result into the map and returns the smoothed SPL.
func (e *Engine) BeamformTime(az, pol int) (float64, error) {
	return e.Beamform(beamform.TimeMode, az, pol)
}

// BeamformFrequency is BeamformTime for the frequency-domain beamformer. It
// uses the spectra of the last FFTDataInBuffer call.
func (e *Engine) BeamformFrequency(az, pol int) (float64, error) {
	return e.Beamform(beamform.FrequencyMode, az, pol)
}

// Beamform steers the beamformer of the given mode at (az, pol).
func (e *Engine) Beamform(mode beamform.Mode, az, pol int) (float64, error) {
	if az < 0 || az >= e.grid.Azimuths || pol < 0 || pol >= e.grid.Polars {
		return 0, fmt.Errorf("%w: (%d, %d) outside %dx%d", ErrCellOutOfRange, az, pol, e.grid.Azimuths, e.grid.Polars)
	}
	e.applyReset()
	return e.beamformCell(mode, e.grid.Cell(az, pol)), nil
}

// applyReset clears the smoothing state if a Reset is pending. Only the
// frame caller runs it, so the clear never overlaps a sweep.
func (e *Engine) applyReset() {
	if e.resetPending.Swap(false) {
		e.heat.Reset()
		logger.Infof("smoothing state reset")
	}
}

func (e *Engine) beamformCell(mode beamform.Mode, cell int) float64 {
	var spl float64
	if mode == beamform.FrequencyMode {
		spl = e.freqBF.SPL(e.views, cell)
	} else {
		spl = e.timeBF.SPL(e.buf, cell)
	}
	return e.heat.Update(cell, spl)
}

// ProcessFrame analyses the buffer, sweeps every cell with the beamformer of
// the given mode and publishes the resulting Frame. Cells are spread over a
// bounded pool of workers; cancellation is checked between cells and leaves
// the map partially updated.
func (e *Engine) ProcessFrame(ctx context.Context, mode beamform.Mode) (Frame, error) {
	if err := e.FFTDataInBuffer(); err != nil {
		return Frame{}, err
	}
	e.applyReset()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for az := range e.grid.Azimuths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			for pol := range e.grid.Polars {
				if err := gctx.Err(); err != nil {
					return err
				}
				e.beamformCell(mode, e.grid.Cell(az, pol))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Frame{}, err
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	frame, err := e.buildFrame(mode)
	if err != nil {
		return Frame{}, err
	}

	e.mu.Lock()
	e.sequence++
	frame.Sequence = e.sequence
	e.last = frame
	e.hasFrame = true
	e.mu.Unlock()

	if frame.BelowThreshold {
		logger.Debugf("frame %d below threshold (max %.1f dB < %d dB)", frame.Sequence, frame.Max, frame.Threshold)
	}
	return frame, nil
}

func (e *Engine) buildFrame(mode beamform.Mode) (Frame, error) {
	grid := e.heat.Values(nil)
	peak, peakCell := e.heat.Max()
	quiet, _ := e.heat.Min()
	az, pol := e.grid.Split(peakCell)

	channel := e.SpectrumChannel()
	db, err := e.FFTMagnitudeDB(nil, channel)
	if err != nil {
		return Frame{}, err
	}

	threshold := e.heat.Threshold()
	return Frame{
		Timestamp:       time.Now(),
		Mode:            mode,
		Azimuths:        e.grid.Azimuths,
		Polars:          e.grid.Polars,
		Grid:            grid,
		Max:             peak,
		Min:             quiet,
		MaxCell:         peakCell,
		MaxAzimuth:      e.grid.Azimuth(az),
		MaxPolar:        e.grid.Polar(pol),
		Threshold:       threshold,
		BelowThreshold:  peak < float64(threshold),
		SpectrumChannel: channel,
		Spectrum:        db[:e.displayBins],
		Frequencies:     e.analyzer.Frequencies(nil)[:e.displayBins],
	}, nil
}

// Snapshot returns the last published frame. Its slices are shared with
// other readers and must not be modified.
func (e *Engine) Snapshot() (Frame, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last, e.hasFrame
}

// SetThreshold sets the display threshold in dB.
func (e *Engine) SetThreshold(level uint16) {
	e.heat.SetThreshold(level)
	logger.Debugf("threshold set to %d dB", level)
}

// Threshold returns the display threshold in dB.
func (e *Engine) Threshold() uint16 { return e.heat.Threshold() }

// SetAlpha sets the smoothing factor; values outside (0, 1] are rejected.
func (e *Engine) SetAlpha(alpha float64) error {
	return e.heat.SetAlpha(alpha)
}

// Alpha returns the smoothing factor.
func (e *Engine) Alpha() float64 { return e.heat.Alpha() }

// Reset requests a clear of the smoothing state. The whole grid is cleared at
// the start of the next frame; the current Snapshot is unchanged.
func (e *Engine) Reset() {
	e.resetPending.Store(true)
}

// SetSpectrumChannel selects the channel published in Frame.Spectrum.
func (e *Engine) SetSpectrumChannel(channel int) error {
	if channel == BeamChannel {
		channel = e.mics
	}
	if channel < 0 || channel >= e.channels {
		return fmt.Errorf("%w: spectrum channel %d not in [0, %d]", ErrChannelOutOfRange, channel, e.mics)
	}
	e.mu.Lock()
	e.spectrumChannel = channel
	e.mu.Unlock()
	return nil
}

// SpectrumChannel returns the channel published in Frame.Spectrum.
func (e *Engine) SpectrumChannel() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.spectrumChannel
}
