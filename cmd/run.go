// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"soundcam/internal/audio"
	"soundcam/internal/beamform"
	"soundcam/internal/camera"
	"soundcam/internal/config"
	"soundcam/internal/transport"
	"soundcam/internal/transport/udp"
	"soundcam/internal/tui"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// outputs owns everything frames are published to.
type outputs struct {
	sinks     []audio.Sink
	closers   []io.Closer
	publisher *udp.Publisher
}

func (o *outputs) Close() error {
	var errs []error
	if o.publisher != nil {
		errs = append(errs, o.publisher.Stop())
	}
	for i := len(o.closers) - 1; i >= 0; i-- {
		errs = append(errs, o.closers[i].Close())
	}
	return errors.Join(errs...)
}

// startOutputs opens the transports enabled in cfg.
func startOutputs(cfg *config.Config, engine *camera.Engine) (*outputs, error) {
	out := &outputs{}
	t := cfg.Transport

	if t.LogFrames {
		lt := transport.NewLoggingTransport(1)
		out.sinks = append(out.sinks, lt)
		out.closers = append(out.closers, lt)
	}
	if t.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(":" + t.WebSocketPort)
		if err != nil {
			out.Close()
			return nil, err
		}
		out.sinks = append(out.sinks, ws)
		out.closers = append(out.closers, ws)
	}
	if t.UDPEnabled {
		sender, err := udp.NewSender(t.UDPTargetAddress)
		if err != nil {
			out.Close()
			return nil, err
		}
		out.closers = append(out.closers, sender)
		pub, err := udp.NewPublisher(t.UDPSendInterval, sender, engine)
		if err != nil {
			out.Close()
			return nil, err
		}
		pub.Start()
		out.publisher = pub
	}
	return out, nil
}

func newPipeline(cfg *config.Config, engine *camera.Engine, out *outputs, rec *audio.Recorder) (*audio.Pipeline, error) {
	mode, err := beamform.ParseMode(cfg.Camera.Mode)
	if err != nil {
		return nil, err
	}
	return audio.NewPipeline(engine, audio.PipelineOptions{
		Mode:          mode,
		GateThreshold: cfg.Audio.GateThreshold,
		Recorder:      rec,
		Sinks:         out.sinks,
	}), nil
}

// startRecorder starts a timestamped recording in the configured directory
// when recording is enabled.
func startRecorder(cfg *config.Config, engine *camera.Engine) (*audio.Recorder, error) {
	if !cfg.Recording.Enabled {
		return nil, nil
	}
	if err := os.MkdirAll(cfg.Recording.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording directory: %w", err)
	}
	name := filepath.Join(cfg.Recording.OutputDir,
		"soundcam-"+time.Now().UTC().Format("02-01-2006-150405")+"."+cfg.Recording.Format)
	rec := audio.NewRecorder(int(engine.SampleRate()), engine.Mics(), engine.Samples(), cfg.Recording.MaxDuration)
	if err := rec.Start(name); err != nil {
		return nil, err
	}
	return rec, nil
}

// runLive captures from the configured device until interrupted or, with the
// TUI, until the user quits.
func runLive(ctx context.Context, cfg *config.Config, withTUI bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opts, err := engineOptions(cfg)
	if err != nil {
		return err
	}
	engine, err := camera.New(opts)
	if err != nil {
		return err
	}

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	out, err := startOutputs(cfg, engine)
	if err != nil {
		return err
	}
	defer out.Close()

	rec, err := startRecorder(cfg, engine)
	if err != nil {
		return err
	}
	if rec != nil {
		defer func() {
			if err := rec.Stop(); err != nil {
				logger.Errorf("stop recording: %v", err)
			}
		}()
	}

	pipeline, err := newPipeline(cfg, engine, out, rec)
	if err != nil {
		return err
	}
	capture, err := audio.NewCapture(cfg.Audio.InputDevice, cfg.Audio.LowLatency, pipeline)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pipeline.Run(ctx) })

	if err := capture.Start(); err != nil {
		stop()
		g.Wait()
		return err
	}

	if withTUI {
		g.Go(func() error {
			defer stop()
			return tui.RunHeatMap(ctx, pipeline, 0)
		})
	}
	<-ctx.Done()

	if err := capture.Stop(); err != nil {
		logger.Errorf("stop capture: %v", err)
	}
	frames, dropped, gated := pipeline.Stats()
	logger.Infof("processed %d frames (%d dropped, %d gated)", frames, dropped, gated)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newReplayCommand(cfg **config.Config) *cobra.Command {
	var realtime bool
	replayCmd := &cobra.Command{
		Use:   "replay <file.wav>",
		Short: "Run the camera over a multichannel WAV recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), *cfg, args[0], realtime, cmd.OutOrStdout())
		},
	}
	replayCmd.Flags().BoolVar(&realtime, "realtime", false, "Pace frames at the recording's rate")
	return replayCmd
}

// runReplay feeds every complete block of a recording through the pipeline
// and prints where the loudest frame pointed.
func runReplay(ctx context.Context, cfg *config.Config, path string, realtime bool, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mics := camera.DefaultOptions().Geometry.Len()
	replay, err := audio.OpenReplay(path, mics, cfg.Audio.FramesPerBuffer)
	if err != nil {
		return err
	}
	defer replay.Close()

	// The recording decides the rate.
	replayCfg := *cfg
	replayCfg.Audio.SampleRate = float64(replay.SampleRate())
	opts, err := engineOptions(&replayCfg)
	if err != nil {
		return err
	}
	engine, err := camera.New(opts)
	if err != nil {
		return err
	}
	out, err := startOutputs(&replayCfg, engine)
	if err != nil {
		return err
	}
	defer out.Close()
	pipeline, err := newPipeline(&replayCfg, engine, out, nil)
	if err != nil {
		return err
	}

	var pace <-chan time.Time
	if realtime {
		ticker := time.NewTicker(time.Duration(float64(time.Second) * float64(engine.Samples()) / engine.SampleRate()))
		defer ticker.Stop()
		pace = ticker.C
	}

	var (
		block   []int16
		loudest camera.Frame
		blocks  int
	)
	for {
		block, err = replay.Next(block)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		blocks++
		frame, ok, err := pipeline.Process(ctx, block)
		if err != nil {
			return err
		}
		if ok && (loudest.Sequence == 0 || frame.Max > loudest.Max) {
			loudest = frame
		}
		if pace != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-pace:
			}
		}
	}

	frames, _, gated := pipeline.Stats()
	fmt.Fprintf(w, "%s: %d blocks at %d Hz, %d frames, %d gated\n",
		filepath.Base(path), blocks, replay.SampleRate(), frames, gated)
	if loudest.Sequence == 0 {
		fmt.Fprintln(w, "no frames above the gate")
		return nil
	}
	fmt.Fprintf(w, "loudest: frame %d, %.1f dB at azimuth %.1f°, polar %.1f° (%s domain)\n",
		loudest.Sequence, loudest.Max, loudest.MaxAzimuth, loudest.MaxPolar, loudest.Mode)
	return nil
}

func newListCommand() *cobra.Command {
	var interactive bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()

			mics := camera.DefaultOptions().Geometry.Len()
			if !interactive {
				return audio.ListDevices(cmd.OutOrStdout(), mics)
			}
			sel, ok, err := tui.StartDeviceListUI(mics)
			if err != nil || !ok {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: --device %d --sample-rate %.0f\n", sel.Name, sel.DeviceID, sel.SampleRate)
			return nil
		},
	}
	listCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Pick a device in the terminal UI")
	return listCmd
}

func newDelaysCommand(cfg **config.Config) *cobra.Command {
	var all bool
	delaysCmd := &cobra.Command{
		Use:   "delays",
		Short: "Print the steering delay table for the configured grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := engineOptions(*cfg)
			if err != nil {
				return err
			}
			table, err := beamform.NewDelayTable(opts.Geometry, opts.Grid, opts.SampleRate, opts.SpeedOfSound, opts.Samples)
			if err != nil {
				return err
			}
			return printDelays(cmd.OutOrStdout(), table, all)
		},
	}
	delaysCmd.Flags().BoolVar(&all, "all", false, "Print every cell instead of the centre row")
	return delaysCmd
}

func printDelays(w io.Writer, t *beamform.DelayTable, all bool) error {
	grid := t.Grid()
	fmt.Fprintf(w, "grid %dx%d, %d mics, %.0f Hz, %d samples\n",
		grid.Azimuths, grid.Polars, t.Mics(), t.SampleRate(), t.Samples())
	fmt.Fprintf(w, "index range [%d, %d], span %d, clamped %d\n\n",
		t.MinIndex(), t.MaxIndex(), t.Span(), t.Clamped())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "az\tpol\t")
	for m := range t.Mics() {
		fmt.Fprintf(tw, "m%d\t", m)
	}
	fmt.Fprintln(tw)

	centre := grid.Polars / 2
	for az := range grid.Azimuths {
		for pol := range grid.Polars {
			if !all && pol != centre {
				continue
			}
			fmt.Fprintf(tw, "%.2f\t%.2f\t", grid.Azimuth(az), grid.Polar(pol))
			for m := range t.Mics() {
				fmt.Fprintf(tw, "%d\t", t.Normalized(m, az, pol))
			}
			fmt.Fprintln(tw)
		}
	}
	return tw.Flush()
}
