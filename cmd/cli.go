// SPDX-License-Identifier: MIT
// Package cmd wires configuration, the camera engine, audio sources and
// transports into the soundcam command line.
package cmd

import (
	"fmt"

	"soundcam/internal/analysis"
	"soundcam/internal/camera"
	"soundcam/internal/config"
	applog "soundcam/internal/log"
	"soundcam/pkg/build"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var logger = applog.New("cmd")

// cliFlags mirrors the configuration keys that can be overridden from the
// command line. Only flags the user actually set are applied.
type cliFlags struct {
	configPath string
	verbose    bool

	deviceID        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	window          string
	gate            int

	mode       string
	backend    string
	threshold  uint16
	alpha      float64
	workers    int
	spectrumCh int

	record    bool
	outputDir string
	maxSecs   int

	udp           bool
	udpTarget     string
	websocket     bool
	websocketPort string
	logFrames     bool
	noTUI         bool
}

// NewRootCommand builds the command tree. The root command runs the live
// camera.
func NewRootCommand() *cobra.Command {
	buildInfo := build.GetBuildFlags()
	flags := &cliFlags{}
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         build.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(cmd.Flags(), flags)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLive(cmd.Context(), cfg, !flags.noTUI)
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	bindFlags(rootCmd.PersistentFlags(), flags)

	rootCmd.AddCommand(
		newListCommand(),
		newReplayCommand(&cfg),
		newDelaysCommand(&cfg),
	)
	return rootCmd
}

// Execute runs the command line with args (without the program name).
func Execute(args []string) error {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func bindFlags(fs *pflag.FlagSet, f *cliFlags) {
	d := config.Default()

	fs.StringVarP(&f.configPath, "config", "f", "",
		"YAML configuration file (default ./"+config.DefaultConfigFile+" if present)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false,
		"Show debug output")

	// Audio Device Configuration
	fs.IntVarP(&f.deviceID, "device", "d", d.Audio.InputDevice,
		"Input device ID. Use the 'list' command to see available devices.")
	fs.Float64VarP(&f.sampleRate, "sample-rate", "s", d.Audio.SampleRate,
		"Sample rate, measured in Hertz (Hz)")
	fs.IntVarP(&f.framesPerBuffer, "frames-per-buffer", "b", d.Audio.FramesPerBuffer,
		"Samples per microphone per frame; also the FFT length (power of two)")
	fs.BoolVarP(&f.lowLatency, "low-latency", "l", d.Audio.LowLatency,
		"Use low latency mode for real-time processing")
	fs.StringVar(&f.window, "window", d.Audio.FFTWindow,
		"FFT window: Rectangular, Hann, Hamming, Blackman, BlackmanNuttall, Nuttall, BartlettHann, Lanczos")
	fs.IntVar(&f.gate, "gate", d.Audio.GateThreshold,
		"Skip blocks whose peak sample is at or below this level (0 disables)")

	// Camera Configuration
	fs.StringVarP(&f.mode, "mode", "m", d.Camera.Mode,
		"Beamforming domain: time or frequency")
	fs.StringVar(&f.backend, "backend", d.Camera.FFTBackend,
		"FFT backend: gonum or go-dsp")
	fs.Uint16VarP(&f.threshold, "threshold", "t", d.Camera.Threshold,
		"Display threshold in dB")
	fs.Float64VarP(&f.alpha, "alpha", "a", d.Camera.Alpha,
		"Smoothing weight of the newest frame, in (0, 1]")
	fs.IntVar(&f.workers, "workers", d.Camera.Workers,
		"Parallel beamforming workers (0 uses GOMAXPROCS)")
	fs.IntVar(&f.spectrumCh, "spectrum-channel", d.Camera.SpectrumChannel,
		"Channel shown on the spectrum (-1 for the beam)")

	// Recording Configuration
	fs.BoolVarP(&f.record, "record", "r", d.Recording.Enabled,
		"Record the microphone channels to a WAV file")
	fs.StringVarP(&f.outputDir, "output-dir", "o", d.Recording.OutputDir,
		"Directory for recordings")
	fs.IntVar(&f.maxSecs, "max-duration", d.Recording.MaxDuration,
		"Stop recording after this many seconds (0 for unlimited)")

	// Transport Configuration
	fs.BoolVar(&f.udp, "udp", d.Transport.UDPEnabled,
		"Publish heat maps as UDP packets")
	fs.StringVar(&f.udpTarget, "udp-target", d.Transport.UDPTargetAddress,
		"UDP destination host:port")
	fs.BoolVar(&f.websocket, "websocket", d.Transport.WebSocketEnabled,
		"Serve JSON frames on ws://host:port/ws")
	fs.StringVar(&f.websocketPort, "websocket-port", d.Transport.WebSocketPort,
		"WebSocket port")
	fs.BoolVar(&f.logFrames, "log-frames", d.Transport.LogFrames,
		"Log a summary line per frame")
	fs.BoolVar(&f.noTUI, "no-tui", false,
		"Run headless without the terminal heat map")
}

// loadConfig reads file and environment configuration, then applies the
// flags that were set explicitly and validates the result.
func loadConfig(fs *pflag.FlagSet, f *cliFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(fs, f, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	level, _ := applog.ParseLevel(cfg.LogLevel)
	if cfg.Debug || f.verbose {
		level = applog.LevelDebug
	}
	applog.SetLevel(level)
	logger.Debugf("configuration: %+v", *cfg)
	return cfg, nil
}

func applyFlags(fs *pflag.FlagSet, f *cliFlags, cfg *config.Config) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("verbose", func() { cfg.Debug = f.verbose })
	set("device", func() { cfg.Audio.InputDevice = f.deviceID })
	set("sample-rate", func() { cfg.Audio.SampleRate = f.sampleRate })
	set("frames-per-buffer", func() { cfg.Audio.FramesPerBuffer = f.framesPerBuffer })
	set("low-latency", func() { cfg.Audio.LowLatency = f.lowLatency })
	set("window", func() { cfg.Audio.FFTWindow = f.window })
	set("gate", func() { cfg.Audio.GateThreshold = f.gate })
	set("mode", func() { cfg.Camera.Mode = f.mode })
	set("backend", func() { cfg.Camera.FFTBackend = f.backend })
	set("threshold", func() { cfg.Camera.Threshold = f.threshold })
	set("alpha", func() { cfg.Camera.Alpha = f.alpha })
	set("workers", func() { cfg.Camera.Workers = f.workers })
	set("spectrum-channel", func() { cfg.Camera.SpectrumChannel = f.spectrumCh })
	set("record", func() { cfg.Recording.Enabled = f.record })
	set("output-dir", func() { cfg.Recording.OutputDir = f.outputDir })
	set("max-duration", func() { cfg.Recording.MaxDuration = f.maxSecs })
	set("udp", func() { cfg.Transport.UDPEnabled = f.udp })
	set("udp-target", func() { cfg.Transport.UDPTargetAddress = f.udpTarget })
	set("websocket", func() { cfg.Transport.WebSocketEnabled = f.websocket })
	set("websocket-port", func() { cfg.Transport.WebSocketPort = f.websocketPort })
	set("log-frames", func() { cfg.Transport.LogFrames = f.logFrames })
}

// engineOptions translates the configuration into camera options.
func engineOptions(cfg *config.Config) (camera.Options, error) {
	window, err := analysis.ParseWindowFunc(cfg.Audio.FFTWindow)
	if err != nil {
		return camera.Options{}, err
	}
	backend, err := analysis.ParseBackend(cfg.Camera.FFTBackend)
	if err != nil {
		return camera.Options{}, err
	}

	opts := camera.DefaultOptions()
	opts.Grid = cfg.Grid()
	opts.SampleRate = cfg.Audio.SampleRate
	opts.Samples = cfg.Audio.FramesPerBuffer
	opts.SpeedOfSound = cfg.Camera.SpeedOfSound
	opts.Window = window
	opts.Backend = backend
	opts.Band = cfg.Band()
	opts.Alpha = cfg.Camera.Alpha
	opts.Threshold = cfg.Camera.Threshold
	opts.SpectrumChannel = cfg.Camera.SpectrumChannel
	opts.Workers = cfg.Camera.Workers
	return opts, nil
}
