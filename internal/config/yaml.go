// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"soundcam/internal/analysis"
	"soundcam/internal/beamform"
	"soundcam/internal/geometry"
	"soundcam/internal/heatmap"
	applog "soundcam/internal/log"
	"soundcam/pkg/bitint"

	"gopkg.in/yaml.v3"
)

var logger = applog.New("config")

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`             // Force debug logging.
	LogLevel  string          `yaml:"log_level"`         // "debug", "info", "warn", "error".
	Command   string          `yaml:"command,omitempty"` // One-off command instead of running the engine.
	Audio     AudioConfig     `yaml:"audio"`
	Camera    CameraConfig    `yaml:"camera"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
}

// AudioConfig holds settings related to audio input and analysis.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Block length N, a power of two.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio.
	FFTWindow       string  `yaml:"fft_window"`        // Window function name, e.g. "Hann".
	GateThreshold   int     `yaml:"gate_threshold"`    // Skip blocks whose peak |sample| is at or below this; 0 disables.
}

// CameraConfig holds the beamforming grid and display settings.
type CameraConfig struct {
	Mode            string  `yaml:"mode"`             // "time" or "frequency".
	FFTBackend      string  `yaml:"fft_backend"`      // "gonum" or "go-dsp".
	Azimuths        int     `yaml:"azimuths"`         // Grid columns.
	Polars          int     `yaml:"polars"`           // Grid rows.
	FieldOfViewAz   float64 `yaml:"fov_azimuth"`      // Degrees spanned by the columns.
	FieldOfViewPol  float64 `yaml:"fov_polar"`        // Degrees spanned by the rows.
	SpeedOfSound    float64 `yaml:"speed_of_sound"`   // mm/s.
	Alpha           float64 `yaml:"alpha"`            // Smoothing weight of the newest frame, (0, 1].
	Threshold       uint16  `yaml:"threshold"`        // Display threshold in dB.
	BandLowHz       float64 `yaml:"band_low_hz"`      // Frequency-domain band; both 0 means [0, fs/5).
	BandHighHz      float64 `yaml:"band_high_hz"`     //
	SpectrumChannel int     `yaml:"spectrum_channel"` // Channel on the spectrum plot, -1 for the beam.
	Workers         int     `yaml:"workers"`          // Parallel cell workers, 0 for GOMAXPROCS.
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled     bool   `yaml:"enabled"`              // Record the microphone channels to file.
	OutputDir   string `yaml:"output_dir"`           // Directory to save recorded audio files.
	Format      string `yaml:"format"`               // Only "wav".
	BitDepth    int    `yaml:"bit_depth"`            // Only 16.
	MaxDuration int    `yaml:"max_duration_seconds"` // Stop recording after this many seconds (0 for unlimited).
}

// TransportConfig holds settings related to sending heat maps over the network.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Publish heat-map packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve JSON frames on /ws.
	WebSocketPort    string        `yaml:"websocket_port"`     //
	LogFrames        bool          `yaml:"log_frames"`         // Log a line per published frame.
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
			FFTWindow:       DefaultWindow,
			GateThreshold:   DefaultGateThreshold,
		},
		Camera: CameraConfig{
			Mode:            DefaultMode,
			FFTBackend:      DefaultBackend,
			Azimuths:        DefaultAzimuths,
			Polars:          DefaultPolars,
			FieldOfViewAz:   DefaultFieldOfViewAz,
			FieldOfViewPol:  DefaultFieldOfViewPol,
			SpeedOfSound:    DefaultSpeedOfSound,
			Alpha:           DefaultAlpha,
			Threshold:       DefaultThreshold,
			SpectrumChannel: DefaultSpectrumChannel,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultRecordingDir,
			Format:    DefaultFormat,
			BitDepth:  DefaultBitDepth,
		},
		Transport: TransportConfig{
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
			WebSocketPort:    DefaultWebSocketPort,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches the working directory for DefaultConfigFile. If no file is found, it uses
// built-in defaults. After loading defaults or from file, it applies environment
// variable overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		logger.Debugf("loaded %s", path)
	}

	// Environment overrides apply after the file.
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	// Audio
	a := c.Audio
	if a.InputDevice < MinDeviceID {
		return fmt.Errorf("audio.input_device %d is below %d", a.InputDevice, MinDeviceID)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %.0f outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer < MinBufferFrames || a.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer %d outside [%d, %d]", a.FramesPerBuffer, MinBufferFrames, MaxBufferFrames)
	}
	if !bitint.IsPowerOfTwo(a.FramesPerBuffer) {
		return fmt.Errorf("audio.frames_per_buffer %d is not a power of two (try %d)",
			a.FramesPerBuffer, bitint.NextPowerOfTwo(a.FramesPerBuffer))
	}
	if _, err := analysis.ParseWindowFunc(a.FFTWindow); err != nil {
		return fmt.Errorf("audio.fft_window: %w", err)
	}
	if a.GateThreshold < 0 || a.GateThreshold > 32767 {
		return fmt.Errorf("audio.gate_threshold %d outside [0, 32767]", a.GateThreshold)
	}

	// Camera
	cam := c.Camera
	if _, err := beamform.ParseMode(cam.Mode); err != nil {
		return fmt.Errorf("camera.mode: %w", err)
	}
	if _, err := analysis.ParseBackend(cam.FFTBackend); err != nil {
		return fmt.Errorf("camera.fft_backend: %w", err)
	}
	if err := c.Grid().Validate(); err != nil {
		return fmt.Errorf("camera grid: %w", err)
	}
	if cam.SpeedOfSound <= 0 {
		return fmt.Errorf("camera.speed_of_sound must be positive")
	}
	if !(cam.Alpha > 0 && cam.Alpha <= 1) {
		return fmt.Errorf("camera.alpha: %w", heatmap.ErrInvalidAlpha)
	}
	if cam.BandLowHz != 0 || cam.BandHighHz != 0 {
		band := c.Band()
		if err := band.Validate(); err != nil {
			return fmt.Errorf("camera band: %w", err)
		}
		if band.HighHz > a.SampleRate/2 {
			return fmt.Errorf("camera.band_high_hz %.1f above Nyquist %.1f", band.HighHz, a.SampleRate/2)
		}
	}
	if mics := geometry.MatrixCreator().Len(); cam.SpectrumChannel < -1 || cam.SpectrumChannel > mics {
		return fmt.Errorf("camera.spectrum_channel %d outside [-1, %d]", cam.SpectrumChannel, mics)
	}
	if cam.Workers < 0 {
		return fmt.Errorf("camera.workers must not be negative")
	}

	// Recording
	if c.Recording.Enabled {
		if c.Recording.Format != "wav" {
			return fmt.Errorf("recording.format %q is not supported (only wav)", c.Recording.Format)
		}
		if c.Recording.BitDepth != 16 {
			return fmt.Errorf("recording.bit_depth %d is not supported (only 16)", c.Recording.BitDepth)
		}
		if c.Recording.OutputDir == "" {
			return fmt.Errorf("recording.output_dir must be set when recording is enabled")
		}
	}
	if c.Recording.MaxDuration < 0 {
		return fmt.Errorf("recording.max_duration_seconds must not be negative")
	}

	// Transport
	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			return fmt.Errorf("transport.udp_target_address must be set when UDP is enabled")
		}
		if _, _, err := net.SplitHostPort(c.Transport.UDPTargetAddress); err != nil {
			return fmt.Errorf("transport.udp_target_address '%s' appears invalid: %w", c.Transport.UDPTargetAddress, err)
		}
		if c.Transport.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if c.Transport.WebSocketEnabled {
		if port, err := strconv.Atoi(c.Transport.WebSocketPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("transport.websocket_port %q is not a valid port", c.Transport.WebSocketPort)
		}
	}

	return nil
}

// Grid returns the direction grid described by the camera section.
func (c *Config) Grid() geometry.GridSpec {
	return geometry.GridSpec{
		Azimuths:   c.Camera.Azimuths,
		Polars:     c.Camera.Polars,
		MaxAzimuth: c.Camera.FieldOfViewAz,
		MaxPolar:   c.Camera.FieldOfViewPol,
	}
}

// Band returns the frequency-domain band, or the display band [0, fs/5)
// when none is configured.
func (c *Config) Band() analysis.Band {
	if c.Camera.BandLowHz == 0 && c.Camera.BandHighHz == 0 {
		return analysis.DisplayBand(c.Audio.SampleRate)
	}
	return analysis.Band{LowHz: c.Camera.BandLowHz, HighHz: c.Camera.BandHighHz}
}

// applyEnvOverrides reads SOUNDCAM_* variables. A set but malformed variable
// is an error rather than silently ignored.
func (c *Config) applyEnvOverrides() error {
	overrides := []struct {
		name  string
		apply func(string) error
	}{
		{"DEBUG", boolVar(&c.Debug)},
		{"LOG_LEVEL", stringVar(&c.LogLevel)},
		{"INPUT_DEVICE", intVar(&c.Audio.InputDevice)},
		{"MODE", stringVar(&c.Camera.Mode)},
		{"FFT_BACKEND", stringVar(&c.Camera.FFTBackend)},
		{"ALPHA", floatVar(&c.Camera.Alpha)},
		{"THRESHOLD", func(v string) error {
			n, err := strconv.ParseUint(v, 10, 16)
			if err == nil {
				c.Camera.Threshold = uint16(n)
			}
			return err
		}},
		{"UDP_ENABLED", boolVar(&c.Transport.UDPEnabled)},
		{"UDP_TARGET_ADDRESS", stringVar(&c.Transport.UDPTargetAddress)},
		{"UDP_SEND_INTERVAL", func(v string) error {
			d, err := time.ParseDuration(v)
			if err == nil {
				c.Transport.UDPSendInterval = d
			}
			return err
		}},
		{"WEBSOCKET_ENABLED", boolVar(&c.Transport.WebSocketEnabled)},
		{"WEBSOCKET_PORT", stringVar(&c.Transport.WebSocketPort)},
	}

	for _, o := range overrides {
		key := EnvPrefix + o.name
		val, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := o.apply(val); err != nil {
			return fmt.Errorf("%s=%q: %w", key, val, err)
		}
		logger.Infof("overriding from env: %s=%s", key, val)
	}
	return nil
}

func boolVar(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err == nil {
			*dst = b
		}
		return err
	}
}

func intVar(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err == nil {
			*dst = n
		}
		return err
	}
}

func floatVar(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			*dst = f
		}
		return err
	}
}

func stringVar(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}
