// SPDX-License-Identifier: MIT
package config

import "time"

// Defaults and limits of the runtime configuration.
const (
	// Audio
	DefaultDeviceID        = MinDeviceID // System default input device
	DefaultSampleRate      = 48000       // MATRIX Creator rate
	DefaultFramesPerBuffer = 512         // One beamforming block
	DefaultLowLatency      = false
	DefaultWindow          = "Hann"
	DefaultGateThreshold   = 0 // Gate off

	// Camera
	DefaultMode            = "time"
	DefaultBackend         = "gonum"
	DefaultAzimuths        = 21
	DefaultPolars          = 16
	DefaultFieldOfViewAz   = 53.50 // degrees
	DefaultFieldOfViewPol  = 41.41 // degrees
	DefaultSpeedOfSound    = 344000.0
	DefaultAlpha           = 1.0
	DefaultThreshold       = 0
	DefaultSpectrumChannel = -1 // Beam channel

	// Recording
	DefaultRecordingDir = "./recordings"
	DefaultFormat       = "wav"
	DefaultBitDepth     = 16

	// Transport
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond // ~30 Hz
	DefaultWebSocketPort    = "8080"

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MinBufferFrames = 16
	MaxBufferFrames = 8192 // Maximum frames per buffer (power of 2)

	// Env overrides use this prefix, e.g. SOUNDCAM_UDP_ENABLED.
	EnvPrefix = "SOUNDCAM_"

	// DefaultConfigFile is searched in the working directory when no path is given.
	DefaultConfigFile = "config.yaml"
)
