// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"

	"github.com/gordonklaus/portaudio"
)

// DefaultDeviceID selects the host's default input device.
const DefaultDeviceID = -1

// PortAudio entry points, replaceable in tests.
var (
	paLibInitialize             = portaudio.Initialize
	paLibTerminate              = portaudio.Terminate
	paLibDevicesFunc            = portaudio.Devices
	paLibDefaultInputDeviceFunc = portaudio.DefaultInputDevice
	paDevicesFunc               = paDevices
)

// Initialize sets up the PortAudio subsystem.
// This must be called before any audio operations and paired with a Terminate() call.
func Initialize() error {
	if err := paLibInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
// This should be deferred immediately after Initialize().
func Terminate() error {
	if err := paLibTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// InputDevice retrieves the audio input device for the given device ID.
// If deviceID is DefaultDeviceID (-1), returns the system default input device.
// The device must offer at least channels input channels.
func InputDevice(deviceID, channels int) (*portaudio.DeviceInfo, error) {
	devices, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	var device *portaudio.DeviceInfo
	switch {
	case deviceID == DefaultDeviceID:
		device, err = paLibDefaultInputDeviceFunc()
		if err != nil {
			return nil, err
		}
	case deviceID < 0 || deviceID >= len(devices):
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	default:
		device = devices[deviceID]
	}

	if device.MaxInputChannels == 0 {
		return nil, fmt.Errorf("device %q does not support input", device.Name)
	}
	if device.MaxInputChannels < channels {
		return nil, fmt.Errorf("device %q has %d input channels, the array needs %d",
			device.Name, device.MaxInputChannels, channels)
	}
	return device, nil
}

// ListDevices writes information about all available audio devices to w.
// Devices with enough input channels for the array are marked.
func ListDevices(w io.Writer, channels int) error {
	devices, err := HostDevices()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nAvailable Audio Devices\n\n")

	for _, device := range devices {
		marker := " "
		if device.MaxInputChannels >= channels {
			marker = "*"
		}
		fmt.Fprintf(w, "%s[%d] %s (%s)\n", marker, device.ID, device.Name, device.Type())
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n", device.MaxInputChannels, device.MaxOutputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)
		fmt.Fprintf(w, "    Latency: Low=%.2fms, High=%.2fms\n",
			device.LowInputLatency.Seconds()*1000,
			device.HighInputLatency.Seconds()*1000)
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "* can capture %d channels\n", channels)

	return nil
}

// paDevices returns all available PortAudio devices, never nil on success.
func paDevices() ([]*portaudio.DeviceInfo, error) {
	devices, err := paLibDevicesFunc()
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []*portaudio.DeviceInfo{}
	}
	return devices, nil
}
