// SPDX-License-Identifier: MIT
package main

import (
	"os"

	"soundcam/cmd"
	applog "soundcam/internal/log"
	"soundcam/pkg/build"
)

// main runs in three phases:
//
// 1. Startup (cold path): build information, then configuration from
// defaults, config.yaml, SOUNDCAM_* variables and flags.
//
// 2. Capture (hot path): PortAudio callbacks hand blocks to the beamforming
// worker, which publishes frames to the TUI and transports.
//
// 3. Shutdown (cold path): on quit or SIGINT/SIGTERM the stream stops, the
// recording is finalized and transports close.
func main() {
	// Development builds run without ldflags.
	if err := build.Initialize(); err != nil {
		applog.Debugf("build info: %v", err)
	}

	if err := cmd.Execute(os.Args[1:]); err != nil {
		applog.Errorf("%v", err)
		os.Exit(1)
	}
}
