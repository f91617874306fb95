// SPDX-License-Identifier: MIT
//
// Package build carries the metadata embedded at link time:
//
//	go build -ldflags "-X soundcam/pkg/build.buildName=soundcam \
//	  -X soundcam/pkg/build.buildTime=$(date -u +%FT%TZ) \
//	  -X soundcam/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	  -X soundcam/pkg/build.buildVersion=0.1.0"
//
// Development builds keep the defaults and Initialize reports what is missing.
package build

import "fmt"

// Description is the one-line summary shown by the CLI.
const Description = "Real-time acoustic camera for microphone arrays"

// Flags is the build information of the running binary.
type Flags struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// String formats the flags for `--version`.
func (f Flags) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", f.Version, f.Commit, f.Time)
}

// Set with -ldflags -X; empty in development builds.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultFlags()
)

func defaultFlags() *Flags {
	return &Flags{
		Name:    "soundcam",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "dev",
	}
}

// Initialize copies the link-time values into the build flags. It reports the
// first missing value and leaves the defaults untouched.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Flags {
	return buildFlags
}
