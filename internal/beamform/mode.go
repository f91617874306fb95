// SPDX-License-Identifier: MIT
package beamform

import (
	"fmt"
	"strings"
)

// Mode selects which beamformer produces a frame.
type Mode int

const (
	TimeMode Mode = iota
	FrequencyMode
)

func (m Mode) String() string {
	switch m {
	case TimeMode:
		return "time"
	case FrequencyMode:
		return "frequency"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "time"/"t" and "frequency"/"freq"/"f", case-insensitive.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "time", "t":
		return TimeMode, nil
	case "frequency", "freq", "f":
		return FrequencyMode, nil
	default:
		return TimeMode, fmt.Errorf("beamform: unknown mode %q", s)
	}
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == TimeMode {
		return FrequencyMode
	}
	return TimeMode
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
