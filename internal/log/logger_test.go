// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	prev := GetLevel()
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prev)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   LogLevel
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{" warn ", LevelWarn, true},
		{"warning", LevelWarn, true},
		{"Error", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelWarn)

	l := New("camera")
	l.Debugf("dropped %d", 1)
	l.Infof("dropped %d", 2)
	l.Warnf("kept %d", 3)
	l.Errorf("kept %d", 4)

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("messages below level were written: %q", out)
	}
	if !strings.Contains(out, "[WARN]  camera: kept 3") {
		t.Errorf("warn line missing or malformed: %q", out)
	}
	if !strings.Contains(out, "[ERROR] camera: kept 4") {
		t.Errorf("error line missing or malformed: %q", out)
	}
}

func TestPackageHelpersHaveNoComponent(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelDebug)

	Debugf("frame %d", 7)
	if !strings.Contains(buf.String(), "[DEBUG] frame 7") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestLevelString(t *testing.T) {
	if LogLevel(42).String() != "UNKNOWN" {
		t.Errorf("unexpected name for unknown level")
	}
}
