// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Replay reads a multichannel WAV recording back in blocks, standing in for
// the live capture.
type Replay struct {
	file       *os.File
	decoder    *wav.Decoder
	channels   int
	frames     int
	sampleRate int
	shift      uint // scales other bit depths to 16 bits

	buf *audio.IntBuffer
}

// OpenReplay opens a WAV file holding exactly channels channels and prepares
// to read blocks of frames frames.
func OpenReplay(path string, channels, frames int) (*Replay, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("replay: %s is not a valid WAV file", path)
	}
	decoder.ReadInfo()
	if err := decoder.FwdToPCM(); err != nil {
		file.Close()
		return nil, fmt.Errorf("replay: %w", err)
	}

	if int(decoder.NumChans) != channels {
		file.Close()
		return nil, fmt.Errorf("replay: %s has %d channels, the array needs %d", path, decoder.NumChans, channels)
	}

	var shift uint
	switch decoder.BitDepth {
	case 16:
	case 24:
		shift = 8
	case 32:
		shift = 16
	default:
		file.Close()
		return nil, fmt.Errorf("replay: unsupported bit depth %d", decoder.BitDepth)
	}

	logger.Infof("replaying %s (%d channels, %d Hz, %d bit)", path, decoder.NumChans, decoder.SampleRate, decoder.BitDepth)

	return &Replay{
		file:       file,
		decoder:    decoder,
		channels:   channels,
		frames:     frames,
		sampleRate: int(decoder.SampleRate),
		shift:      shift,
		buf: &audio.IntBuffer{
			Format: &audio.Format{NumChannels: channels, SampleRate: int(decoder.SampleRate)},
			Data:   make([]int, frames*channels),
		},
	}, nil
}

// SampleRate returns the sample rate of the recording.
func (r *Replay) SampleRate() int { return r.sampleRate }

// Next reads the next block of interleaved samples into dst, growing it if
// needed. It returns io.EOF once less than a full block remains.
func (r *Replay) Next(dst []int16) ([]int16, error) {
	need := r.frames * r.channels
	read := 0
	for read < need {
		r.buf.Data = r.buf.Data[:need-read]
		n, err := r.decoder.PCMBuffer(r.buf)
		if n > 0 {
			if cap(dst) < need {
				dst = make([]int16, need)
			}
			dst = dst[:need]
			for i, v := range r.buf.Data[:n] {
				dst[read+i] = int16(v >> r.shift)
			}
			read += n
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return dst, io.EOF
			}
			return dst, fmt.Errorf("replay: %w", err)
		}
		if n == 0 {
			return dst, io.EOF
		}
	}
	return dst, nil
}

// Close closes the underlying file.
func (r *Replay) Close() error {
	return r.file.Close()
}
