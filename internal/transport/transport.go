// SPDX-License-Identifier: MIT
// Package transport publishes heat-map frames to outside consumers.
package transport

import (
	"errors"
	"sync"

	applog "soundcam/internal/log"
)

var logger = applog.New("transport")

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Multi fans every Send out to a fixed set of transports.
type Multi struct {
	mu      sync.Mutex
	targets []Transport
}

// NewMulti returns a fan-out over targets. Nil targets are skipped.
func NewMulti(targets ...Transport) *Multi {
	m := &Multi{}
	for _, t := range targets {
		if t != nil {
			m.targets = append(m.targets, t)
		}
	}
	return m
}

// Len returns the number of targets.
func (m *Multi) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.targets)
}

// Send delivers data to every target. A failing target does not stop the
// others; all errors are joined.
func (m *Multi) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, t := range m.targets {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every target and forgets them.
func (m *Multi) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, t := range m.targets {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.targets = nil
	return errors.Join(errs...)
}

var _ Transport = (*Multi)(nil)
