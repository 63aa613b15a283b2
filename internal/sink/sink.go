// Package sink provides outputs that consume rendered media without a
// device: an audio sink that counts and discards samples, and a video
// surface that counts frames and remembers the last one.
package sink

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/zsiec/playcore/internal/media"
	"github.com/zsiec/playcore/internal/renderer"
)

// ErrNotOpen is returned when writing to a sink that is not open and
// started.
var ErrNotOpen = errors.New("sink: not open")

// DiscardAudio is a renderer.AudioSink that drops what it is given.
type DiscardAudio struct {
	mu      sync.Mutex
	params  renderer.AudioParams
	open    bool
	started bool
	opens   int

	written atomic.Int64
	bytes   atomic.Int64
}

var _ renderer.AudioSink = (*DiscardAudio)(nil)

func (a *DiscardAudio) Open(p renderer.AudioParams) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.params, a.open, a.started = p, true, false
	a.opens++
	return nil
}

func (a *DiscardAudio) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return ErrNotOpen
	}
	a.started = true
	return nil
}

func (a *DiscardAudio) Write(b *media.Buffer) error {
	a.mu.Lock()
	ok := a.started
	a.mu.Unlock()
	if !ok {
		return ErrNotOpen
	}
	a.written.Add(1)
	a.bytes.Add(int64(len(b.Data)))
	return nil
}

func (a *DiscardAudio) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open, a.started = false, false
	return nil
}

// Params returns the parameters of the last Open and how many times the
// sink was opened.
func (a *DiscardAudio) Params() (renderer.AudioParams, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.params, a.opens
}

// Written returns the number of buffers and bytes written.
func (a *DiscardAudio) Written() (buffers, bytes int64) {
	return a.written.Load(), a.bytes.Load()
}

// CountingSurface is a renderer.VideoSurface that counts presented frames.
type CountingSurface struct {
	mu     sync.Mutex
	mode   renderer.ScalingMode
	last   *media.Buffer
	frames int64
	keyed  int64
}

var _ renderer.VideoSurface = (*CountingSurface)(nil)

func (s *CountingSurface) SetScalingMode(m renderer.ScalingMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
	return nil
}

func (s *CountingSurface) Present(b *media.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	if b.Keyframe {
		s.keyed++
	}
	s.last = b
	return nil
}

// Frames returns the number of presented frames and how many of them were
// keyframes.
func (s *CountingSurface) Frames() (frames, keyframes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames, s.keyed
}

// LastPTS returns the PTS of the last presented frame, or -1.
func (s *CountingSurface) LastPTS() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return -1
	}
	return s.last.PTS
}

// ScalingMode returns the mode last set.
func (s *CountingSurface) ScalingMode() renderer.ScalingMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}
