package renderer

import "github.com/zsiec/playcore/internal/media"

// Event is a notification from the Renderer.
type Event interface{ rendererEvent() }

// Position reports the playback clock and how late the most recent video
// frame was presented.
type Position struct {
	MediaTimeUs int64
	VideoLateUs int64
}

// EOS reports that stream Stream rendered its last buffer.
type EOS struct {
	Stream media.Stream
	Err    error
}

// AllEOS reports that every active stream reached EOS.
type AllEOS struct{}

// FlushComplete answers Flush.
type FlushComplete struct {
	Stream media.Stream
}

// RenderingStart reports the first presented video frame.
type RenderingStart struct{}

func (Position) rendererEvent()       {}
func (EOS) rendererEvent()            {}
func (AllEOS) rendererEvent()         {}
func (FlushComplete) rendererEvent()  {}
func (RenderingStart) rendererEvent() {}
