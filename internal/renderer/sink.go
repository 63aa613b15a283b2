package renderer

import "github.com/zsiec/playcore/internal/media"

// AudioMode selects how much an audio sink buffers.
type AudioMode int

const (
	// LowLatency keeps the output buffer minimal.
	LowLatency AudioMode = iota
	// DeepBuffer trades latency for fewer wakeups on long audio-only
	// content.
	DeepBuffer
)

func (m AudioMode) String() string {
	if m == DeepBuffer {
		return "deep-buffer"
	}
	return "low-latency"
}

// AudioParams configures an audio sink.
type AudioParams struct {
	Mode       AudioMode
	SampleRate int
	Channels   int
	// Buffers is the number of output buffers the sink allocates.
	Buffers int
}

// AudioSink is an audio output device.
type AudioSink interface {
	Open(p AudioParams) error
	Start() error
	Write(b *media.Buffer) error
	Close() error
}

// ScalingMode selects how video is fitted to a surface.
type ScalingMode int

const (
	ScaleToFit ScalingMode = iota
	ScaleToFitWithCropping
)

// VideoSurface is a presentable video output.
type VideoSurface interface {
	SetScalingMode(m ScalingMode) error
	Present(b *media.Buffer) error
}
