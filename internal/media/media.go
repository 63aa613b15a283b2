// Package media defines the units that flow through the playback core:
// demuxed access units from a source, stream formats, and decoded buffers
// handed from decoders to the renderer.
package media

import "fmt"

// Stream identifies one of the two elementary streams a session can carry.
type Stream int

const (
	Audio Stream = iota
	Video
)

// NumStreams is the number of Stream values; per-stream state is kept in
// fixed arrays indexed by Stream.
const NumStreams = 2

func (s Stream) String() string {
	switch s {
	case Audio:
		return "audio"
	case Video:
		return "video"
	}
	return fmt.Sprintf("stream(%d)", int(s))
}

// Other returns the companion stream.
func (s Stream) Other() Stream {
	if s == Audio {
		return Video
	}
	return Audio
}

// Unit flags.
const (
	// FlagKeyframe marks a random access point.
	FlagKeyframe uint32 = 1 << iota
	// FlagDroppable marks a unit no other unit references. The zero value
	// means the unit is required for decodability and is never dropped.
	FlagDroppable
)

// AccessUnit is one timestamped, decodable chunk of a single elementary
// stream. PTS is in microseconds. Whoever holds the pointer owns it.
type AccessUnit struct {
	Stream Stream
	PTS    int64
	Data   []byte
	Flags  uint32
}

// IsKeyframe reports whether the unit is a random access point.
func (au *AccessUnit) IsKeyframe() bool { return au.Flags&FlagKeyframe != 0 }

// Droppable reports whether the unit may be discarded without breaking
// decoding of the units after it.
func (au *AccessUnit) Droppable() bool { return au.Flags&FlagDroppable != 0 }

// Rect is an inclusive pixel rectangle.
type Rect struct {
	Left, Top, Right, Bottom int
}

// Width returns the number of columns covered by r.
func (r Rect) Width() int { return r.Right - r.Left + 1 }

// Height returns the number of rows covered by r.
func (r Rect) Height() int { return r.Bottom - r.Top + 1 }

// Common MIME tags.
const (
	MIMEVideoAVC  = "video/avc"
	MIMEVideoHEVC = "video/hevc"
	MIMEVideoRaw  = "video/raw"
	MIMEAudioAAC  = "audio/mp4a-latm"
	MIMEAudioRaw  = "audio/raw"
)

// Format describes a stream's codec parameters. A Format is immutable
// once published; a format change publishes a new value.
type Format struct {
	MIME string

	Width  int
	Height int
	// Crop is the displayed region. A zero Crop means the full frame.
	Crop Rect

	SampleRate int
	Channels   int

	// CodecConfig is the codec-specific configuration blob, e.g. an
	// AVCDecoderConfigurationRecord or an AAC AudioSpecificConfig.
	CodecConfig []byte
}

// IsVideo reports whether f describes a video stream.
func (f *Format) IsVideo() bool { return len(f.MIME) > 6 && f.MIME[:6] == "video/" }

// DisplayRect returns the crop rectangle, or the full frame when no crop
// was set.
func (f *Format) DisplayRect() Rect {
	if f.Crop == (Rect{}) {
		return Rect{Right: f.Width - 1, Bottom: f.Height - 1}
	}
	return f.Crop
}

// Equal reports whether two formats describe the same stream parameters.
func (f *Format) Equal(o *Format) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.MIME == o.MIME && f.Width == o.Width && f.Height == o.Height &&
		f.Crop == o.Crop && f.SampleRate == o.SampleRate && f.Channels == o.Channels &&
		string(f.CodecConfig) == string(o.CodecConfig)
}

func (f *Format) String() string {
	if f == nil {
		return "<nil>"
	}
	if f.IsVideo() {
		return fmt.Sprintf("%s %dx%d", f.MIME, f.Width, f.Height)
	}
	return fmt.Sprintf("%s %dHz %dch", f.MIME, f.SampleRate, f.Channels)
}

// Buffer is one decoded output unit waiting to be rendered.
type Buffer struct {
	Stream   Stream
	PTS      int64
	Data     []byte
	Keyframe bool
}

// TextCue is a caption to display from PTS onward.
type TextCue struct {
	PTS     int64
	Channel int
	Text    string
}
