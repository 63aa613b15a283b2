package media

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel results shared by sources, codecs and actors. Callers compare
// with errors.Is.
var (
	// ErrWouldBlock means no data is available yet; retry later.
	ErrWouldBlock = errors.New("media: would block")
	// ErrEndOfStream is the expected terminal result of a stream.
	ErrEndOfStream = errors.New("media: end of stream")
	// ErrBadFormat means a format is missing parameters a codec needs.
	ErrBadFormat = errors.New("media: bad format")
	// ErrUnsupported means no implementation exists for the request.
	ErrUnsupported = errors.New("media: unsupported")
)

// DiscontinuityKind is a bitmask describing what changed at a
// discontinuity.
type DiscontinuityKind uint32

const (
	DiscontinuityTime        DiscontinuityKind = 1
	DiscontinuityAudioFormat DiscontinuityKind = 2
	DiscontinuityVideoFormat DiscontinuityKind = 4

	DiscontinuitySeek          = DiscontinuityTime
	DiscontinuityFormatChanged = DiscontinuityAudioFormat | DiscontinuityVideoFormat
)

// TimeChanged reports whether the media time base changed.
func (k DiscontinuityKind) TimeChanged() bool { return k&DiscontinuityTime != 0 }

// FormatChanged reports whether the format of stream s changed.
func (k DiscontinuityKind) FormatChanged(s Stream) bool {
	if s == Audio {
		return k&DiscontinuityAudioFormat != 0
	}
	return k&DiscontinuityVideoFormat != 0
}

func (k DiscontinuityKind) String() string {
	if k == 0 {
		return "none"
	}
	var parts []string
	if k&DiscontinuityTime != 0 {
		parts = append(parts, "time")
	}
	if k&DiscontinuityAudioFormat != 0 {
		parts = append(parts, "audio-format")
	}
	if k&DiscontinuityVideoFormat != 0 {
		parts = append(parts, "video-format")
	}
	return strings.Join(parts, "|")
}

// NoResume marks a discontinuity without a resume-at hint.
const NoResume int64 = -1

// DiscontinuityError is returned by a source's dequeue when the stream hit
// a discontinuity. It is a control signal, not a failure.
type DiscontinuityError struct {
	Kind DiscontinuityKind
	// ResumeAtUs is the first timestamp worth rendering after a time
	// change, or NoResume.
	ResumeAtUs int64
}

func (e *DiscontinuityError) Error() string {
	if e.ResumeAtUs >= 0 {
		return fmt.Sprintf("media: discontinuity (%s) resume at %dus", e.Kind, e.ResumeAtUs)
	}
	return fmt.Sprintf("media: discontinuity (%s)", e.Kind)
}

// CodecError reports a stream-fatal decoder failure.
type CodecError struct {
	Stream Stream
	Code   int
	Err    error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("media: %s codec error %d: %v", e.Stream, e.Code, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}
