package media

import (
	"errors"
	"fmt"
	"testing"
)

func TestAckReleasesOnce(t *testing.T) {
	t.Parallel()
	calls := 0
	a := NewAck(func() { calls++ })
	if !a.Release() {
		t.Fatal("first Release returned false")
	}
	if a.Release() {
		t.Fatal("second Release returned true")
	}
	if calls != 1 {
		t.Errorf("release ran %d times, want 1", calls)
	}
	if !a.Released() {
		t.Error("Released() = false after Release")
	}
}

func TestDiscontinuityKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind       DiscontinuityKind
		time       bool
		audioFmt   bool
		videoFmt   bool
		wantString string
	}{
		{DiscontinuitySeek, true, false, false, "time"},
		{DiscontinuityFormatChanged, false, true, true, "audio-format|video-format"},
		{DiscontinuityVideoFormat | DiscontinuityTime, true, false, true, "time|video-format"},
		{0, false, false, false, "none"},
	}
	for _, tt := range tests {
		if got := tt.kind.TimeChanged(); got != tt.time {
			t.Errorf("%v.TimeChanged() = %v, want %v", tt.kind, got, tt.time)
		}
		if got := tt.kind.FormatChanged(Audio); got != tt.audioFmt {
			t.Errorf("%v.FormatChanged(Audio) = %v, want %v", tt.kind, got, tt.audioFmt)
		}
		if got := tt.kind.FormatChanged(Video); got != tt.videoFmt {
			t.Errorf("%v.FormatChanged(Video) = %v, want %v", tt.kind, got, tt.videoFmt)
		}
		if got := tt.kind.String(); got != tt.wantString {
			t.Errorf("String() = %q, want %q", got, tt.wantString)
		}
	}
}

func TestDiscontinuityErrorAs(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("dequeue: %w", &DiscontinuityError{Kind: DiscontinuitySeek, ResumeAtUs: 2_000_000})
	var d *DiscontinuityError
	if !errors.As(err, &d) {
		t.Fatal("errors.As failed")
	}
	if d.ResumeAtUs != 2_000_000 {
		t.Errorf("ResumeAtUs = %d, want 2000000", d.ResumeAtUs)
	}
}

func TestCodecErrorUnwrap(t *testing.T) {
	t.Parallel()
	err := &CodecError{Stream: Video, Code: -3, Err: ErrBadFormat}
	if !errors.Is(err, ErrBadFormat) {
		t.Error("CodecError does not unwrap to its cause")
	}
}

func TestFormatDisplayRect(t *testing.T) {
	t.Parallel()
	f := &Format{MIME: MIMEVideoAVC, Width: 1920, Height: 1088}
	r := f.DisplayRect()
	if r.Width() != 1920 || r.Height() != 1088 {
		t.Errorf("full frame = %dx%d, want 1920x1088", r.Width(), r.Height())
	}
	f.Crop = Rect{Right: 1919, Bottom: 1079}
	r = f.DisplayRect()
	if r.Width() != 1920 || r.Height() != 1080 {
		t.Errorf("cropped = %dx%d, want 1920x1080", r.Width(), r.Height())
	}
	if !f.IsVideo() {
		t.Error("IsVideo() = false for video/avc")
	}
}

func TestFormatEqual(t *testing.T) {
	t.Parallel()
	a := &Format{MIME: MIMEAudioAAC, SampleRate: 48000, Channels: 2, CodecConfig: []byte{0x11, 0x90}}
	b := &Format{MIME: MIMEAudioAAC, SampleRate: 48000, Channels: 2, CodecConfig: []byte{0x11, 0x90}}
	if !a.Equal(b) {
		t.Error("identical formats not equal")
	}
	b.Channels = 1
	if a.Equal(b) {
		t.Error("formats with different channel counts are equal")
	}
	var n *Format
	if !n.Equal(nil) || a.Equal(nil) {
		t.Error("nil handling wrong")
	}
}
