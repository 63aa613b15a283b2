package source

import (
	"errors"
	"testing"

	"github.com/zsiec/playcore/internal/media"
)

func TestPacketQueueOrder(t *testing.T) {
	t.Parallel()
	q := NewPacketQueue(media.Video)
	if _, err := q.Dequeue(); !errors.Is(err, media.ErrWouldBlock) {
		t.Fatalf("empty queue err = %v, want ErrWouldBlock", err)
	}

	f1 := &media.Format{MIME: media.MIMEVideoAVC, Width: 640, Height: 360}
	f2 := &media.Format{MIME: media.MIMEVideoAVC, Width: 1280, Height: 720}
	q.SetFormat(f1)
	q.QueueAccessUnit(&media.AccessUnit{Stream: media.Video, PTS: 1})
	q.QueueDiscontinuity(media.DiscontinuityVideoFormat, media.NoResume, f2)
	q.QueueAccessUnit(&media.AccessUnit{Stream: media.Video, PTS: 2})
	q.SignalEOS(nil)
	q.QueueAccessUnit(&media.AccessUnit{Stream: media.Video, PTS: 3})

	if got := q.Len(); got != 3 {
		t.Errorf("Len = %d, want 3", got)
	}
	if got := q.LastQueuedPTS(); got != 2 {
		t.Errorf("LastQueuedPTS = %d, want 2", got)
	}

	au, err := q.Dequeue()
	if err != nil || au.PTS != 1 {
		t.Fatalf("first = %v, %v", au, err)
	}
	if q.Format() != f1 {
		t.Error("format changed before the discontinuity was dequeued")
	}

	_, err = q.Dequeue()
	var disc *media.DiscontinuityError
	if !errors.As(err, &disc) {
		t.Fatalf("second err = %v, want discontinuity", err)
	}
	if disc.Kind != media.DiscontinuityVideoFormat || disc.ResumeAtUs != media.NoResume {
		t.Errorf("discontinuity = %+v", disc)
	}
	if q.Format() != f2 {
		t.Error("format not applied at the discontinuity")
	}

	if au, err = q.Dequeue(); err != nil || au.PTS != 2 {
		t.Fatalf("third = %v, %v", au, err)
	}
	for range 2 {
		if _, err = q.Dequeue(); !errors.Is(err, media.ErrEndOfStream) {
			t.Fatalf("err = %v, want ErrEndOfStream", err)
		}
	}
}

func TestPacketQueueFinalErrorSticks(t *testing.T) {
	t.Parallel()
	q := NewPacketQueue(media.Audio)
	ioErr := errors.New("connection reset")
	q.SignalEOS(ioErr)
	q.SignalEOS(nil)
	if _, err := q.Dequeue(); !errors.Is(err, ioErr) {
		t.Errorf("err = %v, want %v", err, ioErr)
	}
	if !q.HasFinalResult() {
		t.Error("HasFinalResult = false")
	}
}

func TestPacketQueueClear(t *testing.T) {
	t.Parallel()
	q := NewPacketQueue(media.Audio)
	f := &media.Format{MIME: media.MIMEAudioAAC, SampleRate: 48000, Channels: 2}
	q.SetFormat(f)
	q.QueueAccessUnit(&media.AccessUnit{Stream: media.Audio, PTS: 10})
	q.SignalEOS(nil)
	q.Clear()

	if q.Len() != 0 || q.HasFinalResult() || q.LastQueuedPTS() != -1 {
		t.Errorf("after Clear: len=%d final=%v last=%d", q.Len(), q.HasFinalResult(), q.LastQueuedPTS())
	}
	if q.Format() != f {
		t.Error("Clear dropped the format")
	}
	q.QueueDiscontinuity(media.DiscontinuitySeek, 5_000_000, nil)
	_, err := q.Dequeue()
	var disc *media.DiscontinuityError
	if !errors.As(err, &disc) || !disc.Kind.TimeChanged() || disc.ResumeAtUs != 5_000_000 {
		t.Errorf("err = %v, want seek discontinuity", err)
	}
}
