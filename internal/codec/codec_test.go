package codec

import (
	"errors"
	"slices"
	"testing"

	"github.com/zsiec/playcore/internal/media"
)

func TestRegistryNew(t *testing.T) {
	t.Parallel()
	r := DefaultRegistry()

	c, err := r.New(&media.Format{MIME: media.MIMEVideoAVC, Width: 640, Height: 360})
	if err != nil {
		t.Fatalf("New(avc): %v", err)
	}
	if _, ok := c.(*Passthrough); !ok {
		t.Errorf("codec = %T, want *Passthrough", c)
	}

	if _, err := r.New(&media.Format{MIME: "video/vp9"}); !errors.Is(err, media.ErrUnsupported) {
		t.Errorf("New(vp9) err = %v, want ErrUnsupported", err)
	}
	if _, err := r.New(nil); !errors.Is(err, media.ErrBadFormat) {
		t.Errorf("New(nil) err = %v, want ErrBadFormat", err)
	}
	if !slices.Contains(r.MIMETypes(), media.MIMEAudioAAC) {
		t.Errorf("MIMETypes = %v, missing AAC", r.MIMETypes())
	}
}

func TestRegistryRegisterReplaces(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	boom := errors.New("no hardware")
	r.Register("video/avc", func(*media.Format) (Codec, error) { return nil, boom })
	if _, err := r.New(&media.Format{MIME: "video/avc"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	r.Register("video/avc", NewPassthrough)
	if _, err := r.New(&media.Format{MIME: "video/avc"}); err != nil {
		t.Errorf("after replace: %v", err)
	}
}

func TestPassthroughConfigure(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		format  *media.Format
		wantErr bool
		wantOut string
	}{
		{"video", &media.Format{MIME: media.MIMEVideoAVC, Width: 1280, Height: 720}, false, media.MIMEVideoRaw},
		{"video without size", &media.Format{MIME: media.MIMEVideoHEVC}, true, ""},
		{"audio", &media.Format{MIME: media.MIMEAudioAAC, SampleRate: 48000, Channels: 2}, false, media.MIMEAudioRaw},
		{"audio without rate", &media.Format{MIME: media.MIMEAudioAAC, Channels: 2}, true, ""},
		{"nil", nil, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &Passthrough{}
			err := p.Configure(tt.format)
			if tt.wantErr {
				if !errors.Is(err, media.ErrBadFormat) {
					t.Errorf("err = %v, want ErrBadFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Configure: %v", err)
			}
			if got := p.OutputFormat().MIME; got != tt.wantOut {
				t.Errorf("output MIME = %q, want %q", got, tt.wantOut)
			}
		})
	}
}

func TestPassthroughDecodeDrain(t *testing.T) {
	t.Parallel()
	p := &Passthrough{}
	if err := p.Decode(&media.AccessUnit{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Decode before Configure = %v", err)
	}
	if err := p.Configure(&media.Format{MIME: media.MIMEAudioAAC, SampleRate: 44100, Channels: 1}); err != nil {
		t.Fatal(err)
	}

	for pts := int64(0); pts < 3; pts++ {
		if err := p.Decode(&media.AccessUnit{Stream: media.Audio, PTS: pts, Flags: media.FlagKeyframe}); err != nil {
			t.Fatal(err)
		}
	}
	for want := int64(0); want < 3; want++ {
		b, err := p.Drain()
		if err != nil || b.PTS != want || !b.Keyframe {
			t.Fatalf("Drain = %+v, %v; want pts %d", b, err, want)
		}
	}
	if _, err := p.Drain(); !errors.Is(err, media.ErrWouldBlock) {
		t.Errorf("empty Drain = %v, want ErrWouldBlock", err)
	}

	p.Decode(&media.AccessUnit{Stream: media.Audio, PTS: 9})
	p.Flush()
	if _, err := p.Drain(); !errors.Is(err, media.ErrWouldBlock) {
		t.Errorf("Drain after Flush = %v, want ErrWouldBlock", err)
	}

	p.SignalEndOfInput()
	if _, err := p.Drain(); !errors.Is(err, media.ErrEndOfStream) {
		t.Errorf("Drain after end of input = %v, want ErrEndOfStream", err)
	}
}
