package sink

import (
	"errors"
	"testing"

	"github.com/zsiec/playcore/internal/media"
	"github.com/zsiec/playcore/internal/renderer"
)

func TestDiscardAudioLifecycle(t *testing.T) {
	t.Parallel()
	var a DiscardAudio
	if err := a.Write(&media.Buffer{}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Write before Open = %v, want ErrNotOpen", err)
	}
	if err := a.Start(); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Start before Open = %v, want ErrNotOpen", err)
	}

	p := renderer.AudioParams{Mode: renderer.DeepBuffer, SampleRate: 48000, Channels: 2, Buffers: 8}
	if err := a.Open(p); err != nil {
		t.Fatal(err)
	}
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	for range 3 {
		if err := a.Write(&media.Buffer{Data: make([]byte, 10)}); err != nil {
			t.Fatal(err)
		}
	}
	if n, b := a.Written(); n != 3 || b != 30 {
		t.Errorf("Written = %d buffers %d bytes, want 3/30", n, b)
	}
	if got, opens := a.Params(); got != p || opens != 1 {
		t.Errorf("Params = %+v (%d opens)", got, opens)
	}

	a.Close()
	if err := a.Write(&media.Buffer{}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Write after Close = %v, want ErrNotOpen", err)
	}
}

func TestCountingSurface(t *testing.T) {
	t.Parallel()
	var s CountingSurface
	if s.LastPTS() != -1 {
		t.Errorf("LastPTS before any frame = %d", s.LastPTS())
	}
	s.SetScalingMode(renderer.ScaleToFitWithCropping)
	s.Present(&media.Buffer{PTS: 1, Keyframe: true})
	s.Present(&media.Buffer{PTS: 2})

	if f, k := s.Frames(); f != 2 || k != 1 {
		t.Errorf("Frames = %d/%d, want 2/1", f, k)
	}
	if s.LastPTS() != 2 {
		t.Errorf("LastPTS = %d, want 2", s.LastPTS())
	}
	if s.ScalingMode() != renderer.ScaleToFitWithCropping {
		t.Errorf("ScalingMode = %v", s.ScalingMode())
	}
}
