package codec

import (
	"fmt"

	"github.com/zsiec/playcore/internal/media"
)

// Passthrough is a codec that emits each access unit unchanged as a
// decoded buffer. Its output format is the raw counterpart of the input
// format. It stands in for platform decoders in the CLI and in tests.
type Passthrough struct {
	in      *media.Format
	out     *media.Format
	pending []*media.Buffer
	eos     bool
}

// NewPassthrough returns an unconfigured passthrough codec.
func NewPassthrough(*media.Format) (Codec, error) {
	return &Passthrough{}, nil
}

// Configure validates f and derives the output format.
func (p *Passthrough) Configure(f *media.Format) error {
	if f == nil {
		return fmt.Errorf("codec: passthrough: %w", media.ErrBadFormat)
	}
	out := &media.Format{Width: f.Width, Height: f.Height, Crop: f.Crop,
		SampleRate: f.SampleRate, Channels: f.Channels}
	if f.IsVideo() {
		if f.Width <= 0 || f.Height <= 0 {
			return fmt.Errorf("codec: %s without dimensions: %w", f.MIME, media.ErrBadFormat)
		}
		out.MIME = media.MIMEVideoRaw
	} else {
		if f.SampleRate <= 0 || f.Channels <= 0 {
			return fmt.Errorf("codec: %s without rate or channels: %w", f.MIME, media.ErrBadFormat)
		}
		out.MIME = media.MIMEAudioRaw
	}
	p.in, p.out = f, out
	p.pending, p.eos = nil, false
	return nil
}

// Decode queues au for output.
func (p *Passthrough) Decode(au *media.AccessUnit) error {
	if p.in == nil {
		return ErrNotConfigured
	}
	p.pending = append(p.pending, &media.Buffer{
		Stream:   au.Stream,
		PTS:      au.PTS,
		Data:     au.Data,
		Keyframe: au.IsKeyframe(),
	})
	return nil
}

func (p *Passthrough) SignalEndOfInput() { p.eos = true }

func (p *Passthrough) Drain() (*media.Buffer, error) {
	if len(p.pending) > 0 {
		b := p.pending[0]
		p.pending = p.pending[1:]
		return b, nil
	}
	if p.eos {
		return nil, media.ErrEndOfStream
	}
	return nil, media.ErrWouldBlock
}

func (p *Passthrough) OutputFormat() *media.Format { return p.out }

func (p *Passthrough) Flush() {
	p.pending, p.eos = nil, false
}

func (p *Passthrough) Close() error {
	p.in, p.out, p.pending = nil, nil, nil
	return nil
}
