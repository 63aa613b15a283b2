package demux

import (
	"fmt"

	"github.com/zsiec/playcore/internal/media"
)

// AudioParser splits AAC ADTS PES payloads into per-frame access units.
type AudioParser struct {
	format *media.Format
}

// NewAudioParser returns a parser for the given MIME type.
func NewAudioParser(mime string) (*AudioParser, error) {
	if mime != media.MIMEAudioAAC {
		return nil, fmt.Errorf("demux: audio %q: %w", mime, media.ErrUnsupported)
	}
	return &AudioParser{}, nil
}

// Format returns the last published format.
func (p *AudioParser) Format() *media.Format { return p.format }

// Parse splits one PES payload presented at ptsUs. Frames after the first
// are stamped one AAC frame duration apart. A non-nil format is returned
// when the payload's header differs from the last published format; the
// units that follow use it.
func (p *AudioParser) Parse(data []byte, ptsUs int64) ([]*media.AccessUnit, *media.Format, error) {
	frames, err := ParseADTS(data)
	if err != nil && len(frames) == 0 {
		return nil, nil, err
	}
	if len(frames) == 0 {
		return nil, nil, nil
	}

	var changed *media.Format
	f, err := AACFormat(frames[0])
	if err != nil {
		return nil, nil, err
	}
	if !p.format.Equal(f) {
		p.format = f
		changed = f
	}

	units := make([]*media.AccessUnit, 0, len(frames))
	for i, fr := range frames {
		pts := ptsUs
		if fr.SampleRate > 0 {
			pts += int64(i) * AACSamplesPerFrame * 1_000_000 / int64(fr.SampleRate)
		}
		units = append(units, &media.AccessUnit{
			Stream: media.Audio,
			PTS:    pts,
			Data:   fr.Data,
			Flags:  media.FlagKeyframe,
		})
	}
	return units, changed, nil
}
