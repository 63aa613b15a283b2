package demux

import (
	"fmt"

	"github.com/zsiec/playcore/internal/media"
)

// VideoUnit is the result of parsing one video PES payload.
type VideoUnit struct {
	AU *media.AccessUnit
	// Format is set when the unit carried parameter sets describing a
	// format different from the last one published.
	Format *media.Format
	Cues   []media.TextCue
}

// VideoParser holds the parameter-set state of one H.264 or H.265 PID.
type VideoParser struct {
	mime     string
	format   *media.Format
	captions *CaptionDecoder

	vps, sps, pps []byte
}

// NewVideoParser returns a parser for the given MIME type. Captions are
// decoded for H.264 only.
func NewVideoParser(mime string) (*VideoParser, error) {
	p := &VideoParser{mime: mime}
	switch mime {
	case media.MIMEVideoAVC:
		p.captions = NewCaptionDecoder()
	case media.MIMEVideoHEVC:
	default:
		return nil, fmt.Errorf("demux: video %q: %w", mime, media.ErrUnsupported)
	}
	return p, nil
}

// MIME returns the codec this parser handles.
func (p *VideoParser) MIME() string { return p.mime }

// Format returns the last published format, or nil before the first
// complete set of parameter sets.
func (p *VideoParser) Format() *media.Format { return p.format }

// Reset drops caption state carried across units.
func (p *VideoParser) Reset() {
	if p.captions != nil {
		p.captions.Reset()
	}
}

// Parse analyzes one PES payload presented at ptsUs.
func (p *VideoParser) Parse(data []byte, ptsUs int64) (*VideoUnit, error) {
	if len(data) == 0 {
		return nil, media.ErrWouldBlock
	}
	if p.mime == media.MIMEVideoHEVC {
		return p.parseHEVC(data, ptsUs)
	}
	return p.parseAVC(data, ptsUs)
}

func (p *VideoParser) parseAVC(data []byte, ptsUs int64) (*VideoUnit, error) {
	a := AnalyzeAVC(data)
	if len(a.NALUs) == 0 {
		return nil, fmt.Errorf("demux: no NAL units in %d bytes", len(data))
	}

	u := &VideoUnit{AU: newVideoAU(data, ptsUs, a.Keyframe, a.Reference)}
	if a.SPS != nil {
		p.sps = clone(a.SPS)
	}
	if a.PPS != nil {
		p.pps = clone(a.PPS)
	}
	if (a.SPS != nil || a.PPS != nil) && p.sps != nil && p.pps != nil {
		f, err := AVCFormat(p.sps, p.pps)
		if err != nil {
			return nil, err
		}
		u.Format = p.publish(f)
	}
	for _, sei := range a.SEI {
		u.Cues = append(u.Cues, p.captions.Decode(sei, ptsUs)...)
	}
	return u, nil
}

func (p *VideoParser) parseHEVC(data []byte, ptsUs int64) (*VideoUnit, error) {
	h := AnalyzeHEVC(data)
	if len(h.NALUs) == 0 {
		return nil, fmt.Errorf("demux: no NAL units in %d bytes", len(data))
	}

	u := &VideoUnit{AU: newVideoAU(data, ptsUs, h.Keyframe, h.Reference)}
	changed := false
	for dst, src := range map[*[]byte][]byte{&p.vps: h.VPS, &p.sps: h.SPS, &p.pps: h.PPS} {
		if src != nil {
			*dst = clone(src)
			changed = true
		}
	}
	if changed && p.vps != nil && p.sps != nil && p.pps != nil {
		f, err := HEVCFormat(p.vps, p.sps, p.pps)
		if err != nil {
			return nil, err
		}
		u.Format = p.publish(f)
	}
	return u, nil
}

// publish records f and returns it if it differs from the current format.
func (p *VideoParser) publish(f *media.Format) *media.Format {
	if p.format.Equal(f) {
		return nil
	}
	p.format = f
	return f
}

func newVideoAU(data []byte, ptsUs int64, keyframe, reference bool) *media.AccessUnit {
	au := &media.AccessUnit{Stream: media.Video, PTS: ptsUs, Data: data}
	if keyframe {
		au.Flags |= media.FlagKeyframe
	}
	if !reference {
		au.Flags |= media.FlagDroppable
	}
	return au
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
