package demux

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/zsiec/playcore/internal/media"
)

// AVCUnit summarizes the NAL units of one H.264 access unit.
type AVCUnit struct {
	NALUs     [][]byte
	Keyframe  bool
	Reference bool
	SPS       []byte
	PPS       []byte
	SEI       [][]byte
}

// splitAVC splits an Annex B payload. mediacommon rejects payloads that do
// not open with a start code; those go through the tolerant scanner.
func splitAVC(data []byte) [][]byte {
	var au h264.AnnexB
	if err := au.Unmarshal(data); err == nil {
		return au
	}
	units := ParseAnnexB(data)
	out := make([][]byte, len(units))
	for i, u := range units {
		out[i] = u.Data
	}
	return out
}

// AnalyzeAVC classifies the NAL units of an H.264 access unit.
func AnalyzeAVC(data []byte) AVCUnit {
	u := AVCUnit{NALUs: splitAVC(data), Reference: true}
	sliceSeen := false
	for _, nal := range u.NALUs {
		if len(nal) == 0 {
			continue
		}
		switch h264.NALUType(nal[0] & 0x1F) {
		case h264.NALUTypeSPS:
			u.SPS = nal
		case h264.NALUTypePPS:
			u.PPS = nal
		case h264.NALUTypeSEI:
			u.SEI = append(u.SEI, nal)
		case h264.NALUTypeIDR:
			u.Keyframe = true
			if !sliceSeen {
				sliceSeen = true
				u.Reference = true
			}
		case h264.NALUTypeNonIDR:
			if !sliceSeen {
				sliceSeen = true
				u.Reference = avcRefIdc(nal) != 0
			}
		}
	}
	return u
}

func avcRefIdc(nal []byte) byte { return (nal[0] >> 5) & 0x03 }

// IsAVCReferenceFrame reports whether an H.264 access unit may be
// referenced by later units. The first slice decides: IDR slices are
// always references, non-IDR slices are references unless nal_ref_idc is
// zero. Units without a slice are treated as references.
func IsAVCReferenceFrame(data []byte) bool {
	return AnalyzeAVC(data).Reference
}

// AVCFormat derives a stream format from H.264 parameter sets.
func AVCFormat(sps, pps []byte) (*media.Format, error) {
	var s h264.SPS
	if err := s.Unmarshal(sps); err != nil {
		return nil, fmt.Errorf("demux: parse SPS: %w", err)
	}
	return &media.Format{
		MIME:        media.MIMEVideoAVC,
		Width:       s.Width(),
		Height:      s.Height(),
		CodecConfig: avcDecoderConfig(sps, pps),
	}, nil
}

// avcDecoderConfig builds an AVCDecoderConfigurationRecord
// (ISO 14496-15 5.2.4.1) with 4-byte NAL lengths.
func avcDecoderConfig(sps, pps []byte) []byte {
	if len(sps) < 4 || len(pps) == 0 {
		return nil
	}
	buf := make([]byte, 0, 11+len(sps)+len(pps))
	buf = append(buf, 1, sps[1], sps[2], sps[3], 0xFF, 0xE1)
	buf = append(buf, byte(len(sps)>>8), byte(len(sps)))
	buf = append(buf, sps...)
	buf = append(buf, 1, byte(len(pps)>>8), byte(len(pps)))
	buf = append(buf, pps...)
	return buf
}
