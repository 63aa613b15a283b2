package demux

import (
	"fmt"

	"github.com/zsiec/playcore/internal/media"
)

// H.265 NAL unit types (ITU-T H.265 Table 7-1).
const (
	HEVCNALRsvVCLN14 = 14
	HEVCNALBlaWLP    = 16
	HEVCNALIDRWRadl  = 19
	HEVCNALIDRNlp    = 20
	HEVCNALCraNut    = 21
	HEVCNALVPS       = 32
	HEVCNALSPS       = 33
	HEVCNALPPS       = 34
	HEVCNALAUD       = 35
	HEVCNALSEIPrefix = 39
)

// HEVCNALType extracts the NAL unit type from the first header byte.
func HEVCNALType(firstByte byte) byte {
	return (firstByte >> 1) & 0x3F
}

// IsHEVCKeyframe reports whether the NAL type is a random access point
// (BLA, IDR or CRA).
func IsHEVCKeyframe(nalType byte) bool {
	return nalType >= HEVCNALBlaWLP && nalType <= HEVCNALCraNut
}

// IsHEVCSubLayerNonReference reports whether a VCL NAL type is a sub-layer
// non-reference picture (the even types up to RSV_VCL_N14).
func IsHEVCSubLayerNonReference(nalType byte) bool {
	return nalType <= HEVCNALRsvVCLN14 && nalType%2 == 0
}

// ParseAnnexBHEVC splits an H.265 Annex B byte stream into NAL units.
func ParseAnnexBHEVC(data []byte) []NALUnit {
	return splitAnnexB(data, 2, func(d []byte) byte { return HEVCNALType(d[0]) })
}

// HEVCUnit summarizes the NAL units of one H.265 access unit.
type HEVCUnit struct {
	NALUs     []NALUnit
	Keyframe  bool
	Reference bool
	VPS       []byte
	SPS       []byte
	PPS       []byte
}

// AnalyzeHEVC classifies the NAL units of an H.265 access unit. The first
// VCL NAL decides whether the picture is referenced.
func AnalyzeHEVC(data []byte) HEVCUnit {
	u := HEVCUnit{NALUs: ParseAnnexBHEVC(data), Reference: true}
	vclSeen := false
	for _, nal := range u.NALUs {
		switch {
		case nal.Type == HEVCNALVPS:
			u.VPS = nal.Data
		case nal.Type == HEVCNALSPS:
			u.SPS = nal.Data
		case nal.Type == HEVCNALPPS:
			u.PPS = nal.Data
		case nal.Type < HEVCNALVPS:
			if IsHEVCKeyframe(nal.Type) {
				u.Keyframe = true
			}
			if !vclSeen {
				vclSeen = true
				u.Reference = !IsHEVCSubLayerNonReference(nal.Type)
			}
		}
	}
	return u
}

// HEVCSPSInfo holds the SPS fields the player needs.
type HEVCSPSInfo struct {
	Width      int
	Height     int
	ProfileIDC byte
	TierFlag   byte
	LevelIDC   byte

	ProfileCompatibilityFlags uint32
	ConstraintIndicatorFlags  uint64
	ChromaFormatIdc           byte
	BitDepthLumaMinus8        byte
	BitDepthChromaMinus8      byte
}

// ParseHEVCSPS parses an SPS NAL unit, including its 2-byte header, for
// resolution and profile/tier/level. Width and height are cropped to the
// conformance window.
func ParseHEVCSPS(nalu []byte) (HEVCSPSInfo, error) {
	if len(nalu) < 4 {
		return HEVCSPSInfo{}, errSPSTooShort
	}
	br := newRBSPReader(nalu[2:])

	// sps_video_parameter_set_id
	if _, err := br.readBits(4); err != nil {
		return HEVCSPSInfo{}, err
	}
	maxSubLayersMinus1, err := br.readBits(3)
	if err != nil {
		return HEVCSPSInfo{}, err
	}
	// sps_temporal_id_nesting_flag
	if _, err := br.readBits(1); err != nil {
		return HEVCSPSInfo{}, err
	}

	var info HEVCSPSInfo
	if err := parseHEVCProfileTierLevel(br, &info, maxSubLayersMinus1); err != nil {
		return HEVCSPSInfo{}, err
	}

	// sps_seq_parameter_set_id
	if _, err := br.readUE(); err != nil {
		return HEVCSPSInfo{}, err
	}
	chroma, err := br.readUE()
	if err != nil {
		return HEVCSPSInfo{}, err
	}
	info.ChromaFormatIdc = byte(chroma)
	if chroma == 3 {
		// separate_colour_plane_flag
		if _, err := br.readBits(1); err != nil {
			return HEVCSPSInfo{}, err
		}
	}

	width, err := br.readUE()
	if err != nil {
		return HEVCSPSInfo{}, err
	}
	height, err := br.readUE()
	if err != nil {
		return HEVCSPSInfo{}, err
	}
	info.Width, info.Height = int(width), int(height)

	// The remaining fields are optional for our purposes: a truncated SPS
	// still yields the coded size.
	conf, err := br.readBits(1)
	if err != nil {
		return info, nil
	}
	if conf == 1 {
		var win [4]uint
		for i := range win {
			if win[i], err = br.readUE(); err != nil {
				return info, nil
			}
		}
		subW, subH := uint(1), uint(1)
		switch chroma {
		case 1:
			subW, subH = 2, 2
		case 2:
			subW = 2
		}
		info.Width -= int((win[0] + win[1]) * subW)
		info.Height -= int((win[2] + win[3]) * subH)
	}

	if v, err := br.readUE(); err == nil {
		info.BitDepthLumaMinus8 = byte(v)
		if v, err := br.readUE(); err == nil {
			info.BitDepthChromaMinus8 = byte(v)
		}
	}
	return info, nil
}

func parseHEVCProfileTierLevel(br *bitReader, info *HEVCSPSInfo, maxSubLayersMinus1 uint) error {
	// general_profile_space
	if _, err := br.readBits(2); err != nil {
		return err
	}
	tier, err := br.readBits(1)
	if err != nil {
		return err
	}
	info.TierFlag = byte(tier)

	profile, err := br.readBits(5)
	if err != nil {
		return err
	}
	info.ProfileIDC = byte(profile)

	compat, err := br.readBits(32)
	if err != nil {
		return err
	}
	info.ProfileCompatibilityFlags = uint32(compat)

	for range 6 {
		b, err := br.readBits(8)
		if err != nil {
			return err
		}
		info.ConstraintIndicatorFlags = info.ConstraintIndicatorFlags<<8 | uint64(b)
	}

	level, err := br.readBits(8)
	if err != nil {
		return err
	}
	info.LevelIDC = byte(level)

	if maxSubLayersMinus1 == 0 {
		return nil
	}

	var profilePresent, levelPresent [8]bool
	for i := range maxSubLayersMinus1 {
		pp, err := br.readBits(1)
		if err != nil {
			return err
		}
		lp, err := br.readBits(1)
		if err != nil {
			return err
		}
		profilePresent[i], levelPresent[i] = pp == 1, lp == 1
	}
	for i := maxSubLayersMinus1; i < 8; i++ {
		// reserved_zero_2bits
		if _, err := br.readBits(2); err != nil {
			return err
		}
	}
	for i := range maxSubLayersMinus1 {
		if profilePresent[i] {
			// sub_layer profile_space..level: 88 bits
			if _, err := br.readBits(56); err != nil {
				return err
			}
			if _, err := br.readBits(32); err != nil {
				return err
			}
		}
		if levelPresent[i] {
			if _, err := br.readBits(8); err != nil {
				return err
			}
		}
	}
	return nil
}

// HEVCFormat derives a stream format from H.265 parameter sets.
func HEVCFormat(vps, sps, pps []byte) (*media.Format, error) {
	info, err := ParseHEVCSPS(sps)
	if err != nil {
		return nil, fmt.Errorf("demux: parse HEVC SPS: %w", err)
	}
	return &media.Format{
		MIME:        media.MIMEVideoHEVC,
		Width:       info.Width,
		Height:      info.Height,
		CodecConfig: hevcDecoderConfig(info, vps, sps, pps),
	}, nil
}

// hevcDecoderConfig builds an HEVCDecoderConfigurationRecord
// (ISO 14496-15 8.3.3.1.2) holding one array each of VPS, SPS and PPS.
func hevcDecoderConfig(info HEVCSPSInfo, vps, sps, pps []byte) []byte {
	if len(vps) == 0 || len(sps) == 0 || len(pps) == 0 {
		return nil
	}
	buf := make([]byte, 0, 23+3*5+len(vps)+len(sps)+len(pps))
	buf = append(buf, 1, info.TierFlag<<5|info.ProfileIDC)
	c := info.ProfileCompatibilityFlags
	buf = append(buf, byte(c>>24), byte(c>>16), byte(c>>8), byte(c))
	ci := info.ConstraintIndicatorFlags
	for i := 5; i >= 0; i-- {
		buf = append(buf, byte(ci>>(uint(i)*8)))
	}
	buf = append(buf,
		info.LevelIDC,
		0xF0, 0x00, // min_spatial_segmentation_idc
		0xFC,       // parallelismType
		0xFC|info.ChromaFormatIdc,
		0xF8|info.BitDepthLumaMinus8,
		0xF8|info.BitDepthChromaMinus8,
		0x00, 0x00, // avgFrameRate
		0x0F,       // lengthSizeMinusOne=3, one temporal layer, nested
		3,          // numOfArrays
	)
	for _, arr := range []struct {
		typ byte
		nal []byte
	}{{HEVCNALVPS, vps}, {HEVCNALSPS, sps}, {HEVCNALPPS, pps}} {
		buf = append(buf, 0x80|arr.typ, 0x00, 0x01, byte(len(arr.nal)>>8), byte(len(arr.nal)))
		buf = append(buf, arr.nal...)
	}
	return buf
}
