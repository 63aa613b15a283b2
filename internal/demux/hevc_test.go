package demux

import (
	"testing"

	"github.com/zsiec/playcore/internal/media"
)

// 320x240 Main profile, level 3.1, built by hand.
var testHEVCSPS = []byte{
	0x42, 0x01, // NAL header (type=33)
	0x01,                   // vps_id=0, max_sub_layers_minus1=0, temporal_nesting=1
	0x01,                   // profile_space=0, tier=0, profile_idc=1
	0x40, 0x00, 0x00, 0x00, // profile_compatibility_flags
	0xB0, 0x00, 0x00, 0x00, 0x00, 0x00, // constraint_indicator_flags
	0x5D,                         // level_idc=93
	0xA0, 0x0A, 0x08, 0x0F, 0x10, // sps_id=0, chroma=1, 320x240, no conformance window
}

func TestHEVCNALType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		firstByte byte
		want      byte
	}{
		{0x40, HEVCNALVPS},
		{0x42, HEVCNALSPS},
		{0x44, HEVCNALPPS},
		{0x26, HEVCNALIDRWRadl},
		{0x28, HEVCNALIDRNlp},
		{0x2A, HEVCNALCraNut},
		{0x20, HEVCNALBlaWLP},
		{0x02, 1},
		{0x00, 0},
		{0x4E, HEVCNALSEIPrefix},
		{0x46, HEVCNALAUD},
	}
	for _, tt := range tests {
		if got := HEVCNALType(tt.firstByte); got != tt.want {
			t.Errorf("HEVCNALType(0x%02X) = %d, want %d", tt.firstByte, got, tt.want)
		}
	}
}

func TestHEVCPictureClasses(t *testing.T) {
	t.Parallel()
	tests := []struct {
		nalType     byte
		keyframe    bool
		nonRefLayer bool
	}{
		{0, false, true},  // TRAIL_N
		{1, false, false}, // TRAIL_R
		{2, false, true},  // TSA_N
		{8, false, true},  // RASL_N
		{9, false, false}, // RASL_R
		{14, false, true},
		{HEVCNALBlaWLP, true, false},
		{17, true, false},
		{HEVCNALIDRWRadl, true, false},
		{HEVCNALCraNut, true, false},
		{HEVCNALVPS, false, false},
	}
	for _, tt := range tests {
		if got := IsHEVCKeyframe(tt.nalType); got != tt.keyframe {
			t.Errorf("IsHEVCKeyframe(%d) = %v, want %v", tt.nalType, got, tt.keyframe)
		}
		if tt.nalType >= HEVCNALVPS {
			continue
		}
		if got := IsHEVCSubLayerNonReference(tt.nalType); got != tt.nonRefLayer {
			t.Errorf("IsHEVCSubLayerNonReference(%d) = %v, want %v", tt.nalType, got, tt.nonRefLayer)
		}
	}
}

func TestParseAnnexBHEVC(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x40, 0x01, 0xAA, 0xBB,
		0x00, 0x00, 0x00, 0x01, 0x42, 0x01, 0xCC, 0xDD,
		0x00, 0x00, 0x01, 0x44, 0x01, 0xEE,
		0x00, 0x00, 0x00, 0x01, 0x26, 0x01, 0xFF, 0x00, 0x11,
	}
	nalus := ParseAnnexBHEVC(data)
	want := []byte{HEVCNALVPS, HEVCNALSPS, HEVCNALPPS, HEVCNALIDRWRadl}
	if len(nalus) != len(want) {
		t.Fatalf("got %d NAL units, want %d", len(nalus), len(want))
	}
	for i, w := range want {
		if nalus[i].Type != w {
			t.Errorf("NAL %d type = %d, want %d", i, nalus[i].Type, w)
		}
	}
}

func TestAnalyzeHEVC(t *testing.T) {
	t.Parallel()
	idr := AnalyzeHEVC([]byte{0x00, 0x00, 0x01, 0x26, 0x01, 0xAF, 0x00, 0x00, 0x01, 0x02, 0x01, 0xAA})
	if !idr.Keyframe || !idr.Reference {
		t.Errorf("IDR unit: keyframe=%v reference=%v, want true/true", idr.Keyframe, idr.Reference)
	}

	trailN := AnalyzeHEVC([]byte{0x00, 0x00, 0x01, 0x46, 0x01, 0x50, 0x00, 0x00, 0x01, 0x00, 0x01, 0xAA})
	if trailN.Keyframe || trailN.Reference {
		t.Errorf("TRAIL_N unit: keyframe=%v reference=%v, want false/false", trailN.Keyframe, trailN.Reference)
	}
}

func TestParseHEVCSPS(t *testing.T) {
	t.Parallel()
	info, err := ParseHEVCSPS(testHEVCSPS)
	if err != nil {
		t.Fatalf("ParseHEVCSPS: %v", err)
	}
	if info.Width != 320 || info.Height != 240 {
		t.Errorf("size = %dx%d, want 320x240", info.Width, info.Height)
	}
	if info.ProfileIDC != 1 || info.TierFlag != 0 || info.LevelIDC != 93 {
		t.Errorf("profile/tier/level = %d/%d/%d, want 1/0/93", info.ProfileIDC, info.TierFlag, info.LevelIDC)
	}
	if info.ProfileCompatibilityFlags != 0x40000000 {
		t.Errorf("compatibility = 0x%08X, want 0x40000000", info.ProfileCompatibilityFlags)
	}
}

func TestParseHEVCSPSTooShort(t *testing.T) {
	t.Parallel()
	if _, err := ParseHEVCSPS([]byte{0x42, 0x01, 0x01}); err == nil {
		t.Error("expected error for short SPS")
	}
	if _, err := ParseHEVCSPS(nil); err == nil {
		t.Error("expected error for nil SPS")
	}
}

func TestHEVCFormat(t *testing.T) {
	t.Parallel()
	vps := []byte{0x40, 0x01, 0x0C}
	pps := []byte{0x44, 0x01, 0xC1}

	f, err := HEVCFormat(vps, testHEVCSPS, pps)
	if err != nil {
		t.Fatalf("HEVCFormat: %v", err)
	}
	if f.MIME != media.MIMEVideoHEVC || f.Width != 320 || f.Height != 240 {
		t.Errorf("format = %v, want video/hevc 320x240", f)
	}

	cfg := f.CodecConfig
	wantLen := 23 + 3*5 + len(vps) + len(testHEVCSPS) + len(pps)
	if len(cfg) != wantLen {
		t.Fatalf("config length = %d, want %d", len(cfg), wantLen)
	}
	if cfg[0] != 1 || cfg[1] != 0x01 || cfg[12] != 93 || cfg[22] != 3 {
		t.Errorf("config header = % X", cfg[:23])
	}
	if cfg[23] != 0x80|HEVCNALVPS {
		t.Errorf("first array type = 0x%02X, want VPS", cfg[23])
	}
}
