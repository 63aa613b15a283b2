package mpegts

import (
	"bytes"
	"errors"
	"testing"
)

func timestamp(prefix byte, ts int64) []byte {
	return []byte{
		prefix<<4 | byte(ts>>29)&0x0E | 0x01,
		byte(ts >> 22),
		byte(ts>>14) | 0x01,
		byte(ts >> 7),
		byte(ts<<1) | 0x01,
	}
}

// pesBytes builds a PES packet with the given timestamps, NoTimestamp to
// omit one. bounded writes the packet length.
func pesBytes(streamID byte, pts, dts int64, bounded bool, data []byte) []byte {
	var opt []byte
	var flags byte
	switch {
	case pts != NoTimestamp && dts != NoTimestamp:
		flags = 0xC0
		opt = append(timestamp(0x3, pts), timestamp(0x1, dts)...)
	case pts != NoTimestamp:
		flags = 0x80
		opt = timestamp(0x2, pts)
	}
	length := 0
	if bounded {
		length = 3 + len(opt) + len(data)
	}
	b := []byte{0, 0, 1, streamID, byte(length >> 8), byte(length), 0x80, flags, byte(len(opt))}
	b = append(b, opt...)
	return append(b, data...)
}

func TestParsePES(t *testing.T) {
	t.Parallel()

	const maxTS = 1<<33 - 1
	tests := []struct {
		name     string
		in       []byte
		pts, dts int64
		data     []byte
	}{
		{"pts only", pesBytes(0xE0, 90000, NoTimestamp, false, []byte{1, 2}), 90000, NoTimestamp, []byte{1, 2}},
		{"pts and dts", pesBytes(0xE0, 93600, 90000, false, []byte{3}), 93600, 90000, []byte{3}},
		{"no timestamps", pesBytes(0xC0, NoTimestamp, NoTimestamp, true, []byte{4}), NoTimestamp, NoTimestamp, []byte{4}},
		{"33-bit wrap edge", pesBytes(0xC0, maxTS, NoTimestamp, true, []byte{5}), maxTS, NoTimestamp, []byte{5}},
		{
			"bounded length trims stuffing",
			append(pesBytes(0xC0, 0, NoTimestamp, true, []byte{6, 7}), 0xFF, 0xFF),
			0, NoTimestamp, []byte{6, 7},
		},
		{"padding stream", []byte{0, 0, 1, 0xBE, 0, 2, 0xFF, 0xFF}, NoTimestamp, NoTimestamp, []byte{0xFF, 0xFF}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := parsePES(tc.in)
			if err != nil {
				t.Fatal(err)
			}
			if p.PTS != tc.pts || p.DTS != tc.dts {
				t.Errorf("PTS/DTS = %d/%d, want %d/%d", p.PTS, p.DTS, tc.pts, tc.dts)
			}
			if !bytes.Equal(p.Data, tc.data) {
				t.Errorf("Data = %x, want %x", p.Data, tc.data)
			}
		})
	}
}

func TestParsePESErrors(t *testing.T) {
	t.Parallel()

	if _, err := parsePES([]byte{0, 0, 2, 0xE0, 0, 0}); !errors.Is(err, errNotPES) {
		t.Errorf("bad start code: %v", err)
	}
	if _, err := parsePES([]byte{0, 0, 1, 0xE0, 0, 0, 0x40, 0x80, 5}); err == nil {
		t.Error("bad marker bits accepted")
	}
	if _, err := parsePES([]byte{0, 0, 1, 0xE0, 0, 0, 0x80, 0x80, 5, 1, 2}); err == nil {
		t.Error("truncated header accepted")
	}
	if _, err := parsePES([]byte{0, 0, 1, 0xE0, 0, 0, 0x80, 0x80, 2, 1, 2}); err == nil {
		t.Error("PTS flag with a two byte header accepted")
	}
}

func TestDecodeTime(t *testing.T) {
	t.Parallel()

	p := &PES{PTS: 10, DTS: NoTimestamp}
	if p.DecodeTime() != 10 || !p.HasPTS() {
		t.Errorf("pts only: decode %d", p.DecodeTime())
	}
	p.DTS = 7
	if p.DecodeTime() != 7 {
		t.Errorf("with dts: decode %d", p.DecodeTime())
	}
	if (&PES{PTS: NoTimestamp}).HasPTS() {
		t.Error("HasPTS without a timestamp")
	}
}
