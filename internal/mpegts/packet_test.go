package mpegts

import (
	"strings"
	"testing"
)

// rawPacket builds a packet by hand. af is the adaptation field body, nil
// for none.
func rawPacket(pid uint16, cc uint8, start bool, af, payload []byte) []byte {
	buf := make([]byte, PacketSize)
	buf[0] = syncByte
	buf[1] = byte(pid>>8) & 0x1F
	if start {
		buf[1] |= 0x40
	}
	buf[2] = byte(pid)
	buf[3] = cc & 0x0F
	if payload != nil {
		buf[3] |= 0x10
	}
	off := 4
	if af != nil {
		buf[3] |= 0x20
		buf[4] = byte(len(af))
		copy(buf[5:], af)
		off += 1 + len(af)
	}
	for i := copy(buf[off:], payload) + off; i < PacketSize; i++ {
		buf[i] = 0xFF
	}
	return buf
}

func encodePCR(base, ext int64) []byte {
	return []byte{
		byte(base >> 25), byte(base >> 17), byte(base >> 9), byte(base >> 1),
		byte(base<<7) | 0x7E | byte(ext>>8&0x01),
		byte(ext),
	}
}

func TestParseHeader(t *testing.T) {
	t.Parallel()

	buf := rawPacket(0x1ABC, 9, true, nil, []byte{1, 2, 3})
	h, err := ParseHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.PID != 0x1ABC || h.Continuity != 9 || !h.PayloadStart || !h.HasPayload {
		t.Errorf("header = %+v", h)
	}
	if h.HasAdaptation || h.Discontinuity || h.PCR != NoTimestamp {
		t.Errorf("adaptation fields set on a plain packet: %+v", h)
	}
}

func TestParseHeaderAdaptation(t *testing.T) {
	t.Parallel()

	const base, ext = 0x1_2345_6789, 0x155
	af := append([]byte{0x80 | 0x40 | 0x10}, encodePCR(base, ext)...)
	h, err := ParseHeader(rawPacket(0x100, 0, true, af, []byte{0xAA}))
	if err != nil {
		t.Fatal(err)
	}
	if !h.Discontinuity || !h.RandomAccess {
		t.Errorf("flags = %+v", h)
	}
	if want := int64(base*300 + ext); h.PCR != want {
		t.Errorf("PCR = %d, want %d", h.PCR, want)
	}
}

func TestParseHeaderPayloadOffset(t *testing.T) {
	t.Parallel()

	buf := rawPacket(0x100, 0, true, []byte{0x00, 0xFF, 0xFF}, []byte{0xAB})
	_, off, err := parseHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if off != 8 || buf[off] != 0xAB {
		t.Errorf("payload offset = %d", off)
	}
}

func TestParseHeaderErrors(t *testing.T) {
	t.Parallel()

	overrun := rawPacket(0x100, 0, false, nil, nil)
	overrun[3] |= 0x20
	overrun[4] = 200

	badSync := rawPacket(0x100, 0, false, nil, []byte{1})
	badSync[0] = 0x48

	tests := []struct {
		name string
		buf  []byte
		want string
	}{
		{"short", make([]byte, 100), "100 bytes"},
		{"sync", badSync, "sync byte"},
		{"adaptation overrun", overrun, "overruns"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseHeader(tc.buf)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestIsSyncPacket(t *testing.T) {
	t.Parallel()

	if IsSyncPacket(nil) {
		t.Error("empty buffer reported as sync")
	}
	if !IsSyncPacket([]byte{0x47, 0}) {
		t.Error("sync byte not recognized")
	}
}
