package mpegts

import (
	"encoding/binary"
	"strings"
	"testing"
)

// longSection wraps body in a section header and checksum.
func longSection(tableID byte, ext uint16, version byte, current bool, body []byte) []byte {
	n := 5 + len(body) + 4
	b := []byte{tableID, 0xB0 | byte(n>>8), byte(n), byte(ext >> 8), byte(ext), 0xC0 | version<<1, 0, 0}
	if current {
		b[5] |= 0x01
	}
	b = append(b, body...)
	return binary.BigEndian.AppendUint32(b, CRC32(b))
}

func psiPayload(sections ...[]byte) []byte {
	out := []byte{0x00}
	for _, s := range sections {
		out = append(out, s...)
	}
	return out
}

func TestCRC32(t *testing.T) {
	t.Parallel()

	// CRC-32/MPEG-2 check value.
	if got := CRC32([]byte("123456789")); got != 0x0376E6E7 {
		t.Errorf("CRC32 = 0x%08X, want 0x0376E6E7", got)
	}
	sec := longSection(tablePAT, 1, 0, true, []byte{0, 1, 0xF0, 0})
	if got := CRC32(sec); got != 0 {
		t.Errorf("CRC32 over section with checksum = 0x%08X, want 0", got)
	}
}

func TestReadSections(t *testing.T) {
	t.Parallel()

	pat := longSection(tablePAT, 7, 3, true, []byte{0, 1, 0xF0, 0x00})
	pmt := longSection(tablePMT, 1, 0, false, []byte{0xE1, 0x00, 0xF0, 0x00})
	payload := append(psiPayload(pat, pmt), 0xFF, 0xFF)

	got, err := readSections(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d sections, want 2", len(got))
	}
	if got[0].tableID != tablePAT || got[0].extension != 7 || got[0].version != 3 || !got[0].current {
		t.Errorf("PAT section = %+v", got[0])
	}
	if got[1].tableID != tablePMT || got[1].current {
		t.Errorf("PMT section = %+v", got[1])
	}
}

func TestReadSectionsErrors(t *testing.T) {
	t.Parallel()

	good := longSection(tablePAT, 1, 0, true, []byte{0, 1, 0xF0, 0x00})
	corrupt := append([]byte(nil), good...)
	corrupt[9] ^= 0x01

	tests := []struct {
		name    string
		payload []byte
		want    string
		n       int
	}{
		{"empty", nil, "empty", 0},
		{"pointer past end", []byte{4, 0}, "pointer field", 0},
		{"bad checksum after good", psiPayload(good, corrupt), "CRC", 1},
		{"truncated", psiPayload(good[:10]), "truncated", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := readSections(tc.payload)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want %q", err, tc.want)
			}
			if len(got) != tc.n {
				t.Errorf("got %d sections before the error, want %d", len(got), tc.n)
			}
		})
	}
}

func TestSectionsComplete(t *testing.T) {
	t.Parallel()

	sec := longSection(tablePAT, 1, 0, true, []byte{0, 1, 0xF0, 0x00})
	tests := []struct {
		name    string
		payload []byte
		want    bool
	}{
		{"one section", psiPayload(sec), true},
		{"stuffed", append(psiPayload(sec), 0xFF, 0xFF), true},
		{"partial", psiPayload(sec[:8]), false},
		{"second partial", psiPayload(sec, sec[:5]), false},
		{"pointer only", []byte{0}, false},
		{"pointer past end", []byte{6, 1, 2}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := sectionsComplete(tc.payload); got != tc.want {
				t.Errorf("sectionsComplete = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParsePAT(t *testing.T) {
	t.Parallel()

	body := []byte{
		0x00, 0x00, 0xE0, 0x10, // network PID
		0x00, 0x01, 0xF0, 0x00,
		0x00, 0x02, 0xF1, 0x00,
	}
	secs, err := readSections(psiPayload(longSection(tablePAT, 0x42, 5, true, body)))
	if err != nil {
		t.Fatal(err)
	}
	pat, err := parsePAT(secs[0])
	if err != nil {
		t.Fatal(err)
	}
	if pat.TransportStreamID != 0x42 || pat.Version != 5 {
		t.Errorf("PAT = %+v", pat)
	}
	want := []Program{{Number: 1, PMTPID: 0x1000}, {Number: 2, PMTPID: 0x1100}}
	if len(pat.Programs) != len(want) {
		t.Fatalf("programs = %+v, want %+v", pat.Programs, want)
	}
	for i := range want {
		if pat.Programs[i] != want[i] {
			t.Errorf("program %d = %+v, want %+v", i, pat.Programs[i], want[i])
		}
	}

	if _, err := parsePAT(section{body: []byte{0, 1, 0xF0}}); err == nil {
		t.Error("odd PAT body accepted")
	}
}

func TestParsePMT(t *testing.T) {
	t.Parallel()

	body := []byte{
		0xE1, 0x00, // PCR PID 0x100
		0xF0, 0x03, 0x05, 0x01, 0x00, // program descriptor
		0x1B, 0xE1, 0x00, 0xF0, 0x00,
		0x0F, 0xE1, 0x01, 0xF0, 0x06, 0x0A, 0x04, 'e', 'n', 'g', 0x00,
	}
	secs, err := readSections(psiPayload(longSection(tablePMT, 1, 2, true, body)))
	if err != nil {
		t.Fatal(err)
	}
	pmt, err := parsePMT(secs[0])
	if err != nil {
		t.Fatal(err)
	}
	if pmt.Program != 1 || pmt.Version != 2 || pmt.PCRPID != 0x100 {
		t.Errorf("PMT = %+v", pmt)
	}
	want := []ElementaryStream{
		{PID: 0x100, Type: 0x1B},
		{PID: 0x101, Type: 0x0F, Language: "eng"},
	}
	if len(pmt.Streams) != len(want) {
		t.Fatalf("streams = %+v, want %+v", pmt.Streams, want)
	}
	for i := range want {
		if pmt.Streams[i] != want[i] {
			t.Errorf("stream %d = %+v, want %+v", i, pmt.Streams[i], want[i])
		}
	}
}

func TestParsePMTTruncated(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body []byte
	}{
		{"header", []byte{0xE1, 0x00}},
		{"program descriptors", []byte{0xE1, 0x00, 0xF0, 0x09, 0x05}},
		{"stream descriptors", []byte{0xE1, 0x00, 0xF0, 0x00, 0x1B, 0xE1, 0x00, 0xF0, 0x08, 0x0A}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := parsePMT(section{body: tc.body}); err == nil {
				t.Error("truncated PMT accepted")
			}
		})
	}
}
