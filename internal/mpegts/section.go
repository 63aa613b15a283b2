package mpegts

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Table ids of the sections the demuxer decodes.
const (
	tablePAT = 0x00
	tablePMT = 0x02
)

const descriptorLanguage = 0x0A

// crcTable drives the MSB-first CRC-32 with polynomial 0x04C11DB7 that PSI
// sections use. hash/crc32 only implements the bit-reversed form.
var crcTable = func() (t [256]uint32) {
	for i := range t {
		c := uint32(i) << 24
		for range 8 {
			if c&0x80000000 != 0 {
				c = c<<1 ^ 0x04C11DB7
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}()

// CRC32 returns the CRC-32/MPEG-2 checksum of b. Over a whole section,
// trailing checksum included, it is zero.
func CRC32(b []byte) uint32 {
	c := uint32(0xFFFFFFFF)
	for _, v := range b {
		c = c<<8 ^ crcTable[byte(c>>24)^v]
	}
	return c
}

// section is one long-form PSI section with its syntax fields decoded and
// body holding what lies between them and the checksum.
type section struct {
	tableID   uint8
	extension uint16
	version   uint8
	current   bool
	body      []byte
}

func sectionLength(b []byte) int {
	return 3 + (int(b[1]&0x0F)<<8 | int(b[2]))
}

// sectionsComplete reports whether a PSI payload, pointer field first,
// holds every section it starts.
func sectionsComplete(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	off := 1 + int(payload[0])
	if off >= len(payload) {
		return false
	}
	for off < len(payload) {
		if payload[off] == 0xFF {
			return true
		}
		if off+3 > len(payload) {
			return false
		}
		if payload[off+1]&0x80 == 0 {
			return true
		}
		off += sectionLength(payload[off:])
	}
	return off == len(payload)
}

// readSections splits a PSI payload into checksummed sections. Sections
// decoded before an error are returned with it.
func readSections(payload []byte) ([]section, error) {
	if len(payload) == 0 {
		return nil, errors.New("mpegts: empty PSI payload")
	}
	off := 1 + int(payload[0])
	if off > len(payload) {
		return nil, fmt.Errorf("mpegts: pointer field %d past end of payload", payload[0])
	}

	var out []section
	for off+3 <= len(payload) && payload[off] != 0xFF {
		b := payload[off:]
		n := sectionLength(b)
		if n > len(b) {
			return out, fmt.Errorf("mpegts: table 0x%02X: section of %d bytes truncated", b[0], n)
		}
		off += n
		if b[1]&0x80 == 0 || n < 12 {
			continue
		}
		if CRC32(b[:n]) != 0 {
			return out, fmt.Errorf("mpegts: table 0x%02X: CRC mismatch", b[0])
		}
		out = append(out, section{
			tableID:   b[0],
			extension: binary.BigEndian.Uint16(b[3:5]),
			version:   b[5] >> 1 & 0x1F,
			current:   b[5]&0x01 != 0,
			body:      b[8 : n-4],
		})
	}
	return out, nil
}

func parsePAT(s section) (*PAT, error) {
	if len(s.body)%4 != 0 {
		return nil, fmt.Errorf("mpegts: PAT body of %d bytes", len(s.body))
	}
	pat := &PAT{TransportStreamID: s.extension, Version: s.version}
	for b := s.body; len(b) >= 4; b = b[4:] {
		number := binary.BigEndian.Uint16(b)
		if number == 0 {
			// Network information PID.
			continue
		}
		pat.Programs = append(pat.Programs, Program{
			Number: number,
			PMTPID: binary.BigEndian.Uint16(b[2:]) & 0x1FFF,
		})
	}
	return pat, nil
}

func parsePMT(s section) (*PMT, error) {
	b := s.body
	if len(b) < 4 {
		return nil, errors.New("mpegts: PMT header truncated")
	}
	pmt := &PMT{
		Program: s.extension,
		Version: s.version,
		PCRPID:  binary.BigEndian.Uint16(b) & 0x1FFF,
	}
	skip := 4 + int(binary.BigEndian.Uint16(b[2:])&0x0FFF)
	if skip > len(b) {
		return nil, errors.New("mpegts: PMT program descriptors truncated")
	}
	b = b[skip:]

	for len(b) >= 5 {
		es := ElementaryStream{
			Type: b[0],
			PID:  binary.BigEndian.Uint16(b[1:]) & 0x1FFF,
		}
		end := 5 + int(binary.BigEndian.Uint16(b[3:])&0x0FFF)
		if end > len(b) {
			return nil, fmt.Errorf("mpegts: PMT entry for pid %d truncated", es.PID)
		}
		es.Language = language(b[5:end])
		pmt.Streams = append(pmt.Streams, es)
		b = b[end:]
	}
	return pmt, nil
}

// language returns the first ISO 639 code in a descriptor loop.
func language(desc []byte) string {
	for len(desc) >= 2 {
		tag, n := desc[0], int(desc[1])
		if 2+n > len(desc) {
			return ""
		}
		if tag == descriptorLanguage && n >= 3 {
			return string(desc[2:5])
		}
		desc = desc[2+n:]
	}
	return ""
}
