package demux

import (
	"bytes"
	"errors"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

var errSPSTooShort = errors.New("SPS data too short")

var startCode = []byte{0, 0, 1}

// NALUnit is one NAL unit split out of an Annex B byte stream.
type NALUnit struct {
	Type byte   // codec-specific: 5 bits for H.264, 6 bits for H.265
	Data []byte // NAL header and payload, without start code
}

// ParseAnnexB splits an H.264 Annex B byte stream into NAL units. Both
// 3-byte and 4-byte start codes are recognized.
func ParseAnnexB(data []byte) []NALUnit {
	return splitAnnexB(data, 1, func(d []byte) byte { return d[0] & 0x1F })
}

// splitAnnexB cuts data at every 00 00 01 and drops the zero bytes that
// precede a start code, so a 4-byte start code leaves no trailing zero on
// the unit before it. Units shorter than minNALBytes are skipped.
func splitAnnexB(data []byte, minNALBytes int, nalType func([]byte) byte) []NALUnit {
	var units []NALUnit
	emit := func(nal []byte) {
		nal = bytes.TrimRight(nal, "\x00")
		if len(nal) >= minNALBytes && len(nal) > 0 {
			units = append(units, NALUnit{Type: nalType(nal), Data: nal})
		}
	}

	i := bytes.Index(data, startCode)
	if i < 0 {
		return nil
	}
	rest := data[i+len(startCode):]
	for {
		j := bytes.Index(rest, startCode)
		if j < 0 {
			emit(rest)
			return units
		}
		emit(rest[:j])
		rest = rest[j+len(startCode):]
	}
}

// bitReader reads MSB-first fields and Exp-Golomb codes from an RBSP with
// emulation prevention already removed.
type bitReader struct {
	buf []byte
	off int // in bits
}

func newBitReader(rbsp []byte) *bitReader { return &bitReader{buf: rbsp} }

// newRBSPReader strips emulation prevention bytes from a NAL payload.
func newRBSPReader(payload []byte) *bitReader {
	return newBitReader(h264.EmulationPreventionRemove(payload))
}

func (br *bitReader) readBits(n int) (uint, error) {
	if br.off+n > len(br.buf)*8 {
		return 0, errSPSTooShort
	}
	var v uint
	for end := br.off + n; br.off < end; br.off++ {
		bit := br.buf[br.off>>3] >> (7 - br.off&7) & 1
		v = v<<1 | uint(bit)
	}
	return v, nil
}

func (br *bitReader) readFlag() (bool, error) {
	v, err := br.readBits(1)
	return v == 1, err
}

// readUE decodes an unsigned Exp-Golomb value.
func (br *bitReader) readUE() (uint, error) {
	zeros := 0
	for {
		set, err := br.readFlag()
		if err != nil {
			return 0, err
		}
		if set {
			break
		}
		if zeros++; zeros > 31 {
			return 0, errSPSTooShort
		}
	}
	suffix, err := br.readBits(zeros)
	if err != nil {
		return 0, err
	}
	return 1<<zeros - 1 + suffix, nil
}
