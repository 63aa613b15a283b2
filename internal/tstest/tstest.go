// Package tstest synthesizes MPEG transport streams for tests: PAT/PMT
// sections, PES packets split over transport packets with continuity
// counters, in-band discontinuity markers, and small H.264, H.265 and
// ADTS payloads.
package tstest

import (
	"bytes"
	"encoding/binary"
)

// PacketSize is the fixed size of a transport packet.
const PacketSize = 188

// PIDs used by Program.
const (
	PMTPID   = 0x1000
	VideoPID = 0x100
	AudioPID = 0x101
)

// Stream types written into the PMT.
const (
	StreamTypeAAC  = 0x0F
	StreamTypeH264 = 0x1B
	StreamTypeH265 = 0x24
)

// PES stream ids.
const (
	VideoStreamID = 0xE0
	AudioStreamID = 0xC0
)

// AVCSPS is a Baseline 1920x1080 sequence parameter set.
var AVCSPS = []byte{
	0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
	0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
	0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9,
	0x20,
}

// AVCPPS is a picture parameter set matching AVCSPS.
var AVCPPS = []byte{0x68, 0xce, 0x38, 0x80}

// HEVCSPS is a 320x240 Main profile sequence parameter set.
var HEVCSPS = []byte{
	0x42, 0x01, 0x01, 0x01, 0x40, 0x00, 0x00, 0x00,
	0xB0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x5D, 0xA0,
	0x0A, 0x08, 0x0F, 0x10,
}

// AnnexB joins NAL units with 4-byte start codes.
func AnnexB(nalus ...[]byte) []byte {
	var buf bytes.Buffer
	for _, n := range nalus {
		buf.Write([]byte{0, 0, 0, 1})
		buf.Write(n)
	}
	return buf.Bytes()
}

// AVCKeyframe is an IDR access unit carrying SPS and PPS.
func AVCKeyframe() []byte { return AnnexB(AVCSPS, AVCPPS, []byte{0x65, 0x88, 0x84, 0x10}) }

// AVCNonRef is a non-IDR slice with nal_ref_idc 0.
func AVCNonRef() []byte { return AnnexB([]byte{0x01, 0x9a, 0x02, 0x10}) }

// HEVCKeyframe is an IDR access unit carrying VPS, SPS, PPS.
func HEVCKeyframe() []byte {
	return AnnexB([]byte{0x40, 0x01, 0x0C}, HEVCSPS, []byte{0x44, 0x01, 0xC1}, []byte{0x26, 0x01, 0xAF})
}

// ADTS wraps payload in an AAC-LC 48kHz stereo ADTS header.
func ADTS(payload []byte) []byte {
	frameLen := 7 + len(payload)
	h := []byte{
		0xFF, 0xF1,
		1<<6 | 3<<2,
		2<<6 | byte(frameLen>>11&0x03),
		byte(frameLen >> 3),
		byte(frameLen&0x07)<<5 | 0x1F,
		0xFC,
	}
	return append(h, payload...)
}

// CRC32 is the MPEG-2 section checksum.
func CRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc ^= uint32(b) << 24
		for range 8 {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Writer accumulates a transport stream, tracking continuity counters per
// PID and stuffing adaptation fields so payloads end exactly.
type Writer struct {
	bytes.Buffer
	cc map[uint16]uint8
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{cc: make(map[uint16]uint8)}
}

// Packet writes one transport packet. disc sets the adaptation-field
// discontinuity indicator; payload must fit in 183 bytes when it is set.
func (w *Writer) Packet(pid uint16, pusi, disc bool, payload []byte) {
	buf := make([]byte, PacketSize)
	buf[0] = 0x47
	buf[1] = byte(pid>>8) & 0x1F
	if pusi {
		buf[1] |= 0x40
	}
	buf[2] = byte(pid)
	cc := w.cc[pid]
	w.cc[pid] = cc + 1

	if len(payload) == 184 && !disc {
		buf[3] = 0x10 | cc&0x0F
		copy(buf[4:], payload)
		w.Write(buf)
		return
	}
	buf[3] = 0x30 | cc&0x0F
	afLen := 183 - len(payload)
	buf[4] = byte(afLen)
	if afLen > 0 {
		if disc {
			buf[5] = 0x80
		}
		for i := 6; i < 5+afLen; i++ {
			buf[i] = 0xFF
		}
	}
	copy(buf[5+afLen:], payload)
	w.Write(buf)
}

// PES splits one PES packet with a 90kHz pts over as many transport packets
// as needed. Video PES packets are written unbounded.
func (w *Writer) PES(pid uint16, streamID byte, pts int64, data []byte, disc bool) {
	optional := []byte{
		0x21 | byte(pts>>29)&0x0E,
		byte(pts >> 22),
		0x01 | byte(pts>>14)&0xFE,
		byte(pts >> 7),
		0x01 | byte(pts<<1)&0xFE,
	}
	length := 0
	if streamID != VideoStreamID {
		length = 3 + len(optional) + len(data)
	}
	pes := []byte{0x00, 0x00, 0x01, streamID, byte(length >> 8), byte(length), 0x80, 0x80, byte(len(optional))}
	pes = append(pes, optional...)
	pes = append(pes, data...)

	first := true
	for len(pes) > 0 {
		limit := 184
		if first && disc {
			limit = 182
		}
		n := min(limit, len(pes))
		w.Packet(pid, first, first && disc, pes[:n])
		pes = pes[n:]
		first = false
	}
}

// PSI writes a section, appending its CRC, in a single packet.
func (w *Writer) PSI(pid uint16, section []byte) {
	section = binary.BigEndian.AppendUint32(section, CRC32(section))
	payload := bytes.Repeat([]byte{0xFF}, 184)
	payload[0] = 0x00
	copy(payload[1:], section)
	w.Packet(pid, true, false, payload)
}

// Program writes a PAT and a PMT announcing a video stream of the given
// type on VideoPID and AAC on AudioPID. The video PID carries the PCR.
func (w *Writer) Program(videoType uint8) {
	pat := []byte{0x00, 0xB0, 13, 0x00, 0x01, 0xC1, 0x00, 0x00,
		0x00, 0x01, 0xE0 | PMTPID>>8, PMTPID & 0xFF}
	w.PSI(0x0000, pat)

	pmt := []byte{0x02, 0xB0, 23, 0x00, 0x01, 0xC1, 0x00, 0x00,
		0xE0 | VideoPID>>8, VideoPID & 0xFF, 0xF0, 0x00,
		videoType, 0xE0 | VideoPID>>8, VideoPID & 0xFF, 0xF0, 0x00,
		StreamTypeAAC, 0xE0 | AudioPID>>8, AudioPID & 0xFF, 0xF0, 0x00,
	}
	w.PSI(PMTPID, pmt)
}

// Marker writes an in-band discontinuity control packet. A negative
// resumeAt omits the resume time.
func (w *Writer) Marker(kind byte, resumeAt int64) {
	buf := make([]byte, PacketSize)
	buf[1] = kind
	if resumeAt >= 0 {
		buf[1] |= 0x80
		binary.BigEndian.PutUint64(buf[2:], uint64(resumeAt))
	}
	w.Write(buf)
}

// Clip writes a program followed by n video frames and n audio frames
// spaced 40ms apart, starting at pts 1s. Every fifth video frame is a
// keyframe and the rest are non-reference.
func (w *Writer) Clip(n int) {
	w.Program(StreamTypeH264)
	for i := range n {
		pts := int64(90000 + i*3600)
		frame := AVCNonRef()
		if i%5 == 0 {
			frame = AVCKeyframe()
		}
		w.PES(VideoPID, VideoStreamID, pts, frame, false)
		w.PES(AudioPID, AudioStreamID, pts, ADTS([]byte{byte(i), 0x01}), false)
	}
}
