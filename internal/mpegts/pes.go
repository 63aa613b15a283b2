package mpegts

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var errNotPES = errors.New("mpegts: payload has no PES start code")

// hasOptionalHeader reports whether packets of this stream id carry the
// PES optional header with flags and timestamps.
func hasOptionalHeader(streamID uint8) bool {
	switch streamID {
	case 0xBC, // program_stream_map
		0xBE, // padding
		0xBF, // private_stream_2
		0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

func parsePES(b []byte) (*PES, error) {
	if len(b) < 6 || b[0] != 0x00 || b[1] != 0x00 || b[2] != 0x01 {
		return nil, errNotPES
	}
	p := &PES{StreamID: b[3], PTS: NoTimestamp, DTS: NoTimestamp}

	body := b[6:]
	// A zero length is allowed for video and means "until the next unit".
	if n := int(binary.BigEndian.Uint16(b[4:6])); n > 0 && n < len(body) {
		body = body[:n]
	}
	if !hasOptionalHeader(p.StreamID) {
		p.Data = body
		return p, nil
	}

	if len(body) < 3 || body[0]&0xC0 != 0x80 {
		return nil, fmt.Errorf("mpegts: stream 0x%02X: malformed PES header", p.StreamID)
	}
	flags := body[1] >> 6
	end := 3 + int(body[2])
	if end > len(body) {
		return nil, fmt.Errorf("mpegts: stream 0x%02X: PES header of %d bytes truncated", p.StreamID, end)
	}
	opt := body[3:end]

	if flags&0x02 != 0 {
		if len(opt) < 5 {
			return nil, fmt.Errorf("mpegts: stream 0x%02X: PTS truncated", p.StreamID)
		}
		p.PTS = readTimestamp(opt)
	}
	if flags == 0x03 {
		if len(opt) < 10 {
			return nil, fmt.Errorf("mpegts: stream 0x%02X: DTS truncated", p.StreamID)
		}
		p.DTS = readTimestamp(opt[5:])
	}
	p.Data = body[end:]
	return p, nil
}

// readTimestamp decodes a 33-bit PTS or DTS spread over five bytes with
// marker bits.
func readTimestamp(b []byte) int64 {
	return int64(b[0]>>1&0x07)<<30 |
		int64(b[1])<<22 |
		int64(b[2]>>1)<<15 |
		int64(b[3])<<7 |
		int64(b[4]>>1)
}
