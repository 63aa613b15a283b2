package mpegts

import "fmt"

// IsSyncPacket reports whether buf starts with the transport stream sync
// byte.
func IsSyncPacket(buf []byte) bool {
	return len(buf) > 0 && buf[0] == syncByte
}

// ParseHeader decodes the header and adaptation field of one packet without
// touching its payload.
func ParseHeader(buf []byte) (Header, error) {
	h, _, err := parseHeader(buf)
	return h, err
}

// parseHeader returns the header and the offset at which the payload
// starts.
func parseHeader(buf []byte) (Header, int, error) {
	if len(buf) != PacketSize {
		return Header{}, 0, fmt.Errorf("mpegts: packet is %d bytes, want %d", len(buf), PacketSize)
	}
	if buf[0] != syncByte {
		return Header{}, 0, fmt.Errorf("mpegts: sync byte 0x%02X", buf[0])
	}

	h := Header{
		PID:            uint16(buf[1]&0x1F)<<8 | uint16(buf[2]),
		Continuity:     buf[3] & 0x0F,
		PayloadStart:   buf[1]&0x40 != 0,
		TransportError: buf[1]&0x80 != 0,
		HasAdaptation:  buf[3]&0x20 != 0,
		HasPayload:     buf[3]&0x10 != 0,
		PCR:            NoTimestamp,
	}

	off := 4
	if !h.HasAdaptation {
		return h, off, nil
	}
	n := int(buf[off])
	off++
	if off+n > PacketSize {
		return h, 0, fmt.Errorf("mpegts: pid %d: adaptation field of %d bytes overruns packet", h.PID, n)
	}
	if n > 0 {
		af := buf[off : off+n]
		h.Discontinuity = af[0]&0x80 != 0
		h.RandomAccess = af[0]&0x40 != 0
		if af[0]&0x10 != 0 && len(af) >= 7 {
			h.PCR = readPCR(af[1:7])
		}
	}
	return h, off + n, nil
}

// readPCR decodes the 33-bit base and 9-bit extension into 27MHz ticks.
func readPCR(b []byte) int64 {
	base := int64(b[0])<<25 | int64(b[1])<<17 | int64(b[2])<<9 | int64(b[3])<<1 | int64(b[4])>>7
	ext := int64(b[4]&0x01)<<8 | int64(b[5])
	return base*300 + ext
}
