// Package mpegts splits an MPEG-2 transport stream into the program tables
// and PES packets a playback source needs. It does no I/O of its own: the
// caller reads 188-byte packets and feeds them to a Demuxer.
package mpegts

// PacketSize is the size of a transport stream packet.
const PacketSize = 188

const (
	syncByte = 0x47
	pidPAT   = 0x0000
	pidNull  = 0x1FFF
)

// NoTimestamp marks an absent PTS, DTS or PCR.
const NoTimestamp int64 = -1

// Header holds the transport packet header together with the adaptation
// field flags the player reacts to.
type Header struct {
	PID            uint16
	Continuity     uint8
	PayloadStart   bool
	TransportError bool
	HasPayload     bool
	HasAdaptation  bool
	Discontinuity  bool
	RandomAccess   bool

	// PCR is the program clock reference in 27MHz ticks, or NoTimestamp.
	PCR int64
}

// Unit is one reassembled PSI table or PES packet. Exactly one of PAT, PMT
// and PES is set.
type Unit struct {
	PID uint16

	// Start is the header of the packet the unit began in.
	Start Header

	PAT *PAT
	PMT *PMT
	PES *PES
}

// PAT is a program association table.
type PAT struct {
	TransportStreamID uint16
	Version           uint8
	Programs          []Program
}

// Program maps a program number to the PID carrying its PMT.
type Program struct {
	Number uint16
	PMTPID uint16
}

// PMT is a program map table.
type PMT struct {
	Program uint16
	Version uint8
	PCRPID  uint16
	Streams []ElementaryStream
}

// ElementaryStream is one PMT entry. Language is the ISO 639 code from the
// stream's language descriptor, empty when none was sent.
type ElementaryStream struct {
	PID      uint16
	Type     uint8
	Language string
}

// PES is a packetized elementary stream packet. PTS and DTS are 90kHz
// ticks, NoTimestamp when the header omits them.
type PES struct {
	StreamID uint8
	PTS      int64
	DTS      int64
	Data     []byte
}

// HasPTS reports whether the packet carried a presentation time.
func (p *PES) HasPTS() bool { return p.PTS != NoTimestamp }

// DecodeTime returns the DTS, falling back to the PTS when only that was
// sent.
func (p *PES) DecodeTime() int64 {
	if p.DTS != NoTimestamp {
		return p.DTS
	}
	return p.PTS
}
