package mpegts

import (
	"maps"
	"slices"
)

// Demuxer reassembles PSI tables and PES packets from transport packets.
// PMT PIDs are learned from the PAT; every other PID is treated as PES.
// A Demuxer is not safe for concurrent use.
type Demuxer struct {
	pending map[uint16]*assembly
	pmtPIDs map[uint16]bool
}

// NewDemuxer returns a demuxer that has seen no tables.
func NewDemuxer() *Demuxer {
	return &Demuxer{
		pending: make(map[uint16]*assembly),
		pmtPIDs: make(map[uint16]bool),
	}
}

// Feed consumes one packet and returns the units it completed. A packet
// that cannot be parsed is reported and otherwise ignored; units that fail
// to decode are dropped.
func (d *Demuxer) Feed(buf []byte) ([]*Unit, error) {
	h, off, err := parseHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.PID == pidNull {
		return nil, nil
	}

	a := d.pending[h.PID]
	if a == nil {
		a = &assembly{}
		d.pending[h.PID] = a
	}
	var payload []byte
	if h.HasPayload && off < PacketSize {
		payload = buf[off:]
	}
	raw := a.add(h, payload, d.isPSI(h.PID))
	if raw == nil {
		return nil, nil
	}
	return d.decode(h.PID, raw), nil
}

// Flush decodes every partially assembled unit, as at end of input. The
// PAT goes first so PMTs assembled alongside it are recognized.
func (d *Demuxer) Flush() []*Unit {
	var out []*Unit
	for _, pid := range slices.Sorted(maps.Keys(d.pending)) {
		if raw := d.pending[pid].take(); raw != nil {
			out = append(out, d.decode(pid, raw)...)
		}
	}
	return out
}

// Reset drops partially assembled units and keeps the learned PMT PIDs, so
// a reader repositioned mid-stream need not wait for the next PAT.
func (d *Demuxer) Reset() {
	for _, a := range d.pending {
		a.take()
	}
}

func (d *Demuxer) isPSI(pid uint16) bool {
	return pid == pidPAT || d.pmtPIDs[pid]
}

func (d *Demuxer) decode(pid uint16, raw *rawUnit) []*Unit {
	if len(raw.data) == 0 {
		return nil
	}
	if !d.isPSI(pid) {
		pes, err := parsePES(raw.data)
		if err != nil {
			return nil
		}
		return []*Unit{{PID: pid, Start: raw.start, PES: pes}}
	}

	sections, _ := readSections(raw.data)
	var out []*Unit
	for _, s := range sections {
		if !s.current {
			continue
		}
		u := &Unit{PID: pid, Start: raw.start}
		switch {
		case s.tableID == tablePAT && pid == pidPAT:
			pat, err := parsePAT(s)
			if err != nil {
				continue
			}
			for _, p := range pat.Programs {
				d.pmtPIDs[p.PMTPID] = true
			}
			u.PAT = pat
		case s.tableID == tablePMT && pid != pidPAT:
			pmt, err := parsePMT(s)
			if err != nil {
				continue
			}
			u.PMT = pmt
		default:
			continue
		}
		out = append(out, u)
	}
	return out
}

// rawUnit is the joined payload of one unit before decoding.
type rawUnit struct {
	start Header
	data  []byte
}

// assembly collects the payload of one PID until a unit is complete: at
// the next payload_unit_start for PES, or once every section has arrived
// for PSI.
type assembly struct {
	cur  *rawUnit
	last uint8
}

func (a *assembly) add(h Header, payload []byte, psi bool) *rawUnit {
	if h.TransportError {
		a.cur = nil
		return nil
	}
	if !h.HasPayload {
		return nil
	}

	if a.cur != nil && !h.Discontinuity {
		switch h.Continuity {
		case (a.last + 1) & 0x0F:
		case a.last:
			// Retransmitted duplicate.
			return nil
		default:
			// Lost packets; the partial unit cannot be trusted.
			a.cur = nil
		}
	}

	var done *rawUnit
	if h.PayloadStart {
		done = a.take()
		a.cur = &rawUnit{start: h}
	}
	if a.cur == nil {
		return done
	}
	a.cur.data = append(a.cur.data, payload...)
	a.last = h.Continuity

	// A PSI unit still open at the next start was incomplete, so the new
	// one replaces it.
	if psi && sectionsComplete(a.cur.data) {
		done = a.take()
	}
	return done
}

func (a *assembly) take() *rawUnit {
	u := a.cur
	a.cur = nil
	return u
}
