package demux

import (
	"github.com/zsiec/ccx"

	"github.com/zsiec/playcore/internal/media"
)

// CaptionDecoder turns caption data carried in H.264 SEI NAL units into
// text cues. CEA-608 channels 1-4 keep their numbers; CEA-708 services
// 1-6 are reported as channels 7-12.
type CaptionDecoder struct {
	cea608 map[int]*ccx.CEA608Decoder
	cea708 map[int]*ccx.CEA708Service

	dtvcc []byte

	// Control codes are sent twice for robustness; the repeat is dropped.
	lastCtrl   [2][2]byte
	lastIsCtrl [2]bool
}

// NewCaptionDecoder returns a decoder with all 608 channels and 708
// services enabled.
func NewCaptionDecoder() *CaptionDecoder {
	d := &CaptionDecoder{
		cea608: make(map[int]*ccx.CEA608Decoder),
		cea708: make(map[int]*ccx.CEA708Service),
	}
	for ch := 1; ch <= 4; ch++ {
		d.cea608[ch] = ccx.NewCEA608Decoder()
	}
	for svc := 1; svc <= 6; svc++ {
		d.cea708[svc] = ccx.NewCEA708Service()
	}
	return d
}

// Decode consumes one SEI NAL unit presented at pts.
func (d *CaptionDecoder) Decode(sei []byte, pts int64) []media.TextCue {
	cd := ccx.ExtractCaptions(sei)
	if cd == nil {
		return nil
	}

	var cues []media.TextCue
	for _, pair := range cd.CC608Pairs {
		cc1, cc2 := pair.Data[0], pair.Data[1]
		f := pair.Field & 1
		if cc1 >= 0x10 && cc1 <= 0x1F {
			cp := [2]byte{cc1, cc2}
			if d.lastIsCtrl[f] && d.lastCtrl[f] == cp {
				d.lastIsCtrl[f] = false
				continue
			}
			d.lastCtrl[f], d.lastIsCtrl[f] = cp, true
		} else {
			d.lastIsCtrl[f] = false
		}

		dec := d.cea608[pair.Channel]
		if dec == nil {
			continue
		}
		if text := dec.Decode(cc1, cc2); text != "" {
			cues = append(cues, media.TextCue{PTS: pts, Channel: pair.Channel, Text: text})
		}
	}

	for _, t := range cd.DTVCC {
		if t.Start {
			cues = append(cues, d.drainDTVCC(pts)...)
			d.dtvcc = d.dtvcc[:0]
		}
		d.dtvcc = append(d.dtvcc, t.Data[0], t.Data[1])
	}
	return cues
}

// Reset drops partially received caption packets.
func (d *CaptionDecoder) Reset() {
	d.dtvcc = d.dtvcc[:0]
	d.lastIsCtrl = [2]bool{}
}

func (d *CaptionDecoder) drainDTVCC(pts int64) []media.TextCue {
	if len(d.dtvcc) < 1 {
		return nil
	}
	size := ccx.DTVCCPacketSize(d.dtvcc[0])
	if len(d.dtvcc) < size {
		return nil
	}

	var cues []media.TextCue
	for _, block := range ccx.ParseDTVCCPacket(d.dtvcc[:size]) {
		svc := d.cea708[block.ServiceNum]
		if svc == nil || !svc.ProcessBlock(block.Data) {
			continue
		}
		if text := svc.DisplayText(); text != "" {
			cues = append(cues, media.TextCue{PTS: pts, Channel: block.ServiceNum + 6, Text: text})
		}
	}
	d.dtvcc = d.dtvcc[size:]
	return cues
}
