package ts

import (
	"fmt"
	"io"

	"github.com/zsiec/playcore/internal/mpegts"
)

// probeWindow is the number of bytes scanned at each end of a seekable
// origin when measuring its duration.
const probeWindow = 2 << 20

// probeResult holds the size of a seekable origin and the first and last
// PTS found near its head and tail, in 90 kHz ticks.
type probeResult struct {
	size     int64
	firstPTS int64
	lastPTS  int64
}

func (p probeResult) durationUs() int64 {
	if p.firstPTS < 0 || p.lastPTS <= p.firstPTS {
		return 0
	}
	return (p.lastPTS - p.firstPTS) * 1000000 / 90000
}

// probe measures a seekable origin. The origin is left at offset zero.
func probe(rs io.ReadSeeker) (probeResult, error) {
	res := probeResult{firstPTS: -1, lastPTS: -1}

	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return res, fmt.Errorf("ts: probe size: %w", err)
	}
	res.size = size

	head, err := scanPTS(rs, 0, probeWindow)
	if err != nil {
		return res, err
	}
	for _, pts := range head {
		if res.firstPTS < 0 || pts < res.firstPTS {
			res.firstPTS = pts
		}
	}

	tailStart := size - probeWindow
	if tailStart < 0 {
		tailStart = 0
	}
	tailStart -= tailStart % mpegts.PacketSize
	tail, err := scanPTS(rs, tailStart, probeWindow)
	if err != nil {
		return res, err
	}
	for _, pts := range tail {
		if pts > res.lastPTS {
			res.lastPTS = pts
		}
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return res, fmt.Errorf("ts: probe rewind: %w", err)
	}
	return res, nil
}

// scanPTS demuxes up to n bytes from offset and returns every PES PTS seen.
func scanPTS(rs io.ReadSeeker, offset, n int64) ([]int64, error) {
	if _, err := rs.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("ts: probe seek: %w", err)
	}

	d := mpegts.NewDemuxer()
	var pts []int64
	collect := func(units []*mpegts.Unit) {
		for _, u := range units {
			if u.PES != nil && u.PES.HasPTS() {
				pts = append(pts, u.PES.PTS)
			}
		}
	}

	buf := make([]byte, mpegts.PacketSize)
	for read := int64(0); read < n; read += mpegts.PacketSize {
		if _, err := io.ReadFull(rs, buf); err != nil {
			break
		}
		if !mpegts.IsSyncPacket(buf) {
			continue
		}
		units, err := d.Feed(buf)
		if err != nil {
			continue
		}
		collect(units)
	}
	collect(d.Flush())
	return pts, nil
}
