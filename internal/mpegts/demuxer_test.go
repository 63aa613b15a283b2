package mpegts_test

import (
	"bytes"
	"testing"

	"github.com/zsiec/playcore/internal/mpegts"
	"github.com/zsiec/playcore/internal/tstest"
)

func feed(t *testing.T, d *mpegts.Demuxer, stream []byte) []*mpegts.Unit {
	t.Helper()
	var out []*mpegts.Unit
	for len(stream) >= mpegts.PacketSize {
		units, err := d.Feed(stream[:mpegts.PacketSize])
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		out = append(out, units...)
		stream = stream[mpegts.PacketSize:]
	}
	return out
}

func TestDemuxerProgram(t *testing.T) {
	t.Parallel()

	w := tstest.NewWriter()
	w.Program(tstest.StreamTypeH265)
	units := feed(t, mpegts.NewDemuxer(), w.Bytes())

	if len(units) != 2 || units[0].PAT == nil || units[1].PMT == nil {
		t.Fatalf("units = %+v, want PAT then PMT", units)
	}
	pat := units[0].PAT
	if len(pat.Programs) != 1 || pat.Programs[0].PMTPID != tstest.PMTPID {
		t.Errorf("PAT programs = %+v", pat.Programs)
	}
	pmt := units[1].PMT
	if units[1].PID != tstest.PMTPID || pmt.PCRPID != tstest.VideoPID {
		t.Errorf("PMT on pid %d, PCR pid %d", units[1].PID, pmt.PCRPID)
	}
	want := []mpegts.ElementaryStream{
		{PID: tstest.VideoPID, Type: tstest.StreamTypeH265},
		{PID: tstest.AudioPID, Type: tstest.StreamTypeAAC},
	}
	if len(pmt.Streams) != 2 || pmt.Streams[0] != want[0] || pmt.Streams[1] != want[1] {
		t.Errorf("streams = %+v, want %+v", pmt.Streams, want)
	}
}

func TestDemuxerPES(t *testing.T) {
	t.Parallel()

	big := bytes.Repeat([]byte{0xAB}, 1000)
	w := tstest.NewWriter()
	w.Program(tstest.StreamTypeH264)
	w.PES(tstest.VideoPID, tstest.VideoStreamID, 90000, big, false)
	w.PES(tstest.AudioPID, tstest.AudioStreamID, 90000, []byte{1, 2, 3}, false)
	w.PES(tstest.VideoPID, tstest.VideoStreamID, 93600, []byte{4}, false)

	d := mpegts.NewDemuxer()
	units := feed(t, d, w.Bytes())
	var pes []*mpegts.Unit
	for _, u := range units {
		if u.PES != nil {
			pes = append(pes, u)
		}
	}
	// The audio PES is bounded but only a following start closes it.
	if len(pes) != 1 {
		t.Fatalf("got %d PES units before flush, want 1", len(pes))
	}
	if pes[0].PID != tstest.VideoPID || pes[0].PES.PTS != 90000 || !bytes.Equal(pes[0].PES.Data, big) {
		t.Errorf("video unit pid %d pts %d len %d", pes[0].PID, pes[0].PES.PTS, len(pes[0].PES.Data))
	}
	if !pes[0].Start.PayloadStart {
		t.Error("unit start header lacks payload_unit_start")
	}

	rest := d.Flush()
	if len(rest) != 2 {
		t.Fatalf("flush returned %d units, want 2", len(rest))
	}
	if rest[0].PID != tstest.VideoPID || rest[0].PES.PTS != 93600 {
		t.Errorf("first flushed unit pid %d pts %d", rest[0].PID, rest[0].PES.PTS)
	}
	if rest[1].PID != tstest.AudioPID || !bytes.Equal(rest[1].PES.Data, []byte{1, 2, 3}) {
		t.Errorf("second flushed unit pid %d data %x", rest[1].PID, rest[1].PES.Data)
	}
	if again := d.Flush(); len(again) != 0 {
		t.Errorf("second flush returned %d units", len(again))
	}
}

func TestDemuxerResetKeepsProgram(t *testing.T) {
	t.Parallel()

	w := tstest.NewWriter()
	w.Program(tstest.StreamTypeH264)
	w.PES(tstest.VideoPID, tstest.VideoStreamID, 90000, []byte{1}, false)
	d := mpegts.NewDemuxer()
	feed(t, d, w.Bytes())
	d.Reset()
	if got := d.Flush(); len(got) != 0 {
		t.Fatalf("reset left %d units", len(got))
	}

	// A repeated PMT is still recognized without a new PAT.
	w = tstest.NewWriter()
	w.Program(tstest.StreamTypeH264)
	stream := w.Bytes()[mpegts.PacketSize:]
	units := feed(t, d, stream)
	if len(units) != 1 || units[0].PMT == nil {
		t.Fatalf("units = %+v, want one PMT", units)
	}
}

func TestDemuxerDiscontinuityFlag(t *testing.T) {
	t.Parallel()

	w := tstest.NewWriter()
	w.Program(tstest.StreamTypeH264)
	w.PES(tstest.VideoPID, tstest.VideoStreamID, 90000, []byte{1}, false)
	w.PES(tstest.VideoPID, tstest.VideoStreamID, 9000000, []byte{2}, true)

	d := mpegts.NewDemuxer()
	feed(t, d, w.Bytes())
	rest := d.Flush()
	if len(rest) != 1 || !rest[0].Start.Discontinuity || rest[0].PES.PTS != 9000000 {
		t.Fatalf("flushed %+v, want the discontinuous unit", rest)
	}
}

func TestDemuxerSkipsNullAndBadPackets(t *testing.T) {
	t.Parallel()

	d := mpegts.NewDemuxer()
	null := make([]byte, mpegts.PacketSize)
	null[0], null[1], null[2], null[3] = 0x47, 0x1F, 0xFF, 0x10
	units, err := d.Feed(null)
	if err != nil || units != nil {
		t.Errorf("null packet: %v, %v", units, err)
	}
	if _, err := d.Feed(null[:10]); err == nil {
		t.Error("short packet accepted")
	}
	if got := d.Flush(); len(got) != 0 {
		t.Errorf("flush after null packets returned %d units", len(got))
	}
}

func TestCRC32MatchesFixture(t *testing.T) {
	t.Parallel()

	for _, in := range [][]byte{nil, {0}, []byte("transport stream"), bytes.Repeat([]byte{0xFF}, 300)} {
		if got, want := mpegts.CRC32(in), tstest.CRC32(in); got != want {
			t.Errorf("CRC32(%x) = 0x%08X, want 0x%08X", in, got, want)
		}
	}
}

func FuzzDemuxer(f *testing.F) {
	w := tstest.NewWriter()
	w.Clip(3)
	stream := w.Bytes()
	for off := 0; off+mpegts.PacketSize <= len(stream); off += mpegts.PacketSize {
		f.Add(stream[off : off+mpegts.PacketSize])
	}

	f.Fuzz(func(t *testing.T, pkt []byte) {
		d := mpegts.NewDemuxer()
		for range 3 {
			d.Feed(pkt)
		}
		d.Flush()
	})
}
