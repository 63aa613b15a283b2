// Package ts implements a Source over an MPEG transport stream origin: a
// file, a pipe fed by an ingest listener, or any other byte stream.
package ts

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/zsiec/playcore/internal/demux"
	"github.com/zsiec/playcore/internal/media"
	"github.com/zsiec/playcore/internal/mpegts"
	"github.com/zsiec/playcore/internal/source"
)

// Elementary stream types this source selects from a PMT.
const (
	streamTypeAAC  = 0x0F
	streamTypeH264 = 0x1B
	streamTypeH265 = 0x24
)

// legacyMarker is the first byte of an in-band control packet that
// signals a discontinuity in place of a transport packet.
const legacyMarker = 0x00

// Config tunes a Source. Zero values select defaults.
type Config struct {
	// PacketsPerFeed bounds the work done by one FeedMoreData call.
	PacketsPerFeed int
	// ReadAhead is the number of packets buffered by the reader goroutine.
	ReadAhead int
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.PacketsPerFeed <= 0 {
		c.PacketsPerFeed = 50
	}
	if c.ReadAhead <= 0 {
		c.ReadAhead = 512
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type track struct {
	stream    media.Stream
	pid       uint16
	mime      string
	video     *demux.VideoParser
	audio     *demux.AudioParser
	queue     *source.PacketQueue
	published bool
}

// Source demultiplexes a transport stream read by a background goroutine.
// Apart from the reader goroutine all methods run on the caller's
// goroutine, which must be the same for every call.
type Source struct {
	cfg    Config
	log    *slog.Logger
	origin io.Reader
	seeker io.ReadSeeker

	rd      *reader
	started bool
	stopped bool
	final   error

	demux  *mpegts.Demuxer
	pcrPID uint16
	tracks [media.NumStreams]*track
	queues [media.NumStreams]*source.PacketQueue

	basePTS    int64
	probed     probeResult
	durationUs int64

	texts []media.TextCue
}

var (
	_ source.Source     = (*Source)(nil)
	_ source.TextSource = (*Source)(nil)
)

// New returns a Source reading origin. If origin implements io.ReadSeeker
// the source measures its duration at Start and supports SeekTo. If it
// implements io.Closer it is closed by Stop.
func New(origin io.Reader, cfg Config) *Source {
	cfg.defaults()
	s := &Source{
		cfg:     cfg,
		log:     cfg.Logger.With("component", "ts-source"),
		origin:  origin,
		demux:   mpegts.NewDemuxer(),
		basePTS: -1,
	}
	if rs, ok := origin.(io.ReadSeeker); ok {
		s.seeker = rs
	}
	for i := range s.queues {
		s.queues[i] = source.NewPacketQueue(media.Stream(i))
	}
	return s
}

// Start probes a seekable origin and starts the reader goroutine.
func (s *Source) Start() {
	if s.started || s.stopped {
		return
	}
	s.started = true

	if s.seeker != nil {
		res, err := probe(s.seeker)
		if err != nil {
			s.log.Warn("duration probe failed", "error", err)
			s.seeker = nil
		} else {
			s.probed = res
			s.durationUs = res.durationUs()
			if res.firstPTS >= 0 {
				s.basePTS = res.firstPTS
			}
			s.log.Debug("probed origin", "bytes", res.size, "duration_us", s.durationUs)
		}
	}
	s.rd = startReader(s.origin, s.cfg.ReadAhead)
}

// Stop halts the reader and closes the origin if it is an io.Closer.
func (s *Source) Stop() {
	if s.stopped {
		return
	}
	s.stopped = true
	if s.rd != nil {
		s.rd.halt()
	}
	if c, ok := s.origin.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.log.Debug("close origin", "error", err)
		}
	}
}

// FeedMoreData processes up to PacketsPerFeed packets that the reader has
// already buffered. The final result is reported by the call after the one
// that processed the last packet.
func (s *Source) FeedMoreData() error {
	if s.final != nil {
		return s.final
	}
	if !s.started || s.stopped {
		return media.ErrWouldBlock
	}

	processed := 0
	for processed < s.cfg.PacketsPerFeed {
		select {
		case buf, ok := <-s.rd.packets:
			if !ok {
				s.finish(s.rd.err)
				if processed > 0 {
					return nil
				}
				return s.final
			}
			s.processPacket(buf)
			processed++
		default:
			if processed == 0 {
				return media.ErrWouldBlock
			}
			return nil
		}
	}
	return nil
}

func (s *Source) finish(err error) {
	s.drainPartial()
	if err != nil {
		s.final = fmt.Errorf("ts: read: %w", err)
	} else {
		s.final = media.ErrEndOfStream
	}
	for _, q := range s.queues {
		q.SignalEOS(s.final)
	}
	s.log.Debug("origin ended", "result", s.final)
}

// Format returns the format of the units about to be dequeued from s.
func (s *Source) Format(st media.Stream) *media.Format {
	if s.tracks[st] == nil {
		return nil
	}
	return s.queues[st].Format()
}

// DequeueAccessUnit pops the next unit or marker of stream st.
func (s *Source) DequeueAccessUnit(st media.Stream) (*media.AccessUnit, error) {
	return s.queues[st].Dequeue()
}

// DurationUs returns the duration measured at Start.
func (s *Source) DurationUs() (int64, bool) {
	return s.durationUs, s.durationUs > 0
}

// DequeueText returns caption cues due at or before untilUs.
func (s *Source) DequeueText(untilUs int64) []media.TextCue {
	n := 0
	for n < len(s.texts) && s.texts[n].PTS <= untilUs {
		n++
	}
	if n == 0 {
		return nil
	}
	out := append([]media.TextCue(nil), s.texts[:n]...)
	s.texts = s.texts[n:]
	return out
}

// SeekTo repositions a seekable origin at the byte offset proportional to
// us and queues a seek discontinuity resuming at us on both streams.
func (s *Source) SeekTo(us int64) error {
	if s.seeker == nil || s.durationUs <= 0 {
		return fmt.Errorf("ts: seek: %w", media.ErrUnsupported)
	}
	if us < 0 {
		us = 0
	}
	if us > s.durationUs {
		us = s.durationUs
	}

	if s.rd != nil {
		s.rd.wait()
	}
	off := s.probed.size * us / s.durationUs
	off -= off % mpegts.PacketSize
	if _, err := s.seeker.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("ts: seek to %d: %w", off, err)
	}

	s.demux.Reset()
	s.final = nil
	s.texts = nil
	for i, q := range s.queues {
		q.Clear()
		if t := s.tracks[i]; t != nil {
			if t.video != nil {
				t.video.Reset()
			}
			q.QueueDiscontinuity(media.DiscontinuitySeek, us, nil)
		}
	}
	if s.started && !s.stopped {
		s.rd = startReader(s.origin, s.cfg.ReadAhead)
	}
	s.log.Debug("seek", "target_us", us, "offset", off)
	return nil
}

func (s *Source) processPacket(buf []byte) {
	if buf[0] == legacyMarker {
		s.handleLegacyMarker(buf)
		return
	}
	h, err := mpegts.ParseHeader(buf)
	if err != nil {
		s.log.Debug("dropping malformed packet", "error", err)
		return
	}
	if h.Discontinuity && h.PayloadStart && h.PID == s.pcrPID && s.pcrPID != 0 {
		// Units already started belong to the old timeline.
		s.drainPartial()
		s.log.Debug("clock discontinuity", "pid", h.PID)
		s.basePTS = -1
		s.queueDiscontinuity(media.DiscontinuityTime, media.NoResume)
	}

	units, err := s.demux.Feed(buf)
	if err != nil {
		s.log.Debug("dropping malformed packet", "error", err)
		return
	}
	for _, u := range units {
		s.handleUnit(u)
	}
}

// drainPartial emits the units the demuxer is still assembling.
func (s *Source) drainPartial() {
	for _, u := range s.demux.Flush() {
		s.handleUnit(u)
	}
}

// handleLegacyMarker decodes an in-band discontinuity: byte 1 holds the
// kind mask, zero meaning seek, and with bit 0x80 set bytes 2..9 carry a
// big-endian resume time in microseconds.
func (s *Source) handleLegacyMarker(buf []byte) {
	kind := media.DiscontinuityKind(buf[1] & 0x7F)
	if kind == 0 {
		kind = media.DiscontinuitySeek
	}
	resumeAt := media.NoResume
	if buf[1]&0x80 != 0 {
		resumeAt = int64(binary.BigEndian.Uint64(buf[2:10]))
	}
	s.log.Debug("in-band discontinuity", "kind", kind, "resume_at_us", resumeAt)

	s.drainPartial()
	s.queueDiscontinuity(kind, resumeAt)
}

func (s *Source) queueDiscontinuity(kind media.DiscontinuityKind, resumeAt int64) {
	for i, t := range s.tracks {
		if t == nil {
			continue
		}
		if t.video != nil {
			t.video.Reset()
		}
		s.queues[i].QueueDiscontinuity(kind, resumeAt, nil)
	}
}

func (s *Source) handleUnit(u *mpegts.Unit) {
	switch {
	case u.PMT != nil:
		s.handlePMT(u.PMT)
	case u.PES != nil:
		for _, t := range s.tracks {
			if t != nil && t.pid == u.PID {
				s.handlePES(t, u.PES)
				return
			}
		}
	}
}

func (s *Source) handlePMT(pmt *mpegts.PMT) {
	s.pcrPID = pmt.PCRPID

	var found [media.NumStreams]*mpegts.ElementaryStream
	for i := range pmt.Streams {
		es := &pmt.Streams[i]
		switch es.Type {
		case streamTypeH264, streamTypeH265:
			if found[media.Video] == nil {
				found[media.Video] = es
			}
		case streamTypeAAC:
			if found[media.Audio] == nil {
				found[media.Audio] = es
			}
		}
	}

	drained := false
	for i, es := range found {
		if es == nil {
			continue
		}
		st := media.Stream(i)
		mime := mimeForStreamType(es.Type)
		if t := s.tracks[st]; t != nil && t.pid == es.PID && t.mime == mime {
			continue
		}
		if s.tracks[st] != nil && !drained {
			// Finish units of the old stream before its parser goes away.
			s.drainPartial()
			drained = true
		}
		if err := s.selectTrack(st, es.PID, mime); err != nil {
			s.log.Warn("cannot select stream", "stream", st, "pid", es.PID, "error", err)
		}
	}
}

func mimeForStreamType(t uint8) string {
	switch t {
	case streamTypeH264:
		return media.MIMEVideoAVC
	case streamTypeH265:
		return media.MIMEVideoHEVC
	case streamTypeAAC:
		return media.MIMEAudioAAC
	}
	return ""
}

// selectTrack binds stream st to pid. A track that replaces an earlier one
// keeps its published state, so the first format of the new codec is
// announced through a format discontinuity.
func (s *Source) selectTrack(st media.Stream, pid uint16, mime string) error {
	t := &track{stream: st, pid: pid, mime: mime, queue: s.queues[st]}
	var err error
	if st == media.Video {
		t.video, err = demux.NewVideoParser(mime)
	} else {
		t.audio, err = demux.NewAudioParser(mime)
	}
	if err != nil {
		return err
	}
	if old := s.tracks[st]; old != nil {
		t.published = old.published
		s.log.Info("stream codec changed", "stream", st, "from", old.mime, "to", mime, "pid", pid)
	} else {
		s.log.Debug("selected stream", "stream", st, "mime", mime, "pid", pid)
	}
	s.tracks[st] = t
	return nil
}

func (s *Source) publish(t *track, f *media.Format) {
	if !t.published {
		t.published = true
		t.queue.SetFormat(f)
		s.log.Debug("format known", "stream", t.stream, "format", f)
		return
	}
	kind := media.DiscontinuityAudioFormat
	if t.stream == media.Video {
		kind = media.DiscontinuityVideoFormat
	}
	s.log.Debug("format changed", "stream", t.stream, "format", f)
	t.queue.QueueDiscontinuity(kind, media.NoResume, f)
}

func (s *Source) normalize(pts int64) int64 {
	if s.basePTS < 0 {
		s.basePTS = pts
	}
	return (pts - s.basePTS) * 1000000 / 90000
}

func (s *Source) handlePES(t *track, pes *mpegts.PES) {
	if !pes.HasPTS() {
		s.log.Debug("dropping PES without PTS", "stream", t.stream)
		return
	}
	pts := s.normalize(pes.PTS)

	if t.audio != nil {
		units, f, err := t.audio.Parse(pes.Data, pts)
		if err != nil {
			s.log.Debug("dropping audio PES", "error", err)
			return
		}
		if f != nil {
			s.publish(t, f)
		}
		if !t.published {
			return
		}
		for _, au := range units {
			t.queue.QueueAccessUnit(au)
		}
		return
	}

	vu, err := t.video.Parse(pes.Data, pts)
	if err != nil {
		s.log.Debug("dropping video PES", "error", err)
		return
	}
	if vu.Format != nil {
		s.publish(t, vu.Format)
	}
	if !t.published {
		return
	}
	t.queue.QueueAccessUnit(vu.AU)
	s.texts = append(s.texts, vu.Cues...)
}
