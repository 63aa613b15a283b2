package player

import (
	"errors"
	"fmt"

	"github.com/zsiec/playcore/internal/decoder"
	"github.com/zsiec/playcore/internal/media"
)

// postScanSources schedules a scan unless one is already pending.
func (p *Player) postScanSources() {
	if p.scanPending {
		return
	}
	p.scanPending = true
	gen := p.scanGen
	p.loop.Post(func() { p.scanSources(gen) })
}

// scanSources instantiates the decoders the attached outputs call for and
// pushes the source forward. It repeats every ScanRetryDelay while a
// wanted decoder is still missing. Bumping scanGen cancels it.
func (p *Player) scanSources(gen uint64) {
	if gen != p.scanGen {
		return
	}
	p.scanPending = false
	if !p.started || p.src == nil {
		return
	}
	p.scans++
	p.log.Debug("scanning sources",
		"audio", p.decoders[media.Audio] != nil, "video", p.decoders[media.Video] != nil)

	changed := false
	if p.surface != nil && p.instantiateDecoder(media.Video) {
		changed = true
	}
	if p.audio != nil && p.instantiateDecoder(media.Audio) {
		changed = true
	}
	if changed {
		p.renderer.SetStreams(p.decoders[media.Audio] != nil, p.decoders[media.Video] != nil)
	}
	p.checkDuration()

	err := p.src.FeedMoreData()
	p.setBuffering(errors.Is(err, media.ErrWouldBlock))
	if err != nil && !errors.Is(err, media.ErrWouldBlock) {
		if p.decoders[media.Audio] == nil && p.decoders[media.Video] == nil {
			// Nothing decodable was found before the input ran out.
			if errors.Is(err, media.ErrEndOfStream) {
				p.playbackComplete()
			} else {
				p.log.Error("source failed before any stream was found", "error", err)
				p.notify(func(l Listener) { l.Error(err) })
			}
		}
		return
	}

	if p.wantsDecoder(media.Video) || p.wantsDecoder(media.Audio) {
		p.scanPending = true
		p.loop.PostDelayed(p.cfg.ScanRetryDelay, func() { p.scanSources(gen) })
	}
}

// wantsDecoder reports whether stream s has an output but no decoder yet.
func (p *Player) wantsDecoder(s media.Stream) bool {
	if p.decoders[s] != nil || p.unsupported[s] {
		return false
	}
	if s == media.Video {
		return p.surface != nil
	}
	return p.audio != nil
}

// instantiateDecoder creates the decoder for s once the source knows its
// format. It reports whether a decoder was created.
func (p *Player) instantiateDecoder(s media.Stream) bool {
	if p.decoders[s] != nil || p.unsupported[s] {
		return false
	}
	f := p.src.Format(s)
	if f == nil {
		return false
	}
	c, err := p.cfg.Codecs.New(f)
	if err != nil {
		p.unsupported[s] = true
		p.log.Warn("no codec for stream", "stream", s, "format", f, "error", err)
		err = fmt.Errorf("player: %s: %w", s, err)
		p.notify(func(l Listener) { l.Error(err) })
		return false
	}

	d := decoder.New(decoder.Config{
		Stream:      s,
		Codec:       c,
		InputSlots:  p.cfg.InputSlots,
		OutputSlots: p.cfg.OutputSlots,
		Clock:       p.cfg.Clock,
		Logger:      p.cfg.Logger,
		Notify: func(d *decoder.Decoder, e decoder.Event) {
			p.loop.Post(func() { p.onDecoderEvent(d, e) })
		},
	})
	p.decoders[s] = d
	p.log.Info("decoder instantiated", "stream", s, "format", f)
	d.Configure(f)
	return true
}

func (p *Player) checkDuration() {
	if p.durationSent {
		return
	}
	if us, ok := p.src.DurationUs(); ok {
		p.durationSent = true
		p.notify(func(l Listener) { l.DurationKnown(us) })
	}
}

// setBuffering reports transitions of the source between starved and
// making progress.
func (p *Player) setBuffering(starved bool) {
	if starved == p.buffering {
		return
	}
	p.buffering = starved
	p.log.Debug("buffering state changed", "buffering", starved)
	p.notify(func(l Listener) { l.BufferingStateChanged(starved) })
}

func (p *Player) playbackComplete() {
	if p.completeSent {
		return
	}
	p.completeSent = true
	p.log.Info("playback complete")
	p.notify(func(l Listener) { l.PlaybackComplete() })
}
