package player

import (
	"errors"

	"github.com/zsiec/playcore/internal/decoder"
	"github.com/zsiec/playcore/internal/media"
	"github.com/zsiec/playcore/internal/renderer"
)

func (p *Player) onDecoderEvent(d *decoder.Decoder, e decoder.Event) {
	s := d.Stream()
	if p.decoders[s] != d {
		// A decoder that was released by Close or replaced after shutdown.
		switch e := e.(type) {
		case decoder.Drain:
			e.Ack.Release()
		case decoder.FillRequest:
			e.Reply(decoder.FillReply{Status: decoder.FillDiscontinuity})
		}
		return
	}

	switch e := e.(type) {
	case decoder.FillRequest:
		p.feedDecoder(s, e)
	case decoder.Drain:
		p.renderBuffer(s, e)
	case decoder.OutputFormatChanged:
		p.onOutputFormatChanged(s, e.Format)
	case decoder.EOS:
		if p.flushing[s].decoderBusy() {
			p.log.Debug("ignoring end of stream from flushing decoder", "stream", s)
			return
		}
		p.renderer.QueueEOS(s, e.Err)
	case decoder.FlushCompleted:
		p.onFlushCompleted(s)
	case decoder.ShutdownCompleted:
		p.onShutdownCompleted(s)
	case decoder.Error:
		p.log.Error("decoder failed", "stream", s, "error", e.Err)
		p.failed[s] = true
		p.flushedAhead[s] = false
		p.renderer.QueueEOS(s, e.Err)
		if p.flushing[s] == AwaitingDiscontinuity {
			// It will never reach the discontinuity its companion waits on.
			p.flushing[s] = Flushed
			p.finishFlushIfPossible()
		}
	}
}

// feedDecoder answers a fill request with the next access unit of s,
// applying the late-frame drop policy to video.
func (p *Player) feedDecoder(s media.Stream, req decoder.FillRequest) {
	for {
		if p.src == nil || p.flushing[s].decoderBusy() {
			req.Reply(decoder.FillReply{Status: decoder.FillDiscontinuity})
			return
		}

		au, err := p.src.DequeueAccessUnit(s)
		var disc *media.DiscontinuityError
		switch {
		case err == nil:
		case errors.Is(err, media.ErrWouldBlock):
			ferr := p.src.FeedMoreData()
			p.setBuffering(errors.Is(ferr, media.ErrWouldBlock))
			reply := decoder.FillReply{Status: decoder.FillTryLater}
			if ferr != nil {
				reply.RetryAfter = p.cfg.FillRetryDelay
			}
			req.Reply(reply)
			return
		case errors.As(err, &disc):
			if p.handleDiscontinuity(s, disc) {
				req.Reply(decoder.FillReply{Status: decoder.FillDiscontinuity})
				return
			}
			continue
		default:
			if p.flushing[s] == AwaitingDiscontinuity {
				// The stream ended before reaching the discontinuity its
				// companion is waiting on.
				p.flushing[s] = Flushed
				p.finishFlushIfPossible()
			}
			p.inputEnded[s] = true
			p.flushedAhead[s] = false
			p.log.Debug("input ended", "stream", s, "error", err)
			req.Reply(decoder.FillReply{Status: decoder.FillEOS, Err: err})
			return
		}

		if s == media.Video {
			p.framesTotal++
			if p.videoLateUs > p.cfg.LateFrameThreshold.Microseconds() && au.Droppable() {
				p.framesDropped++
				continue
			}
		}
		req.Reply(decoder.FillReply{Status: decoder.FillBuffer, Unit: au})
		return
	}
}

// handleDiscontinuity reacts to a discontinuity dequeued from stream s. It
// reports whether the decoder is being flushed; otherwise feeding
// continues with the next unit.
func (p *Player) handleDiscontinuity(s media.Stream, disc *media.DiscontinuityError) bool {
	formatChange := disc.Kind.FormatChanged(s)
	timeChange := disc.Kind.TimeChanged()
	p.log.Info("discontinuity", "stream", s, "kind", disc.Kind, "resume_at_us", disc.ResumeAtUs)

	p.skipUntil[s] = -1
	if timeChange && disc.ResumeAtUs >= 0 {
		p.log.Debug("suppressing rendering", "stream", s, "until_us", disc.ResumeAtUs)
		p.skipUntil[s] = disc.ResumeAtUs
	}

	// A stream flushed ahead already went through the flush this
	// discontinuity asks for.
	ahead := p.flushedAhead[s]
	p.flushedAhead[s] = false
	if formatChange || (timeChange && !ahead) {
		p.timeDiscontinuityPending = p.timeDiscontinuityPending || timeChange
		p.flushDecoder(s, formatChange)
		return true
	}

	// The stream is unaffected. If the companion is flushing, this stream
	// has caught up.
	if p.flushing[s] == AwaitingDiscontinuity {
		p.flushing[s] = Flushed
		p.finishFlushIfPossible()
	}
	return false
}

// renderBuffer hands a decoded buffer to the renderer, or returns it when
// the stream is flushing or still before its resume point.
func (p *Player) renderBuffer(s media.Stream, e decoder.Drain) {
	if p.flushing[s].decoderBusy() || p.renderer == nil {
		e.Ack.Release()
		return
	}
	if until := p.skipUntil[s]; until >= 0 {
		if e.Buffer.PTS < until {
			e.Ack.Release()
			return
		}
		p.skipUntil[s] = -1
	}
	p.renderer.QueueBuffer(s, e.Buffer, e.Ack)
}

func (p *Player) onOutputFormatChanged(s media.Stream, f *media.Format) {
	if s == media.Video {
		r := f.DisplayRect()
		w, h := r.Width(), r.Height()
		p.log.Info("video size changed", "width", w, "height", h)
		p.notify(func(l Listener) { l.VideoSizeChanged(w, h) })
		return
	}
	if p.audio == nil {
		return
	}

	mode := renderer.LowLatency
	if p.decoders[media.Video] == nil {
		if us, ok := p.src.DurationUs(); ok && us > p.cfg.DeepBufferMinDuration.Microseconds() {
			mode = renderer.DeepBuffer
		}
	}
	params := renderer.AudioParams{
		Mode:       mode,
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		Buffers:    p.cfg.AudioBuffers,
	}
	p.closeAudio()
	if err := p.audio.Open(params); err != nil {
		p.log.Error("opening audio sink", "params", params, "error", err)
		p.notify(func(l Listener) { l.Error(err) })
		return
	}
	p.audioOpen = true
	if err := p.audio.Start(); err != nil {
		p.log.Error("starting audio sink", "error", err)
		p.notify(func(l Listener) { l.Error(err) })
		return
	}
	p.log.Info("audio sink opened", "mode", mode, "rate", f.SampleRate, "channels", f.Channels)
	p.renderer.SignalAudioSinkChanged()
}

func (p *Player) closeAudio() {
	if !p.audioOpen {
		return
	}
	p.audioOpen = false
	if err := p.audio.Close(); err != nil {
		p.log.Warn("closing audio sink", "error", err)
	}
}

func (p *Player) onRendererEvent(e renderer.Event) {
	switch e := e.(type) {
	case renderer.Position:
		p.positionUs = e.MediaTimeUs
		p.videoLateUs = e.VideoLateUs
		p.notify(func(l Listener) { l.PositionUpdate(e.MediaTimeUs) })
		if stats := [2]int64{p.framesTotal, p.framesDropped}; stats != p.statsReported {
			p.statsReported = stats
			p.notify(func(l Listener) { l.FrameStats(stats[0], stats[1]) })
		}
		if p.text != nil {
			for _, cue := range p.text.DequeueText(e.MediaTimeUs) {
				p.notify(func(l Listener) { l.TimedText(cue) })
			}
		}
	case renderer.EOS:
		if e.Err != nil && !errors.Is(e.Err, media.ErrEndOfStream) {
			p.log.Error("stream ended with error", "stream", e.Stream, "error", e.Err)
			p.notify(func(l Listener) { l.Error(e.Err) })
		}
	case renderer.AllEOS:
		p.playbackComplete()
	case renderer.RenderingStart:
		p.notify(func(l Listener) { l.RenderingStart() })
	case renderer.FlushComplete:
		p.log.Debug("renderer flushed", "stream", e.Stream)
	}
}
