package player

import (
	"errors"

	"github.com/zsiec/playcore/internal/media"
)

// flushDecoder starts flushing stream s. The companion stream, if idle,
// must reach its own discontinuity before the flush can complete, unless
// it has no working decoder or no more input.
func (p *Player) flushDecoder(s media.Stream, shutdown bool) {
	switch p.flushing[s] {
	case FlushNone, AwaitingDiscontinuity, Flushed:
	default:
		p.log.Warn("flush requested while flushing", "stream", s, "state", p.flushing[s])
		return
	}
	d := p.decoders[s]
	if d == nil {
		p.flushing[s] = Flushed
		return
	}

	// No scan may run until the flush is done.
	p.scanGen++
	p.scanPending = false

	d.SignalFlush()
	p.renderer.Flush(s)
	p.inputEnded[s] = false

	p.flushing[s] = Flushing
	if shutdown {
		p.flushing[s] = FlushingWithShutdown
	}
	o := s.Other()
	if p.flushing[o] == FlushNone {
		switch {
		case p.decoders[o] == nil || p.failed[o]:
			p.flushing[o] = Flushed
		case p.inputEnded[o]:
			// It stopped pulling before reaching its discontinuity, so it
			// is flushed now and resumes reading at that discontinuity.
			// A reset shuts it down instead.
			p.flushedAhead[o] = !p.resetInProgress
			p.flushDecoder(o, p.resetInProgress)
		default:
			p.flushing[o] = AwaitingDiscontinuity
		}
	}
	p.log.Info("flushing decoder", "stream", s, "shutdown", shutdown,
		"companion", o, "companion_state", p.flushing[o])
}

func (p *Player) onFlushCompleted(s media.Stream) {
	switch p.flushing[s] {
	case Flushing:
		p.flushing[s] = Flushed
	case FlushingWithShutdown:
		p.decoders[s].InitiateShutdown()
		p.flushing[s] = ShuttingDown
	default:
		p.log.Warn("unexpected flush completion", "stream", s, "state", p.flushing[s])
		return
	}
	if s == media.Video {
		p.videoLateUs = 0
	}
	p.log.Info("decoder flushed", "stream", s, "state", p.flushing[s])
	p.finishFlushIfPossible()
}

func (p *Player) onShutdownCompleted(s media.Stream) {
	if p.flushing[s] != ShuttingDown {
		p.log.Warn("unexpected shutdown completion", "stream", s, "state", p.flushing[s])
	}
	p.decoders[s] = nil
	p.flushing[s] = ShutDown
	p.inputEnded[s], p.failed[s], p.flushedAhead[s] = false, false, false
	p.log.Info("decoder shut down", "stream", s)
	if p.renderer != nil {
		p.renderer.SetStreams(p.decoders[media.Audio] != nil, p.decoders[media.Video] != nil)
	}
	p.finishFlushIfPossible()
}

// finishFlushIfPossible completes the flush once both streams caught up.
func (p *Player) finishFlushIfPossible() {
	if !p.flushing[media.Audio].caughtUp() || !p.flushing[media.Video].caughtUp() {
		return
	}
	p.log.Info("both streams flushed")

	if p.timeDiscontinuityPending && p.renderer != nil {
		p.renderer.SignalTimeDiscontinuity()
		p.timeDiscontinuityPending = false
	}
	for _, d := range p.decoders {
		if d != nil {
			d.SignalResume()
		}
	}
	p.flushing = [media.NumStreams]FlushState{}

	switch {
	case p.resetInProgress:
		p.finishReset()
	case p.resetPostponed:
		p.resetPostponed = false
		p.loop.Post(p.reset)
	case p.decoders[media.Audio] == nil || p.decoders[media.Video] == nil:
		p.postScanSources()
	}
}

func (p *Player) reset() {
	if p.renderer != nil {
		// A paused renderer holding every output slot keeps the awaiting
		// decoder from ever reaching its discontinuity.
		for _, st := range p.flushing {
			if st == AwaitingDiscontinuity {
				p.renderer.Resume()
				break
			}
		}
	}
	if p.flushing[media.Audio] != FlushNone || p.flushing[media.Video] != FlushNone {
		p.log.Info("reset postponed until the flush completes")
		p.resetPostponed = true
		return
	}
	if p.decoders[media.Audio] == nil && p.decoders[media.Video] == nil {
		p.finishReset()
		return
	}

	p.timeDiscontinuityPending = true
	p.resetInProgress = true
	for s, d := range p.decoders {
		// An ended companion is already shutting down with the first.
		if d != nil && !p.flushing[s].decoderBusy() {
			p.flushDecoder(media.Stream(s), true)
		}
	}
}

// finishReset releases the renderer and the source and reports the reset.
// Decoders are gone by the time it runs.
func (p *Player) finishReset() {
	p.scanGen++
	p.scanPending = false
	p.resetInProgress = false
	p.resetPostponed = false
	p.timeDiscontinuityPending = false

	if p.renderer != nil {
		p.renderer.Stop()
		p.renderer = nil
	}
	p.closeAudio()
	if p.src != nil {
		p.src.Stop()
		p.src = nil
		p.text = nil
	}
	p.started = false
	p.setBuffering(false)
	p.log.Info("reset complete")
	p.notify(func(l Listener) { l.ResetComplete() })
}

func (p *Player) seekTo(us int64) {
	if p.src == nil {
		p.log.Warn("seek without a source", "us", us)
		return
	}
	err := p.src.SeekTo(us)
	switch {
	case err == nil:
		p.log.Info("seeked", "us", us)
		p.restartEndedStreams()
	case errors.Is(err, media.ErrUnsupported):
		p.log.Warn("source cannot seek", "us", us)
	default:
		p.log.Error("seek failed", "us", us, "error", err)
		p.notify(func(l Listener) { l.Error(err) })
	}
	p.notify(func(l Listener) { l.SeekComplete() })
}

// restartEndedStreams flushes the decoders back into reading after a seek
// when every remaining stream had reached the end of its input. Otherwise
// the live stream's seek discontinuity brings the ended ones along.
func (p *Player) restartEndedStreams() {
	ended := -1
	for s, d := range p.decoders {
		if d == nil || p.failed[s] {
			continue
		}
		if !p.inputEnded[s] {
			return
		}
		if ended < 0 {
			ended = s
		}
	}
	if ended < 0 || p.flushing != ([media.NumStreams]FlushState{}) {
		return
	}
	p.completeSent = false
	p.timeDiscontinuityPending = true
	p.flushedAhead[ended] = true
	p.flushDecoder(media.Stream(ended), false)
}
