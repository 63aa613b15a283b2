// Package renderer paces decoded buffers to the audio sink and video
// surface by presentation time, and reports the playback clock, video
// lateness and end of stream.
package renderer

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/zsiec/playcore/internal/looper"
	"github.com/zsiec/playcore/internal/media"
)

// Notify receives renderer events on the renderer's goroutine. It must not
// block.
type Notify func(Event)

// Config describes a Renderer.
type Config struct {
	Audio AudioSink
	Video VideoSurface

	// PositionInterval is the period of Position events. Default 100ms.
	PositionInterval time.Duration
	// TooLate is how late a video frame may be and still be presented.
	// Later frames are skipped. Default 40ms.
	TooLate time.Duration

	Clock  clock.WithDelayedExecution
	Logger *slog.Logger
	Notify Notify
}

type pending struct {
	buf *media.Buffer
	ack *media.Ack
}

type streamState struct {
	active      bool
	queue       []pending
	eos         bool
	eosErr      error
	eosNotified bool
}

// Stats counts rendered buffers.
type Stats struct {
	VideoPresented int64
	VideoSkipped   int64
	AudioWritten   int64
}

// Renderer is an actor; all exported methods are asynchronous and safe
// for concurrent use.
type Renderer struct {
	cfg  Config
	loop *looper.Looper
	clk  clock.WithDelayedExecution
	log  *slog.Logger

	// Owned by the looper goroutine.
	streams        [media.NumStreams]streamState
	paused         bool
	pausedAt       time.Time
	anchored       bool
	anchorMediaUs  int64
	anchorReal     time.Time
	drainGen       uint64
	wakeAt         time.Time
	videoLateUs    int64
	renderingStart bool
	allEOSSent     bool
	stats          Stats
}

// New starts a renderer.
func New(cfg Config) *Renderer {
	if cfg.PositionInterval <= 0 {
		cfg.PositionInterval = 100 * time.Millisecond
	}
	if cfg.TooLate <= 0 {
		cfg.TooLate = 40 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	log := cfg.Logger.With("component", "renderer")
	r := &Renderer{
		cfg:  cfg,
		loop: looper.New("renderer", cfg.Clock, log),
		clk:  cfg.Clock,
		log:  log,
	}
	r.loop.Post(r.schedulePosition)
	return r
}

func (r *Renderer) emit(e Event) {
	if r.cfg.Notify != nil {
		r.cfg.Notify(e)
	}
}

// SetStreams declares which streams take part in playback. AllEOS waits
// for every active stream.
func (r *Renderer) SetStreams(audio, video bool) {
	r.loop.Post(func() {
		r.streams[media.Audio].active = audio
		r.streams[media.Video].active = video
	})
}

// QueueBuffer schedules b for presentation. ack is released once the
// buffer was presented, skipped or flushed.
func (r *Renderer) QueueBuffer(s media.Stream, b *media.Buffer, ack *media.Ack) {
	r.loop.Post(func() {
		st := &r.streams[s]
		if st.eos {
			ack.Release()
			return
		}
		st.queue = append(st.queue, pending{buf: b, ack: ack})
		r.drain()
	})
}

// QueueEOS marks the end of stream s. err is nil for a normal end.
func (r *Renderer) QueueEOS(s media.Stream, err error) {
	r.loop.Post(func() {
		st := &r.streams[s]
		if st.eos {
			return
		}
		st.eos, st.eosErr = true, err
		r.drain()
	})
}

// Flush drops the queued buffers of s and clears its end of stream.
// FlushComplete follows.
func (r *Renderer) Flush(s media.Stream) {
	r.loop.Post(func() {
		st := &r.streams[s]
		for _, p := range st.queue {
			p.ack.Release()
		}
		st.queue = nil
		st.eos, st.eosErr, st.eosNotified = false, nil, false
		r.allEOSSent = false
		if s == media.Video {
			r.videoLateUs = 0
		}
		r.drainGen++
		r.wakeAt = time.Time{}
		r.log.Debug("flushed", "stream", s)
		r.emit(FlushComplete{Stream: s})
		r.drain()
	})
}

// Pause stops presentation and the clock.
func (r *Renderer) Pause() {
	r.loop.Post(func() {
		if r.paused {
			return
		}
		r.paused = true
		r.pausedAt = r.clk.Now()
		r.drainGen++
		r.wakeAt = time.Time{}
	})
}

// Resume restarts presentation where Pause stopped it.
func (r *Renderer) Resume() {
	r.loop.Post(func() {
		if !r.paused {
			return
		}
		r.paused = false
		if r.anchored {
			r.anchorReal = r.anchorReal.Add(r.clk.Since(r.pausedAt))
		}
		r.drain()
	})
}

// SignalTimeDiscontinuity re-anchors the clock on the next buffer.
func (r *Renderer) SignalTimeDiscontinuity() {
	r.loop.Post(r.reanchor)
}

// SignalAudioSinkChanged re-anchors the clock after the sink was reopened.
func (r *Renderer) SignalAudioSinkChanged() {
	r.loop.Post(r.reanchor)
}

func (r *Renderer) reanchor() {
	r.anchored = false
	r.drainGen++
	r.wakeAt = time.Time{}
	r.drain()
}

// Stats returns presentation counters, read on the renderer goroutine.
func (r *Renderer) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.loop.Call(ctx, func() { s = r.stats })
	return s, err
}

// Stop releases every queued buffer and ends the renderer's goroutine.
func (r *Renderer) Stop() {
	r.loop.Post(func() {
		for i := range r.streams {
			for _, p := range r.streams[i].queue {
				p.ack.Release()
			}
			r.streams[i].queue = nil
		}
		r.loop.Stop()
	})
}

// Done is closed once the renderer has stopped.
func (r *Renderer) Done() <-chan struct{} { return r.loop.Done() }

func (r *Renderer) dueAt(ptsUs int64) time.Time {
	return r.anchorReal.Add(time.Duration(ptsUs-r.anchorMediaUs) * time.Microsecond)
}

// drain presents every buffer that is due and schedules a wakeup for the
// earliest one that is not.
func (r *Renderer) drain() {
	if r.paused {
		return
	}
	var next time.Time
	for i := range r.streams {
		s := media.Stream(i)
		st := &r.streams[i]
		for len(st.queue) > 0 {
			head := st.queue[0]
			if !r.anchored {
				r.anchored = true
				r.anchorMediaUs = head.buf.PTS
				r.anchorReal = r.clk.Now()
			}
			due := r.dueAt(head.buf.PTS)
			if wait := due.Sub(r.clk.Now()); wait > 0 {
				if next.IsZero() || due.Before(next) {
					next = due
				}
				break
			}
			st.queue[0] = pending{}
			st.queue = st.queue[1:]
			r.render(s, head, due)
		}
		if len(st.queue) == 0 && st.eos && !st.eosNotified {
			st.eosNotified = true
			r.log.Debug("end of stream", "stream", s, "error", st.eosErr)
			r.emit(EOS{Stream: s, Err: st.eosErr})
			r.checkAllEOS()
		}
	}
	if !next.IsZero() && (r.wakeAt.IsZero() || next.Before(r.wakeAt)) {
		r.wakeAt = next
		gen := r.drainGen
		r.loop.PostDelayed(next.Sub(r.clk.Now()), func() {
			if gen != r.drainGen {
				return
			}
			r.wakeAt = time.Time{}
			r.drain()
		})
	}
}

func (r *Renderer) render(s media.Stream, p pending, due time.Time) {
	defer p.ack.Release()

	if s == media.Audio {
		if r.cfg.Audio != nil {
			if err := r.cfg.Audio.Write(p.buf); err != nil {
				r.log.Warn("audio write failed", "error", err)
			}
		}
		r.stats.AudioWritten++
		return
	}

	late := r.clk.Since(due)
	r.videoLateUs = late.Microseconds()
	if late > r.cfg.TooLate {
		r.stats.VideoSkipped++
		r.log.Debug("skipping late frame", "pts", p.buf.PTS, "late", late)
		return
	}
	if r.cfg.Video != nil {
		if err := r.cfg.Video.Present(p.buf); err != nil {
			r.log.Warn("present failed", "error", err)
		}
	}
	r.stats.VideoPresented++
	if !r.renderingStart {
		r.renderingStart = true
		r.emit(RenderingStart{})
	}
}

func (r *Renderer) checkAllEOS() {
	if r.allEOSSent {
		return
	}
	for _, st := range r.streams {
		if st.active && !st.eosNotified {
			return
		}
	}
	r.allEOSSent = true
	r.emit(AllEOS{})
}

func (r *Renderer) schedulePosition() {
	r.loop.PostDelayed(r.cfg.PositionInterval, func() {
		if !r.paused && r.anchored {
			now := r.clk.Now()
			mediaUs := r.anchorMediaUs + now.Sub(r.anchorReal).Microseconds()
			r.emit(Position{MediaTimeUs: mediaUs, VideoLateUs: r.videoLateUs})
		}
		r.schedulePosition()
	})
}
