// Package player implements the playback orchestrator. A Player owns a
// source, one decoder per elementary stream and a renderer, answers the
// decoders' fill requests from the source, forwards decoded output to the
// renderer, and coordinates flushes across both streams when the source
// reports a discontinuity, a seek or a reset.
package player

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/zsiec/playcore/internal/codec"
	"github.com/zsiec/playcore/internal/decoder"
	"github.com/zsiec/playcore/internal/looper"
	"github.com/zsiec/playcore/internal/media"
	"github.com/zsiec/playcore/internal/renderer"
	"github.com/zsiec/playcore/internal/source"
)

// Config describes a Player. Zero values select the defaults noted on each
// field.
type Config struct {
	// Codecs maps stream formats to codecs. Default codec.DefaultRegistry.
	Codecs   *codec.Registry
	Listener Listener

	// LateFrameThreshold is the video lateness above which droppable
	// access units are discarded before decoding. Default 100ms.
	LateFrameThreshold time.Duration
	// ScanRetryDelay spaces source scans while a decoder is missing.
	// Default 50ms.
	ScanRetryDelay time.Duration
	// FillRetryDelay is how long a decoder waits before asking again when
	// the source is starved. Default 10ms.
	FillRetryDelay time.Duration
	// DeepBufferMinDuration is the content duration above which audio-only
	// playback opens the sink in deep-buffer mode. Default 5s.
	DeepBufferMinDuration time.Duration

	// Renderer pacing. See renderer.Config.
	PositionInterval time.Duration
	TooLate          time.Duration

	// Decoder slot pools. See decoder.Config.
	InputSlots  int
	OutputSlots int

	// AudioBuffers is passed to the audio sink on open. Default 8.
	AudioBuffers int

	Clock  clock.WithDelayedExecution
	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Codecs == nil {
		c.Codecs = codec.DefaultRegistry()
	}
	if c.Listener == nil {
		c.Listener = BaseListener{}
	}
	if c.LateFrameThreshold <= 0 {
		c.LateFrameThreshold = 100 * time.Millisecond
	}
	if c.ScanRetryDelay <= 0 {
		c.ScanRetryDelay = 50 * time.Millisecond
	}
	if c.FillRetryDelay <= 0 {
		c.FillRetryDelay = 10 * time.Millisecond
	}
	if c.DeepBufferMinDuration <= 0 {
		c.DeepBufferMinDuration = 5 * time.Second
	}
	if c.AudioBuffers <= 0 {
		c.AudioBuffers = 8
	}
	if c.Clock == nil {
		c.Clock = clock.RealClock{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Player is the playback orchestrator. Every exported method is
// asynchronous and safe for concurrent use; the work happens in order on
// the Player's own goroutine.
type Player struct {
	cfg      Config
	log      *slog.Logger
	loop     *looper.Looper
	notifier *looper.Looper

	// Owned by the loop goroutine.
	src         source.Source
	text        source.TextSource
	surface     renderer.VideoSurface
	scaling     renderer.ScalingMode
	audio       renderer.AudioSink
	audioOpen   bool
	renderer    *renderer.Renderer
	decoders    [media.NumStreams]*decoder.Decoder
	unsupported [media.NumStreams]bool
	started     bool

	// A stream whose input ended or whose codec failed no longer asks the
	// source for data until it is flushed.
	inputEnded [media.NumStreams]bool
	failed     [media.NumStreams]bool
	// flushedAhead marks a stream flushed along with its companion before
	// it dequeued its own discontinuity; that discontinuity is then
	// passed over.
	flushedAhead [media.NumStreams]bool

	flushing                 [media.NumStreams]FlushState
	timeDiscontinuityPending bool
	resetInProgress          bool
	resetPostponed           bool

	scanGen     uint64
	scanPending bool
	scans       int64

	skipUntil     [media.NumStreams]int64
	videoLateUs   int64
	framesTotal   int64
	framesDropped int64
	statsReported [2]int64

	positionUs   int64
	durationSent bool
	buffering    bool
	completeSent bool
}

// New returns an idle Player. Give it a source with SetSource and outputs
// with SetVideoSurface and SetAudioSink, then call Start.
func New(cfg Config) *Player {
	cfg.setDefaults()
	log := cfg.Logger.With("component", "player")
	p := &Player{
		cfg:      cfg,
		log:      log,
		loop:     looper.New("player", cfg.Clock, log),
		notifier: looper.New("player-notify", cfg.Clock, log),
	}
	p.skipUntil = [media.NumStreams]int64{-1, -1}
	return p
}

// notify delivers a notification to the Listener on the notifier goroutine.
func (p *Player) notify(fn func(Listener)) {
	p.notifier.Post(func() { fn(p.cfg.Listener) })
}

// SetSource attaches the source to play. It must be called before Start,
// and again after every ResetComplete.
func (p *Player) SetSource(src source.Source) {
	p.loop.Post(func() {
		if p.src != nil {
			p.log.Warn("source already set")
			return
		}
		p.src = src
		p.text, _ = src.(source.TextSource)
	})
}

// SetVideoSurface attaches the video output. Without one, video is not
// decoded.
func (p *Player) SetVideoSurface(s renderer.VideoSurface) {
	p.loop.Post(func() {
		p.surface = s
		if s != nil {
			p.applyScalingMode()
		}
		if p.started {
			p.postScanSources()
		}
	})
}

// SetAudioSink attaches the audio output. Without one, audio is not
// decoded.
func (p *Player) SetAudioSink(a renderer.AudioSink) {
	p.loop.Post(func() {
		p.audio = a
		if p.started {
			p.postScanSources()
		}
	})
}

// SetVideoScalingMode selects how video is fitted to the surface.
func (p *Player) SetVideoScalingMode(m renderer.ScalingMode) {
	p.loop.Post(func() {
		p.scaling = m
		if p.surface != nil {
			p.applyScalingMode()
		}
	})
}

func (p *Player) applyScalingMode() {
	if err := p.surface.SetScalingMode(p.scaling); err != nil {
		p.log.Warn("setting scaling mode", "mode", p.scaling, "error", err)
	}
}

// Start begins playback of the attached source. The outputs attached at
// this point are the ones the renderer presents to.
func (p *Player) Start() {
	p.loop.Post(p.start)
}

func (p *Player) start() {
	if p.src == nil {
		p.log.Warn("start without a source")
		return
	}
	if p.started {
		return
	}
	p.started = true
	p.skipUntil = [media.NumStreams]int64{-1, -1}
	p.videoLateUs = 0
	p.framesTotal, p.framesDropped = 0, 0
	p.statsReported = [2]int64{}
	p.positionUs = 0
	p.durationSent = false
	p.completeSent = false
	p.unsupported = [media.NumStreams]bool{}
	p.inputEnded = [media.NumStreams]bool{}
	p.failed = [media.NumStreams]bool{}
	p.flushedAhead = [media.NumStreams]bool{}

	p.src.Start()
	var r *renderer.Renderer
	r = renderer.New(renderer.Config{
		Audio:            p.audio,
		Video:            p.surface,
		PositionInterval: p.cfg.PositionInterval,
		TooLate:          p.cfg.TooLate,
		Clock:            p.cfg.Clock,
		Logger:           p.cfg.Logger,
		Notify: func(e renderer.Event) {
			p.loop.Post(func() {
				if p.renderer == r {
					p.onRendererEvent(e)
				}
			})
		},
	})
	p.renderer = r
	p.log.Info("started")
	p.postScanSources()
}

// Pause holds presentation. Decoding continues until the output slots
// fill up.
func (p *Player) Pause() {
	p.loop.Post(func() {
		if p.renderer != nil {
			p.renderer.Pause()
		}
	})
}

// Resume continues presentation after Pause.
func (p *Player) Resume() {
	p.loop.Post(func() {
		if p.renderer != nil {
			p.renderer.Resume()
		}
	})
}

// SeekTo repositions the source. The source queues a seek discontinuity
// on each stream, which drives the flush; SeekComplete is reported as
// soon as the source has repositioned.
func (p *Player) SeekTo(us int64) {
	p.loop.Post(func() { p.seekTo(us) })
}

// Reset tears playback down: decoders are shut down, then the renderer and
// the source are released, then ResetComplete is reported. A reset
// requested while a flush is underway runs once the flush completes;
// repeated requests coalesce.
func (p *Player) Reset() {
	p.loop.Post(p.reset)
}

// Close releases everything without waiting for flushes and stops the
// Player. No notification follows.
func (p *Player) Close() {
	p.loop.Post(func() {
		p.scanGen++
		for s, d := range p.decoders {
			if d != nil {
				d.InitiateShutdown()
				p.decoders[s] = nil
			}
		}
		if p.renderer != nil {
			p.renderer.Stop()
			p.renderer = nil
		}
		if p.src != nil {
			p.src.Stop()
			p.src = nil
		}
		p.closeAudio()
		p.loop.Stop()
		p.notifier.Post(p.notifier.Stop)
	})
}

// Done is closed once the Player has closed and every pending
// notification was delivered.
func (p *Player) Done() <-chan struct{} { return p.notifier.Done() }

// Snapshot describes the orchestrator's state.
type Snapshot struct {
	Started         bool
	Flushing        [media.NumStreams]FlushState
	Decoders        [media.NumStreams]bool
	InputEnded      [media.NumStreams]bool
	Failed          [media.NumStreams]bool
	ScanGeneration  uint64
	ScanPending     bool
	Scans           int64
	FramesTotal     int64
	FramesDropped   int64
	VideoLateUs     int64
	PositionUs      int64
	Buffering       bool
	ResetInProgress bool
	ResetPostponed  bool
}

// Snapshot returns the current state, read on the Player goroutine.
func (p *Player) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := p.loop.Call(ctx, func() {
		s = Snapshot{
			Started:         p.started,
			Flushing:        p.flushing,
			ScanGeneration:  p.scanGen,
			ScanPending:     p.scanPending,
			Scans:           p.scans,
			FramesTotal:     p.framesTotal,
			FramesDropped:   p.framesDropped,
			VideoLateUs:     p.videoLateUs,
			PositionUs:      p.positionUs,
			Buffering:       p.buffering,
			ResetInProgress: p.resetInProgress,
			ResetPostponed:  p.resetPostponed,
			InputEnded:      p.inputEnded,
			Failed:          p.failed,
		}
		for i, d := range p.decoders {
			s.Decoders[i] = d != nil
		}
	})
	return s, err
}
