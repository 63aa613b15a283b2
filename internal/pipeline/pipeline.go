// Package pipeline runs one playback session: a transport stream origin
// read into a ts Source, played by a Player into discard sinks, while
// collecting the Player's notifications into a stats snapshot.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zsiec/playcore/internal/media"
	"github.com/zsiec/playcore/internal/player"
	"github.com/zsiec/playcore/internal/sink"
	"github.com/zsiec/playcore/internal/source/ts"
)

// Config describes a Pipeline. The pipeline sets the player's Listener and
// the loggers of both the player and the source.
type Config struct {
	// ID names the session in logs and snapshots. Default a new uuid.
	ID     string
	Player player.Config
	Source ts.Config
	// ResetTimeout bounds the wait for ResetComplete when Run is
	// cancelled. Default 5s.
	ResetTimeout time.Duration
	Logger       *slog.Logger
}

// Snapshot is a point-in-time view of a session, suitable for JSON.
type Snapshot struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Protocol  string `json:"protocol,omitempty"`
	StartedAt int64  `json:"startedAt"`
	UptimeMs  int64  `json:"uptimeMs"`

	PositionUs int64 `json:"positionUs"`
	DurationUs int64 `json:"durationUs"`
	Paused     bool  `json:"paused"`
	Buffering  bool  `json:"buffering"`
	Complete   bool  `json:"complete"`
	Rendering  bool  `json:"rendering"`

	Width         int   `json:"width"`
	Height        int   `json:"height"`
	FramesTotal   int64 `json:"framesTotal"`
	FramesDropped int64 `json:"framesDropped"`
	Presented     int64 `json:"presented"`
	Keyframes     int64 `json:"keyframes"`
	AudioBuffers  int64 `json:"audioBuffers"`
	AudioBytes    int64 `json:"audioBytes"`

	Captions    int64  `json:"captions"`
	LastCaption string `json:"lastCaption,omitempty"`
	Seeks       int64  `json:"seeks"`
	Errors      int64  `json:"errors"`
	LastError   string `json:"lastError,omitempty"`
}

// Pipeline binds one origin to one Player.
type Pipeline struct {
	ID        string
	Key       string
	StartedAt time.Time

	log    *slog.Logger
	cfg    Config
	origin io.Reader
	player *player.Player
	audio  *sink.DiscardAudio
	video  *sink.CountingSurface

	complete     chan struct{}
	completeOnce sync.Once
	resetDone    chan struct{}
	resetOnce    sync.Once
	fatal        chan error

	mu   sync.Mutex
	snap Snapshot
}

// New creates a Pipeline that plays origin once Run is called. The origin
// is closed when the session ends if it implements io.Closer.
func New(key string, origin io.Reader, cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 5 * time.Second
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	base := cfg.Logger.With("session", id, "key", key)
	log := base.With("component", "pipeline")

	p := &Pipeline{
		ID:        id,
		Key:       key,
		StartedAt: time.Now(),
		log:       log,
		origin:    origin,
		audio:     &sink.DiscardAudio{},
		video:     &sink.CountingSurface{},
		complete:  make(chan struct{}),
		resetDone: make(chan struct{}),
		fatal:     make(chan error, 1),
	}
	p.snap.ID = id
	p.snap.Key = key

	cfg.Player.Listener = &events{p: p}
	cfg.Player.Logger = base
	cfg.Source.Logger = base
	p.cfg = cfg
	p.player = player.New(cfg.Player)
	return p
}

// SetProtocol records the ingest protocol name (e.g. "SRT") for the
// snapshot.
func (p *Pipeline) SetProtocol(proto string) {
	p.mu.Lock()
	p.snap.Protocol = proto
	p.mu.Unlock()
}

// Run plays the origin. It returns nil once playback completes or ctx is
// cancelled, and the error that ended the session otherwise. On
// cancellation the player is reset before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	p.player.SetSource(ts.New(p.origin, p.cfg.Source))
	p.player.SetAudioSink(p.audio)
	p.player.SetVideoSurface(p.video)
	p.player.Start()
	p.log.Info("session started")
	defer p.close()

	select {
	case <-p.complete:
		p.log.Info("playback complete")
		return nil
	case err := <-p.fatal:
		p.log.Error("session failed", "error", err)
		return err
	case <-ctx.Done():
	}

	p.player.Reset()
	t := time.NewTimer(p.cfg.ResetTimeout)
	defer t.Stop()
	select {
	case <-p.resetDone:
		p.log.Info("session reset")
	case <-t.C:
		p.log.Warn("reset did not complete", "timeout", p.cfg.ResetTimeout)
	}
	return nil
}

func (p *Pipeline) close() {
	p.player.Close()
	select {
	case <-p.player.Done():
	case <-time.After(p.cfg.ResetTimeout):
		p.log.Warn("player did not stop", "timeout", p.cfg.ResetTimeout)
	}
	p.log.Info("session ended")
}

// Pause holds presentation.
func (p *Pipeline) Pause() {
	p.player.Pause()
	p.mu.Lock()
	p.snap.Paused = true
	p.mu.Unlock()
}

// Resume continues presentation after Pause.
func (p *Pipeline) Resume() {
	p.player.Resume()
	p.mu.Lock()
	p.snap.Paused = false
	p.mu.Unlock()
}

// SeekTo repositions playback to us microseconds.
func (p *Pipeline) SeekTo(us int64) {
	p.log.Info("seek requested", "us", us)
	p.player.SeekTo(us)
}

// Snapshot returns the session's current stats.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	s := p.snap
	p.mu.Unlock()

	s.StartedAt = p.StartedAt.UnixMilli()
	s.UptimeMs = time.Since(p.StartedAt).Milliseconds()
	s.Presented, s.Keyframes = p.video.Frames()
	s.AudioBuffers, s.AudioBytes = p.audio.Written()
	return s
}

// Debug returns the player's internal state.
func (p *Pipeline) Debug(ctx context.Context) (player.Snapshot, error) {
	return p.player.Snapshot(ctx)
}

// isFatal reports whether err ends the session. Codec failures and
// unsupported streams only take their own stream down.
func isFatal(err error) bool {
	var ce *media.CodecError
	return !errors.Is(err, media.ErrUnsupported) && !errors.As(err, &ce)
}

// events receives the Player's notifications on its notifier goroutine.
type events struct {
	player.BaseListener
	p *Pipeline
}

func (e *events) update(fn func(s *Snapshot)) {
	e.p.mu.Lock()
	fn(&e.p.snap)
	e.p.mu.Unlock()
}

func (e *events) PositionUpdate(us int64) {
	e.update(func(s *Snapshot) { s.PositionUs = us })
}

func (e *events) DurationKnown(us int64) {
	e.update(func(s *Snapshot) { s.DurationUs = us })
}

func (e *events) FrameStats(total, dropped int64) {
	e.update(func(s *Snapshot) { s.FramesTotal, s.FramesDropped = total, dropped })
}

func (e *events) VideoSizeChanged(w, h int) {
	e.update(func(s *Snapshot) { s.Width, s.Height = w, h })
}

func (e *events) BufferingStateChanged(buffering bool) {
	e.update(func(s *Snapshot) { s.Buffering = buffering })
}

func (e *events) RenderingStart() {
	e.update(func(s *Snapshot) { s.Rendering = true })
}

func (e *events) TimedText(cue media.TextCue) {
	e.p.log.Debug("caption", "pts", cue.PTS, "channel", cue.Channel, "text", cue.Text)
	e.update(func(s *Snapshot) {
		s.Captions++
		s.LastCaption = cue.Text
	})
}

func (e *events) SeekComplete() {
	e.update(func(s *Snapshot) { s.Seeks++ })
}

func (e *events) PlaybackComplete() {
	e.update(func(s *Snapshot) { s.Complete = true })
	e.p.completeOnce.Do(func() { close(e.p.complete) })
}

func (e *events) ResetComplete() {
	e.p.resetOnce.Do(func() { close(e.p.resetDone) })
}

func (e *events) Error(err error) {
	e.update(func(s *Snapshot) {
		s.Errors++
		s.LastError = err.Error()
	})
	if !isFatal(err) {
		e.p.log.Warn("stream failed", "error", err)
		return
	}
	select {
	case e.p.fatal <- err:
	default:
	}
}
