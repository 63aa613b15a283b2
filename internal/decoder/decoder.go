// Package decoder implements the per-stream decoder actor. A Decoder pulls
// access units from its owner through fill requests, runs them through a
// codec, and pushes decoded buffers back through drain events bounded by a
// fixed pool of output slots.
package decoder

import (
	"context"
	"errors"
	"log/slog"

	"k8s.io/utils/clock"

	"github.com/zsiec/playcore/internal/codec"
	"github.com/zsiec/playcore/internal/looper"
	"github.com/zsiec/playcore/internal/media"
)

// State is the decoder's lifecycle state.
type State int

const (
	StateConfigured State = iota
	StateRunning
	StateFlushRequested
	StateFlushed
	StateShutDown
	StateError
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateFlushRequested:
		return "flush-requested"
	case StateFlushed:
		return "flushed"
	case StateShutDown:
		return "shut-down"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Codec error codes reported in media.CodecError.
const (
	CodeConfigure = 1
	CodeDecode    = 2
	CodeDrain     = 3
)

// Notify receives decoder events on the decoder's goroutine. It must not
// block.
type Notify func(*Decoder, Event)

// Config describes a Decoder.
type Config struct {
	Stream media.Stream
	Codec  codec.Codec
	Notify Notify

	// InputSlots bounds outstanding fill requests. Default 4.
	InputSlots int
	// OutputSlots bounds drained buffers not yet acknowledged. Default 8.
	OutputSlots int

	Clock  clock.WithDelayedExecution
	Logger *slog.Logger
}

// Decoder is a codec wrapped in its own looper. All exported methods are
// asynchronous and safe for concurrent use.
type Decoder struct {
	stream media.Stream
	codec  codec.Codec
	notify Notify
	loop   *looper.Looper
	log    *slog.Logger

	inputSlots  int
	outputSlots int

	// Owned by the looper goroutine.
	state       State
	fillGen     uint64
	outstanding int
	inFlight    int
	inputPaused bool
	inputEOS    bool
	eosErr      error
	eosSent     bool
	failed      bool
	outFormat   *media.Format
}

// New starts a decoder in the configured state. Call Configure to begin.
func New(cfg Config) *Decoder {
	if cfg.InputSlots <= 0 {
		cfg.InputSlots = 4
	}
	if cfg.OutputSlots <= 0 {
		cfg.OutputSlots = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	log := cfg.Logger.With("component", "decoder", "stream", cfg.Stream)
	return &Decoder{
		stream:      cfg.Stream,
		codec:       cfg.Codec,
		notify:      cfg.Notify,
		loop:        looper.New("decoder-"+cfg.Stream.String(), cfg.Clock, log),
		log:         log,
		inputSlots:  cfg.InputSlots,
		outputSlots: cfg.OutputSlots,
	}
}

// Stream returns the stream this decoder serves.
func (d *Decoder) Stream() media.Stream { return d.stream }

// Done is closed once the decoder has shut down.
func (d *Decoder) Done() <-chan struct{} { return d.loop.Done() }

// State returns the current state, read on the decoder goroutine.
func (d *Decoder) State(ctx context.Context) (State, error) {
	var s State
	err := d.loop.Call(ctx, func() { s = d.state })
	return s, err
}

// Configure sets up the codec for f and starts requesting input. A codec
// that rejects f raises an Error event.
func (d *Decoder) Configure(f *media.Format) {
	d.loop.Post(func() { d.onConfigure(f) })
}

// SignalFlush discards in-flight input and output. FlushCompleted follows
// once every output slot has been acknowledged.
func (d *Decoder) SignalFlush() {
	d.loop.Post(d.onFlush)
}

// SignalResume re-arms input after a flush.
func (d *Decoder) SignalResume() {
	d.loop.Post(d.onResume)
}

// InitiateShutdown closes the codec. ShutdownCompleted follows and the
// decoder's goroutine exits.
func (d *Decoder) InitiateShutdown() {
	d.loop.Post(d.onShutdown)
}

func (d *Decoder) emit(e Event) {
	if d.notify != nil {
		d.notify(d, e)
	}
}

func (d *Decoder) onConfigure(f *media.Format) {
	if d.state != StateConfigured {
		d.log.Warn("configure in wrong state", "state", d.state)
		return
	}
	if err := d.codec.Configure(f); err != nil {
		d.fail(CodeConfigure, err)
		return
	}
	d.log.Info("configured", "format", f)
	d.state = StateRunning
	d.checkOutputFormat()
	d.requestFills()
}

func (d *Decoder) checkOutputFormat() {
	f := d.codec.OutputFormat()
	if f == nil || f.Equal(d.outFormat) {
		return
	}
	d.outFormat = f
	d.emit(OutputFormatChanged{Format: f})
}

// requestFills issues fill requests until every input slot is outstanding.
// Input stops while all output slots are held downstream.
func (d *Decoder) requestFills() {
	for d.state == StateRunning && !d.failed && !d.inputPaused && !d.inputEOS &&
		d.outstanding < d.inputSlots && d.inFlight < d.outputSlots {
		d.outstanding++
		gen := d.fillGen
		d.emit(FillRequest{Reply: func(r FillReply) {
			d.loop.Post(func() { d.onFillReply(gen, r) })
		}})
	}
}

func (d *Decoder) onFillReply(gen uint64, r FillReply) {
	if gen != d.fillGen {
		d.log.Debug("dropping stale fill reply", "status", r.Status)
		return
	}
	d.outstanding--

	switch r.Status {
	case FillBuffer:
		if err := d.codec.Decode(r.Unit); err != nil {
			d.fail(CodeDecode, err)
			return
		}
		d.drainOutput()
		d.requestFills()

	case FillTryLater:
		retry := func() {
			if gen == d.fillGen {
				d.requestFills()
			}
		}
		if r.RetryAfter > 0 {
			d.loop.PostDelayed(r.RetryAfter, retry)
		} else {
			d.loop.Post(retry)
		}

	case FillEOS:
		if !d.inputEOS {
			d.inputEOS = true
			if r.Err != nil && !errors.Is(r.Err, media.ErrEndOfStream) {
				d.eosErr = r.Err
			}
			d.log.Debug("input ended", "error", d.eosErr)
			d.codec.SignalEndOfInput()
		}
		d.drainOutput()

	case FillDiscontinuity:
		d.inputPaused = true
	}
}

func (d *Decoder) drainOutput() {
	for !d.failed && d.inFlight < d.outputSlots {
		b, err := d.codec.Drain()
		switch {
		case err == nil:
		case errors.Is(err, media.ErrWouldBlock):
			return
		case errors.Is(err, media.ErrEndOfStream):
			if !d.eosSent {
				d.eosSent = true
				d.emit(EOS{Err: d.eosErr})
			}
			return
		default:
			d.fail(CodeDrain, err)
			return
		}

		d.checkOutputFormat()
		d.inFlight++
		d.emit(Drain{Buffer: b, Ack: media.NewAck(func() {
			d.loop.Post(d.onOutputReturned)
		})})
	}
}

func (d *Decoder) onOutputReturned() {
	d.inFlight--
	switch d.state {
	case StateFlushRequested:
		if d.inFlight == 0 {
			d.completeFlush()
		}
	case StateRunning:
		d.drainOutput()
		d.requestFills()
	}
}

func (d *Decoder) onFlush() {
	switch d.state {
	case StateShutDown:
		d.log.Warn("flush after shutdown")
		return
	case StateFlushRequested:
		return
	case StateFlushed:
		d.emit(FlushCompleted{})
		return
	}

	d.fillGen++
	d.outstanding = 0
	d.inputPaused = false
	d.inputEOS = false
	d.eosErr = nil
	d.eosSent = false
	if !d.failed {
		d.codec.Flush()
	}
	d.state = StateFlushRequested
	if d.inFlight == 0 {
		d.completeFlush()
	}
}

func (d *Decoder) completeFlush() {
	d.state = StateFlushed
	d.log.Debug("flush completed")
	d.emit(FlushCompleted{})
}

func (d *Decoder) onResume() {
	switch d.state {
	case StateFlushed:
		d.state = StateRunning
		d.requestFills()
	case StateRunning:
		d.inputPaused = false
		d.requestFills()
	default:
		d.log.Debug("resume ignored", "state", d.state)
	}
}

func (d *Decoder) onShutdown() {
	if d.state == StateShutDown {
		return
	}
	d.fillGen++
	if err := d.codec.Close(); err != nil {
		d.log.Warn("closing codec", "error", err)
	}
	d.state = StateShutDown
	d.log.Info("shut down")
	d.emit(ShutdownCompleted{})
	d.loop.Stop()
}

func (d *Decoder) fail(code int, err error) {
	if d.failed {
		return
	}
	d.failed = true
	d.state = StateError
	d.log.Error("codec failed", "code", code, "error", err)
	d.emit(Error{Err: &media.CodecError{Stream: d.stream, Code: code, Err: err}})
}
