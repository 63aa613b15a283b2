package decoder

import (
	"time"

	"github.com/zsiec/playcore/internal/media"
)

// Event is a notification from a Decoder to its owner.
type Event interface{ decoderEvent() }

// FillRequest asks the owner for the next access unit. Reply must be
// called exactly once, from any goroutine.
type FillRequest struct {
	Reply func(FillReply)
}

// Drain carries a decoded buffer. The owner must release Ack exactly once,
// after rendering or discarding the buffer, to return the output slot.
type Drain struct {
	Buffer *media.Buffer
	Ack    *media.Ack
}

// OutputFormatChanged announces the format of the buffers that follow.
type OutputFormatChanged struct {
	Format *media.Format
}

// EOS reports that every buffer of the stream has been drained. Err is nil
// for a normal end of stream and the cause otherwise.
type EOS struct {
	Err error
}

// FlushCompleted answers SignalFlush once every output slot is back.
type FlushCompleted struct{}

// ShutdownCompleted answers InitiateShutdown.
type ShutdownCompleted struct{}

// Error reports a stream-fatal codec failure. Err is a *media.CodecError.
type Error struct {
	Err error
}

func (FillRequest) decoderEvent()         {}
func (Drain) decoderEvent()               {}
func (OutputFormatChanged) decoderEvent() {}
func (EOS) decoderEvent()                 {}
func (FlushCompleted) decoderEvent()      {}
func (ShutdownCompleted) decoderEvent()   {}
func (Error) decoderEvent()               {}

// FillStatus is the owner's answer to a FillRequest.
type FillStatus int

const (
	// FillBuffer carries an access unit.
	FillBuffer FillStatus = iota
	// FillTryLater means no unit is available; the decoder asks again
	// after RetryAfter.
	FillTryLater
	// FillEOS ends the input. Err is nil or media.ErrEndOfStream for a
	// normal end, and the source error otherwise.
	FillEOS
	// FillDiscontinuity means the stream hit a discontinuity and a flush
	// is coming; the decoder stops asking until it is resumed.
	FillDiscontinuity
)

func (s FillStatus) String() string {
	switch s {
	case FillBuffer:
		return "buffer"
	case FillTryLater:
		return "try-later"
	case FillEOS:
		return "eos"
	case FillDiscontinuity:
		return "discontinuity"
	}
	return "unknown"
}

// FillReply answers a FillRequest.
type FillReply struct {
	Status     FillStatus
	Unit       *media.AccessUnit
	Err        error
	RetryAfter time.Duration
}
