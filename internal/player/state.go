package player

// FlushState tracks one stream through a flush. Both streams must reach
// Flushed or ShutDown before the flush completes; a stream without a
// decoder counts as Flushed.
type FlushState int

const (
	// FlushNone means the stream is not taking part in a flush.
	FlushNone FlushState = iota
	// AwaitingDiscontinuity means the companion stream is flushing and
	// this stream keeps decoding until it reaches its own discontinuity.
	AwaitingDiscontinuity
	// Flushing means the decoder was asked to flush.
	Flushing
	// FlushingWithShutdown means the decoder was asked to flush and will
	// be shut down once it has.
	FlushingWithShutdown
	// Flushed means the stream is caught up.
	Flushed
	// ShuttingDown means the decoder was asked to shut down.
	ShuttingDown
	// ShutDown means the decoder is gone.
	ShutDown
)

func (s FlushState) String() string {
	switch s {
	case FlushNone:
		return "none"
	case AwaitingDiscontinuity:
		return "awaiting-discontinuity"
	case Flushing:
		return "flushing"
	case FlushingWithShutdown:
		return "flushing-with-shutdown"
	case Flushed:
		return "flushed"
	case ShuttingDown:
		return "shutting-down"
	case ShutDown:
		return "shut-down"
	}
	return "unknown"
}

// MarshalText encodes the state by name.
func (s FlushState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// decoderBusy reports whether the stream's decoder was told to flush or
// shut down and has not finished. Fill requests are turned away and
// drained buffers are returned unrendered.
func (s FlushState) decoderBusy() bool {
	switch s {
	case Flushing, FlushingWithShutdown, ShuttingDown, ShutDown:
		return true
	}
	return false
}

// caughtUp reports whether the stream allows the flush to complete.
func (s FlushState) caughtUp() bool { return s == Flushed || s == ShutDown }
