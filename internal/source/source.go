// Package source defines the contract the playback core consumes from a
// demultiplexing source, and the per-stream queue sources build on.
package source

import "github.com/zsiec/playcore/internal/media"

// Source produces demuxed access units for up to two elementary streams.
//
// All methods are called from the player goroutine and must not block
// indefinitely. Sources that perform I/O do it on a goroutine of their own
// and report progress through FeedMoreData.
type Source interface {
	// Start begins production. Calling it twice has no effect.
	Start()
	// Stop ends production and releases the origin. Calling it twice has
	// no effect.
	Stop()
	// FeedMoreData advances demultiplexing by one bounded unit of work. It
	// returns nil on progress, media.ErrWouldBlock when starved, and
	// media.ErrEndOfStream or an I/O error once the origin is exhausted.
	FeedMoreData() error
	// Format returns the current format of stream s, or nil if it is not
	// known yet or the stream is absent.
	Format(s media.Stream) *media.Format
	// DequeueAccessUnit returns the next unit of stream s. Errors are
	// media.ErrWouldBlock, *media.DiscontinuityError, media.ErrEndOfStream
	// or the I/O error that ended the stream.
	DequeueAccessUnit(s media.Stream) (*media.AccessUnit, error)
	// DurationUs returns the content duration when known.
	DurationUs() (int64, bool)
	// SeekTo repositions the origin and returns once done. A source that
	// can seek queues a seek discontinuity resuming at us on each of its
	// streams before returning. Sources that cannot seek return
	// media.ErrUnsupported.
	SeekTo(us int64) error
}

// TextSource is implemented by sources that carry timed text.
type TextSource interface {
	// DequeueText returns the cues with PTS at or before untilUs, oldest
	// first.
	DequeueText(untilUs int64) []media.TextCue
}
