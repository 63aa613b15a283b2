package source

import (
	"github.com/zsiec/playcore/internal/media"
)

type entry struct {
	au *media.AccessUnit

	// Set for discontinuity markers.
	kind      media.DiscontinuityKind
	resumeAt  int64
	newFormat *media.Format
}

// PacketQueue is the FIFO of one stream's access units and discontinuity
// markers. A final result, once signalled, is returned after the queued
// entries drain and on every dequeue after that.
//
// PacketQueue is not safe for concurrent use; sources fill and drain it on
// the player goroutine.
type PacketQueue struct {
	stream  media.Stream
	format  *media.Format
	entries []entry
	final   error

	lastPTS int64
}

// NewPacketQueue returns an empty queue for stream s.
func NewPacketQueue(s media.Stream) *PacketQueue {
	return &PacketQueue{stream: s, lastPTS: -1}
}

// Stream returns the stream this queue carries.
func (q *PacketQueue) Stream() media.Stream { return q.stream }

// SetFormat publishes f immediately. Use QueueDiscontinuity to change the
// format of a stream that is already flowing.
func (q *PacketQueue) SetFormat(f *media.Format) { q.format = f }

// Format returns the format of the units about to be dequeued.
func (q *PacketQueue) Format() *media.Format { return q.format }

// QueueAccessUnit appends au. Units after a final result are dropped.
func (q *PacketQueue) QueueAccessUnit(au *media.AccessUnit) {
	if q.final != nil {
		return
	}
	q.entries = append(q.entries, entry{au: au})
	q.lastPTS = au.PTS
}

// QueueDiscontinuity appends a discontinuity marker. newFormat, if set,
// becomes the queue's format when the marker is dequeued. resumeAt is
// media.NoResume when there is no hint.
func (q *PacketQueue) QueueDiscontinuity(kind media.DiscontinuityKind, resumeAt int64, newFormat *media.Format) {
	if q.final != nil {
		return
	}
	q.entries = append(q.entries, entry{kind: kind, resumeAt: resumeAt, newFormat: newFormat})
}

// SignalEOS sets the final result. A nil err means media.ErrEndOfStream.
func (q *PacketQueue) SignalEOS(err error) {
	if err == nil {
		err = media.ErrEndOfStream
	}
	if q.final == nil {
		q.final = err
	}
}

// Dequeue pops the next entry. See Source.DequeueAccessUnit for the
// results.
func (q *PacketQueue) Dequeue() (*media.AccessUnit, error) {
	if len(q.entries) == 0 {
		if q.final != nil {
			return nil, q.final
		}
		return nil, media.ErrWouldBlock
	}
	e := q.entries[0]
	q.entries[0] = entry{}
	q.entries = q.entries[1:]

	if e.au != nil {
		return e.au, nil
	}
	if e.newFormat != nil {
		q.format = e.newFormat
	}
	return nil, &media.DiscontinuityError{Kind: e.kind, ResumeAtUs: e.resumeAt}
}

// Len returns the number of queued entries.
func (q *PacketQueue) Len() int { return len(q.entries) }

// HasFinalResult reports whether SignalEOS was called.
func (q *PacketQueue) HasFinalResult() bool { return q.final != nil }

// LastQueuedPTS returns the PTS of the most recently queued unit, or -1.
func (q *PacketQueue) LastQueuedPTS() int64 { return q.lastPTS }

// Clear drops every queued entry and the final result. The format is
// kept.
func (q *PacketQueue) Clear() {
	q.entries = nil
	q.final = nil
	q.lastPTS = -1
}
