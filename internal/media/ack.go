package media

import "sync/atomic"

// Ack hands a drained buffer's slot back to the decoder that produced it.
// Exactly one Release takes effect; later calls are no-ops.
type Ack struct {
	done    atomic.Bool
	release func()
}

// NewAck returns an Ack that runs fn on its first Release.
func NewAck(fn func()) *Ack {
	return &Ack{release: fn}
}

// Release returns the slot. It reports false if the slot had already been
// returned.
func (a *Ack) Release() bool {
	if a == nil || !a.done.CompareAndSwap(false, true) {
		return false
	}
	if a.release != nil {
		a.release()
	}
	return true
}

// Released reports whether Release has taken effect.
func (a *Ack) Released() bool { return a.done.Load() }
