package ts

import (
	"errors"
	"io"

	"github.com/zsiec/playcore/internal/mpegts"
)

// reader copies 188-byte packets from an origin into a bounded channel.
// packets is closed when the goroutine exits; err is valid after that.
type reader struct {
	packets chan []byte
	stop    chan struct{}
	err     error
}

func startReader(r io.Reader, depth int) *reader {
	rd := &reader{
		packets: make(chan []byte, depth),
		stop:    make(chan struct{}),
	}
	go rd.run(r)
	return rd
}

func (rd *reader) run(r io.Reader) {
	defer close(rd.packets)
	for {
		buf := make([]byte, mpegts.PacketSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				rd.err = err
			}
			return
		}
		select {
		case rd.packets <- buf:
		case <-rd.stop:
			return
		}
	}
}

// halt asks the goroutine to exit without waiting for it.
func (rd *reader) halt() {
	select {
	case <-rd.stop:
	default:
		close(rd.stop)
	}
}

// wait halts the goroutine and drains the channel until it exits. The
// origin must not block forever in Read.
func (rd *reader) wait() {
	rd.halt()
	for range rd.packets {
	}
}
