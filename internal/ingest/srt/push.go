package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// pushChunk is seven transport packets, the usual SRT live payload.
const pushChunk = 7 * 188

// Push publishes r to the SRT listener at address under streamID. With a
// positive bytesPerSec the writes are paced to that rate against a single
// clock so short stalls are made up without bursts; zero sends as fast as
// the connection accepts.
func Push(ctx context.Context, address, streamID string, r io.Reader, bytesPerSec float64) (int64, error) {
	if !validStreamID(streamID) {
		return 0, fmt.Errorf("srt: invalid stream id %q", streamID)
	}
	conn, err := dial(ctx, address, streamID)
	if err != nil {
		return 0, err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	p := newPacer(bytesPerSec, time.Now())
	buf := make([]byte, pushChunk)
	var sent int64
	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			if _, err := conn.Write(buf[:n]); err != nil {
				if ctx.Err() != nil {
					return sent, ctx.Err()
				}
				return sent, fmt.Errorf("srt: write: %w", err)
			}
			sent += int64(n)
			if wait := p.delay(sent, time.Now()); wait > 0 {
				select {
				case <-ctx.Done():
					return sent, ctx.Err()
				case <-time.After(wait):
				}
			}
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			return sent, nil
		}
		if rerr != nil {
			return sent, fmt.Errorf("srt: read origin: %w", rerr)
		}
	}
}

// pacer computes how long to wait so that a stream has sent no more than
// its target rate since start.
type pacer struct {
	rate  float64
	start time.Time
}

func newPacer(bytesPerSec float64, start time.Time) pacer {
	return pacer{rate: bytesPerSec, start: start}
}

func (p pacer) delay(sent int64, now time.Time) time.Duration {
	if p.rate <= 0 {
		return 0
	}
	due := time.Duration(float64(sent) / p.rate * float64(time.Second))
	if elapsed := now.Sub(p.start); due > elapsed {
		return due - elapsed
	}
	return 0
}
