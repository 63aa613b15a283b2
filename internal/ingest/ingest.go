// Package ingest connects origins to playback sessions. Push transports
// (SRT, QUIC) rendezvous with sessions through the Registry; origins named
// by a URL are opened through Openers.
package ingest

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDuplicate is returned when a key is already being pushed.
var ErrDuplicate = errors.New("ingest: stream key already active")

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_\-./]+$`)

// ValidKey reports whether a stream key announced by a remote peer may
// name a session.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key) && !strings.Contains(key, "..")
}

// Stats describes one push connection. Times are Unix milliseconds.
type Stats struct {
	Key           string `json:"key"`
	Protocol      string `json:"protocol"`
	RemoteAddr    string `json:"remoteAddr,omitempty"`
	BytesReceived int64  `json:"bytesReceived"`
	Reads         int64  `json:"reads"`
	ConnectedAt   int64  `json:"connectedAt"`
	LastReadAt    int64  `json:"lastReadAt,omitempty"`
	UptimeMs      int64  `json:"uptimeMs"`
}

// Stream is one push connection. The transport hands what it receives to
// Receive; the session reads the other end of the pipe.
type Stream struct {
	Key       string
	Protocol  string
	StartedAt time.Time

	pw   *io.PipeWriter
	done chan struct{}

	bytes      atomic.Int64
	reads      atomic.Int64
	lastRead   atomic.Int64
	remoteAddr atomic.Pointer[string]
}

func (s *Stream) recordRead(n int) {
	s.bytes.Add(int64(n))
	s.reads.Add(1)
	s.lastRead.Store(time.Now().UnixMilli())
}

// Receive copies r into the stream until r ends, the session stops reading
// or ctx is done. A clean end of r returns nil.
func (s *Stream) Receive(ctx context.Context, r io.Reader, bufSize int) error {
	buf := make([]byte, bufSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			s.recordRead(n)
			if _, werr := s.pw.Write(buf[:n]); werr != nil {
				return fmt.Errorf("ingest: %s: session stopped reading: %w", s.Key, werr)
			}
		}
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			return err
		}
	}
}

// SetRemoteAddr records the peer address reported in Stats.
func (s *Stream) SetRemoteAddr(addr string) { s.remoteAddr.Store(&addr) }

// Done is closed once the stream is unregistered.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Stats returns the connection counters as of now.
func (s *Stream) Stats() Stats {
	st := Stats{
		Key:           s.Key,
		Protocol:      s.Protocol,
		BytesReceived: s.bytes.Load(),
		Reads:         s.reads.Load(),
		ConnectedAt:   s.StartedAt.UnixMilli(),
		LastReadAt:    s.lastRead.Load(),
		UptimeMs:      time.Since(s.StartedAt).Milliseconds(),
	}
	if addr := s.remoteAddr.Load(); addr != nil {
		st.RemoteAddr = *addr
	}
	return st
}

// OnStream receives every registered stream with the reading side of its
// pipe. Closing input makes the transport's writes fail.
type OnStream func(s *Stream, input io.ReadCloser)

// Registry holds the active push streams by key.
type Registry struct {
	onStream OnStream

	mu      sync.RWMutex
	streams map[string]*Stream
}

// NewRegistry returns an empty registry that hands each new stream to
// onStream on its own goroutine. onStream may be nil.
func NewRegistry(onStream OnStream) *Registry {
	return &Registry{
		onStream: onStream,
		streams:  make(map[string]*Stream),
	}
}

// Register claims key for a new push. A key already claimed fails with
// ErrDuplicate.
func (r *Registry) Register(key, protocol string) (*Stream, error) {
	pr, pw := io.Pipe()
	s := &Stream{
		Key:       key,
		Protocol:  protocol,
		StartedAt: time.Now(),
		pw:        pw,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if _, taken := r.streams[key]; taken {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDuplicate, key)
	}
	r.streams[key] = s
	r.mu.Unlock()

	if r.onStream != nil {
		go r.onStream(s, pr)
	}
	return s, nil
}

// Unregister releases the stream's key and ends its pipe, so the reading
// session sees end of input. Unregistering twice is harmless.
func (r *Registry) Unregister(s *Stream) {
	r.mu.Lock()
	cur, ok := r.streams[s.Key]
	owned := ok && cur == s
	if owned {
		delete(r.streams, s.Key)
	}
	r.mu.Unlock()

	if owned {
		s.pw.Close()
		close(s.done)
	}
}

// Get returns the stream registered under key.
func (r *Registry) Get(key string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[key]
	return s, ok
}

// List returns the active streams ordered by key.
func (r *Registry) List() []*Stream {
	r.mu.RLock()
	out := make([]*Stream, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Stream) int { return cmp.Compare(a.Key, b.Key) })
	return out
}
