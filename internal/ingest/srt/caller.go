package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"sync"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/playcore/internal/ingest"
)

const dialTimeout = 10 * time.Second

// ErrPullActive is returned when a pull already feeds the requested key.
var ErrPullActive = errors.New("srt: pull already active")

// ErrNoPull is returned when stopping a key nothing is pulling.
var ErrNoPull = errors.New("srt: no active pull")

// PullRequest names a remote SRT listener to pull from and the key the
// stream is registered under.
type PullRequest struct {
	Address   string `json:"address"`
	StreamKey string `json:"streamKey"`
	StreamID  string `json:"streamId,omitempty"`
}

// remoteStreamID is the stream id sent to the listener.
func (r PullRequest) remoteStreamID() string {
	if r.StreamID != "" {
		return r.StreamID
	}
	return "live/" + r.StreamKey
}

// Caller pulls streams from remote SRT listeners into the registry.
type Caller struct {
	registry *ingest.Registry
	log      *slog.Logger

	mu    sync.Mutex
	pulls map[string]pull
}

type pull struct {
	req    PullRequest
	cancel context.CancelFunc
}

// NewCaller returns a caller feeding registry. A nil log uses
// slog.Default().
func NewCaller(registry *ingest.Registry, log *slog.Logger) *Caller {
	if log == nil {
		log = slog.Default()
	}
	return &Caller{
		registry: registry,
		log:      log.With("component", "srt-caller"),
		pulls:    make(map[string]pull),
	}
}

// dial connects to the listener at address, giving up after dialTimeout
// or when ctx ends. A connection that completes after giving up is closed.
func dial(ctx context.Context, address, streamID string) (*srtgo.Conn, error) {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = latency
	cfg.StreamID = streamID

	type result struct {
		conn *srtgo.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := srtgo.Dial(address, cfg)
		done <- result{conn, err}
	}()

	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("srt: dial %s: %w", address, r.err)
		}
		return r.conn, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("srt: dial %s: %w", address, context.Cause(ctx))
	}
}

// Pull connects to the remote listener and, once connected, feeds the
// stream into the registry in the background until the remote ends it,
// Stop is called or ctx is done.
func (c *Caller) Pull(ctx context.Context, req PullRequest) error {
	switch {
	case req.Address == "":
		return errors.New("srt: pull address is required")
	case req.StreamKey == "":
		return errors.New("srt: pull streamKey is required")
	}
	if c.active(req.StreamKey) {
		return fmt.Errorf("%w: %q", ErrPullActive, req.StreamKey)
	}

	c.log.Info("dialing", "address", req.Address, "stream_key", req.StreamKey)
	conn, err := dial(ctx, req.Address, req.remoteStreamID())
	if err != nil {
		return err
	}

	pullCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if _, ok := c.pulls[req.StreamKey]; ok {
		c.mu.Unlock()
		cancel()
		conn.Close()
		return fmt.Errorf("%w: %q", ErrPullActive, req.StreamKey)
	}
	c.pulls[req.StreamKey] = pull{req: req, cancel: cancel}
	c.mu.Unlock()

	stream, err := c.registry.Register(req.StreamKey, Protocol)
	if err != nil {
		c.forget(req.StreamKey)
		cancel()
		conn.Close()
		return err
	}
	stream.SetRemoteAddr(req.Address)
	c.log.Info("connected", "address", req.Address, "stream_key", req.StreamKey)

	go func() {
		defer c.forget(req.StreamKey)
		defer c.registry.Unregister(stream)
		defer conn.Close()

		unblock := context.AfterFunc(pullCtx, func() { conn.Close() })
		defer unblock()
		if err := stream.Receive(pullCtx, conn, readChunk); err != nil && pullCtx.Err() == nil {
			c.log.Debug("pull ended early", "stream_key", req.StreamKey, "error", err)
		}
		st := stream.Stats()
		c.log.Info("pull ended", "stream_key", req.StreamKey,
			"bytes", st.BytesReceived, "reads", st.Reads, "uptime_ms", st.UptimeMs)
	}()
	return nil
}

func (c *Caller) active(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pulls[key]
	return ok
}

func (c *Caller) forget(key string) {
	c.mu.Lock()
	delete(c.pulls, key)
	c.mu.Unlock()
}

// Stop ends the pull feeding key.
func (c *Caller) Stop(key string) error {
	c.mu.Lock()
	p, ok := c.pulls[key]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoPull, key)
	}
	p.cancel()
	return nil
}

// ActivePulls lists the running pulls ordered by key.
func (c *Caller) ActivePulls() []PullRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PullRequest, 0, len(c.pulls))
	for _, key := range slices.Sorted(maps.Keys(c.pulls)) {
		out = append(out, c.pulls[key].req)
	}
	return out
}

// ParsePullURL turns srt://host:port?streamid=x&key=y into a pull request.
// Without key the stream key is taken from the stream id.
func ParsePullURL(u *url.URL) (PullRequest, error) {
	if u.Scheme != Protocol {
		return PullRequest{}, fmt.Errorf("srt: scheme %q is not srt", u.Scheme)
	}
	if u.Host == "" {
		return PullRequest{}, fmt.Errorf("srt: %s: missing host", u.Redacted())
	}
	q := u.Query()
	req := PullRequest{
		Address:   u.Host,
		StreamID:  q.Get("streamid"),
		StreamKey: q.Get("key"),
	}
	if !validStreamID(req.StreamID) {
		return PullRequest{}, fmt.Errorf("srt: invalid stream id %q", req.StreamID)
	}
	if req.StreamKey == "" {
		req.StreamKey = parseStreamID(req.StreamID).key
	}
	if !ingest.ValidKey(req.StreamKey) {
		return PullRequest{}, fmt.Errorf("srt: invalid stream key %q", req.StreamKey)
	}
	return req, nil
}

// Open is an ingest.Opener for srt:// URLs. It reads the remote stream
// directly, bypassing the registry.
func Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	req, err := ParsePullURL(u)
	if err != nil {
		return nil, err
	}
	conn, err := dial(ctx, req.Address, req.StreamID)
	if err != nil {
		return nil, err
	}
	return &connReader{conn: conn}, nil
}

type connReader struct {
	conn *srtgo.Conn
	once sync.Once
}

func (r *connReader) Read(p []byte) (int, error) { return r.conn.Read(p) }

func (r *connReader) Close() error {
	r.once.Do(func() { r.conn.Close() })
	return nil
}
