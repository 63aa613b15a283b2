package ingest

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"sync"

	"github.com/zsiec/playcore/internal/media"
)

// Opener opens the origin named by u.
type Opener func(ctx context.Context, u *url.URL) (io.ReadCloser, error)

// Openers maps URL schemes to the openers that can read them.
type Openers struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

// NewOpeners returns an empty set.
func NewOpeners() *Openers {
	return &Openers{openers: make(map[string]Opener)}
}

// DefaultOpeners returns a set that opens local files and standard input.
func DefaultOpeners() *Openers {
	o := NewOpeners()
	o.Register("file", OpenFile)
	o.Register("stdin", OpenStdin)
	return o
}

// Register binds scheme to fn, replacing any earlier binding.
func (o *Openers) Register(scheme string, fn Opener) {
	o.mu.Lock()
	o.openers[scheme] = fn
	o.mu.Unlock()
}

// Schemes returns the registered schemes, sorted.
func (o *Openers) Schemes() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.openers))
	for s := range o.openers {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Open opens target. A bare path is a file and "-" is standard input.
// Schemes without an opener fail with media.ErrUnsupported.
func (o *Openers) Open(ctx context.Context, target string) (io.ReadCloser, error) {
	u, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}
	o.mu.RLock()
	fn, ok := o.openers[u.Scheme]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ingest: scheme %q: %w", u.Scheme, media.ErrUnsupported)
	}
	return fn(ctx, u)
}

// ParseTarget turns a command-line origin into a URL.
func ParseTarget(target string) (*url.URL, error) {
	if target == "" {
		return nil, fmt.Errorf("ingest: empty origin")
	}
	if target == "-" {
		return &url.URL{Scheme: "stdin"}, nil
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Not a URL, or a Windows drive letter.
		return &url.URL{Scheme: "file", Path: target}, nil
	}
	return u, nil
}

// OpenFile opens a local file. Files are seekable, so the session can
// seek and knows the duration.
func OpenFile(_ context.Context, u *url.URL) (io.ReadCloser, error) {
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	return f, nil
}

// OpenStdin reads the process's standard input.
func OpenStdin(context.Context, *url.URL) (io.ReadCloser, error) {
	return io.NopCloser(os.Stdin), nil
}
