// Package codec defines the backend contract a decoder actor drives and
// an explicit registry mapping MIME types to backends.
package codec

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zsiec/playcore/internal/media"
)

// ErrNotConfigured is returned by codecs used before Configure.
var ErrNotConfigured = errors.New("codec: not configured")

// Codec turns access units into decoded buffers. A Codec is driven by a
// single goroutine and need not be safe for concurrent use.
type Codec interface {
	// Configure prepares the codec for format f. It fails with
	// media.ErrBadFormat when f lacks parameters the codec needs.
	Configure(f *media.Format) error
	// Decode consumes one access unit.
	Decode(au *media.AccessUnit) error
	// SignalEndOfInput tells the codec no more units will arrive, so it
	// may release any output it holds back.
	SignalEndOfInput()
	// Drain returns the next decoded buffer, media.ErrWouldBlock when none
	// is ready, or media.ErrEndOfStream after end of input was signalled
	// and every buffer was returned.
	Drain() (*media.Buffer, error)
	// OutputFormat returns the format of the buffers Drain returns.
	OutputFormat() *media.Format
	// Flush discards pending input and output, keeping the configuration.
	Flush()
	// Close releases the codec.
	Close() error
}

// Factory creates a codec for format f.
type Factory func(f *media.Format) (Codec, error)

// Registry maps MIME types to codec factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the passthrough codec bound to
// every MIME type the transport-stream source produces.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, mime := range []string{
		media.MIMEVideoAVC, media.MIMEVideoHEVC, media.MIMEVideoRaw,
		media.MIMEAudioAAC, media.MIMEAudioRaw,
	} {
		r.Register(mime, NewPassthrough)
	}
	return r
}

// Register binds mime to f, replacing any earlier binding.
func (r *Registry) Register(mime string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[mime] = f
}

// New creates a codec for f. It fails with media.ErrUnsupported when no
// factory is registered for f's MIME type.
func (r *Registry) New(f *media.Format) (Codec, error) {
	if f == nil {
		return nil, fmt.Errorf("codec: nil format: %w", media.ErrBadFormat)
	}
	r.mu.RLock()
	factory, ok := r.factories[f.MIME]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("codec: %s: %w", f.MIME, media.ErrUnsupported)
	}
	return factory(f)
}

// MIMETypes returns the registered MIME types, sorted.
func (r *Registry) MIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for mime := range r.factories {
		out = append(out, mime)
	}
	sort.Strings(out)
	return out
}
