// Package quic accepts transport streams pushed over QUIC. A publisher
// opens one unidirectional stream per connection, writes the stream key
// as a varint-length-prefixed string, then the raw transport stream.
package quic

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/playcore/internal/ingest"
)

// ALPN is the application protocol negotiated by publishers.
const ALPN = "playcore-ts"

// Protocol names QUIC sessions in the registry.
const Protocol = "quic"

// maxKeyLen bounds the announced stream key.
const maxKeyLen = 256

// readBufferSize matches the SRT ingest read size.
const readBufferSize = 1316 * 10

// acceptDeadline bounds the wait for the publisher's stream.
const acceptDeadline = 10 * time.Second

// Connection close codes.
const (
	codeOK        quic.ApplicationErrorCode = 0
	codeBadHeader quic.ApplicationErrorCode = 1
	codeDuplicate quic.ApplicationErrorCode = 2
	codeNoStream  quic.ApplicationErrorCode = 3
	codeShutdown  quic.ApplicationErrorCode = 4
)

// ErrBadKey is returned for a missing, oversized or invalid stream key.
var ErrBadKey = errors.New("quic: bad stream key")

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}
}

// Server accepts QUIC publish connections and registers them with the
// ingest registry.
type Server struct {
	log      *slog.Logger
	addr     string
	tls      *tls.Config
	registry *ingest.Registry

	mu sync.Mutex
	ln *quic.Listener
}

// NewServer creates a QUIC server listening on addr. tlsConf must carry a
// certificate; its ALPN list is replaced. If log is nil, slog.Default() is
// used.
func NewServer(addr string, tlsConf *tls.Config, registry *ingest.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	tlsConf = tlsConf.Clone()
	tlsConf.NextProtos = []string{ALPN}
	return &Server{
		log:      log.With("component", "quic-server"),
		addr:     addr,
		tls:      tlsConf,
		registry: registry,
	}
}

// Listen binds the UDP socket and returns its address.
func (s *Server) Listen() (net.Addr, error) {
	ln, err := quic.ListenAddr(s.addr, s.tls, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("QUIC listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Info("listening", "addr", ln.Addr())
	return ln.Addr(), nil
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if _, err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections on the bound listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("quic: Serve before Listen")
	}
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("QUIC accept: %w", err)
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn quic.Connection) {
	remote := conn.RemoteAddr().String()

	acceptCtx, cancel := context.WithTimeout(ctx, acceptDeadline)
	str, err := conn.AcceptUniStream(acceptCtx)
	cancel()
	if err != nil {
		s.log.Debug("no stream opened", "remote", remote, "error", err)
		conn.CloseWithError(codeNoStream, "no stream")
		return
	}

	br := bufio.NewReaderSize(str, readBufferSize)
	key, err := ReadKey(br)
	if err != nil {
		s.log.Warn("rejecting publish", "remote", remote, "error", err)
		conn.CloseWithError(codeBadHeader, err.Error())
		return
	}

	stream, err := s.registry.Register(key, Protocol)
	if err != nil {
		s.log.Warn("rejecting publish", "stream_key", key, "remote", remote, "error", err)
		conn.CloseWithError(codeDuplicate, "stream key in use")
		return
	}
	defer s.registry.Unregister(stream)
	stream.SetRemoteAddr(remote)
	s.log.Info("publish", "stream_key", key, "remote", remote)

	unblock := context.AfterFunc(ctx, func() { str.CancelRead(quic.StreamErrorCode(codeShutdown)) })
	defer unblock()

	code, msg := codeOK, ""
	if err := stream.Receive(ctx, br, readBufferSize); err != nil {
		if ctx.Err() != nil {
			code, msg = codeShutdown, "shutting down"
		}
		s.log.Debug("publish ended early", "stream_key", key, "error", err)
	}
	conn.CloseWithError(code, msg)

	st := stream.Stats()
	s.log.Info("connection closed", "stream_key", key,
		"bytes", st.BytesReceived, "reads", st.Reads, "uptime_ms", st.UptimeMs)
}

// ReadKey reads a varint-length-prefixed stream key.
func ReadKey(r quicvarint.Reader) (string, error) {
	n, err := quicvarint.Read(r)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadKey, err)
	}
	if n == 0 || n > maxKeyLen {
		return "", fmt.Errorf("%w: length %d", ErrBadKey, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadKey, err)
	}
	key := string(b)
	if !ingest.ValidKey(key) {
		return "", fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	return key, nil
}

// AppendKey appends the stream key header to b.
func AppendKey(b []byte, key string) []byte {
	b = quicvarint.Append(b, uint64(len(key)))
	return append(b, key...)
}

// Push publishes r under key to the server at addr and waits for the
// server to finish reading. tlsConf's ALPN list is replaced.
func Push(ctx context.Context, addr string, tlsConf *tls.Config, key string, r io.Reader) (int64, error) {
	if !ingest.ValidKey(key) {
		return 0, fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	tlsConf = tlsConf.Clone()
	tlsConf.NextProtos = []string{ALPN}

	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return 0, fmt.Errorf("QUIC dial %s: %w", addr, err)
	}
	str, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(codeNoStream, "")
		return 0, fmt.Errorf("open stream: %w", err)
	}
	if _, err := str.Write(AppendKey(nil, key)); err != nil {
		conn.CloseWithError(codeNoStream, "")
		return 0, fmt.Errorf("write header: %w", err)
	}
	n, err := io.Copy(str, r)
	if err != nil {
		conn.CloseWithError(codeNoStream, "")
		return n, fmt.Errorf("push: %w", err)
	}
	str.Close()

	select {
	case <-conn.Context().Done():
	case <-ctx.Done():
		conn.CloseWithError(codeShutdown, "")
		return n, ctx.Err()
	}
	var appErr *quic.ApplicationError
	if cause := context.Cause(conn.Context()); errors.As(cause, &appErr) && appErr.ErrorCode != codeOK {
		return n, fmt.Errorf("server closed: %w", appErr)
	}
	return n, nil
}
