package srt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/playcore/internal/ingest"
)

// Protocol names SRT sessions in the registry.
const Protocol = "srt"

// latency is the SRT receive latency in nanoseconds.
const latency = 120_000_000

// readChunk holds ten live payloads of seven transport packets.
const readChunk = 10 * pushChunk

const accessControlPrefix = "#!::"

// streamInfo is what a peer's stream id asks for.
type streamInfo struct {
	key  string
	mode string
}

// parseStreamID reads either a plain path such as "live/cam1" or the SRT
// access control form "#!::r=cam1,m=publish". The resource loses a leading
// slash and a "live/" prefix, and an empty one becomes "default".
func parseStreamID(id string) streamInfo {
	var info streamInfo
	if fields, ok := strings.CutPrefix(id, accessControlPrefix); ok {
		for _, kv := range strings.Split(fields, ",") {
			k, v, _ := strings.Cut(kv, "=")
			switch k {
			case "r":
				info.key = v
			case "m":
				info.mode = v
			}
		}
	} else {
		info.key = id
	}
	info.key = strings.TrimPrefix(info.key, "/")
	info.key = strings.TrimPrefix(info.key, "live/")
	if info.key == "" {
		info.key = "default"
	}
	return info
}

// validStreamID reports whether id names a usable stream key.
func validStreamID(id string) bool {
	if !strings.HasPrefix(id, accessControlPrefix) && id != "" && !ingest.ValidKey(id) {
		return false
	}
	return ingest.ValidKey(parseStreamID(id).key)
}

// Server is an SRT listener for publishers. Each accepted connection is a
// registry stream until the peer hangs up.
type Server struct {
	addr     string
	registry *ingest.Registry
	log      *slog.Logger

	conns sync.WaitGroup
}

// NewServer returns a server for addr. A nil log uses slog.Default().
func NewServer(addr string, registry *ingest.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		addr:     addr,
		registry: registry,
		log:      log.With("component", "srt-server"),
	}
}

// Start listens and accepts publishers until ctx is cancelled, then waits
// for the open connections to wind down.
func (s *Server) Start(ctx context.Context) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = latency

	l, err := srtgo.Listen(s.addr, cfg)
	if err != nil {
		return fmt.Errorf("srt: listen %s: %w", s.addr, err)
	}
	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		info := parseStreamID(req.StreamID)
		if !validStreamID(req.StreamID) || (info.mode != "" && info.mode != "publish") {
			s.log.Warn("rejecting stream id", "stream_id", req.StreamID)
			return srtgo.RejPeer
		}
		return 0
	})
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()
	s.log.Info("listening", "addr", s.addr)

	defer s.conns.Wait()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.publish(ctx, conn)
		}()
	}
}

func (s *Server) publish(ctx context.Context, conn *srtgo.Conn) {
	defer conn.Close()
	key := parseStreamID(conn.StreamID()).key
	remote := conn.RemoteAddr().String()

	stream, err := s.registry.Register(key, Protocol)
	if err != nil {
		s.log.Warn("rejecting publish", "stream_key", key, "remote", remote, "error", err)
		return
	}
	defer s.registry.Unregister(stream)
	stream.SetRemoteAddr(remote)
	s.log.Info("publish", "stream_key", key, "remote", remote)

	unblock := context.AfterFunc(ctx, func() { conn.Close() })
	defer unblock()
	if err := stream.Receive(ctx, conn, readChunk); err != nil && ctx.Err() == nil {
		s.log.Debug("publish ended early", "stream_key", key, "error", err)
	}

	st := stream.Stats()
	s.log.Info("connection closed", "stream_key", key,
		"bytes", st.BytesReceived, "reads", st.Reads, "uptime_ms", st.UptimeMs)
}
