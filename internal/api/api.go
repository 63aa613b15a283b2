// Package api serves the HTTP control plane: session listing, stats,
// transport controls and SRT pull management.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/zsiec/playcore/internal/ingest"
	"github.com/zsiec/playcore/internal/ingest/srt"
	"github.com/zsiec/playcore/internal/pipeline"
	"github.com/zsiec/playcore/internal/player"
	"github.com/zsiec/playcore/internal/stream"
)

const shutdownTimeout = 5 * time.Second

// Debugger is implemented by players that expose their internal state.
type Debugger interface {
	Debug(ctx context.Context) (player.Snapshot, error)
}

// Config holds the dependencies of the API server. Sessions is required;
// the rest are optional and their routes answer 501 when unset.
type Config struct {
	Addr     string
	Sessions *stream.Manager
	Ingest   *ingest.Registry
	CertHash string

	SRTPull func(req srt.PullRequest) error
	SRTStop func(streamKey string) error
	SRTList func() []srt.PullRequest

	Logger *slog.Logger
}

// Server is the HTTP control plane.
type Server struct {
	log    *slog.Logger
	config Config
}

// New creates a server. If cfg.Logger is nil, slog.Default() is used.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{log: log.With("component", "api"), config: cfg}
}

// SessionInfo is a session's stats plus the transport feeding it, if any.
type SessionInfo struct {
	pipeline.Snapshot
	Ingest *ingest.Stats `json:"ingest,omitempty"`
}

// Handler returns the API routes wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{key...}", s.handleSession)
	mux.HandleFunc("POST /api/sessions/{key...}", s.handleControl)
	mux.HandleFunc("GET /api/ingest", s.handleListIngest)
	mux.HandleFunc("GET /api/cert-hash", s.handleCertHash)
	mux.HandleFunc("GET /api/srt-pull", s.handleSRTPullList)
	mux.HandleFunc("POST /api/srt-pull", s.handleSRTPullCreate)
	mux.HandleFunc("DELETE /api/srt-pull", s.handleSRTPullStop)
	mux.HandleFunc("OPTIONS /api/", s.handleOptions)
	return corsMiddleware(mux)
}

// Start serves the API on cfg.Addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("API server listening", "addr", s.config.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("API shutdown", "error", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) info(sess *stream.Session) SessionInfo {
	info := SessionInfo{Snapshot: sess.Snapshot()}
	if s.config.Ingest != nil {
		if in, ok := s.config.Ingest.Get(sess.Key); ok {
			stats := in.Stats()
			info.Ingest = &stats
		}
	}
	return info
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.config.Sessions.List()
	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, s.info(sess))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSession serves GET /api/sessions/{key} and
// GET /api/sessions/{key}/debug. Keys may contain slashes.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	key, action := splitAction(r.PathValue("key"), "debug")
	sess, ok := s.config.Sessions.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if action == "" {
		writeJSON(w, http.StatusOK, s.info(sess))
		return
	}

	dbg, ok := sess.Player().(Debugger)
	if !ok {
		writeError(w, http.StatusConflict, "session has no debug state")
		return
	}
	snap, err := dbg.Debug(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleControl serves POST /api/sessions/{key}/{pause,resume,seek}.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	key, action := splitAction(r.PathValue("key"), "pause", "resume", "seek")
	var err error
	switch action {
	case "pause":
		err = s.config.Sessions.Pause(key)
	case "resume":
		err = s.config.Sessions.Resume(key)
	case "seek":
		us, perr := strconv.ParseInt(r.URL.Query().Get("us"), 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "us query parameter must be an integer")
			return
		}
		err = s.config.Sessions.Seek(key, us)
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}

	switch {
	case errors.Is(err, stream.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, stream.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, stream.ErrBadPosition):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": action, "key": key})
	}
}

func (s *Server) handleListIngest(w http.ResponseWriter, _ *http.Request) {
	if s.config.Ingest == nil {
		writeJSON(w, http.StatusOK, []ingest.Stats{})
		return
	}
	streams := s.config.Ingest.List()
	out := make([]ingest.Stats, 0, len(streams))
	for _, st := range streams {
		out = append(out, st.Stats())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCertHash(w http.ResponseWriter, _ *http.Request) {
	if s.config.CertHash == "" {
		writeError(w, http.StatusNotImplemented, "QUIC ingest not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hash": s.config.CertHash})
}

func (s *Server) handleOptions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(http.StatusNoContent)
}

// SECURITY: The SRT pull endpoint dials arbitrary addresses. Expose it
// only to operators or internal networks.
func (s *Server) handleSRTPullList(w http.ResponseWriter, _ *http.Request) {
	if s.config.SRTList == nil {
		writeJSON(w, http.StatusOK, []srt.PullRequest{})
		return
	}
	writeJSON(w, http.StatusOK, s.config.SRTList())
}

func (s *Server) handleSRTPullCreate(w http.ResponseWriter, r *http.Request) {
	if s.config.SRTPull == nil {
		writeError(w, http.StatusNotImplemented, "SRT pull not configured")
		return
	}
	var req srt.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Address == "" || req.StreamKey == "" {
		writeError(w, http.StatusBadRequest, "address and streamKey are required")
		return
	}
	if !ingest.ValidKey(req.StreamKey) {
		writeError(w, http.StatusBadRequest, "invalid streamKey")
		return
	}
	if err := s.config.SRTPull(req); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, srt.ErrPullActive) || errors.Is(err, ingest.ErrDuplicate) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "pulling", "streamKey": req.StreamKey})
}

func (s *Server) handleSRTPullStop(w http.ResponseWriter, r *http.Request) {
	if s.config.SRTStop == nil {
		writeError(w, http.StatusNotImplemented, "SRT pull not configured")
		return
	}
	streamKey := r.URL.Query().Get("streamKey")
	if streamKey == "" {
		writeError(w, http.StatusBadRequest, "streamKey query parameter required")
		return
	}
	if err := s.config.SRTStop(streamKey); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "streamKey": streamKey})
}

// splitAction strips a trailing "/action" from path when action is one
// of actions.
func splitAction(path string, actions ...string) (key, action string) {
	for _, a := range actions {
		suffix := "/" + a
		if len(path) > len(suffix) && path[len(path)-len(suffix):] == suffix {
			return path[:len(path)-len(suffix)], a
		}
	}
	return path, ""
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
