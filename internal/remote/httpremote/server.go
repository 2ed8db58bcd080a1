package httpremote

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/remote"
)

// MaxSnapshotBytes bounds request bodies and WebSocket messages.
const MaxSnapshotBytes = 32 << 20

const writeTimeout = 5 * time.Second

// Server is the reference mirror. It keeps one snapshot per user in memory
// and pushes every accepted upload to that user's WebSocket subscribers.
type Server struct {
	backend *remote.Memory
	token   string
	logger  *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithToken requires "Authorization: Bearer <token>" on every request.
func WithToken(token string) ServerOption {
	return func(s *Server) { s.token = token }
}

// WithServerLogger sets the logger. Defaults to slog.Default().
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a mirror over backend. A nil backend gets a fresh
// remote.Memory.
func NewServer(backend *remote.Memory, opts ...ServerOption) *Server {
	if backend == nil {
		backend = remote.NewMemory()
	}
	s := &Server{backend: backend, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the store behind the server.
func (s *Server) Backend() *remote.Memory {
	return s.backend
}

// Handler returns the HTTP handler for the protocol.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /v1/users/{user}/snapshot", s.handlePut)
	mux.HandleFunc("GET /v1/users/{user}/snapshot", s.handleGet)
	mux.HandleFunc("GET /v1/users/{user}/changes", s.handleChanges)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.authorize(mux)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mirror listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		s.logger.Info("mirror stopped")
		return nil
	}
}

func (s *Server) authorize(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")

	var snap model.Snapshot
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxSnapshotBytes))
	if err := dec.Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid snapshot: "+err.Error())
		return
	}

	err := s.backend.UploadSnapshot(r.Context(), user, &snap)
	switch {
	case errors.Is(err, remote.ErrUserMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.logger.Debug("snapshot accepted",
		slog.String("user", user),
		slog.String("device", snap.DeviceID),
		slog.String("checksum", snap.Checksum))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := s.backend.FetchSnapshot(r.Context(), r.PathValue("user"))
	if errors.Is(err, remote.ErrNoSnapshot) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	// CloseRead discards client frames and cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	changes, err := s.backend.Subscribe(ctx, user)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	s.logger.Debug("subscriber connected", slog.String("user", user))

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case c, ok := <-changes:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			data, err := json.Marshal(c)
			if err != nil {
				s.logger.Error("marshal change", slog.String("error", err.Error()))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.logger.Debug("subscriber write failed", slog.String("user", user), slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
