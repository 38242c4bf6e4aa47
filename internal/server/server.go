// Package server exposes one dashboard session over HTTP: the map page, JSON
// transitions and a websocket stream of snapshots.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jgoulah/gridview/internal/render"
	"github.com/jgoulah/gridview/internal/view"
)

// Session is the view session the server drives
type Session interface {
	SetHour(ctx context.Context, hour int) error
	SelectPoint(ctx context.Context, idx int) error
	Return(ctx context.Context) error
	Snapshot(ctx context.Context) (view.Snapshot, error)
	Subscribe(ctx context.Context) (<-chan view.Snapshot, func(), error)
}

// Server serves the dashboard
type Server struct {
	session  Session
	logger   *zap.Logger
	router   chi.Router
	upgrader websocket.Upgrader
}

// New builds the router for session
func New(session Session, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		session: session,
		logger:  logger.Named("server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/", s.handlePage)
	r.Get("/ws", s.handleWebsocket)
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/hour/{hour}", s.handleHour)
		r.Post("/select/{index}", s.handleSelect)
		r.Post("/return", s.handleReturn)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := render.Page(&buf, snap, render.PageOptions{Live: true}); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.respondSnapshot(w, r)
}

func (s *Server) handleHour(w http.ResponseWriter, r *http.Request) {
	hour, err := strconv.Atoi(chi.URLParam(r, "hour"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "hour must be an integer"})
		return
	}
	if err := s.session.SetHour(r.Context(), hour); err != nil {
		s.writeError(w, err)
		return
	}
	s.respondSnapshot(w, r)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "index must be an integer"})
		return
	}
	if err := s.session.SelectPoint(r.Context(), idx); err != nil {
		s.writeError(w, err)
		return
	}
	s.respondSnapshot(w, r)
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Return(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.respondSnapshot(w, r)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe, err := s.session.Subscribe(ctx)
	if err != nil {
		s.logger.Warn("subscribing to session", zap.Error(err))
		return
	}
	defer unsubscribe()

	// The reader only notices the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(snap); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) respondSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, view.ErrInvalidHour), errors.Is(err, view.ErrIndexOutOfRange):
		code = http.StatusBadRequest
	case errors.Is(err, view.ErrNotInOverview), errors.Is(err, view.ErrNotInDrillDown), errors.Is(err, view.ErrReturnDisabled):
		code = http.StatusConflict
	case errors.Is(err, view.ErrSessionClosed):
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("writing response", zap.Error(err))
	}
}
