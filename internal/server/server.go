// Package server exposes the keyboard and its typing history over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pleimann/gazeboard/internal/display"
	"github.com/pleimann/gazeboard/internal/history"
	"github.com/pleimann/gazeboard/internal/keyboard"
)

// SessionFactory creates the keyboard behind one /ws/session connection
type SessionFactory func() *keyboard.Session

// Server serves the HTTP API, the session socket and optional static files
type Server struct {
	addr      string
	store     history.Store
	renderer  *display.Renderer
	sessions  SessionFactory
	gaze      http.Handler
	staticDir string
	logger    *zap.SugaredLogger

	upgrader websocket.Upgrader
	srv      *http.Server
	running  atomic.Bool

	mu       sync.Mutex
	listener net.Listener
	active   map[*websocket.Conn]struct{}
	conns    sync.WaitGroup
}

// Option configures a Server
type Option func(*Server)

// WithSessions mounts /ws/session, creating one keyboard per connection
func WithSessions(f SessionFactory) Option {
	return func(s *Server) { s.sessions = f }
}

// WithGazeHandler mounts a gaze tracker endpoint at /ws/gaze
func WithGazeHandler(h http.Handler) Option {
	return func(s *Server) { s.gaze = h }
}

// WithStaticDir serves files from dir at /
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.staticDir = dir }
}

// WithRenderer sets the renderer behind /api/layout.png
func WithRenderer(r *display.Renderer) Option {
	return func(s *Server) { s.renderer = r }
}

// New creates a server listening on addr
func New(addr string, store history.Store, logger *zap.SugaredLogger, opts ...Option) *Server {
	if addr == "" {
		addr = "127.0.0.1:5000"
	}
	s := &Server{
		addr:   addr,
		store:  store,
		logger: logger,
		active: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routes without starting a listener
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/history", s.handleSaveHistory)
	mux.HandleFunc("GET /api/history", s.handleRecentHistory)
	mux.HandleFunc("GET /api/history/user/{userId}", s.handleUserHistory)
	if s.renderer != nil {
		mux.HandleFunc("GET /api/layout.png", s.handleLayout)
	}
	if s.sessions != nil {
		mux.HandleFunc("GET /ws/session", s.handleSession)
	}
	if s.gaze != nil {
		mux.Handle("GET /ws/gaze", s.gaze)
	}
	if s.staticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.staticDir)))
	}
	return mux
}

// Start listens on the configured address and serves in the background
// until Stop is called or ctx is done
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		s.logger.Infow("server listening", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) && err != nil {
			s.logger.Errorw("server stopped with error", "error", err)
		} else {
			s.logger.Infow("server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.WithoutCancel(ctx))
	}()
	return nil
}

// Stop shuts the server down, waiting for open session sockets to finish
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeoutCause(ctx, 5*time.Second, errors.New("server shutdown timeout"))
	defer cancel()

	err := s.srv.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.Warnw("graceful shutdown error", "error", err)
		err = s.srv.Close()
	}

	// Shutdown does not track hijacked websocket connections
	s.mu.Lock()
	for conn := range s.active {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.conns.Wait()
	return err
}

func (s *Server) track(conn *websocket.Conn) {
	s.mu.Lock()
	s.active[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.active, conn)
	s.mu.Unlock()
}

// Addr returns the bound address once started, the configured one before
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := s.renderer.EncodePNG(w, keyboard.State{}); err != nil {
		s.logger.Warnw("failed to render layout", "error", err)
	}
}

type errorBody struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
