// Package server exposes local PTY shells over websockets for tether connect.
//
// Binary frames carry raw terminal bytes in both directions. Text frames
// carry the JSON control messages defined in package tty.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/musher-dev/tether/internal/tty"
)

// TerminalPath is the websocket endpoint for terminal connections.
const TerminalPath = "/v1/terminal"

const (
	defaultCols      = 80
	defaultRows      = 24
	wsReadLimit      = 1024 * 1024
	maxCloseReason   = 120
	shutdownDeadline = 10 * time.Second
)

// TransportFunc starts the remote side of one terminal connection.
type TransportFunc func() tty.Transport

// Options configures a Server.
type Options struct {
	// Shell and Args name the command each connection runs. Empty Shell
	// means $SHELL, then /bin/sh.
	Shell string
	Args  []string

	// NewTransport overrides the per-connection transport. Nil runs Shell
	// on a PTY.
	NewTransport TransportFunc

	Logger *slog.Logger
}

// Server hosts terminal connections.
type Server struct {
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active int
}

// New creates a server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("component", "server"))

	if opts.NewTransport == nil {
		opts.NewTransport = func() tty.Transport {
			return tty.NewPTY(tty.PTYOptions{
				Command: opts.Shell,
				Args:    opts.Args,
				Logger:  logger,
			})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		opts:   opts,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler returns the HTTP routes wrapped in OpenTelemetry instrumentation.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get(TerminalPath, s.handleTerminal)

	return otelhttp.NewHandler(r, "tether.serve")
}

// Active returns the number of open terminal connections.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

func (s *Server) track(delta int) {
	s.mu.Lock()
	s.active += delta
	s.mu.Unlock()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	cols, rows, err := sizeFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("accept terminal websocket failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	conn.SetReadLimit(wsReadLimit)

	s.wg.Add(1)
	s.track(1)

	defer func() {
		s.track(-1)
		s.wg.Done()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	t := s.opts.NewTransport()
	defer func() { _ = t.Disconnect() }()

	c := &connection{
		conn:    conn,
		t:       t,
		ctx:     ctx,
		cancel:  cancel,
		limiter: newTokenBucket(MessageRateBurst, MessageRateLimit),
		logger:  s.logger,
	}

	t.Subscribe(c.forward)

	if err := t.Connect(cols, rows); err != nil {
		s.logger.Error("start terminal failed", slog.String("error", err.Error()))
		_ = conn.Close(websocket.StatusInternalError, "failed to start shell")

		return
	}

	s.logger.Info("terminal connected",
		slog.String("event.type", "server.terminal.open"),
		slog.Int("terminal.cols", cols),
		slog.Int("terminal.rows", rows),
	)

	c.readClient()

	s.logger.Info("terminal disconnected",
		slog.String("event.type", "server.terminal.close"),
		slog.String("reason", c.reason()),
	)

	_ = conn.Close(websocket.StatusNormalClosure, truncateReason(c.reason()))
}

func sizeFromQuery(r *http.Request) (int, int, error) {
	q := r.URL.Query()

	cols, err := queryInt(q.Get("cols"), defaultCols)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cols: %w", err)
	}

	rows, err := queryInt(q.Get("rows"), defaultRows)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid rows: %w", err)
	}

	if cols <= 0 || rows <= 0 {
		return 0, 0, errors.New("terminal size must be positive")
	}

	cols, rows = clampSize(cols, rows)

	return cols, rows, nil
}

func queryInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", raw, err)
	}

	return v, nil
}

func truncateReason(reason string) string {
	if len(reason) <= maxCloseReason {
		return reason
	}

	return reason[:maxCloseReason]
}

// Shutdown ends every open terminal connection and waits for them to finish
// or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for terminal connections: %w", ctx.Err())
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server listening", slog.String("server.addr", addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen on %s: %w", addr, err)
			return
		}

		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()

	connErr := s.Shutdown(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}

	return connErr
}
