// Package server exposes the content plans over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/zen-systems/contentflow/pkg/config"
	"github.com/zen-systems/contentflow/pkg/pipeline"
	"github.com/zen-systems/contentflow/pkg/plans"
	"github.com/zen-systems/contentflow/pkg/store"
	"github.com/zen-systems/contentflow/pkg/tools"
	"github.com/zen-systems/contentflow/pkg/workspace"
)

const shutdownTimeout = 30 * time.Second

// RunHistory serves stored runs.
type RunHistory interface {
	GetRun(ctx context.Context, id string) (*store.Run, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.Run, error)
}

// ToolLister lists the available tools.
type ToolLister interface {
	List() []tools.Info
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Catalog *plans.Catalog
	// NewEngine returns the engine for one request's run. A fresh engine per
	// run keeps budgets and cost reports per request.
	NewEngine func() *pipeline.Engine
	Workspace *workspace.Workspace
	Runs      RunHistory
	Tools     ToolLister
	Logger    *slog.Logger
	Version   string
}

// Server is the contentflow HTTP API.
type Server struct {
	cfg     config.ServerConfig
	deps    Deps
	logger  *slog.Logger
	handler http.Handler
	now     func() time.Time
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, deps Deps) (*Server, error) {
	if deps.Catalog == nil {
		return nil, errors.New("server: catalog is required")
	}
	if deps.NewEngine == nil {
		return nil, errors.New("server: engine factory is required")
	}
	if deps.Workspace == nil {
		return nil, errors.New("server: workspace is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cfg: cfg, deps: deps, logger: logger, now: time.Now}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/plans", s.handlePlans)
	mux.HandleFunc("GET /api/tools", s.handleTools)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("POST /api/{route}", s.handleRunPlan)

	// ServeMux answers other methods in plain text; keep them JSON.
	mux.HandleFunc("/health", methodNotAllowed("GET, HEAD"))
	mux.HandleFunc("/api/runs/{id}", methodNotAllowed("GET, HEAD"))
	mux.HandleFunc("/api/{route}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("route") {
		case "plans", "tools", "runs":
			methodNotAllowed("GET, HEAD")(w, r)
		default:
			methodNotAllowed(http.MethodPost)(w, r)
		}
	})

	var h http.Handler = mux
	h = requestID(h)
	h = logging(logger)(h)
	h = recovery(logger)(h)
	s.handler = h
	return s, nil
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
