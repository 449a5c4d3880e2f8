package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/formdepartment/capsule/internal/backend"
	"github.com/formdepartment/capsule/internal/config"
	"github.com/formdepartment/capsule/internal/genai"
	"github.com/formdepartment/capsule/internal/logging"
	"github.com/formdepartment/capsule/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Deps are the collaborators of the HTTP server.
type Deps struct {
	Config  *config.Config
	Service *ops.Service
	// Completer backs POST /api/openai. Nil disables the endpoint.
	Completer genai.Generator
	// Backend gates pages by customer and serves the admin page. Nil turns
	// access checks off.
	Backend *backend.Client
	Logger  *zap.Logger
	Version string
}

// NewHandler builds the routed, instrumented handler tree.
func NewHandler(d Deps) (http.Handler, error) {
	if d.Config == nil {
		d.Config = config.DefaultConfig()
	}
	logger := logging.OrNop(d.Logger)

	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	h := &Handlers{
		cfg:       d.Config,
		svc:       d.Service,
		completer: d.Completer,
		backend:   d.Backend,
		renderer:  NewRenderer(templateSub, d.Version, logger),
		logger:    logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/wizard", http.StatusFound)
	})
	mux.HandleFunc("GET /wizard", h.HandleWizard)
	mux.HandleFunc("GET /suggestions", h.HandleSuggestions)
	mux.HandleFunc("GET /market", h.HandleMarket)
	mux.HandleFunc("GET /palette", h.HandlePalette)
	mux.HandleFunc("POST /api/openai", h.HandleCompletion)
	mux.HandleFunc("GET /admin", h.HandleAdmin)
	mux.HandleFunc("POST /cache/purge", h.HandlePurge)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Static file server
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return requestLogger(logger, securityHeaders(mux)), nil
}

// NewServer creates and configures the HTTP server.
func NewServer(d Deps) (*http.Server, error) {
	handler, err := NewHandler(d)
	if err != nil {
		return nil, err
	}
	cfg := d.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Pages may wait on a full generation.
		WriteTimeout: cfg.GenerationTimeout() + 15*time.Second,
	}, nil
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *zap.Logger) error {
	logger = logging.OrNop(logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("capsule server running", zap.String("url", "http://"+srv.Addr))

	if strings.HasPrefix(srv.Addr, ":") || strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
