// Package gateway provides the HTTP API for uploading and searching memories.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/ingest"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/memory"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/query"
)

const version = "1.0.0"

// Config configures the HTTP server.
type Config struct {
	// Address is the listen address (default ":8000").
	Address string `yaml:"address"`

	// CORSOrigins lists allowed origins for CORS (empty = no CORS).
	CORSOrigins []string `yaml:"cors_origins"`
}

// Ingester runs one upload through the ingestion pipeline.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// Searcher answers searches and single-record lookups.
type Searcher interface {
	Search(ctx context.Context, q string) ([]query.Result, error)
	Get(ctx context.Context, id int64) (*memory.Record, error)
}

// Deps are the components the gateway serves.
type Deps struct {
	Ingester Ingester
	Searcher Searcher
	Records  memory.Store
	Blobs    media.Store

	// MediaBaseURL is the prefix media paths are served under (default "/media").
	MediaBaseURL string

	// MaxUploadSize caps the media part of an upload.
	MaxUploadSize int64

	// Gatherer backs /metrics (default registry when nil).
	Gatherer promclient.Gatherer
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	deps      Deps
	config    Config
	server    *http.Server
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a new Gateway.
func New(deps Deps, cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8000"
	}
	if deps.MaxUploadSize <= 0 {
		deps.MaxUploadSize = media.DefaultMaxUploadSize
	}
	deps.MediaBaseURL = "/" + strings.Trim(deps.MediaBaseURL, "/")
	if deps.MediaBaseURL == "/" {
		deps.MediaBaseURL = media.DefaultStoreConfig().BaseURL
	}
	if deps.Gatherer == nil {
		deps.Gatherer = promclient.DefaultGatherer
	}
	return &Gateway{
		deps:      deps,
		config:    cfg,
		logger:    logger.With("component", "gateway"),
		startedAt: time.Now(),
	}
}

// Handler returns the gateway's routes wrapped in its middleware.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", g.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(g.deps.Gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/api/upload", g.handleUpload)
	mux.HandleFunc("/api/search", g.handleSearch)
	mux.HandleFunc("/api/memory/", g.handleMemoryByID)
	mux.HandleFunc("/api/memories", g.handleListMemories)
	mux.HandleFunc("/api/stats", g.handleStats)
	mux.HandleFunc(g.deps.MediaBaseURL+"/", g.handleMedia)

	return g.securityHeadersMiddleware(g.corsMiddleware(mux))
}

// Start starts the HTTP server in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:              g.config.Address,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", g.config.Address)
	if err != nil {
		return err
	}

	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway server error", "error", err)
		}
	}()
	g.logger.Info("gateway started", "address", ln.Addr().String())
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway stopping...")
	return g.server.Shutdown(ctx)
}
