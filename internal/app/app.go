// Package app wires the arcjournald service: storage, content, the command
// handler, the websocket feed, and the HTTP/gRPC servers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/riftline/arcjournal/internal/command"
	"github.com/riftline/arcjournal/internal/content"
	"github.com/riftline/arcjournal/internal/feed"
	"github.com/riftline/arcjournal/internal/platform/config"
	"github.com/riftline/arcjournal/internal/platform/otel"
	"github.com/riftline/arcjournal/internal/store"
	"github.com/riftline/arcjournal/internal/store/memory"
	"github.com/riftline/arcjournal/internal/store/postgres"
	"github.com/riftline/arcjournal/internal/store/sqlite"
)

// Config is the arcjournald service configuration, loaded from the process
// environment.
type Config struct {
	GRPCPort int `env:"ARCJOURNAL_GRPC_PORT" envDefault:"50051"`
	HTTPPort int `env:"ARCJOURNAL_HTTP_PORT" envDefault:"8080"`

	// StorageDriver selects the instance store: memory, sqlite, or postgres.
	StorageDriver string `env:"ARCJOURNAL_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath    string `env:"ARCJOURNAL_SQLITE_PATH" envDefault:"arcjournal.db"`
	PostgresDSN   string `env:"ARCJOURNAL_POSTGRES_DSN"`

	ContentDir string `env:"ARCJOURNAL_CONTENT_DIR" envDefault:"content"`

	ArchiveBucket    string `env:"ARCJOURNAL_ARCHIVE_BUCKET"`
	ArchiveRegion    string `env:"ARCJOURNAL_ARCHIVE_REGION"`
	ArchiveEndpoint  string `env:"ARCJOURNAL_ARCHIVE_ENDPOINT"`
	ArchivePathStyle bool   `env:"ARCJOURNAL_ARCHIVE_PATH_STYLE"`
}

// LoadConfig reads the service configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// OpenStore opens the instance store named by the configuration.
func OpenStore(ctx context.Context, cfg Config) (store.InstanceStore, error) {
	switch cfg.StorageDriver {
	case "memory":
		return memory.NewStore(), nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath)
	case "postgres":
		return postgres.Open(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// LoadContent loads the arc library from the configured content directory.
func LoadContent(cfg Config) (*content.Library, error) {
	return content.LoadLibrary(os.DirFS(cfg.ContentDir), ".")
}

// App is the assembled service.
type App struct {
	cfg     Config
	logger  *slog.Logger
	store   store.InstanceStore
	library *content.Library
	hub     *feed.Hub
	handler *command.Handler
}

// New assembles the service from configuration.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	library, err := LoadContent(cfg)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load content: %w", err)
	}
	hub := feed.NewHub(logger)
	handler := command.NewHandler(st, library,
		command.WithPublisher(hub),
		command.WithLogger(logger),
	)
	return &App{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		library: library,
		hub:     hub,
		handler: handler,
	}, nil
}

// Handler returns the command handler for in-process consumers.
func (a *App) Handler() *command.Handler { return a.handler }

// Store returns the instance store.
func (a *App) Store() store.InstanceStore { return a.store }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	shutdownTracing, err := otel.Setup(ctx, "arcjournald")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/feed", a.hub.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		a.logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		a.logger.Info("grpc server listening", "addr", grpcListener.Addr().String())
		return grpcServer.Serve(grpcListener)
	})
	group.Go(func() error {
		<-ctx.Done()
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		a.hub.Close()
		if shutdownTracing != nil {
			_ = shutdownTracing(shutdownCtx)
		}
		return a.store.Close()
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
