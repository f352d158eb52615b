package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/mindmesh-backend/internal/data/db"
	"github.com/yungbote/mindmesh-backend/internal/http"
	"github.com/yungbote/mindmesh-backend/internal/http/middleware"
	"github.com/yungbote/mindmesh-backend/internal/observability"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *db.Service
	Repos    Repos
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics
	Server   *http.Server

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.OtelEnabled,
		ServiceName: cfg.OtelServiceName,
		Environment: cfg.AppEnv,
		Version:     cfg.AppVersion,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    cfg.OtelInsecure,
		Headers:     observability.ParseHeaders(cfg.OtelHeaders),
		SampleRatio: cfg.OtelSampleRatio,
	})

	dbs, err := db.NewService(log, cfg.DBURL)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init db: %w", err)
	}
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		_ = dbs.Close()
		log.Sync()
		return nil, fmt.Errorf("db automigrate: %w", err)
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbs.Close()
		log.Sync()
		return nil, err
	}

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	reposet := wireRepos(dbs.DB(), log)
	serviceset, err := wireServices(log, cfg, reposet, clients, metrics)
	if err != nil {
		clients.close(ctx)
		_ = dbs.Close()
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(log, cfg, serviceset)
	server := wireServer(log, cfg, handlerset, metrics)

	log.Info("Application wired",
		"db_dialect", dbs.Dialect(),
		"embedding_provider", clients.Embedder.Name(),
		"similarity_threshold", cfg.SimilarityThreshold,
		"top_k", cfg.TopK,
		"reembed", cfg.EmbeddingReembed,
		"cors_any_origin", middleware.AllowsAnyOrigin(middleware.ParseOrigins(cfg.CORSOrigins)),
	)

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           dbs,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Metrics:      metrics,
		Server:       server,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches background workers.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Services.Projector != nil {
		a.Services.Projector.Start(ctx)
	}
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Services.Projector != nil {
		a.Services.Projector.Close()
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.Clients.close(ctx)
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil && a.Log != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil && a.Log != nil {
			a.Log.Warn("db close failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
