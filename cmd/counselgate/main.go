package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/counselgate/counselgate/internal/access"
	"github.com/counselgate/counselgate/internal/app"
	"github.com/counselgate/counselgate/internal/auditlog"
	"github.com/counselgate/counselgate/internal/catalog"
	"github.com/counselgate/counselgate/internal/observability"
	"github.com/counselgate/counselgate/internal/platform/cache"
	"github.com/counselgate/counselgate/internal/platform/db"
	"github.com/counselgate/counselgate/internal/rolegraph"
	"github.com/counselgate/counselgate/internal/stage"
	"github.com/counselgate/counselgate/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	permCache := rolegraph.NewCache(redisClient, cfg.PermissionCacheTTL)
	graphRepo := rolegraph.NewRepository(pool)
	graphService := rolegraph.NewService(graphRepo, permCache, logger)
	graphHandler := rolegraph.NewHandler(logger, graphService)

	stageRepo := stage.NewRepository(pool)
	stageService := stage.NewService(stageRepo, logger)
	stageHandler := stage.NewHandler(logger, stageService)

	auditRepo := auditlog.NewRepository(pool)
	auditService := auditlog.NewService(auditRepo, logger)
	auditHandler := auditlog.NewHandler(logger, auditService)

	engine := access.NewEngine(graphService, stageService, metrics)
	accessMiddleware := access.NewMiddleware(logger, engine, stageService, auditService, metrics)
	accessHandler := access.NewHandler(logger, engine, graphService, auditService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CatalogHandler:   catalogHandler,
		RoleGraphHandler: graphHandler,
		StageHandler:     stageHandler,
		AccessHandler:    accessHandler,
		AuditHandler:     auditHandler,
		JobHandler:       jobHandler,
		AccessMiddleware: accessMiddleware,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
