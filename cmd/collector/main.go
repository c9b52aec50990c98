package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"main/internal/application/service/persist"
	"main/internal/application/service/stream"
	"main/internal/application/service/supervisor"
	"main/internal/application/service/symbols"
	"main/internal/config"
	"main/internal/infrastructure/cache"
	"main/internal/infrastructure/feed"
	"main/internal/infrastructure/history"
	infrahttp "main/internal/interfaces/http"
)

func main() {
	if os.Getenv("ENV") != "fly" {
		_ = godotenv.Load()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatalf("parse redis url: %v", err)
	}
	redisClient := redis.NewClient(opts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	repo, err := history.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("failed to init history repo: %v", err)
	}
	defer repo.Close()

	ids, err := repo.LoadSymbolIDs(ctx)
	if err != nil {
		logger.Fatalf("failed to load symbol id map: %v", err)
	}
	logger.WithField("symbols", len(ids)).Info("symbol id map loaded")

	store := cache.NewStore(redisClient)

	syncSvc := symbols.NewService(repo, store, logger)
	if err := syncSvc.Initialize(ctx); err != nil {
		logger.WithError(err).Warn("initial symbol sync failed")
	}
	go func() {
		if err := syncSvc.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Warn("symbol watcher stopped")
		}
	}()

	feedClient := feed.NewClient(cfg.Feed.Endpoint(), store, logger)
	streamSvc := stream.NewService(feedClient, store, logger)
	persistSvc := persist.NewService(store, repo, ids, logger)

	pipeline := func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return streamSvc.Run(gctx) })
		g.Go(func() error { return persistSvc.Run(gctx) })
		return g.Wait()
	}

	pusher, err := supervisor.NewExecPusher(cfg.Maintenance.PushCommand)
	if err != nil {
		logger.Fatalf("failed to init pusher: %v", err)
	}

	sup := supervisor.New(pipeline, repo, pusher, cfg.Maintenance, logger)

	handler := infrahttp.NewHandler(store, sup, feedClient.Dropped)
	server := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: handler,
	}
	go func() {
		logger.Infof("HTTP server listening on %s", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("supervisor stopped: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown error: %v", err)
	}
	logger.Info("collector stopped")
}
