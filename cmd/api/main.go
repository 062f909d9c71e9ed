package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coursehub-backend/internal/config"
	"coursehub-backend/internal/httpapi"
	"coursehub-backend/internal/index"
	"coursehub-backend/internal/observability"
	"coursehub-backend/internal/repository"
	"coursehub-backend/internal/store"
	ddbstore "coursehub-backend/internal/store/ddb"
	"coursehub-backend/internal/store/memstore"
	"coursehub-backend/internal/votes"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		zcfg := zap.NewProductionConfig()
		if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
			zcfg.Level = level
		}
		return zcfg.Build()
	}
	return zap.NewDevelopment()
}

func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("using in-memory store; data will not survive a restart")
		return memstore.New(), nil
	default:
		awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(awsCfg)
		return ddbstore.New(client, cfg.DynamoDBTable, logger), nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	backend, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize store", zap.Error(err))
	}
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	st := store.Store(store.NewInstrumentedStore(
		store.NewBreakerStore(backend, "entity-store"), metrics))
	retry := store.NewRetryPolicy(store.RetryConfig{
		MaxRetries: cfg.Tunables.RetryMaxAttempts,
		BaseDelay:  cfg.Tunables.RetryBaseDelay,
	})
	repository.SetDefaultPageSize(cfg.Tunables.DefaultPageSize)

	lookups := index.NewManager(st, logger)
	users := repository.NewUserRepository(st, lookups, retry, logger)
	courses := repository.NewCourseRepository(st, lookups, retry, logger)
	reviews := repository.NewReviewRepository(st, retry, logger)
	comments := repository.NewCommentRepository(st, retry, logger)

	engine := votes.NewEngine(st, retry, logger, metrics)
	voteService := votes.NewService(engine, repository.NewTargets(reviews, comments), logger)

	watcher, err := config.NewWatcher(cfg.OverlayPath, cfg.Tunables, logger)
	if err != nil {
		logger.Warn("config watcher disabled", zap.Error(err))
	}
	defer watcher.Stop()
	watcher.OnChange(func(t config.Tunables) {
		retry.Store(store.RetryConfig{
			MaxRetries: t.RetryMaxAttempts,
			BaseDelay:  t.RetryBaseDelay,
		})
		repository.SetDefaultPageSize(t.DefaultPageSize)
	})

	router := httpapi.NewRouter(httpapi.Deps{
		Users:    users,
		Courses:  courses,
		Reviews:  reviews,
		Comments: comments,
		Votes:    voteService,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("address", cfg.ServerAddress),
			zap.String("backend", string(cfg.StoreBackend)),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
