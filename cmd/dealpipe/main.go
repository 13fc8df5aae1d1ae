// Package main wires together the deal extraction service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pubsubv2 "cloud.google.com/go/pubsub/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/welanie/dealpipe/internal/api"
	"github.com/welanie/dealpipe/internal/clock/system"
	"github.com/welanie/dealpipe/internal/config"
	"github.com/welanie/dealpipe/internal/extractor/ollama"
	"github.com/welanie/dealpipe/internal/hash/md5"
	"github.com/welanie/dealpipe/internal/id/uuid"
	"github.com/welanie/dealpipe/internal/logging"
	"github.com/welanie/dealpipe/internal/metrics"
	"github.com/welanie/dealpipe/internal/notify"
	"github.com/welanie/dealpipe/internal/notify/telegram"
	"github.com/welanie/dealpipe/internal/product"
	memorypublisher "github.com/welanie/dealpipe/internal/publisher/memory"
	pubsubpublisher "github.com/welanie/dealpipe/internal/publisher/pubsub"
	redisqueue "github.com/welanie/dealpipe/internal/queue/redis"
	"github.com/welanie/dealpipe/internal/storage/postgres"
	"github.com/welanie/dealpipe/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	queue, err := redisqueue.NewQueue(ctx, redisqueue.Config{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	if err != nil {
		logger.Fatal("redis queue init failed", zap.Error(err))
	}

	pool, err := newPgxPool(ctx, cfg)
	if err != nil {
		logger.Fatal("postgres pool init failed", zap.Error(err))
	}
	defer pool.Close()

	recordStore, err := postgres.NewRecordStoreWithPool(pool, cfg.DB.Table)
	if err != nil {
		logger.Fatal("record store init failed", zap.Error(err))
	}
	userStore, err := postgres.NewUserStoreWithPool(pool)
	if err != nil {
		logger.Fatal("user store init failed", zap.Error(err))
	}
	if err := recordStore.EnsureSchema(ctx); err != nil {
		logger.Fatal("record schema init failed", zap.Error(err))
	}
	if err := userStore.EnsureSchema(ctx); err != nil {
		logger.Fatal("user schema init failed", zap.Error(err))
	}

	extractor, err := ollama.New(ollama.Config{
		BaseURL: cfg.Extractor.BaseURL,
		Model:   cfg.Extractor.Model,
		Timeout: cfg.ExtractorTimeout(),
	})
	if err != nil {
		logger.Fatal("extractor init failed", zap.Error(err))
	}

	publisher, cleanup, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer cleanup()

	var sender notify.Sender
	if cfg.Telegram.Token != "" {
		tgSender, err := telegram.New(telegram.Config{
			Token:   cfg.Telegram.Token,
			Timeout: time.Duration(cfg.Telegram.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			logger.Warn("telegram sender init failed", zap.Error(err))
		} else {
			sender = tgSender
		}
	}

	hasher := md5.New()
	clock := system.New()
	idGen := uuid.New()
	filter := product.NewFilter(cfg.Pipeline.MinLength, cfg.Pipeline.MaxLength, cfg.Pipeline.Keywords)
	backoff := product.NewBackoffPolicy(cfg.BackoffBase(), cfg.BackoffMax())
	workerCfg := worker.Config{
		Topic:        cfg.PubSub.TopicName,
		IdleInterval: cfg.IdleInterval(),
	}

	for i := 0; i < cfg.Pipeline.Workers; i++ {
		w := worker.New(
			queue,
			filter,
			extractor,
			recordStore,
			publisher,
			hasher,
			clock,
			backoff,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		)
		go w.Run(ctx)
	}

	apiServer := api.NewServer(queue, recordStore, userStore, sender, idGen, clock, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := queue.Close(); err != nil {
		logger.Error("queue close error", zap.Error(err))
	}
}

func newPgxPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.DB.MaxConns > 0 {
		poolCfg.MaxConns = cfg.DB.MaxConns
	}
	if cfg.DB.MinConns > 0 {
		poolCfg.MinConns = cfg.DB.MinConns
	}
	if cfg.DB.MaxConnLifetime != "" {
		lifetime, err := time.ParseDuration(cfg.DB.MaxConnLifetime)
		if err != nil {
			return nil, fmt.Errorf("parse db.max_conn_lifetime: %w", err)
		}
		poolCfg.MaxConnLifetime = lifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// newPublisher returns the Pub/Sub publisher when a project is configured
// and an in-memory one otherwise, so local runs work without GCP access.
func newPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (product.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		logger.Info("pubsub not configured, using in-memory publisher")
		return memorypublisher.New(), func() {}, nil
	}
	client, err := pubsubv2.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub := client.Publisher(cfg.PubSub.TopicName)
	cleanup := func() {
		pub.Stop()
		if err := client.Close(); err != nil {
			logger.Error("pubsub client close error", zap.Error(err))
		}
	}
	return pubsubpublisher.New(pub), cleanup, nil
}
