// Package main wires together the visitor profiler service binary.
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

	pubsubapi "cloud.google.com/go/pubsub/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/visitorlabs/profiler/internal/api"
	"github.com/visitorlabs/profiler/internal/cache"
	"github.com/visitorlabs/profiler/internal/classifier"
	"github.com/visitorlabs/profiler/internal/clock/system"
	"github.com/visitorlabs/profiler/internal/config"
	collyfetcher "github.com/visitorlabs/profiler/internal/fetcher/colly"
	headlessfetcher "github.com/visitorlabs/profiler/internal/fetcher/headless"
	"github.com/visitorlabs/profiler/internal/logging"
	"github.com/visitorlabs/profiler/internal/metrics"
	"github.com/visitorlabs/profiler/internal/pipeline"
	"github.com/visitorlabs/profiler/internal/profile"
	memorypublisher "github.com/visitorlabs/profiler/internal/publisher/memory"
	pubsubpublisher "github.com/visitorlabs/profiler/internal/publisher/pubsub"
	"github.com/visitorlabs/profiler/internal/store"
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

	clock := system.New()

	var artifactCache profile.ArtifactCache
	if cfg.Cache.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
		redisCache := cache.NewRedis(client)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Fatal("redis unreachable", zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		}
		logger.Info("using redis artifact cache", zap.String("addr", cfg.Cache.RedisAddr))
		artifactCache = redisCache
	} else {
		logger.Info("using in-process artifact cache")
		artifactCache = cache.NewMemory(clock)
	}

	var profileStore profile.ProfileStore
	if cfg.DB.DSN != "" {
		pg, err := store.NewPostgres(ctx, store.PostgresConfig{
			DSN:             cfg.DB.DSN,
			MaxConns:        int32(cfg.DB.MaxOpenConns),
			MinConns:        int32(cfg.DB.MinOpenConns),
			MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeSecond) * time.Second,
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pg.Close()
		logger.Info("using postgres profile store")
		profileStore = pg
	} else {
		logger.Info("using in-process profile store")
		profileStore = store.NewMemory()
	}

	var fetcher profile.ContentFetcher
	switch cfg.Fetcher.Mode {
	case "headless":
		headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Fetcher.MaxParallel,
			UserAgent:         cfg.Fetcher.UserAgent,
			NavigationTimeout: time.Duration(cfg.Fetcher.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Fatal("headless fetcher init failed", zap.Error(err))
		}
		fetcher = headless
	case "plain":
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Fetcher.UserAgent,
			Timeout:   cfg.FetchTimeout(),
		})
	}

	classify, err := classifier.New(ctx, classifier.Config{
		Provider:    cfg.Classifier.Provider,
		APIKey:      cfg.Classifier.APIKey,
		BaseURL:     cfg.Classifier.BaseURL,
		Model:       cfg.Classifier.Model,
		Temperature: cfg.Classifier.Temperature,
		Timeout:     cfg.ClassifyTimeout(),
	})
	if err != nil {
		logger.Fatal("classifier init failed", zap.Error(err))
	}

	var publisher profile.Publisher
	if cfg.PubSub.ProjectID != "" {
		client, err := pubsubapi.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("pubsub close failed", zap.Error(closeErr))
			}
		}()
		publisher = pubsubpublisher.New(client.Publisher(cfg.PubSub.TopicName))
		logger.Info("using pubsub publisher", zap.String("topic", cfg.PubSub.TopicName))
	} else {
		publisher = memorypublisher.New()
	}

	pipe := pipeline.New(
		artifactCache,
		profileStore,
		fetcher,
		classify,
		publisher,
		clock,
		pipeline.Config{
			ArtifactTTL:     cfg.ArtifactTTL(),
			FetchTimeout:    cfg.FetchTimeout(),
			ClassifyTimeout: cfg.ClassifyTimeout(),
			MaxDeriveChars:  cfg.Classifier.MaxContentChars,
			Topic:           cfg.PubSub.TopicName,
		},
		logging.Component(logger, "pipeline"),
	)

	apiServer := api.NewServer(pipe, cfg, logging.Component(logger, "api"))

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
	logger.Info("shutdown complete")
}
