// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/absmach/mtqueue/account"
	"github.com/absmach/mtqueue/config"
	"github.com/absmach/mtqueue/queue"
	"github.com/absmach/mtqueue/ratelimit"
	"github.com/absmach/mtqueue/server/health"
	"github.com/absmach/mtqueue/server/mt"
	"github.com/absmach/mtqueue/server/otel"
	"github.com/absmach/mtqueue/stats"
	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

func main() {
	configFile := flag.String("config", "mt.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Info("Starting MT queue server", "version", "0.1.0")
	slog.Info("Configuration loaded",
		"id", cfg.Server.ID,
		"listen", cfg.Server.Listen,
		"port", cfg.Server.Port,
		"idle_timeout", cfg.Server.IdleTimeout,
		"max_depth", cfg.Queue.MaxDepth,
		"drop_policy", cfg.Queue.DropPolicy,
		"stats_enabled", cfg.Stats.Enabled,
		"accounts_enabled", cfg.Database.DSN != "",
		"health_enabled", cfg.Server.HealthEnabled,
		"log_level", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var otelShutdown otel.ShutdownFunc
	var metrics *otel.Metrics

	if cfg.Server.MetricsEnabled {
		shutdown, err := otel.InitProvider(ctx, cfg.Server, strconv.Itoa(cfg.Server.ID))
		if err != nil {
			slog.Error("Failed to initialize OpenTelemetry", "error", err)
			os.Exit(1)
		}
		otelShutdown = shutdown
		slog.Info("OpenTelemetry initialized", "endpoint", cfg.Server.MetricsAddr)

		if cfg.Server.OtelMetricsEnabled {
			m, err := otel.NewMetrics()
			if err != nil {
				slog.Error("Failed to create metrics", "error", err)
				os.Exit(1)
			}
			metrics = m
			slog.Info("OTel metrics enabled")
		}
	} else {
		slog.Info("OpenTelemetry disabled")
	}

	var rdb *redis.Client
	if cfg.Stats.Enabled || cfg.Database.DSN != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			slog.Error("Failed to connect to Redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		slog.Info("Connected to Redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	}

	var accounts account.Store
	var limits mt.AccountLimits
	if cfg.Database.DSN != "" {
		pg, err := account.NewPostgresStore(ctx, cfg.Database.DSN)
		if err != nil {
			slog.Error("Failed to connect to account database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()

		accounts = account.NewCachedStore(rdb, pg, cfg.Database.CachePrefix, cfg.Database.CacheTTL, logger)
		limits = account.Limits{Store: accounts}
		slog.Info("Account store enabled", "cache_prefix", cfg.Database.CachePrefix)
	}

	limiter := ratelimit.NewManager(cfg.RateLimit)
	defer limiter.Stop()
	if cfg.RateLimit.Enabled {
		slog.Info("Rate limiting enabled",
			"control", cfg.RateLimit.Control.Enabled,
			"submit", cfg.RateLimit.Submit.Enabled)
	}

	pool := queue.NewPool(queue.Options{
		MaxDepth:   cfg.Queue.MaxDepth,
		DropPolicy: queue.DropPolicy(cfg.Queue.DropPolicy),
		OnDrop: func(_ *queue.Message, evicted bool) {
			metrics.RecordDropped(evicted)
		},
	})

	srv := mt.New(mt.Config{
		Host:            cfg.Server.Listen,
		Port:            cfg.Server.Port,
		Logger:          logger,
		Metrics:         metrics,
		RateLimiter:     limiter,
		Accounts:        limits,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ControlWait:     cfg.Server.ControlWait,
		AccountTimeout:  cfg.Database.LookupTimeout,
		BindAttempts:    cfg.Server.BindAttempts,
		MaxConnections:  cfg.Server.MaxConnections,
		MaxFrameSize:    cfg.Server.MaxFrameSize,
	}, pool)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Listen(gctx)
	})

	if cfg.Stats.Enabled {
		sink := stats.NewBreakerSink(
			stats.NewRedisSink(rdb, cfg.Stats.Key),
			cfg.Stats.CircuitBreaker.FailureThreshold,
			cfg.Stats.CircuitBreaker.ResetTimeout,
			logger,
		)
		loop := stats.NewLoop(stats.Config{
			Interval: cfg.Stats.Interval,
			Logger:   logger,
			Metrics:  metrics,
		}, pool, sink)

		g.Go(func() error {
			slog.Info("Starting stats loop", "key", cfg.Stats.Key, "interval", cfg.Stats.Interval)
			return loop.Run(gctx)
		})
	}

	if cfg.Server.HealthEnabled {
		healthCfg := health.Config{
			Address:         cfg.Server.HealthAddr,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}
		healthServer := health.New(healthCfg, srv, accounts, logger)

		g.Go(func() error {
			return healthServer.Listen(gctx)
		})
	}

	slog.Info("MT queue server started successfully")

	if err := g.Wait(); err != nil {
		slog.Error("Server error", "error", err)
	}

	if otelShutdown != nil {
		otelShutdownCtx, otelCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer otelCancel()
		if err := otelShutdown(otelShutdownCtx); err != nil {
			slog.Error("Failed to shutdown OpenTelemetry", "error", err)
		} else {
			slog.Info("OpenTelemetry shutdown complete")
		}
	}

	slog.Info("MT queue server stopped")
}
