package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suggestkit/weather-backend/internal/api"
	"github.com/suggestkit/weather-backend/internal/cache/redisstore"
	"github.com/suggestkit/weather-backend/internal/core/config"
	"github.com/suggestkit/weather-backend/internal/core/httpclient"
	"github.com/suggestkit/weather-backend/internal/core/observability"
	"github.com/suggestkit/weather-backend/internal/core/server"
	"github.com/suggestkit/weather-backend/internal/invalidation"
	"github.com/suggestkit/weather-backend/internal/logger"
	"github.com/suggestkit/weather-backend/internal/metrics"
	"github.com/suggestkit/weather-backend/internal/weather"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		zl := logger.Build(logger.Config{Level: "info", Component: "server"}, os.Stdout)
		logger.NewSlog(&zl).Error("configuration invalid", "err", err)
		return 1
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	p := metrics.Init(metrics.Config{
		Enabled: true,
		Path:    cfg.MetricsPath,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	observability.Init(p.Registerer())
	observability.ExposeBuildInfo(Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLog.Info("starting weather backend",
		"addr", cfg.Addr,
		"version", Version,
		"redis", cfg.RedisAddr,
		"provider", cfg.ProviderBaseURL)

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	cache, err := redisstore.New(connectCtx, cfg.RedisAddr)
	cancel()
	if err != nil {
		appLog.Error("redis connect failed", "err", err)
		return 1
	}

	fetcher, err := weather.NewFetcher(
		httpclient.NewOutbound(cfg.HTTPTimeout),
		cfg.ProviderBaseURL, cfg.ProviderAPIKey, cache, appLog)
	if err != nil {
		appLog.Error("fetcher setup failed", "err", err)
		return 1
	}

	memory := weather.NewRegionMemory(cfg.RegionMemorySize)
	backend := weather.NewBackend(cache, fetcher, memory, weather.Config{
		TTLFloorData:     cfg.TTLFloorData,
		TTLFloorLocation: cfg.TTLFloorLocation,
		PartnerParam:     cfg.PartnerParam,
		PartnerCodes:     cfg.PartnerCodes(),
	}, appLog)

	runner := invalidation.New(cfg.Invalidation, cache, memory, appLog)
	if err := runner.Start(ctx); err != nil {
		appLog.Error("invalidation runner start failed", "err", err)
		return 1
	}
	defer runner.Stop()

	h := api.NewHandler(backend, appLog)
	if err := server.Run(ctx, cfg, appLog, h, p.Handler(), runner); err != nil {
		appLog.Error("server error", "err", err)
		return 1
	}

	if err := backend.Shutdown(); err != nil {
		appLog.Warn("shutdown", "err", err)
	}
	appLog.Info("weather backend stopped")
	return 0
}
