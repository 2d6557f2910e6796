package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/finwatch/portfolio-engine/config"
	"github.com/finwatch/portfolio-engine/data"
	"github.com/finwatch/portfolio-engine/data/kvstore"
	"github.com/finwatch/portfolio-engine/data/repository"
	"github.com/finwatch/portfolio-engine/internal/cache"
	"github.com/finwatch/portfolio-engine/internal/externalApi/marketDataApi"
	"github.com/finwatch/portfolio-engine/internal/recompute"
	"github.com/finwatch/portfolio-engine/internal/scheduler"
	"github.com/finwatch/portfolio-engine/internal/service/projectionService"
	"github.com/finwatch/portfolio-engine/internal/transport/httpapi"
	"github.com/finwatch/portfolio-engine/utils"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.Any("cfg", cfg))

	pgClient := data.NewPostgresClient(cfg)
	defer pgClient.Close()

	pgRepo := repository.NewPostgres(cfg, pgClient)

	redisClient := data.NewRedisClient(cfg)
	defer redisClient.Close()

	store := kvstore.NewRedisStore(redisClient, cfg)
	projectionCache := cache.New(store)

	marketApiClient := marketDataApi.New(cfg)

	projectionSrv := projectionService.New(cfg, pgRepo, projectionCache, store, marketApiClient)

	coalescer := recompute.NewCoalescer(projectionSrv, cfg.Recompute.DebounceWindow)
	defer coalescer.Stop()
	projectionSrv.SetInvalidation(coalescer)

	if err := projectionSrv.WarmUpCache(utils.NewCtxWithRqID()); err != nil {
		slog.Warn("cache warmup failed, starting cold", slog.String("err", err.Error()))
	}

	sched := scheduler.New()
	sched.NewIntervalJob("refresh market data", projectionSrv.RefreshMarketData, cfg.Jobs.MarketRefreshInterval, true)
	sched.NewIntervalJob("flush income cache", projectionSrv.FlushCache, cfg.Jobs.CacheFlushInterval, false)
	sched.Start()
	defer sched.Stop()

	controller := httpapi.NewController(cfg, projectionSrv)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      controller,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		slog.Info("http server listening", slog.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
	}()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", slog.String("err", err.Error()))
	}

	// persist whatever was memoized since the last flush
	if err := projectionSrv.FlushCache(utils.NewCtxWithRqID()); err != nil {
		slog.Error("final cache flush failed", slog.String("err", err.Error()))
	}
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
