// Command server starts the text evaluator HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	aipkg "github.com/johnmichaelkuczynski/texteval/internal/adapter/ai"
	"github.com/johnmichaelkuczynski/texteval/internal/adapter/ai/real"
	"github.com/johnmichaelkuczynski/texteval/internal/adapter/httpserver"
	"github.com/johnmichaelkuczynski/texteval/internal/adapter/observability"
	"github.com/johnmichaelkuczynski/texteval/internal/adapter/repo/memory"
	pgstore "github.com/johnmichaelkuczynski/texteval/internal/adapter/repo/postgres"
	redisstore "github.com/johnmichaelkuczynski/texteval/internal/adapter/repo/redis"
	"github.com/johnmichaelkuczynski/texteval/internal/app"
	"github.com/johnmichaelkuczynski/texteval/internal/config"
	"github.com/johnmichaelkuczynski/texteval/internal/domain"
	"github.com/johnmichaelkuczynski/texteval/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	store, storeCheck, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("store setup failed", slog.String("backend", cfg.StoreBackend), slog.Any("error", err))
		os.Exit(1)
	}

	aiClient := real.New(cfg)
	analyzeSvc := usecase.NewAnalyzeService(aiClient, store, aipkg.NewPromptBuilder(), cfg.InterChunkDelay)
	resultSvc := usecase.NewResultService(store)

	srv := httpserver.NewServer(cfg, analyzeSvc, resultSvc, storeCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

// buildStore selects the result store backend from config. The memory
// store needs no readiness probe.
func buildStore(ctx context.Context, cfg config.Config) (domain.ResultRepository, func(context.Context) error, error) {
	switch cfg.StoreBackend {
	case "memory", "":
		return memory.NewStore(cfg.StoreCapacity), nil, nil
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		st := redisstore.NewStore(rdb, cfg.ResultTTL)
		return st, st.Ping, nil
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return nil, nil, err
		}
		st, err := pgstore.NewStore(ctx, pool)
		if err != nil {
			return nil, nil, err
		}
		return st, pool.Ping, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
