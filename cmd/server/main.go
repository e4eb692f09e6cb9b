// Command server starts the virtual judge HTTP API.
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	httpserver "github.com/fairyhunter13/vjudge/internal/adapter/httpserver"
	"github.com/fairyhunter13/vjudge/internal/adapter/observability"
	"github.com/fairyhunter13/vjudge/internal/adapter/queue/redisq"
	"github.com/fairyhunter13/vjudge/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/vjudge/internal/app"
	"github.com/fairyhunter13/vjudge/internal/config"
	"github.com/fairyhunter13/vjudge/internal/usecase"
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
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := postgres.WaitReady(ctx, pool); err != nil {
		slog.Error("db not ready", slog.Any("error", err))
		os.Exit(1)
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	rdb := redisq.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisq.WaitReady(ctx, rdb); err != nil {
		slog.Error("redis not ready", slog.Any("error", err))
		os.Exit(1)
	}

	accounts, err := config.LoadAccounts(cfg.OJAccountsPath)
	if err != nil {
		slog.Warn("accounts file not loaded, submissions will be rejected", slog.Any("error", err))
	}

	subRepo := postgres.NewSubmissionRepo(pool)
	probRepo := postgres.NewProblemRepo(pool)
	submitQueue := redisq.New(rdb, cfg.SubmitQueueKey)
	problemQueue := redisq.New(rdb, cfg.ProblemQueueKey)

	subSvc := usecase.NewSubmissionService(subRepo, submitQueue, accounts)
	probSvc := usecase.NewProblemService(probRepo, problemQueue, accounts, cfg.ProblemStaleAfter)

	srv := httpserver.NewServer(cfg, subSvc, probSvc, dbCheck(pool), redisCheck(rdb))
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
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
	pool.Close()
	_ = rdb.Close()
}

func dbCheck(pool *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}

func redisCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}
