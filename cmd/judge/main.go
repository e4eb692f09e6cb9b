// Command judge runs the dispatch-and-judging engine: it drains the durable
// queues, relays submissions to the remote judges over borrowed accounts,
// polls verdicts, and keeps the problem cache fresh.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/vjudge/internal/adapter/events/kafka"
	"github.com/fairyhunter13/vjudge/internal/adapter/observability"
	"github.com/fairyhunter13/vjudge/internal/adapter/queue/redisq"
	"github.com/fairyhunter13/vjudge/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/vjudge/internal/adapter/site"
	"github.com/fairyhunter13/vjudge/internal/config"
	"github.com/fairyhunter13/vjudge/internal/domain"
	"github.com/fairyhunter13/vjudge/internal/judge"

	// Judge clients register themselves with the site registry.
	_ "github.com/fairyhunter13/vjudge/internal/adapter/site/hdu"
	_ "github.com/fairyhunter13/vjudge/internal/adapter/site/scu"
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

	// Expose metrics on a side port; the engine has no API of its own.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		slog.Info("metrics server starting", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	defer pool.Close()

	rdb := redisq.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisq.WaitReady(ctx, rdb); err != nil {
		slog.Error("redis not ready", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	accounts, err := config.LoadAccounts(cfg.OJAccountsPath)
	if err != nil {
		slog.Warn("accounts file not loaded", slog.String("path", cfg.OJAccountsPath), slog.Any("error", err))
	}
	slog.Info("supported judges", slog.Any("sites", site.Supported()))

	var events domain.VerdictPublisher
	if cfg.EventsEnabled() {
		pub, err := kafka.NewPublisher(cfg.KafkaBrokers, cfg.VerdictTopic)
		if err != nil {
			slog.Error("kafka publisher connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer pub.Close()
		events = pub
	}

	engine := judge.New(judge.Deps{
		Submissions:  postgres.NewSubmissionRepo(pool),
		Problems:     postgres.NewProblemRepo(pool),
		SubmitQueue:  redisq.New(rdb, cfg.SubmitQueueKey),
		ProblemQueue: redisq.New(rdb, cfg.ProblemQueueKey),
		NewClient:    site.NewFactory(cfg.SiteHTTPTimeout),
		Accounts:     accounts,
		Events:       events,
		Cfg: judge.Config{
			HandlerPopTimeout: cfg.HandlerPopTimeout,
			SubmitPopTimeout:  cfg.SubmitPopTimeout,
			SubmitterIdleTTL:  cfg.SubmitterIdleTTL,
			CleanupInterval:   cfg.CleanupInterval,
			PollAttempts:      cfg.PollAttempts,
			PollBaseInterval:  cfg.PollBaseInterval,
			LoginRetryLimit:   cfg.LoginRetryLimit,
			ProblemStaleAfter: cfg.ProblemStaleAfter,
			PrefetchCount:     cfg.PrefetchCount,
		},
	})
	engine.Start(ctx)

	<-ctx.Done()
	slog.Info("shutdown signal received")

	done := make(chan struct{})
	go func() {
		engine.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.ServerShutdownTimeout):
		slog.Warn("engine did not stop in time, exiting anyway")
	}
}
