// Command books starts the books HTTP service.
//
// The service owns book records, exposes them via POST/GET/PUT/DELETE under
// /api/v1/books, publishes an event to Kafka after every committed change, and
// consumes author events from the authors service to keep its local author
// projection in sync.
//
// Usage:
//
//	go run ./cmd/books [-config configs/books.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aitormf/books-server/internal/books/cache"
	"github.com/aitormf/books-server/internal/books/events"
	"github.com/aitormf/books-server/internal/books/handler"
	"github.com/aitormf/books-server/internal/books/repository"
	"github.com/aitormf/books-server/internal/books/service"
	"github.com/aitormf/books-server/pkg/config"
	"github.com/aitormf/books-server/pkg/health"
	"github.com/aitormf/books-server/pkg/kafka"
	"github.com/aitormf/books-server/pkg/logger"
	"github.com/aitormf/books-server/pkg/metrics"
	"github.com/aitormf/books-server/pkg/middleware"
	"github.com/aitormf/books-server/pkg/postgres"
	"github.com/aitormf/books-server/pkg/redis"
)

// main loads configuration, connects to PostgreSQL and Redis, starts the Kafka
// producer and consumer, wires up the HTTP handler, and runs the server until
// SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/books.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting books service", "port", cfg.Server.Port)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := repository.EnsureSchema(context.Background(), db.DB); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to postgres")

	m := metrics.New()
	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	rdb, err := redis.NewClient(cfg.Redis)
	var views *cache.ViewCache
	if err != nil {
		slog.Warn("redis unavailable, view cache disabled", "error", err)
	} else {
		defer rdb.Close()
		views = cache.New(rdb, cfg.Redis, m)
		slog.Info("connected to redis")
	}

	producer := kafka.NewProducer(cfg.Kafka, m)
	if err := producer.Start(); err != nil {
		slog.Error("failed to start kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Stop()

	svc := service.New(
		repository.NewBookRepository(db.DB),
		repository.NewAuthorsCache(db.DB),
		producer,
	)

	consumer := kafka.NewConsumer(cfg.Kafka, nil, m)
	var invalidator events.Invalidator
	if views != nil {
		invalidator = views
	}
	if err := events.Register(consumer, events.NewTxRunner(db), invalidator); err != nil {
		slog.Error("failed to register event handlers", "error", err)
		os.Exit(1)
	}
	if err := consumer.Start(); err != nil {
		slog.Error("failed to start kafka consumer", "error", err)
		os.Exit(1)
	}
	slog.Info("kafka consumer started", "topics", consumer.Topics())

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.Ping))
	if rdb != nil && views != nil {
		checker.Register("redis", health.PingCheck(rdb.Ping))
	}

	h := handler.New(svc, views, checker)
	mux := http.NewServeMux()
	h.Routes(mux)

	var root http.Handler = mux
	root = middleware.Timeout(cfg.Server.RequestTimeout)(root)
	root = middleware.Metrics(m)(root)
	root = middleware.Correlation()(root)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("books service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := consumer.Stop(drainCtx); err != nil {
		slog.Error("consumer shutdown error", "error", err)
	}
	if stopMetrics != nil {
		if err := stopMetrics(drainCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}
	slog.Info("books service stopped")
}
