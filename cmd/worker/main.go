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

	"github.com/gin-gonic/gin"

	"basegraph.app/roster/common/id"
	"basegraph.app/roster/common/logger"
	"basegraph.app/roster/common/otel"
	"basegraph.app/roster/core/config"
	"basegraph.app/roster/core/db"
	httprouter "basegraph.app/roster/internal/http/router"
	"basegraph.app/roster/internal/queue"
	"basegraph.app/roster/internal/router"
	"basegraph.app/roster/internal/service"
	"basegraph.app/roster/internal/store"
	"basegraph.app/roster/internal/worker"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if !cfg.Events.ConsumerEnabled() {
		slog.ErrorContext(ctx, "EVENTS_QUEUE is not set, nothing to consume")
		os.Exit(1)
	}

	slog.InfoContext(ctx, "roster worker starting",
		"env", cfg.Env,
		"transport", cfg.Events.Transport,
		"queue", cfg.Events.Queue,
		"max_messages", cfg.Events.MaxMessages,
		"wait_time", cfg.Events.WaitTime)

	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	transport, err := queue.Open(ctx, cfg.Events, "roster-worker")
	if err != nil {
		slog.ErrorContext(ctx, "failed to open transport", "error", err)
		os.Exit(1)
	}

	stores := store.NewStores(database.Conn())
	eventRouter, err := router.New(service.Routes(
		service.NewUserEventHandler(stores.Users()),
		service.NewModelLinker(stores.Models()),
	))
	if err != nil {
		slog.ErrorContext(ctx, "failed to build event router", "error", err)
		os.Exit(1)
	}

	consumer := worker.New(transport, eventRouter, worker.Config{
		MaxMessages: cfg.Events.MaxMessages,
		WaitTime:    cfg.Events.WaitTime,
	})
	if err := consumer.Start(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to start consumer", "error", err)
		os.Exit(1)
	}

	// Probes and metrics only; the worker serves no API.
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	httprouter.HealthRouter(engine)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.InfoContext(ctx, "health server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "health server error", "error", err)
		}
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	drained := drainConsumer(shutdownCtx, consumer.Stop)
	if !drained {
		slog.WarnContext(ctx, "shutdown timeout exceeded while draining consumer")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "health server shutdown error", "error", err)
	}

	// The loop may still be inside Receive or Delete; the process exit closes the connection.
	if drained {
		if err := transport.Close(); err != nil {
			slog.ErrorContext(shutdownCtx, "transport close error", "error", err)
		}
	} else {
		slog.WarnContext(ctx, "leaving transport open, consumer loop still running")
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "worker shutdown complete")
}

// drainConsumer runs stop, which waits for the in-flight batch, and reports
// whether it returned before ctx expired. Messages not yet deleted are redelivered.
func drainConsumer(ctx context.Context, stop func()) bool {
	stopped := make(chan struct{})
	go func() {
		stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		return true
	case <-ctx.Done():
		return false
	}
}

const banner = `
  roster worker
  -------------
`
