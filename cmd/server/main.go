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
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"basegraph.app/roster/common/id"
	"basegraph.app/roster/common/logger"
	"basegraph.app/roster/common/otel"
	"basegraph.app/roster/core/config"
	"basegraph.app/roster/core/db"
	"basegraph.app/roster/internal/http/handler"
	"basegraph.app/roster/internal/http/middleware"
	httprouter "basegraph.app/roster/internal/http/router"
	"basegraph.app/roster/internal/publisher"
	"basegraph.app/roster/internal/queue"
	"basegraph.app/roster/internal/service"
	"basegraph.app/roster/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
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

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "roster starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	transport, err := queue.Open(ctx, cfg.Events, "roster-server")
	if err != nil {
		slog.ErrorContext(ctx, "failed to open transport", "error", err)
		os.Exit(1)
	}
	defer transport.Close()

	pub := publisher.New(transport, publisher.Config{
		Topic:         cfg.Events.Topic,
		SourceService: cfg.ServiceName,
	})
	if !pub.Configured() {
		slog.WarnContext(ctx, "EVENTS_TOPIC is not set, model events will not be published")
	}

	// Fan-out and dead letters only exist on Redis.
	var (
		subs handler.Subscriptions
		dlq  handler.DeadLetters
	)
	if rt, ok := transport.(*queue.RedisTransport); ok {
		subs, dlq = rt, rt
	}

	stores := store.NewStores(database.Conn())
	modelService := service.NewModelService(stores.Models(), pub)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, httprouter.RouterConfig{
		Models: handler.NewModelHandler(modelService),
		Admin:  handler.NewAdminHandler(pub, subs, dlq, cfg.AdminAPIKey),
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, routes httprouter.RouterConfig) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, routes)

	return router
}

const banner = `
  roster server
  -------------
`
