package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"txrepo/internal/config"
	"txrepo/internal/database"
	"txrepo/internal/database/migration"
	handlers "txrepo/internal/http/handler"
	"txrepo/internal/http/middleware"
	"txrepo/internal/logger"
	"txrepo/internal/otel"
	"txrepo/internal/persistence"
	"txrepo/internal/repository"
	"txrepo/internal/service"
)

const serviceName = "txrepo"

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, ServiceName: serviceName})
	log := logger.L()
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	shutdownTracing, err := otel.Init(ctx, log, serviceName)
	if err != nil {
		log.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	repoMetrics, err := persistence.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal("failed to register repository metrics", zap.Error(err))
	}
	policy, ok := persistence.ParseDuplicatePolicy(cfg.Repository.OnDuplicate)
	if !ok {
		log.Fatal("invalid REPO_ON_DUPLICATE", zap.String("value", cfg.Repository.OnDuplicate))
	}
	repoOpts := []persistence.Option{
		persistence.WithAutoCommit(cfg.Repository.AutoCommit),
		persistence.WithDuplicatePolicy(policy),
		persistence.WithLogger(logger.Named("repository")),
		persistence.WithMetrics(repoMetrics),
	}

	repos, db, err := buildFactory(ctx, cfg, log, repoOpts)
	if err != nil {
		log.Fatal("failed to initialize store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	// A nil *sql.DB must not reach the handler as a non-nil Pinger.
	var pinger handlers.Pinger
	if db != nil {
		defer db.Close()
		pinger = db
	}

	userSvc := service.NewUserService(repos)
	noteSvc := service.NewNoteService(repos)

	httpMetrics, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal("failed to register http metrics", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(logger.Named("http")))
	app.Use(httpMetrics.Handler())

	handlers.RegisterRoutes(app, pinger, prometheus.DefaultGatherer, userSvc, noteSvc)

	go func() {
		addr := ":" + cfg.Port
		log.Info("http_listen", zap.String("addr", addr), zap.String("store_driver", cfg.StoreDriver))
		if err := app.Listen(addr); err != nil {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("http_shutdown")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}
}

// buildFactory opens the configured store. The returned *sql.DB is nil for the memory driver.
func buildFactory(ctx context.Context, cfg *config.AppConfig, log *zap.Logger, opts []persistence.Option) (repository.Factory, *sql.DB, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return repository.NewMemoryFactory(opts...), nil, nil

	case config.DriverPostgres:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := migration.EnsureMigrated(ctx, db, migration.Postgres, log); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repository.NewSQLFactory(db, squirrel.Dollar, opts...), db, nil

	case config.DriverSQLite:
		db, err := database.NewSQLite(cfg.SQLite)
		if err != nil {
			return nil, nil, err
		}
		if err := migration.EnsureMigrated(ctx, db, migration.SQLite, log); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repository.NewSQLFactory(db, squirrel.Question, opts...), db, nil

	default:
		return nil, nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
}
