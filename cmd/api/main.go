package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"book-indexer/config"
	"book-indexer/internal/api/healthcheck"
	"book-indexer/internal/api/index"
	retrieverapi "book-indexer/internal/api/retriever"
	"book-indexer/internal/api/upload"
	"book-indexer/internal/bootstrap"
	"book-indexer/internal/core/retriever"
	"book-indexer/internal/database"
	"book-indexer/internal/middleware"
	"book-indexer/internal/services/indexer"
	"book-indexer/pkg/logger"

	"github.com/gofiber/fiber/v3"
)

const (
	jobTimeout      = 2 * time.Hour
	searchTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the config file")
	flag.Parse()

	if err := bootstrap.Init(*configPath); err != nil {
		logger.Fatal(err, "%v: init", config.ModuleSetting)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Open(ctx, bootstrap.Need{Vectors: true, Keywords: true, Objects: true})
	if err != nil {
		logger.Fatal(err, "%v: startup failed", config.ModuleServer)
	}
	defer deps.Close()

	runner := indexer.NewRunner(deps.Service, config.Cfg.Server.Jobs, jobTimeout)

	app := fiber.New(fiber.Config{
		AppName:   config.Cfg.Server.AppName,
		BodyLimit: config.Cfg.Server.BodyLimit,
	})
	middleware.Register(app, config.Cfg.Server.Concurrency)

	healthcheck.RegisterRoutes(app, &healthcheck.Handler{
		Database: func(ctx context.Context) error {
			db, err := database.GetDB()
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		Milvus: func(ctx context.Context) error {
			_, err := deps.Milvus.ListCollections(ctx)
			return err
		},
		Keyword: deps.Keywords.Ping,
	})
	index.RegisterRoutes(app, index.NewHandler(deps.Service, runner))
	upload.RegisterRoutes(app, upload.NewHandler(deps.Objects, deps.Repository))
	retrieverapi.RegisterRoutes(app, retrieverapi.NewHandler(
		retriever.New(deps.Embedder, deps.Vectors, deps.Keywords),
		searchTimeout,
	))

	errc := make(chan error, 1)
	go func() {
		errc <- app.Listen(fmt.Sprintf(":%d", config.Cfg.Server.Port))
	}()

	select {
	case err := <-errc:
		if err != nil {
			logger.Error(err, "%v: server error", config.ModuleServer)
		}
	case <-ctx.Done():
		logger.Info("%v: shutting down", config.ModuleServer)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error(err, "%v: http shutdown", config.ModuleServer)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "%v: jobs still running at shutdown", config.ModuleServer)
	}
}
