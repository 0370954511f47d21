package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/csvflow/importer/internal/blob"
	"github.com/csvflow/importer/internal/config"
	"github.com/csvflow/importer/internal/importer"
	_ "github.com/csvflow/importer/internal/importer/importers" // register row importers
	"github.com/csvflow/importer/internal/jobs"
	"github.com/csvflow/importer/internal/logging"
	"github.com/csvflow/importer/internal/notify"
	"github.com/csvflow/importer/internal/store"
	"github.com/csvflow/importer/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"workers", cfg.Worker.Count,
		"delete_batch_size", cfg.Import.DeleteBatchSize,
		"import_types", importer.Types(),
	)

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	if err := store.Init(ctx, pool); err != nil {
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	blobs, err := blob.NewLocal(cfg.Storage.Dir)
	if err != nil {
		slog.Error("failed to open blob storage", "error", err)
		os.Exit(1)
	}

	imports := store.NewImports(pool)
	records := store.NewRecords(pool)
	notifier := notify.NewLogNotifier()

	processor := importer.NewProcessor(pool, imports, records, blobs, notifier)
	deleter := importer.NewDeleter(pool, imports, records, notifier)

	queue := jobs.NewQueue(pool)
	worker := jobs.NewWorker(queue, processor, deleter, jobs.WorkerConfig{
		Workers:      cfg.Worker.Count,
		PollInterval: cfg.Worker.PollInterval,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		JobTimeout:   cfg.Worker.JobTimeout,
	})

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	worker.Start(jobCtx)

	server := web.NewServer(imports, deleter, queue, blobs, cfg)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()
		worker.Wait()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
