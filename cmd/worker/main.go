package main

import (
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/speechstudio/internal/config"
	"github.com/nikhilbhutani/speechstudio/internal/queue"
	"github.com/nikhilbhutani/speechstudio/internal/queue/workers"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	const concurrency = 4
	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 3,
				"low":     1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()

	// Register workers
	purgeWorker := workers.NewPurgeWorker(cfg.Media.Dir)

	registry.Register(queue.TypeMediaPurge, asynq.HandlerFunc(purgeWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", concurrency, "media_dir", cfg.Media.Dir)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
