package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bloodmate/donor-service/internal/logging"
	"github.com/bloodmate/donor-service/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background maintenance worker",
	Long:  "Consume page cleanup tasks from Redis and remove rasterized PDF pages once their retention has passed.",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	if cfg.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required to run the worker")
	}

	logger := logging.NewLogger("worker")

	worker, err := queue.NewWorker(&queue.WorkerConfig{
		RedisURL:    cfg.RedisURL,
		QueueName:   queue.DefaultQueue,
		Concurrency: cfg.WorkerConcurrency,
		UploadDir:   cfg.UploadDir,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	if err := worker.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	logger.Info("Worker started",
		"queue", queue.DefaultQueue,
		"concurrency", cfg.WorkerConcurrency,
		"upload_dir", cfg.UploadDir,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Received shutdown signal, draining tasks")
	worker.Stop()
	logger.Info("Worker shutdown complete")
	return nil
}
