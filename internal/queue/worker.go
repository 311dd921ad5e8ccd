package queue

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bloodmate/donor-service/internal/logging"
)

// DefaultQueue is the asynq queue maintenance tasks run on
const DefaultQueue = "bloodmate:maintenance"

// WorkerConfig holds worker configuration
type WorkerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	UploadDir   string
	Logger      *logging.Logger
}

// Worker runs background maintenance tasks
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	config *WorkerConfig
	logger *logging.Logger
}

// NewWorker creates an asynq worker with the cleanup handler registered
func NewWorker(cfg *WorkerConfig) (*Worker, error) {
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.UploadDir == "" {
		return nil, fmt.Errorf("UploadDir is required")
	}

	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueue
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("worker")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at a minute
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "payload", string(task.Payload()), "err", err)
			}),
			Logger: &asynqLogger{logger: logger},
		},
	)

	cleanup, err := NewCleanupHandler(cfg.UploadDir, logger)
	if err != nil {
		return nil, err
	}

	mux := asynq.NewServeMux()
	mux.Handle(TypePageCleanup, cleanup)

	return &Worker{server: server, mux: mux, config: cfg, logger: logger}, nil
}

// Start runs the worker in the background
func (w *Worker) Start() error {
	w.logger.Info("Starting maintenance worker", "concurrency", w.config.Concurrency, "queue", w.config.QueueName)
	return w.server.Start(w.mux)
}

// Stop shuts the worker down, waiting for in-flight tasks
func (w *Worker) Stop() {
	w.logger.Info("Stopping maintenance worker")
	w.server.Shutdown()
	w.logger.Info("Maintenance worker stopped")
}

// asynqLogger routes asynq's internal logging through our logger
type asynqLogger struct {
	logger *logging.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
