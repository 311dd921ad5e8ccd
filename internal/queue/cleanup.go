/**
 * Rasterized page cleanup
 *
 * Page images rendered from an uploaded PDF are only needed while the request
 * runs OCR over them. A delayed asynq task removes the page directory once
 * the retention window has passed; the original upload is never touched.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bloodmate/donor-service/internal/logging"
)

// TypePageCleanup is the asynq task type for page directory removal
const TypePageCleanup = "pages:cleanup"

// CleanupPayload identifies the directory to remove
type CleanupPayload struct {
	Dir         string    `json:"dir"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// NewCleanupTask builds a page cleanup task
func NewCleanupTask(dir string) (*asynq.Task, error) {
	payload, err := json.Marshal(CleanupPayload{Dir: dir, ScheduledAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cleanup payload: %w", err)
	}
	return asynq.NewTask(TypePageCleanup, payload), nil
}

// Scheduler enqueues delayed cleanup tasks
type Scheduler struct {
	client    *asynq.Client
	queue     string
	retention time.Duration
	logger    *logging.Logger
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	RedisURL  string
	QueueName string
	Retention time.Duration // 0 disables cleanup
	Logger    *logging.Logger
}

// NewScheduler creates a cleanup scheduler
func NewScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	queue := cfg.QueueName
	if queue == "" {
		queue = DefaultQueue
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("cleanup-scheduler")
	}

	return &Scheduler{
		client:    asynq.NewClient(redisOpt),
		queue:     queue,
		retention: cfg.Retention,
		logger:    logger,
	}, nil
}

// ScheduleCleanup enqueues removal of dir after the retention window.
// Scheduling the same directory twice is not an error.
func (s *Scheduler) ScheduleCleanup(ctx context.Context, dir string) error {
	if s.retention <= 0 {
		return nil
	}

	task, err := NewCleanupTask(dir)
	if err != nil {
		return err
	}

	info, err := s.client.EnqueueContext(ctx, task,
		asynq.Queue(s.queue),
		asynq.ProcessIn(s.retention),
		asynq.TaskID(cleanupTaskID(dir)),
		asynq.MaxRetry(3),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue cleanup for %s: %w", dir, err)
	}

	s.logger.Debug("Page cleanup scheduled", "dir", dir, "task_id", info.ID, "process_at", info.NextProcessAt)
	return nil
}

// Close closes the asynq client
func (s *Scheduler) Close() error {
	return s.client.Close()
}

func cleanupTaskID(dir string) string {
	return "cleanup:" + filepath.Clean(dir)
}

// CleanupHandler removes page directories that live under Root
type CleanupHandler struct {
	root   string
	logger *logging.Logger
}

// NewCleanupHandler creates a handler confined to root
func NewCleanupHandler(root string, logger *logging.Logger) (*CleanupHandler, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve cleanup root: %w", err)
	}
	if logger == nil {
		logger = logging.NewLogger("cleanup")
	}
	return &CleanupHandler{root: abs, logger: logger}, nil
}

// ProcessTask implements asynq.Handler
func (h *CleanupHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload CleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal cleanup payload: %v: %w", err, asynq.SkipRetry)
	}

	dir, err := h.contained(payload.Dir)
	if err != nil {
		h.logger.Error("Refusing cleanup outside upload root", "dir", payload.Dir, "root", h.root)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		h.logger.Debug("Page directory already gone", "dir", dir)
		return nil
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}

	h.logger.Info("Page directory removed", "dir", dir, "age", time.Since(payload.ScheduledAt))
	return nil
}

// contained resolves dir and checks it is strictly inside the root
func (h *CleanupHandler) contained(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("empty cleanup dir")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}

	rel, err := filepath.Rel(h.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is not inside %s", dir, h.root)
	}
	return abs, nil
}
