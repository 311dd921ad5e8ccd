package commands

import (
	"context"
	"fmt"

	"github.com/bloodmate/donor-service/internal/config"
	"github.com/bloodmate/donor-service/internal/intake"
	"github.com/bloodmate/donor-service/internal/logging"
	"github.com/bloodmate/donor-service/internal/ocr"
	"github.com/bloodmate/donor-service/internal/queue"
	"github.com/bloodmate/donor-service/internal/rasterizer"
	"github.com/bloodmate/donor-service/internal/storage"
)

// openRepository connects to the configured database, migrating when asked
func openRepository(ctx context.Context, c *config.Config, migrate bool, logger *logging.Logger) (*storage.Repository, error) {
	repo, err := storage.Open(ctx, c.DatabaseDriver, c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if migrate {
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
		logger.Info("Schema migrated", "driver", repo.Driver())
	}

	return repo, nil
}

// buildPipeline assembles OCR, rasterization and optional page cleanup
func buildPipeline(c *config.Config, cleanup intake.CleanupScheduler, logger *logging.Logger) (*intake.Pipeline, error) {
	extractor, err := ocr.NewTesseractExtractor(&ocr.TesseractConfig{
		Language:       c.OCRLanguage,
		TessdataPrefix: c.TessdataPrefix,
		Timeout:        c.OCRTimeout,
		Logger:         logging.NewLogger("ocr"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR extractor: %w", err)
	}
	logger.Debug("OCR extractor ready", "language", extractor.Language())

	raster := rasterizer.New(&rasterizer.Config{
		DPI:     c.RasterDPI,
		Timeout: c.RasterTimeout,
		Logger:  logging.NewLogger("rasterizer"),
	})

	return intake.NewPipeline(&intake.PipelineConfig{
		Extractor:       extractor,
		Rasterizer:      raster,
		Cleanup:         cleanup,
		PageConcurrency: c.OCRPageConcurrency,
		Logger:          logger,
	})
}

// newScheduler returns nil when Redis is not configured
func newScheduler(c *config.Config) (*queue.Scheduler, error) {
	if c.RedisURL == "" {
		return nil, nil
	}
	return queue.NewScheduler(&queue.SchedulerConfig{
		RedisURL:  c.RedisURL,
		QueueName: queue.DefaultQueue,
		Retention: c.RasterRetention,
		Logger:    logging.NewLogger("scheduler"),
	})
}
