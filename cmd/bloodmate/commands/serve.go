package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bloodmate/donor-service/internal/cache"
	"github.com/bloodmate/donor-service/internal/donors"
	api "github.com/bloodmate/donor-service/internal/http"
	"github.com/bloodmate/donor-service/internal/intake"
	"github.com/bloodmate/donor-service/internal/logging"
	"github.com/bloodmate/donor-service/internal/storage"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the donor HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger("bloodmate")
	if servePort != "" {
		cfg.Port = servePort
	}

	repo, err := openRepository(ctx, cfg, cfg.AutoMigrate, logger)
	if err != nil {
		return err
	}

	var donorCache storage.DonorCache
	var cleanup intake.CleanupScheduler
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(ctx, &cache.RedisCacheConfig{
			RedisURL: cfg.RedisURL,
			TTL:      cfg.CacheTTL,
		})
		if err != nil {
			repo.Close()
			return fmt.Errorf("failed to initialize cache: %w", err)
		}
		defer redisCache.Close()
		donorCache = redisCache

		scheduler, err := newScheduler(cfg)
		if err != nil {
			repo.Close()
			return fmt.Errorf("failed to initialize cleanup scheduler: %w", err)
		}
		defer scheduler.Close()
		cleanup = scheduler
		logger.Info("Redis enabled", "cache_ttl", cfg.CacheTTL, "raster_retention", cfg.RasterRetention)
	} else {
		logger.Warn("REDIS_URL not set, donor cache and page cleanup disabled")
	}

	manager, err := storage.NewManager(repo, donorCache, logging.NewLogger("storage"))
	if err != nil {
		repo.Close()
		return err
	}
	defer manager.Close()

	pipeline, err := buildPipeline(cfg, cleanup, logging.NewLogger("intake"))
	if err != nil {
		return err
	}

	naming, err := intake.FilenameStrategyByName(cfg.UploadFilenameStrategy)
	if err != nil {
		return err
	}
	uploads, err := intake.NewUploadStore(&intake.UploadStoreConfig{
		Dir:               cfg.UploadDir,
		Filename:          naming,
		MaxBytes:          cfg.MaxUploadBytes,
		AllowedExtensions: cfg.AllowedUploadExtensions,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize upload store: %w", err)
	}

	registrar, err := donors.NewService(pipeline, manager, logging.NewLogger("donors"))
	if err != nil {
		return err
	}

	router, err := api.NewRouter(&api.RouterConfig{
		Donors:         manager,
		Registrar:      registrar,
		Uploads:        uploads,
		Intake:         pipeline,
		PublicBaseURL:  cfg.PublicBaseURL,
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logging.NewLogger("http"),
	})
	if err != nil {
		return err
	}

	logger.Info("BloodMate API starting",
		"port", cfg.Port,
		"driver", cfg.DatabaseDriver,
		"upload_dir", uploads.Dir(),
		"ocr_language", cfg.OCRLanguage,
	)

	return api.NewServer(cfg.Port, router, logger).Run(ctx)
}
