// Package bootstrap provides dependency initialization for the video studio.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/blob"
	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/config"
	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/credential"
	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/generation"
	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/session"
	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/storage"
	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/veo"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Session     *session.Session
	Credentials *credential.Store
	Blobs       *blob.Store
	Storage     storage.Storage
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize the request builder, with the prompt template override if any
	builder, err := initBuilder(cfg, logger)
	if err != nil {
		return nil, err
	}

	creds := credential.NewStore(cfg.GeminiAPIKey)
	blobs := blob.NewStore()

	// Initialize the Veo client and the video downloader
	client := veo.NewClient(
		veo.WithSubmitRate(cfg.SubmitRatePerMinute),
		veo.WithClientLogger(logger),
	)
	downloader := veo.NewDownloader(veo.WithTimeout(cfg.DownloadTimeout))

	orchestrator := generation.NewOrchestrator(client, creds, downloader, blobs,
		generation.WithBuilder(builder),
		generation.WithPollInterval(cfg.PollInterval),
		generation.WithMaxPolls(cfg.MaxPollAttempts),
		generation.WithLogger(logger),
	)

	return &Dependencies{
		Session:     session.New(orchestrator, creds, blobs, logger),
		Credentials: creds,
		Blobs:       blobs,
		Storage:     store,
	}, nil
}

// initBuilder creates the request builder from the prompt template file.
func initBuilder(cfg *config.Config, logger *slog.Logger) (*generation.Builder, error) {
	templates, err := cfg.LoadPromptTemplates()
	if err != nil {
		return nil, err
	}

	var opts []generation.BuilderOption
	if promo := templates.PromptTemplates.SocialPromo; promo != "" {
		opts = append(opts, generation.WithSocialPromoTemplate(promo))
		logger.Info("social promo template loaded",
			slog.String("file", cfg.PromptTemplatesFile),
		)
	}

	builder, err := generation.NewBuilder(opts...)
	if err != nil {
		return nil, fmt.Errorf("create request builder: %w", err)
	}
	return builder, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
