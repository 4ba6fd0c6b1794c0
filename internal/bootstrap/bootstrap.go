// Package bootstrap provides dependency initialization for the relay and studio binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maauso/genmedia-relay/internal/config"
	"github.com/maauso/genmedia-relay/internal/credential"
	"github.com/maauso/genmedia-relay/internal/gemini"
	"github.com/maauso/genmedia-relay/internal/relay"
	"github.com/maauso/genmedia-relay/internal/server"
	"github.com/maauso/genmedia-relay/internal/storage"
	"github.com/maauso/genmedia-relay/internal/studio"
)

// RelayDependencies holds all initialized dependencies for the relay server.
type RelayDependencies struct {
	Relay  *relay.Relay
	Router http.Handler
}

// NewRelayDependencies creates the relay and its HTTP router.
func NewRelayDependencies(cfg *config.Config, logger *slog.Logger) (*RelayDependencies, error) {
	mode, err := relay.ParseMode(cfg.CredentialMode)
	if err != nil {
		return nil, fmt.Errorf("parse credential mode: %w", err)
	}

	var geminiOpts []gemini.ClientOption
	if cfg.GeminiBaseURL != "" {
		geminiOpts = append(geminiOpts, gemini.WithBaseURL(cfg.GeminiBaseURL))
	}
	service := gemini.NewClient(geminiOpts...)

	// A client-mode relay never uses a held key.
	serverKey := ""
	if mode == relay.ModeServer {
		serverKey = cfg.GeminiAPIKey
	}

	r, err := relay.New(service, mode, serverKey,
		relay.WithProbeModel(cfg.ProbeModel),
		relay.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create relay: %w", err)
	}

	if !r.Configured() {
		logger.Warn("GEMINI_API_KEY is not set; relay requests will fail until it is configured")
	}

	handlers := server.NewHandlers(r, logger)
	router := server.NewRouter(handlers, logger, server.Config{
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRPS:      cfg.RateLimitRPS,
		RateLimitBurst:    cfg.RateLimitBurst,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})

	return &RelayDependencies{
		Relay:  r,
		Router: router,
	}, nil
}

// StudioDependencies holds all initialized dependencies for the studio CLI.
type StudioDependencies struct {
	Engine  *studio.Engine
	Storage storage.Storage
}

// NewStudioDependencies creates the studio engine with its credential store
// and output storage. In client mode the persisted credential is loaded.
func NewStudioDependencies(ctx context.Context, cfg *config.StudioConfig, logger *slog.Logger) (*StudioDependencies, error) {
	mode, err := relay.ParseMode(cfg.CredentialMode)
	if err != nil {
		return nil, fmt.Errorf("parse credential mode: %w", err)
	}

	client, err := studio.NewClient(cfg.RelayURL)
	if err != nil {
		return nil, fmt.Errorf("create relay client: %w", err)
	}

	opts := []studio.Option{
		studio.WithLogger(logger),
		studio.WithPollInterval(cfg.PollInterval),
	}
	if mode == relay.ModeClient {
		store, err := credential.NewStore(cfg.CredentialFile)
		if err != nil {
			return nil, fmt.Errorf("create credential store: %w", err)
		}
		logger.Debug("credential store configured",
			slog.String("path", store.Path()),
		)
		opts = append(opts, studio.WithCredentialStore(store))
	}

	engine, err := studio.New(client, mode, opts...)
	if err != nil {
		return nil, fmt.Errorf("create studio engine: %w", err)
	}
	if err := engine.LoadCredential(ctx); err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &StudioDependencies{
		Engine:  engine,
		Storage: store,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.StudioConfig, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Debug("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Debug("local storage configured",
		slog.String("output_dir", localStore.Dir()),
	)
	return localStore, nil
}
