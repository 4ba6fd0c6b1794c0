// Package main provides the entry point for the generative media relay server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/genmedia-relay/internal/bootstrap"
	"github.com/maauso/genmedia-relay/internal/config"
)

// Generation calls are synchronous on the relay, so in-flight requests get
// the full write timeout to finish during shutdown.
const (
	writeTimeout  = 5 * time.Minute
	drainTimeout  = writeTimeout + 10*time.Second
	readTimeout   = 30 * time.Second
	idleTimeout   = 2 * time.Minute
	headerTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	logger.Debug("relay configured", slog.String("config", cfg.String()))

	deps, err := bootstrap.NewRelayDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	logger.Info("starting genmedia relay",
		slog.Int("port", cfg.Port),
		slog.String("credential_mode", string(deps.Relay.Mode())),
		slog.Bool("configured", deps.Relay.Configured()),
		slog.String("probe_model", cfg.ProbeModel),
		slog.Bool("custom_base_url", cfg.GeminiBaseURL != ""),
		slog.Float64("rate_limit_rps", cfg.RateLimitRPS),
		slog.Bool("trust_proxy_headers", cfg.TrustProxyHeaders),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           deps.Router,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: headerTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested, draining relay calls",
			slog.Duration("timeout", drainTimeout),
		)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("drain relay calls: %w", err)
	}

	logger.Info("relay stopped", slog.String("credential_mode", string(deps.Relay.Mode())))
	return nil
}
