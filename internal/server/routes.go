package server

import (
	"log/slog"
	"net/http"
	"time"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// RateLimitRPS is the sustained per-client request rate. Zero disables limiting.
	RateLimitRPS float64
	// RateLimitBurst is the per-client burst size.
	RateLimitBurst int
	// TrustProxyHeaders keys the rate limiter on X-Forwarded-For instead of the peer address.
	TrustProxyHeaders bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		RateLimitBurst: 10,
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// /api/relay is registered without a method so non-POST verbs reach the
// handler and get the relay's own 405 body.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("/api/relay", h.Relay)

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	}
	if cfg.RateLimitRPS > 0 {
		middlewares = append(middlewares, RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute, cfg.TrustProxyHeaders))
	}

	return ChainMiddleware(middlewares...)(mux)
}
