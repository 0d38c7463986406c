package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /session", h.GetSession)
	mux.HandleFunc("POST /generate", h.Generate)
	mux.HandleFunc("POST /retry", h.Retry)
	mux.HandleFunc("POST /extend", h.Extend)
	mux.HandleFunc("POST /reset", h.Reset)
	mux.HandleFunc("POST /credential", h.SelectCredential)
	mux.HandleFunc("DELETE /credential", h.ClearCredential)
	mux.HandleFunc("GET /blobs/{id}", h.GetBlob)
	mux.HandleFunc("DELETE /blobs/{id}", h.RevokeBlob)
	mux.HandleFunc("POST /video/export", h.ExportVideo)

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		TracingMiddleware(),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
