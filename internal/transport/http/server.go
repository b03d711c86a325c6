package httptransport

import (
	"log/slog"
	"net/http"
	"time"
)

// ServerConfig contains tunables for the HTTP server.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates *http.Server with provided handler.
func NewServer(cfg ServerConfig, handler http.Handler, log *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	if log != nil {
		srv.ErrorLog = slog.NewLogLogger(log.Handler(), slog.LevelError)
	}
	return srv
}

// HandlerConfig configures the middleware chain built by NewHandler.
type HandlerConfig struct {
	Logger         *slog.Logger
	RequestTimeout time.Duration
	CORSOrigin     string
}

// NewHandler wraps mux with the standard middleware chain, outermost first:
// CORS, request id, access log, panic recovery, request timeout, metrics.
// Metrics sits directly on the mux so it can read the matched route pattern.
func NewHandler(mux *http.ServeMux, cfg HandlerConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return Chain(mux,
		CORS(cfg.CORSOrigin),
		RequestID,
		AccessLog(log),
		Recover(log),
		Timeout(cfg.RequestTimeout),
		Metrics,
	)
}
