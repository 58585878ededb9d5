// Package server exposes the dashboard over HTTP: the HTML page, a small JSON
// API to read the classified chatters and change the channel or refresh
// settings, a server-sent event stream of updates, plus health and metrics.
// It includes configurable CORS and injects correlation IDs into request
// contexts for consistent logging.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/twitch-dashboard/backend/dashboard"
	"github.com/onnwee/twitch-dashboard/backend/telemetry"
)

// Dashboard is the state the HTTP handlers read and mutate.
type Dashboard interface {
	View() dashboard.View
	Ready() bool
	SetChannel(name string) bool
	SetAutoRefresh(enabled bool)
	ToggleAutoRefresh() bool
	Refresh(ctx context.Context) error
	Subscribe() (<-chan dashboard.View, func())
}

// NewMux returns the HTTP handler with all routes.
// The provided context is used for rate limiter cleanup goroutines lifecycle.
func NewMux(ctx context.Context, d Dashboard) http.Handler {
	rateLimiter := newIPRateLimiter(ctx, loadRateLimiterConfig())
	corsCfg := loadCORSConfig()

	handlers := NewHandlers(ctx, d)

	mux := http.NewServeMux()

	// Metrics endpoint
	mux.Handle("GET /metrics", promhttp.Handler())

	// Health and readiness endpoints
	mux.HandleFunc("GET /healthz", handlers.HandleHealthz)
	mux.HandleFunc("GET /readyz", handlers.HandleReadyz)

	// Dashboard page
	mux.HandleFunc("GET /{$}", handlers.HandleDashboard)

	// JSON API
	mux.HandleFunc("GET /api/chatters", handlers.HandleChatters)
	mux.HandleFunc("GET /api/events", handlers.HandleEvents)
	mux.Handle("POST /api/channel", rateLimitMiddleware(http.HandlerFunc(handlers.HandleSetChannel), rateLimiter))
	mux.Handle("POST /api/refresh", rateLimitMiddleware(http.HandlerFunc(handlers.HandleRefresh), rateLimiter))
	mux.Handle("POST /api/auto-refresh", rateLimitMiddleware(http.HandlerFunc(handlers.HandleAutoRefresh), rateLimiter))

	// Wrap with correlation ID injector and tracing middleware
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reuse corr header if provided else generate
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPRequestAttrs(r.Method, r.URL.Path, r.URL.RequestURI())...)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		wrappedWriter := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(wrappedWriter, r.WithContext(ctx))

		telemetry.SetSpanHTTPStatus(span, wrappedWriter.statusCode)
	})
	return withCORSConfig(handler, corsCfg)
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, d Dashboard, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(ctx, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		// WriteTimeout stays zero: /api/events streams for as long as the client listens.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr), slog.String("component", "http"))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
