// Command backend serves the Twitch chatter dashboard.
// It:
//   - Loads configuration and initializes structured logging.
//   - Picks the chatter source: the TMI chatters endpoint (default) or an
//     anonymous IRC roster.
//   - Starts the refresh scheduler for the configured channel.
//   - Exposes the dashboard page, JSON/SSE API, /healthz, /readyz and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/twitch-dashboard/backend/chat"
	"github.com/onnwee/twitch-dashboard/backend/config"
	"github.com/onnwee/twitch-dashboard/backend/dashboard"
	"github.com/onnwee/twitch-dashboard/backend/server"
	"github.com/onnwee/twitch-dashboard/backend/telemetry"
	"github.com/onnwee/twitch-dashboard/backend/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing(telemetry.TracingConfig{
		ServiceName:    "twitch-dashboard",
		ServiceVersion: "1.0.0",
		Channel:        cfg.TwitchChannel,
		Source:         string(cfg.Source),
	})
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var source dashboard.Source
	switch cfg.Source {
	case config.SourceIRC:
		roster := chat.NewRoster()
		go roster.Run(ctx)
		source = roster
	default:
		source = &twitchapi.ChattersClient{
			BaseURL:    cfg.TMIBaseURL,
			HTTPClient: &http.Client{Timeout: cfg.FetchTimeout},
		}
	}

	ctrl := dashboard.NewController(source, dashboard.Options{
		Channel:      cfg.TwitchChannel,
		AutoRefresh:  cfg.AutoRefresh,
		Interval:     cfg.RefreshInterval,
		FetchTimeout: cfg.FetchTimeout,
	})
	slog.Info("dashboard configured",
		slog.String("channel", cfg.TwitchChannel),
		slog.String("source", string(cfg.Source)),
		slog.Bool("auto_refresh", cfg.AutoRefresh),
		slog.Duration("interval", cfg.RefreshInterval))

	// First snapshot as soon as the scheduler is up
	ctrl.RequestRefresh()
	go ctrl.Run(ctx)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	go func() {
		if err := server.Start(ctx, ctrl, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
