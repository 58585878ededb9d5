// Package telemetry provides distributed tracing setup using OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys specific to the dashboard.
const (
	ChannelKey = attribute.Key("twitch.channel")
	SourceKey  = attribute.Key("chatters.source")
)

// TracingConfig identifies the process on exported spans.
type TracingConfig struct {
	ServiceName    string // overridden by OTEL_SERVICE_NAME
	ServiceVersion string
	Channel        string // channel watched at startup
	Source         string // tmi or irc
}

var isTracingEnabled = false

// InitTracing installs a batching OTLP/gRPC tracer provider when
// OTEL_EXPORTER_OTLP_ENDPOINT is set and returns its shutdown func.
// Without an endpoint it installs nothing and the returned func is a no-op.
//
// OTEL_EXPORTER_OTLP_INSECURE=false enables TLS on the exporter and
// OTEL_TRACES_SAMPLER_ARG sets the root sampling ratio (default 1).
func InitTracing(cfg TracingConfig) (func(), error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		slog.Info("tracing disabled: OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return func() {}, nil
	}
	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" {
		cfg.ServiceName = name
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if !strings.EqualFold(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"), "false") {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	// OTEL_RESOURCE_ATTRIBUTES is applied last and wins.
	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(cfg.resourceAttrs()...),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	ratio := samplerRatio(os.Getenv("OTEL_TRACES_SAMPLER_ARG"))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	isTracingEnabled = true
	slog.Info("tracing initialized",
		slog.String("service", cfg.ServiceName),
		slog.String("endpoint", endpoint),
		slog.String("channel", cfg.Channel),
		slog.Float64("sample_ratio", ratio))

	return func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := tp.Shutdown(sctx); err != nil {
			slog.Error("tracer provider shutdown failed", slog.Any("err", err))
		}
	}, nil
}

func (cfg TracingConfig) resourceAttrs() []attribute.KeyValue {
	name := cfg.ServiceName
	if name == "" {
		name = "twitch-dashboard"
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.Channel != "" {
		attrs = append(attrs, ChannelKey.String(strings.ToLower(cfg.Channel)))
	}
	if cfg.Source != "" {
		attrs = append(attrs, SourceKey.String(cfg.Source))
	}
	return attrs
}

// samplerRatio parses a sampling ratio, clamping to [0,1]. Empty or invalid
// input samples everything.
func samplerRatio(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	switch {
	case err != nil:
		return 1
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// IsTracingEnabled returns whether tracing is active.
func IsTracingEnabled() bool {
	return isTracingEnabled
}

// StartSpan starts a span on the named tracer, tagging it with the request's
// correlation id when there is one.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if corr := GetCorrelation(ctx); corr != "" {
		attrs = append(attrs, attribute.String("correlation_id", corr))
	}
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records err on span and marks it failed. Nil is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanSuccess sets span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// ChannelAttr tags a span with the Twitch channel it concerns.
func ChannelAttr(channel string) attribute.KeyValue {
	return ChannelKey.String(channel)
}

// HTTPRequestAttrs describes an inbound request for the server span.
func HTTPRequestAttrs(method, route, target string) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.HTTPMethodKey.String(method),
		semconv.HTTPRouteKey.String(route),
		attribute.String("http.target", target),
	}
}

// SetSpanHTTPStatus records the response status on span. Statuses of 400 and
// above mark the span failed.
func SetSpanHTTPStatus(span trace.Span, status int) {
	span.SetAttributes(semconv.HTTPStatusCodeKey.Int(status))
	if status >= 400 {
		span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(status))
	}
}
