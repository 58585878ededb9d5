// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollsStarted   prometheus.Counter
	PollsSucceeded prometheus.Counter
	PollsFailed    prometheus.Counter
	PollsSkipped   prometheus.Counter // tick fired while a fetch was in flight
	StaleDiscarded prometheus.Counter // response arrived after a channel switch
	ChannelChanges prometheus.Counter
	NewAccounts    prometheus.Counter

	// Histograms (seconds)
	FetchDuration prometheus.Observer

	// Gauges
	ChatterCount     prometheus.Gauge
	SeenAccounts     prometheus.Gauge
	AutoRefreshGauge prometheus.Gauge // 1=enabled,0=disabled
	EventSubscribers prometheus.Gauge
	CategoryAccounts *prometheus.GaugeVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "chatters_polls_started_total", Help: "Number of chatter fetches started"})
		PollsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "chatters_polls_succeeded_total", Help: "Number of chatter fetches applied"})
		PollsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "chatters_polls_failed_total", Help: "Number of chatter fetches that failed"})
		PollsSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "chatters_polls_skipped_total", Help: "Refresh triggers skipped because a fetch was in flight"})
		StaleDiscarded = promauto.NewCounter(prometheus.CounterOpts{Name: "chatters_stale_responses_total", Help: "Responses discarded because the channel changed mid-flight"})
		ChannelChanges = promauto.NewCounter(prometheus.CounterOpts{Name: "chatters_channel_changes_total", Help: "Number of channel switches"})
		NewAccounts = promauto.NewCounter(prometheus.CounterOpts{Name: "chatters_new_accounts_total", Help: "Accounts classified as new across polls"})
		FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chatters_fetch_duration_seconds", Help: "Chatter fetch duration seconds", Buckets: prometheus.DefBuckets})
		ChatterCount = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatters_count", Help: "Chatter count reported by the last applied snapshot"})
		SeenAccounts = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatters_seen_accounts", Help: "Distinct accounts in the previous snapshot baseline"})
		AutoRefreshGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatters_auto_refresh", Help: "Auto refresh enabled=1 disabled=0"})
		EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatters_event_subscribers", Help: "Connected server-sent event clients"})
		CategoryAccounts = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "chatters_category_accounts", Help: "Accounts per category in the last applied snapshot"}, []string{"category"})
	})
}

// inc increments c when metrics are initialized.
func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// RecordPollStarted counts a fetch that was actually issued.
func RecordPollStarted() { inc(PollsStarted) }

// RecordPollFailed counts a failed fetch.
func RecordPollFailed() { inc(PollsFailed) }

// RecordPollSkipped counts a refresh trigger dropped by the in-flight guard.
func RecordPollSkipped() { inc(PollsSkipped) }

// RecordStaleDiscarded counts a response dropped after a channel switch.
func RecordStaleDiscarded() { inc(StaleDiscarded) }

// RecordChannelChange counts a channel switch.
func RecordChannelChange() { inc(ChannelChanges) }

// RecordSnapshot records the figures of a freshly applied snapshot.
func RecordSnapshot(count, seen, newAccounts int, perCategory map[string]int) {
	inc(PollsSucceeded)
	if NewAccounts != nil && newAccounts > 0 {
		NewAccounts.Add(float64(newAccounts))
	}
	if ChatterCount != nil {
		ChatterCount.Set(float64(count))
	}
	if SeenAccounts != nil {
		SeenAccounts.Set(float64(seen))
	}
	if CategoryAccounts != nil {
		for cat, n := range perCategory {
			CategoryAccounts.WithLabelValues(cat).Set(float64(n))
		}
	}
}

// SetAutoRefresh sets gauge to 1 if enabled else 0.
func SetAutoRefresh(enabled bool) {
	if AutoRefreshGauge != nil {
		if enabled {
			AutoRefreshGauge.Set(1)
		} else {
			AutoRefreshGauge.Set(0)
		}
	}
}

// AddEventSubscribers adjusts the connected SSE client gauge by delta.
func AddEventSubscribers(delta int) {
	if EventSubscribers != nil {
		EventSubscribers.Add(float64(delta))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
