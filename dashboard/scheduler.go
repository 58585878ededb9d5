package dashboard

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/onnwee/twitch-dashboard/backend/telemetry"
)

// Run drives periodic refreshes until ctx is canceled. A tick fetches only
// while auto refresh is enabled and a channel is set; a channel switch or
// re-enabling auto refresh fetches immediately and restarts the period.
func (c *Controller) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()
	slog.Info("chatters poller started", slog.Duration("interval", c.interval), slog.String("component", "dashboard"))

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kick:
			c.poll(ctx)
			ticker.Reset(c.interval)
		case <-ticker.Chan():
			if c.autoRefreshActive() {
				c.poll(ctx)
			}
		}
	}
}

func (c *Controller) autoRefreshActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.autoRefresh && c.st.channel != ""
}

// poll runs one refresh under its own correlation id. Expected outcomes
// (skipped, stale, no channel) are not errors for the loop.
func (c *Controller) poll(ctx context.Context) {
	pctx := telemetry.WithCorrelation(ctx, uuid.NewString())
	pctx, span := telemetry.StartSpan(pctx, "dashboard", "chatters.poll", telemetry.ChannelAttr(c.Channel()))
	defer span.End()

	err := c.Refresh(pctx)
	switch {
	case err == nil:
		telemetry.SetSpanSuccess(span)
	case errors.Is(err, ErrFetchInFlight), errors.Is(err, ErrStaleResponse), errors.Is(err, ErrNoChannel):
		telemetry.LoggerWithCorr(pctx).Debug("poll skipped", slog.String("reason", err.Error()), slog.String("component", "dashboard"))
	default:
		// already logged by apply; the next tick retries
		telemetry.RecordError(span, err)
	}
}
