// Package dashboard owns the chatter dashboard state: the watched channel,
// the auto refresh toggle, the latest snapshot and the seen baseline it is
// compared against. All mutation goes through Controller so fetch results,
// channel switches and toggles are applied one at a time.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onnwee/twitch-dashboard/backend/chatters"
	"github.com/onnwee/twitch-dashboard/backend/telemetry"
	"github.com/onnwee/twitch-dashboard/backend/twitchapi"
)

var (
	// ErrNoChannel is returned by Refresh when no channel is set.
	ErrNoChannel = errors.New("no channel set")
	// ErrFetchInFlight is returned by Refresh when a fetch is already running.
	ErrFetchInFlight = errors.New("fetch already in flight")
	// ErrStaleResponse is returned when the channel changed while a fetch was running.
	ErrStaleResponse = errors.New("channel changed during fetch")
)

// Source acquires a chatter snapshot for a channel.
type Source interface {
	Fetch(ctx context.Context, channel string) (*twitchapi.Chatters, error)
}

// Options configures a Controller.
type Options struct {
	Channel      string
	AutoRefresh  bool
	Interval     time.Duration
	FetchTimeout time.Duration
	Clock        clockwork.Clock
}

// state is the single owned copy of everything the dashboard shows.
type state struct {
	channel     string
	autoRefresh bool

	snapshot chatters.Snapshot // nil until the first successful fetch
	count    int
	seen     chatters.SeenSet

	// generation is bumped on every channel switch; fetches carry the value
	// they were issued under so late responses can be recognized.
	generation uint64
	inFlight   bool
	// cancelFetch aborts the running fetch; nil when none is running.
	cancelFetch context.CancelFunc

	lastUpdated time.Time
	lastError   string
}

// Controller serializes all dashboard state transitions.
type Controller struct {
	source       Source
	clock        clockwork.Clock
	interval     time.Duration
	fetchTimeout time.Duration

	// kick wakes the scheduler for an immediate fetch.
	kick chan struct{}

	mu   sync.Mutex
	st   state
	subs map[chan View]struct{}
}

// NewController creates a controller fetching from source.
func NewController(source Source, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Interval <= 0 {
		opts.Interval = 20 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	telemetry.SetAutoRefresh(opts.AutoRefresh)
	return &Controller{
		source:       source,
		clock:        opts.Clock,
		interval:     opts.Interval,
		fetchTimeout: opts.FetchTimeout,
		kick:         make(chan struct{}, 1),
		st: state{
			channel:     strings.TrimSpace(opts.Channel),
			autoRefresh: opts.AutoRefresh,
			seen:        chatters.SeenSet{},
		},
		subs: make(map[chan View]struct{}),
	}
}

// Channel returns the watched channel.
func (c *Controller) Channel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.channel
}

// AutoRefresh reports whether periodic refresh is enabled.
func (c *Controller) AutoRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.autoRefresh
}

// Ready reports whether the dashboard has something to show: either no
// channel is set or a snapshot has been applied for the current one.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.channel == "" || c.st.snapshot != nil
}

// SetChannel switches the watched channel. A real change forgets the previous
// snapshot and seen baseline and requests an immediate fetch. It reports
// whether the channel changed.
func (c *Controller) SetChannel(name string) bool {
	name = strings.TrimSpace(name)

	c.mu.Lock()
	if strings.EqualFold(name, c.st.channel) {
		// Same channel, possibly different capitalization: keep the baseline.
		c.st.channel = name
		c.mu.Unlock()
		return false
	}
	old := c.st.channel
	c.st.channel = name
	c.st.snapshot = nil
	c.st.count = 0
	c.st.seen = chatters.SeenSet{}
	c.st.generation++
	if c.st.cancelFetch != nil {
		// The old fetch holds the in-flight slot until it returns.
		c.st.cancelFetch()
	}
	c.st.lastUpdated = time.Time{}
	c.st.lastError = ""
	c.broadcastLocked()
	if name != "" {
		// Under mu, so a stale fetch finishing concurrently cannot queue a
		// second wake-up after the scheduler consumed this one.
		c.wake()
	}
	c.mu.Unlock()

	telemetry.RecordChannelChange()
	slog.Info("channel changed", slog.String("from", old), slog.String("to", name), slog.String("component", "dashboard"))
	return true
}

// SetAutoRefresh enables or disables periodic refresh. Enabling it triggers
// an immediate fetch.
func (c *Controller) SetAutoRefresh(enabled bool) {
	c.updateAutoRefresh(func(bool) bool { return enabled })
}

// ToggleAutoRefresh flips periodic refresh and returns the new setting.
func (c *Controller) ToggleAutoRefresh() bool {
	return c.updateAutoRefresh(func(cur bool) bool { return !cur })
}

// updateAutoRefresh reads and writes the flag under one lock so concurrent
// toggles cannot both observe the same old value.
func (c *Controller) updateAutoRefresh(next func(cur bool) bool) bool {
	c.mu.Lock()
	enabled := next(c.st.autoRefresh)
	changed := c.st.autoRefresh != enabled
	c.st.autoRefresh = enabled
	if changed {
		c.broadcastLocked()
	}
	c.mu.Unlock()

	telemetry.SetAutoRefresh(enabled)
	if changed {
		slog.Info("auto refresh toggled", slog.Bool("enabled", enabled), slog.String("component", "dashboard"))
		if enabled {
			c.wake()
		}
	}
	return enabled
}

// RequestRefresh asks the scheduler to fetch as soon as it can, regardless
// of the auto refresh setting.
func (c *Controller) RequestRefresh() {
	if c.Channel() != "" {
		c.wake()
	}
}

func (c *Controller) wake() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Refresh fetches a fresh snapshot for the current channel and applies it.
// It never runs two fetches at once: a call made while another fetch is in
// flight returns ErrFetchInFlight without doing anything.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.st.channel == "" {
		c.mu.Unlock()
		return ErrNoChannel
	}
	if c.st.inFlight {
		c.mu.Unlock()
		telemetry.RecordPollSkipped()
		return ErrFetchInFlight
	}
	fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	c.st.inFlight = true
	c.st.cancelFetch = cancel
	channel, gen := c.st.channel, c.st.generation
	c.broadcastLocked()
	c.mu.Unlock()

	telemetry.RecordPollStarted()

	var (
		res *twitchapi.Chatters
		err error
	)
	telemetry.TimeFunc(telemetry.FetchDuration, func() {
		res, err = c.source.Fetch(fctx, channel)
	})
	return c.apply(ctx, channel, gen, res, err)
}

// apply installs a fetch result issued for channel under generation gen.
func (c *Controller) apply(ctx context.Context, channel string, gen uint64, res *twitchapi.Chatters, fetchErr error) error {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("channel", channel), slog.String("component", "dashboard"))

	c.mu.Lock()
	defer c.mu.Unlock()

	// Only one fetch runs at a time, so the one finishing is the one in flight.
	c.st.inFlight = false
	c.st.cancelFetch = nil

	if gen != c.st.generation {
		telemetry.RecordStaleDiscarded()
		log.Info("discarding response for previous channel", slog.String("current", c.st.channel))
		c.broadcastLocked()
		// The switch's own fetch may have been refused while this one drained.
		if c.st.channel != "" {
			c.wake()
		}
		return ErrStaleResponse
	}

	if fetchErr == nil && res == nil {
		fetchErr = errors.New("source returned no chatters")
	}
	if fetchErr != nil {
		c.st.lastError = fetchErr.Error()
		c.broadcastLocked()
		telemetry.RecordPollFailed()
		log.Warn("chatters fetch failed", slog.Any("err", fetchErr))
		return fetchErr
	}

	// The snapshot being replaced becomes the baseline for "new".
	c.st.seen = chatters.Flatten(c.st.snapshot)
	c.st.snapshot = res.Snapshot
	if c.st.snapshot == nil {
		c.st.snapshot = chatters.Snapshot{}
	}
	c.st.count = res.Count
	c.st.lastUpdated = c.clock.Now()
	c.st.lastError = ""

	sections := chatters.ClassifyAll(c.st.snapshot, c.st.seen)
	newAccounts := 0
	for _, s := range sections {
		newAccounts += len(s.New)
	}
	perCategory := make(map[string]int, len(chatters.Categories))
	for _, cat := range chatters.Categories {
		perCategory[string(cat)] = len(c.st.snapshot[cat])
	}
	telemetry.RecordSnapshot(c.st.count, c.st.seen.Len(), newAccounts, perCategory)
	log.Debug("chatters applied", slog.Int("count", c.st.count), slog.Int("new", newAccounts), slog.Int("seen", c.st.seen.Len()))

	c.broadcastViewLocked(c.viewLocked(sections))
	return nil
}
