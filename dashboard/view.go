package dashboard

import (
	"strconv"
	"time"

	"github.com/onnwee/twitch-dashboard/backend/chatters"
	"github.com/onnwee/twitch-dashboard/backend/telemetry"
)

// View is the presentation model of the dashboard.
type View struct {
	Channel string `json:"channel"`
	// Count is nil until a snapshot for Channel has been applied.
	Count       *int               `json:"chatter_count"`
	Sections    []chatters.Section `json:"sections"`
	AutoRefresh bool               `json:"auto_refresh"`
	Loading     bool               `json:"loading"`
	LastUpdated *time.Time         `json:"last_updated,omitempty"`
	LastError   string             `json:"last_error,omitempty"`
	// RefreshSeconds is the auto refresh period.
	RefreshSeconds int `json:"refresh_seconds"`
}

// CountLabel renders the chatter count, or "?" before the first snapshot.
func (v View) CountLabel() string {
	if v.Count == nil {
		return "?"
	}
	return strconv.Itoa(*v.Count)
}

// Truncated reports whether any section withheld its returning accounts.
func (v View) Truncated() bool {
	for _, s := range v.Sections {
		if s.Truncated {
			return true
		}
	}
	return false
}

// View returns the current presentation model.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked(chatters.ClassifyAll(c.st.snapshot, c.st.seen))
}

func (c *Controller) viewLocked(sections []chatters.Section) View {
	v := View{
		Channel:        c.st.channel,
		Sections:       sections,
		AutoRefresh:    c.st.autoRefresh,
		Loading:        c.st.inFlight,
		LastError:      c.st.lastError,
		RefreshSeconds: int(c.interval / time.Second),
	}
	if c.st.snapshot != nil {
		n := c.st.count
		v.Count = &n
	}
	if !c.st.lastUpdated.IsZero() {
		t := c.st.lastUpdated
		v.LastUpdated = &t
	}
	return v
}

// Subscribe registers for view updates. Slow subscribers only ever see the
// most recent view. The returned function unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()
	telemetry.AddEventSubscribers(1)

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[ch]; !ok {
			return
		}
		delete(c.subs, ch)
		close(ch)
		telemetry.AddEventSubscribers(-1)
	}
}

// broadcastLocked publishes the current view. Must be called with mu held.
func (c *Controller) broadcastLocked() {
	if len(c.subs) == 0 {
		return
	}
	c.broadcastViewLocked(c.viewLocked(chatters.ClassifyAll(c.st.snapshot, c.st.seen)))
}

func (c *Controller) broadcastViewLocked(v View) {
	for ch := range c.subs {
		select {
		case ch <- v:
		default:
			// replace the pending view with the newer one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}
