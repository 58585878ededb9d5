package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/twitch-dashboard/backend/chatters"
	"github.com/onnwee/twitch-dashboard/backend/twitchapi"
)

const reconnectDelay = 5 * time.Second

// ircClient is the subset of *twitch.Client the roster drives.
type ircClient interface {
	Join(channels ...string)
	Depart(channel string)
	Connect() error
	Disconnect() error
}

// Roster keeps the membership of one joined channel.
type Roster struct {
	client ircClient

	mu      sync.Mutex
	channel string
	members map[string]struct{}
	roles   map[string]chatters.Category
}

// NewRoster creates a roster backed by an anonymous IRC connection. Call Run
// to connect.
func NewRoster() *Roster {
	c := twitch.NewAnonymousClient()
	c.Capabilities = []string{twitch.TagsCapability, twitch.CommandsCapability, twitch.MembershipCapability}
	r := newRoster(c)

	c.OnUserJoinMessage(func(m twitch.UserJoinMessage) { r.handleJoin(m.Channel, m.User) })
	c.OnUserPartMessage(func(m twitch.UserPartMessage) { r.handlePart(m.Channel, m.User) })
	c.OnNamesMessage(func(m twitch.NamesMessage) { r.handleNames(m.Channel, m.Users) })
	c.OnPrivateMessage(func(m twitch.PrivateMessage) { r.handleMessage(m.Channel, m.User.Name, m.User.Badges) })
	c.OnConnect(func() { slog.Info("irc roster connected", slog.String("component", "chat")) })
	return r
}

func newRoster(client ircClient) *Roster {
	return &Roster{
		client:  client,
		members: make(map[string]struct{}),
		roles:   make(map[string]chatters.Category),
	}
}

// Run keeps the IRC connection open until ctx is canceled, reconnecting after
// failures.
func (r *Roster) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = r.client.Disconnect()
	}()
	for {
		if ctx.Err() != nil {
			return
		}
		err := r.client.Connect()
		if ctx.Err() != nil {
			return
		}
		slog.Warn("irc roster disconnected", slog.Any("err", err), slog.String("component", "chat"))
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// Fetch returns the current roster of channel. The first call for a channel
// joins it and yields an empty snapshot; membership fills in as JOIN and
// NAMES messages arrive.
func (r *Roster) Fetch(_ context.Context, channel string) (*twitchapi.Chatters, error) {
	channel = strings.ToLower(strings.TrimSpace(channel))
	if channel == "" {
		return nil, twitchapi.ErrChannelEmpty
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if channel != r.channel {
		if r.channel != "" {
			r.client.Depart(r.channel)
		}
		r.channel = channel
		r.members = make(map[string]struct{})
		r.roles = make(map[string]chatters.Category)
		r.client.Join(channel)
		slog.Info("irc roster joined channel", slog.String("channel", channel), slog.String("component", "chat"))
	}

	snap := make(chatters.Snapshot, len(chatters.Categories))
	for name := range r.members {
		cat := chatters.Viewers
		if name == r.channel {
			cat = chatters.Broadcaster
		} else if role, ok := r.roles[name]; ok {
			cat = role
		}
		snap[cat] = append(snap[cat], name)
	}
	return &twitchapi.Chatters{Count: len(r.members), Snapshot: snap}, nil
}

func (r *Roster) handleJoin(channel, user string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.accepts(channel) {
		r.members[strings.ToLower(user)] = struct{}{}
	}
}

func (r *Roster) handlePart(channel, user string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.accepts(channel) {
		delete(r.members, strings.ToLower(user))
	}
}

func (r *Roster) handleNames(channel string, users []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.accepts(channel) {
		return
	}
	for _, u := range users {
		r.members[strings.ToLower(u)] = struct{}{}
	}
}

// handleMessage marks the sender present and records their role. Sending a
// message implies presence even if the JOIN was never delivered.
func (r *Roster) handleMessage(channel, user string, badges map[string]int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.accepts(channel) {
		return
	}
	name := strings.ToLower(user)
	r.members[name] = struct{}{}
	if role, ok := roleFromBadges(badges); ok {
		r.roles[name] = role
	} else {
		delete(r.roles, name)
	}
}

// accepts reports whether a message for channel belongs to the joined channel.
// Must be called with mu held.
func (r *Roster) accepts(channel string) bool {
	return r.channel != "" && strings.EqualFold(strings.TrimPrefix(channel, "#"), r.channel)
}

func roleFromBadges(badges map[string]int) (chatters.Category, bool) {
	switch {
	case badges["broadcaster"] > 0:
		return chatters.Broadcaster, true
	case badges["moderator"] > 0:
		return chatters.Moderators, true
	case badges["vip"] > 0:
		return chatters.VIPs, true
	}
	return "", false
}
