// Package twitchapi contains a minimal client for the public Twitch chatters
// endpoint (tmi.twitch.tv), which lists the accounts present in a channel's
// chat grouped by role. No credentials are required.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/onnwee/twitch-dashboard/backend/chatters"
	"github.com/onnwee/twitch-dashboard/backend/telemetry"
)

// DefaultBaseURL is the host serving the chatters endpoint.
const DefaultBaseURL = "https://tmi.twitch.tv"

// ErrChannelEmpty is returned when Fetch is called without a channel.
var ErrChannelEmpty = errors.New("channel empty")

// StatusError is returned for non-200 responses.
type StatusError struct {
	Status     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chatters request failed: %s: %s", e.Status, e.Body)
}

// Chatters is one decoded chatters response.
type Chatters struct {
	Count    int
	Snapshot chatters.Snapshot
}

// ChattersClient fetches chatter listings for a channel.
type ChattersClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (c *ChattersClient) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *ChattersClient) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return DefaultBaseURL
}

// chattersPayload is the inner object of the response. tmi historically
// answered it bare; proxies and newer mirrors wrap it in {"data": ...}.
type chattersPayload struct {
	ChatterCount *int                `json:"chatter_count"`
	Chatters     map[string][]string `json:"chatters"`
}

type chattersEnvelope struct {
	Data *chattersPayload `json:"data"`
	chattersPayload
}

// Fetch retrieves the current chatters of channel. The channel name is
// lower-cased before building the request path.
func (c *ChattersClient) Fetch(ctx context.Context, channel string) (*Chatters, error) {
	channel = strings.ToLower(strings.TrimSpace(channel))
	if channel == "" {
		return nil, ErrChannelEmpty
	}

	ctx, span := telemetry.StartSpan(ctx, "twitchapi", "chatters.fetch", telemetry.ChannelAttr(channel))
	defer span.End()

	endpoint := c.baseURL() + "/group/user/" + url.PathEscape(channel) + "/chatters"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("chatters request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	telemetry.SetSpanHTTPStatus(span, resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := &StatusError{Status: resp.Status, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		telemetry.RecordError(span, err)
		return nil, err
	}

	var env chattersEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("decode chatters: %w", err)
	}
	payload := env.chattersPayload
	if env.Data != nil {
		payload = *env.Data
	}

	out := &Chatters{Snapshot: make(chatters.Snapshot, len(chatters.Categories))}
	for key, accounts := range payload.Chatters {
		cat, ok := chatters.ParseCategory(key)
		if !ok {
			// staff, admins, global_mods: not rendered anywhere
			continue
		}
		out.Snapshot[cat] = append([]string(nil), accounts...)
	}
	if payload.ChatterCount != nil {
		out.Count = *payload.ChatterCount
	} else {
		out.Count = out.Snapshot.Total()
	}
	telemetry.SetSpanSuccess(span)
	return out, nil
}
