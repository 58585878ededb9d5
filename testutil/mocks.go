// Package testutil provides test doubles shared across packages.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/onnwee/twitch-dashboard/backend/chatters"
)

// MockTMIServer creates a test server that mocks the TMI chatters endpoint.
// Responses are registered per lower-cased channel name.
type MockTMIServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
}

// NewMockTMIServer creates a new mock TMI server
func NewMockTMIServer(t *testing.T) *MockTMIServer {
	t.Helper()
	m := &MockTMIServer{
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		channel, ok := channelFromPath(r.URL.Path)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		m.mu.Lock()
		m.hits[channel]++
		handler, found := m.handlers[channel]
		m.mu.Unlock()
		if !found {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

// channelFromPath extracts <channel> from /group/user/<channel>/chatters.
func channelFromPath(p string) (string, bool) {
	rest, ok := strings.CutPrefix(p, "/group/user/")
	if !ok {
		return "", false
	}
	channel, ok := strings.CutSuffix(rest, "/chatters")
	if !ok || channel == "" || strings.Contains(channel, "/") {
		return "", false
	}
	return channel, true
}

// MockChatters serves snapshot for channel, wrapped in the {"data": ...}
// envelope the endpoint uses.
func (m *MockTMIServer) MockChatters(channel string, count int, snapshot chatters.Snapshot) {
	lists := make(map[string][]string, len(chatters.Categories))
	for _, c := range chatters.Categories {
		lists[string(c)] = append([]string{}, snapshot[c]...)
	}
	body := map[string]any{
		"data": map[string]any{
			"chatter_count": count,
			"chatters":      lists,
		},
	}
	m.set(channel, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
	})
}

// MockStatus makes requests for channel fail with status.
func (m *MockTMIServer) MockStatus(channel string, status int) {
	m.set(channel, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(status), status)
	})
}

// Hits returns how many requests were made for channel.
func (m *MockTMIServer) Hits(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[strings.ToLower(channel)]
}

func (m *MockTMIServer) set(channel string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[strings.ToLower(channel)] = h
}
