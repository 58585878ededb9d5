// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultChannel is the channel watched when TWITCH_CHANNEL is unset.
const DefaultChannel = "LindseyRooney"

// DefaultRefreshInterval is how often chatters are re-fetched while auto refresh is on.
const DefaultRefreshInterval = 20 * time.Second

// Source selects how chatter snapshots are acquired.
type Source string

const (
	// SourceTMI polls the public tmi.twitch.tv chatters endpoint.
	SourceTMI Source = "tmi"
	// SourceIRC tracks membership anonymously over Twitch IRC.
	SourceIRC Source = "irc"
)

type Config struct {
	// Twitch
	TwitchChannel string
	TMIBaseURL    string
	Source        Source

	// Polling
	AutoRefresh     bool
	RefreshInterval time.Duration
	FetchTimeout    time.Duration

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	// An explicitly empty TWITCH_CHANNEL starts the dashboard idle.
	if v, ok := os.LookupEnv("TWITCH_CHANNEL"); ok {
		cfg.TwitchChannel = strings.TrimSpace(v)
	} else {
		cfg.TwitchChannel = DefaultChannel
	}

	cfg.TMIBaseURL = strings.TrimRight(os.Getenv("TMI_BASE_URL"), "/")
	if cfg.TMIBaseURL == "" {
		cfg.TMIBaseURL = "https://tmi.twitch.tv"
	}

	switch src := Source(strings.ToLower(os.Getenv("CHATTERS_SOURCE"))); src {
	case "", SourceTMI:
		cfg.Source = SourceTMI
	case SourceIRC:
		cfg.Source = SourceIRC
	default:
		return nil, fmt.Errorf("invalid CHATTERS_SOURCE %q (want tmi or irc)", src)
	}

	cfg.AutoRefresh = true
	if v := os.Getenv("AUTO_REFRESH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid AUTO_REFRESH: %w", err)
		}
		cfg.AutoRefresh = b
	}

	var err error
	if cfg.RefreshInterval, err = durationEnv("REFRESH_INTERVAL", DefaultRefreshInterval); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = durationEnv("FETCH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
