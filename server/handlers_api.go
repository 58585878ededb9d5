package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/twitch-dashboard/backend/dashboard"
	"github.com/onnwee/twitch-dashboard/backend/telemetry"
)

// HandleChatters returns the current dashboard view as JSON.
func (h *Handlers) HandleChatters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dash.View())
}

// HandleSetChannel switches the watched channel. An empty value stops
// watching altogether.
func (h *Handlers) HandleSetChannel(w http.ResponseWriter, r *http.Request) {
	name, ok, err := readField(w, r, "channel")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "channel is required")
		return
	}
	if h.dash.SetChannel(name) {
		telemetry.LoggerWithCorr(r.Context()).Info("channel set via api", slog.String("channel", name), slog.String("component", "http"))
	}
	h.respondView(w, r, http.StatusOK)
}

// HandleRefresh fetches immediately and returns the resulting view.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	// A client hanging up must not turn into a recorded fetch failure; the
	// controller's fetch timeout still bounds the call.
	err := h.dash.Refresh(context.WithoutCancel(r.Context()))
	if isFormPost(r) {
		h.respondView(w, r, http.StatusOK)
		return
	}
	switch {
	case err == nil:
		h.respondView(w, r, http.StatusOK)
	case errors.Is(err, dashboard.ErrNoChannel):
		writeError(w, http.StatusConflict, "no channel selected")
	case errors.Is(err, dashboard.ErrFetchInFlight):
		writeError(w, http.StatusConflict, "refresh already in progress")
	case errors.Is(err, dashboard.ErrStaleResponse):
		writeError(w, http.StatusConflict, "channel changed during refresh")
	default:
		telemetry.LoggerWithCorr(r.Context()).Warn("manual refresh failed", slog.Any("err", err), slog.String("component", "http"))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// HandleAutoRefresh sets the auto refresh toggle from the "enabled" field,
// or flips it when the field is absent.
func (h *Handlers) HandleAutoRefresh(w http.ResponseWriter, r *http.Request) {
	raw, ok, err := readField(w, r, "enabled")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !ok {
		h.dash.ToggleAutoRefresh()
		h.respondView(w, r, http.StatusOK)
		return
	}
	enabled, err := parseBool(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "enabled must be a boolean")
		return
	}
	h.dash.SetAutoRefresh(enabled)
	h.respondView(w, r, http.StatusOK)
}
