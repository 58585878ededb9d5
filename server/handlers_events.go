package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/twitch-dashboard/backend/dashboard"
	"github.com/onnwee/twitch-dashboard/backend/telemetry"
)

// eventHeartbeat keeps idle SSE connections open through proxies.
var eventHeartbeat = 15 * time.Second

// HandleEvents streams dashboard views as server-sent events. The current
// view is sent first, then one "view" event per state change.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	updates, unsubscribe := h.dash.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "sse"))
	log.Debug("event stream opened")
	defer log.Debug("event stream closed")

	if err := writeViewEvent(w, h.dash.View()); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(eventHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.ctx.Done():
			// server shutting down; request contexts are not canceled by Shutdown
			return
		case v, ok := <-updates:
			if !ok {
				return
			}
			if err := writeViewEvent(w, v); err != nil {
				log.Debug("failed to write SSE event", slog.Any("err", err))
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeViewEvent(w http.ResponseWriter, v dashboard.View) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: view\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}
