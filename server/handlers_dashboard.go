package server

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/onnwee/twitch-dashboard/backend/chatters"
	"github.com/onnwee/twitch-dashboard/backend/dashboard"
)

//go:embed templates/dashboard.html
var templateFS embed.FS

var dashboardTmpl = template.Must(template.ParseFS(templateFS, "templates/dashboard.html"))

type dashboardPage struct {
	dashboard.View
	Threshold int
}

// HandleDashboard renders the HTML dashboard for the current view.
func (h *Handlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	page := dashboardPage{View: h.dash.View(), Threshold: chatters.LargeCategoryThreshold}

	// render to a buffer so a template error still yields a clean 500
	var buf bytes.Buffer
	if err := dashboardTmpl.Execute(&buf, page); err != nil {
		slog.Error("failed to render dashboard", slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
