package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

// maxBodyBytes caps request bodies; the API only accepts tiny payloads.
const maxBodyBytes = 4 << 10

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx  context.Context
	dash Dashboard
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, d Dashboard) *Handlers {
	return &Handlers{ctx: ctx, dash: d}
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err))
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// isFormPost reports whether r came from an HTML form rather than the JSON API.
func isFormPost(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/x-www-form-urlencoded"
}

// readField extracts a single named field from either a JSON object body or
// form values (query parameters included). ok is false when the field is absent.
func readField(w http.ResponseWriter, r *http.Request, name string) (val string, ok bool, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if isFormPost(r) || r.Header.Get("Content-Type") == "" {
		if err := r.ParseForm(); err != nil {
			return "", false, err
		}
		if _, present := r.Form[name]; !present {
			return "", false, nil
		}
		return r.Form.Get(name), true, nil
	}
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return "", false, err
	}
	raw, present := body[name]
	if !present {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true, nil
	}
	// non-string JSON scalars (true, 3) are passed through verbatim
	return strings.TrimSpace(string(raw)), true, nil
}

// respondView answers a mutating request: forms are redirected back to the
// page, API clients get the current view.
func (h *Handlers) respondView(w http.ResponseWriter, r *http.Request, status int) {
	if isFormPost(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, status, h.dash.View())
}

// parseBool accepts the usual spellings plus the "on" an HTML checkbox sends.
func parseBool(s string) (bool, error) {
	if strings.EqualFold(strings.TrimSpace(s), "on") {
		return true, nil
	}
	if strings.EqualFold(strings.TrimSpace(s), "off") {
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}
