package app

import (
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bdobrica/Lugha/common/spec/inbound"
)

// ingressHandler accepts pre-normalised events on POST /events from trusted
// internal callers (replays, other channel bridges) authenticated by a
// bearer token.
type ingressHandler struct {
	token  string
	submit func(*inbound.Event) bool
}

func (h *ingressHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}
	evt, err := inbound.Parse(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !h.submit(evt) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy"})
		return
	}
	slog.Debug("ingress: event accepted", "channel", evt.Channel, "event", evt.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "id": evt.ID})
}
