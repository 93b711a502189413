// Package whatsapp implements the WhatsApp Cloud API channel: the webhook
// endpoint Meta calls for verification and message delivery, and the client
// used to send replies and resolve voice-note media.
package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bdobrica/Lugha/common/spec/inbound"
)

// maxBodyBytes caps the webhook POST body.
const maxBodyBytes = 1 << 20

// SignatureHeader carries the HMAC-SHA256 of the body keyed by the app secret.
const SignatureHeader = "X-Hub-Signature-256"

// Enqueuer accepts a normalised event for asynchronous processing. It must
// not block on the pipeline.
type Enqueuer func(evt *inbound.Event)

// WebhookConfig configures the webhook handler.
type WebhookConfig struct {
	// VerifyToken is echoed back by Meta during subscription verification.
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 checking when non-empty.
	AppSecret string
}

// Webhook serves GET (verification) and POST (delivery) on one path.
type Webhook struct {
	cfg     WebhookConfig
	enqueue Enqueuer
}

// NewWebhook returns a Webhook that hands every accepted event to enqueue.
func NewWebhook(cfg WebhookConfig, enqueue Enqueuer) *Webhook {
	return &Webhook{cfg: cfg, enqueue: enqueue}
}

// ServeHTTP implements http.Handler.
func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.deliver(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// verify answers the subscription handshake. Meta sends hub.mode,
// hub.verify_token and hub.challenge; the unprefixed names are accepted too.
func (h *Webhook) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	param := func(name string) string {
		if v := q.Get("hub." + name); v != "" {
			return v
		}
		return q.Get(name)
	}
	mode, token, challenge := param("mode"), param("verify_token"), param("challenge")

	if mode == "" || token == "" || challenge == "" {
		http.Error(w, "missing verification parameters", http.StatusBadRequest)
		return
	}
	if mode != "subscribe" || h.cfg.VerifyToken == "" ||
		!hmac.Equal([]byte(token), []byte(h.cfg.VerifyToken)) {
		slog.Warn("whatsapp: webhook verification rejected", "mode", mode)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

func (h *Webhook) deliver(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxBodyBytes {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}

	if h.cfg.AppSecret != "" && !ValidateSignature([]byte(h.cfg.AppSecret), body, r.Header.Get(SignatureHeader)) {
		slog.Warn("whatsapp: webhook signature mismatch", "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	n, err := ParseNotification(body)
	if err != nil {
		slog.Warn("whatsapp: rejected webhook payload", "err", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	events := n.Events()
	for _, evt := range events {
		h.enqueue(evt)
	}
	if len(events) > 0 {
		slog.Debug("whatsapp: queued inbound events", "count", len(events))
	}
	w.WriteHeader(http.StatusOK)
}

// ValidateSignature checks sigHeader ("sha256=<hex>") against the
// HMAC-SHA256 of body keyed by secret, in constant time.
func ValidateSignature(secret, body []byte, sigHeader string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(sigHeader, prefix) {
		return false
	}
	expected, err := hex.DecodeString(sigHeader[len(prefix):])
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
