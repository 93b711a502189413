package whatsapp_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Lugha/common/spec/inbound"
	"github.com/bdobrica/Lugha/internal/lugha/whatsapp"
)

const appSecret = "app-secret-value"

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newWebhook(secret string) (*whatsapp.Webhook, *[]*inbound.Event) {
	var got []*inbound.Event
	h := whatsapp.NewWebhook(whatsapp.WebhookConfig{VerifyToken: "verify-me", AppSecret: secret},
		func(evt *inbound.Event) { got = append(got, evt) })
	return h, &got
}

func TestVerify(t *testing.T) {
	h, _ := newWebhook("")
	cases := []struct {
		name  string
		query string
		code  int
		body  string
	}{
		{"hub params", "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", http.StatusOK, "1158201444"},
		{"plain params", "mode=subscribe&verify_token=verify-me&challenge=abc", http.StatusOK, "abc"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=abc", http.StatusForbidden, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=abc", http.StatusForbidden, ""},
		{"missing challenge", "hub.mode=subscribe&hub.verify_token=verify-me", http.StatusBadRequest, ""},
		{"no params", "", http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?"+tc.query, nil))
			assert.Equal(t, tc.code, rec.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}

const textPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "102290129340398",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "contacts": [{"profile": {"name": "Nakato"}, "wa_id": "256772123456"}],
        "messages": [
          {"from": "256772123456", "id": "wamid.TEXT", "timestamp": "1717000000", "type": "text", "text": {"body": "Webale nyo"}},
          {"from": "256772123456", "id": "wamid.VOICE", "timestamp": "1717000001", "type": "audio",
           "audio": {"id": "1037543291543636", "mime_type": "audio/ogg; codecs=opus", "voice": true}},
          {"from": "256772123456", "id": "wamid.BTN", "timestamp": "1717000002", "type": "interactive",
           "interactive": {"type": "button_reply", "button_reply": {"id": "lang-lug", "title": "Luganda"}}},
          {"from": "256772123456", "id": "wamid.IMG", "timestamp": "1717000003", "type": "image", "image": {"id": "9"}}
        ]
      }
    }]
  }]
}`

func TestDeliver_NormalisesMessages(t *testing.T) {
	h, got := newWebhook(appSecret)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload))
	req.Header.Set(whatsapp.SignatureHeader, sign(textPayload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, *got, 3, "image message should be skipped")

	text := (*got)[0]
	assert.Equal(t, "wamid.TEXT", text.ID)
	assert.Equal(t, inbound.ChannelWhatsApp, text.Channel)
	assert.Equal(t, "256772123456", text.SenderID)
	assert.Equal(t, "256772123456", text.ReplyTo)
	assert.Equal(t, "Nakato", text.DisplayName)
	assert.Equal(t, inbound.TypeText, text.Type)
	assert.Equal(t, "Webale nyo", text.Text)
	assert.Equal(t, int64(1717000000), text.TS.Unix())

	voice := (*got)[1]
	assert.Equal(t, inbound.TypeAudio, voice.Type)
	require.NotNil(t, voice.Media)
	assert.Equal(t, "1037543291543636", voice.Media.ID)
	assert.True(t, voice.Media.Voice)

	btn := (*got)[2]
	assert.Equal(t, inbound.TypeInteractive, btn.Type)
	assert.Equal(t, "Luganda", btn.Text)
}

func TestDeliver_StatusCallbacksIgnored(t *testing.T) {
	h, got := newWebhook("")
	body := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{
		"messaging_product":"whatsapp","statuses":[{"id":"wamid.X","status":"delivered","recipient_id":"256772123456"}]}}]}]}`

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, *got)
}

func TestDeliver_BadSignature(t *testing.T) {
	h, got := newWebhook(appSecret)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload))
	req.Header.Set(whatsapp.SignatureHeader, "sha256=deadbeef")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, *got)
}

func TestDeliver_SchemaViolation(t *testing.T) {
	h, got := newWebhook("")
	cases := map[string]string{
		"not json":        `{"object":`,
		"no entry":        `{"object":"whatsapp_business_account"}`,
		"message no from": `{"object":"x","entry":[{"changes":[{"value":{"messages":[{"id":"a","type":"text","text":{"body":"hi"}}]}}]}]}`,
		"text no body":    `{"object":"x","entry":[{"changes":[{"value":{"messages":[{"from":"1","id":"a","type":"text"}]}}]}]}`,
		"audio no id":     `{"object":"x","entry":[{"changes":[{"value":{"messages":[{"from":"1","id":"a","type":"audio","audio":{}}]}}]}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, *got)
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	h, _ := newWebhook("")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	assert.True(t, whatsapp.ValidateSignature([]byte(appSecret), body, sign(string(body))))
	assert.False(t, whatsapp.ValidateSignature([]byte(appSecret), body, ""))
	assert.False(t, whatsapp.ValidateSignature([]byte(appSecret), body, "sha1=abc"))
	assert.False(t, whatsapp.ValidateSignature([]byte(appSecret), body, "sha256=zz"))
	assert.False(t, whatsapp.ValidateSignature([]byte("other"), body, sign(string(body))))
}
