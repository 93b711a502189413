package whatsapp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Lugha/common/spec/inbound"
	"github.com/bdobrica/Lugha/internal/lugha/failure"
	"github.com/bdobrica/Lugha/internal/lugha/whatsapp"
)

func TestClient_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer wa-token", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "whatsapp", body["messaging_product"])
		assert.Equal(t, "256772123456", body["to"])
		assert.Equal(t, "Oli otya!", body["text"].(map[string]any)["body"])

		w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.OUT"}]}`))
	}))
	defer srv.Close()

	c := whatsapp.NewClient(whatsapp.ClientConfig{BaseURL: srv.URL, PhoneNumberID: "12345", AccessToken: "wa-token"}, srv.Client())
	d, err := c.Send(context.Background(), "256772123456", "Oli otya!")
	require.NoError(t, err)
	assert.Equal(t, "wamid.OUT", d.MessageID)
}

func TestClient_SendErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad recipient", http.StatusBadRequest, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"error":{"message":"(#131030) Recipient phone number not in allowed list","code":131030}}`))
			}))
			defer srv.Close()

			c := whatsapp.NewClient(whatsapp.ClientConfig{BaseURL: srv.URL, PhoneNumberID: "1"}, srv.Client())
			_, err := c.Send(context.Background(), "2", "hi")
			require.Error(t, err)
			assert.Equal(t, tc.transient, failure.IsTransient(err))
			assert.Contains(t, err.Error(), "131030")
		})
	}
}

func TestClient_ResolveMedia(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1037543291543636", r.URL.Path)
		assert.Equal(t, "Bearer wa-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"url":"` + srv.URL + `/download/abc","mime_type":"audio/ogg","file_size":4096,"id":"1037543291543636"}`))
	}))
	defer srv.Close()

	c := whatsapp.NewClient(whatsapp.ClientConfig{BaseURL: srv.URL, AccessToken: "wa-token"}, srv.Client())
	loc, err := c.ResolveMedia(context.Background(), inbound.Media{ID: "1037543291543636"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/download/abc", loc.URL)
	assert.Equal(t, "Bearer wa-token", loc.Header.Get("Authorization"))
	assert.Equal(t, "audio/ogg", loc.MIMEType)
	assert.EqualValues(t, 4096, loc.Size)
}

func TestClient_ResolveMediaNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Unsupported get request","code":100}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := whatsapp.NewClient(whatsapp.ClientConfig{BaseURL: srv.URL}, srv.Client())
	_, err := c.ResolveMedia(context.Background(), inbound.Media{ID: "gone"})
	assert.True(t, failure.IsTerminal(err))
}
