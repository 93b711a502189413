package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats struct{ s PoolStats }

func (f fixedStats) Stats() PoolStats { return f.s }

func TestHealth(t *testing.T) {
	hs := NewHTTPServer(":0", nil, serviceInfo{})

	rec := httptest.NewRecorder()
	hs.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.NotEmpty(t, body.Version)
}

func TestStatus_ReportsPoolAndServices(t *testing.T) {
	hs := NewHTTPServer(":0", fixedStats{PoolStats{Workers: 8, InFlight: 2, Queued: 1, Handled: 40, Dropped: 3}}, serviceInfo{
		Backends: []string{"primary", "basic"},
		Channels: []string{"whatsapp"},
		Store:    "sqlite",
	})

	rec := httptest.NewRecorder()
	hs.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "sqlite", body["store"])
	assert.Equal(t, []any{"primary", "basic"}, body["backends"])
	assert.Equal(t, []any{"whatsapp"}, body["channels"])
	pool := body["pool"].(map[string]any)
	assert.EqualValues(t, 8, pool["workers"])
	assert.EqualValues(t, 40, pool["events_handled"])
	assert.EqualValues(t, 3, pool["events_dropped"])
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	hs := NewHTTPServer(":0", nil, serviceInfo{})

	rec := httptest.NewRecorder()
	hs.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandle_RegistersExtraRoutes(t *testing.T) {
	hs := NewHTTPServer(":0", nil, serviceInfo{})
	hs.Handle("GET /extra", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	hs.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/extra", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}
