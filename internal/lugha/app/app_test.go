package app_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Lugha/internal/lugha/app"
	"github.com/bdobrica/Lugha/internal/lugha/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Database.Path = filepath.Join(dir, "lugha.db")
	cfg.Server.IngressToken = "ingress-token"
	cfg.Inference.Backends = []config.BackendConfig{
		{Name: "primary", Kind: config.KindEndpoint, URL: "http://127.0.0.1:1/generate"},
		{Name: "basic", Kind: config.KindOpenAI, URL: "http://127.0.0.1:1/v1", Model: "small"},
	}
	cfg.Audio.TempDir = filepath.Join(dir, "tmp")
	cfg.Audio.Blob = config.BlobConfig{Kind: config.KindFS, Dir: filepath.Join(dir, "media"), PublicBaseURL: "https://lugha.example/media"}
	cfg.Audio.Primary = config.TranscriberConfig{Kind: config.KindHTTP, URL: "http://127.0.0.1:1/transcribe"}
	cfg.WhatsApp = config.WhatsAppConfig{
		Enabled:       true,
		PhoneNumberID: "1234",
		AccessToken:   "wa-token",
		VerifyToken:   "verify-me",
	}
	cfg.SetDefaults()
	require.NoError(t, os.MkdirAll(cfg.Audio.Blob.Dir, 0o755))
	return cfg
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestNew_WiresRoutes(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Audio.Blob.Dir, "note.ogg"), []byte("OggS"), 0o644))

	a, err := app.New(cfg)
	require.NoError(t, err)
	defer a.Stop()
	h := a.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)

	rec := get(t, h, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42")
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "42", string(body))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(t, h, "/media/note.ogg")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/media/missing.ogg").Code)
	rec = get(t, h, "/media/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "note.ogg")

	rec = get(t, h, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "sqlite", status["store"])
	assert.Equal(t, []any{"whatsapp"}, status["channels"])
	assert.Equal(t, []any{"primary", "basic"}, status["backends"])
}

func TestNew_WithoutDatabaseUsesMemory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = ""
	cfg.Server.IngressToken = ""

	a, err := app.New(cfg)
	require.NoError(t, err)
	defer a.Stop()

	rec := get(t, a.Handler(), "/status")
	var status map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "memory", status["store"])

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNew_UnknownBackendKind(t *testing.T) {
	cfg := testConfig(t)
	cfg.Inference.Backends[0].Kind = "carrier-pigeon"

	_, err := app.New(cfg)
	assert.ErrorContains(t, err, "carrier-pigeon")
}
