package audio

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSBlobStore_PutAndServe(t *testing.T) {
	store := &FSBlobStore{Dir: t.TempDir(), PublicBaseURL: "https://media.example/"}
	src := writeFile(t, makeWAV(1, 8000))

	url, err := store.Put(context.Background(), "voice/2026/10/19/abc.wav", src, "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, "https://media.example/voice/2026/10/19/abc.wav", url)

	// A leftover upload that never got renamed into place.
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir, "voice", "2026", "10", "19", ".upload-123"), []byte("partial"), 0o600))

	srv := httptest.NewServer(store.Handler())
	defer srv.Close()

	get := func(p string) (int, string) {
		resp, err := http.Get(srv.URL + p)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	status, body := get("/voice/2026/10/19/abc.wav")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(makeWAV(1, 8000)), body)

	for _, p := range []string{"/", "/voice/", "/voice/2026/10/19/", "/voice/2026/10/19", "/voice/2026/10/19/.upload-123"} {
		status, body := get(p)
		assert.Equal(t, http.StatusNotFound, status, p)
		assert.NotContains(t, body, "abc.wav", p)
	}
}

func TestFSBlobStore_RejectsEscapingKey(t *testing.T) {
	store := &FSBlobStore{Dir: t.TempDir()}
	src := writeFile(t, makeWAV(1, 8000))
	_, err := store.Put(context.Background(), "", src, "audio/wav")
	assert.Error(t, err)
}
