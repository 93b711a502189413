package audio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Lugha/common/retry"
	"github.com/bdobrica/Lugha/common/spec/inbound"
	"github.com/bdobrica/Lugha/internal/lugha/failure"
)

type staticResolver struct {
	url string
	err error
}

func (r staticResolver) ResolveMedia(ctx context.Context, media inbound.Media) (*Location, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &Location{URL: r.url, Header: http.Header{"Authorization": {"Bearer media-token"}}}, nil
}

type recordingBlob struct {
	calls atomic.Int32
}

func (b *recordingBlob) Put(ctx context.Context, key, path, mimeType string) (string, error) {
	b.calls.Add(1)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return "https://blobs.example/" + key, nil
}

type fakeTranscriber struct {
	name   string
	text   string
	err    error
	panics bool
	calls  atomic.Int32
}

func (f *fakeTranscriber) Name() string { return f.name }

func (f *fakeTranscriber) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	f.calls.Add(1)
	if f.panics {
		panic("transcriber exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &TranscribeResult{Text: f.text, Language: req.Language}, nil
}

type harness struct {
	tempDir string
	hits    *atomic.Int32
	blob    *recordingBlob
	primary *fakeTranscriber
	basic   *fakeTranscriber
	p       *Pipeline
}

func newHarness(t *testing.T, status int, body []byte, cfg Config) *harness {
	t.Helper()
	hits := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Bearer media-token", r.Header.Get("Authorization"))
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)

	h := &harness{
		tempDir: t.TempDir(),
		hits:    hits,
		blob:    &recordingBlob{},
		primary: &fakeTranscriber{name: "primary", text: "Nnyinza ntya okufuna ssente?"},
		basic:   &fakeTranscriber{name: "basic", text: "basic transcript"},
	}
	cfg.TempDir = h.tempDir
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	}
	h.p = New(cfg, Deps{
		Resolvers: map[inbound.Channel]MediaResolver{inbound.ChannelWhatsApp: staticResolver{url: srv.URL}},
		Blob:      h.blob,
		Primary:   h.primary,
		Basic:     h.basic,
		HTTP:      srv.Client(),
	})
	return h
}

func (h *harness) assertNoTempFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary voice file outlived the pipeline")
}

func (h *harness) run() (*Transcript, error) {
	return h.p.Process(context.Background(), inbound.ChannelWhatsApp, inbound.Media{ID: "media-1", Voice: true}, "lug")
}

func TestProcess_Success(t *testing.T) {
	h := newHarness(t, http.StatusOK, makeOpus(2*48000, 312), Config{})

	tr, err := h.run()
	require.NoError(t, err)
	assert.Equal(t, "Nnyinza ntya okufuna ssente?", tr.Text)
	assert.Equal(t, "lug", tr.Language)
	assert.Equal(t, 2*time.Second, tr.Duration)
	assert.Equal(t, "primary", tr.Variant)
	assert.Contains(t, tr.BlobURL, "https://blobs.example/voice/")
	assert.Contains(t, tr.BlobURL, ".ogg")
	assert.EqualValues(t, 0, h.basic.calls.Load())
	h.assertNoTempFiles(t)
}

func TestProcess_DownloadFailsEveryRetry(t *testing.T) {
	h := newHarness(t, http.StatusBadGateway, []byte("upstream down"), Config{})

	_, err := h.run()
	require.Error(t, err)
	assert.True(t, failure.IsTerminal(err))
	assert.Equal(t, GuidanceUnavailable, failure.Guidance(err, ""))
	assert.EqualValues(t, 3, h.hits.Load())
	assert.EqualValues(t, 0, h.blob.calls.Load())
	h.assertNoTempFiles(t)
}

func TestProcess_ClientErrorNotRetried(t *testing.T) {
	h := newHarness(t, http.StatusNotFound, nil, Config{})
	_, err := h.run()
	assert.True(t, failure.IsTerminal(err))
	assert.EqualValues(t, 1, h.hits.Load())
	h.assertNoTempFiles(t)
}

func TestProcess_CorruptAudioIsTerminal(t *testing.T) {
	h := newHarness(t, http.StatusOK, []byte("<html>this link has expired</html>"), Config{})

	_, err := h.run()
	require.Error(t, err)
	assert.Equal(t, GuidanceUnreadable, failure.Guidance(err, ""))
	assert.EqualValues(t, 1, h.hits.Load(), "validation failures are not retried")
	assert.EqualValues(t, 0, h.blob.calls.Load())
	h.assertNoTempFiles(t)
}

func TestProcess_TooLong(t *testing.T) {
	h := newHarness(t, http.StatusOK, makeWAV(3, 8000), Config{MaxDuration: 2 * time.Second})
	_, err := h.run()
	assert.Equal(t, GuidanceTooLong, failure.Guidance(err, ""))
	h.assertNoTempFiles(t)
}

func TestProcess_HugeGranuleIsTooLong(t *testing.T) {
	h := newHarness(t, http.StatusOK, makeOpus(1<<38, 0), Config{})
	_, err := h.run()
	assert.Equal(t, GuidanceTooLong, failure.Guidance(err, ""))
	assert.EqualValues(t, 0, h.blob.calls.Load())
	h.assertNoTempFiles(t)
}

func TestProcess_TooLarge(t *testing.T) {
	h := newHarness(t, http.StatusOK, makeWAV(2, 8000), Config{MaxBytes: 1024})
	_, err := h.run()
	assert.Equal(t, GuidanceTooLong, failure.Guidance(err, ""))
	h.assertNoTempFiles(t)
}

func TestProcess_PrimaryFailsBasicServes(t *testing.T) {
	h := newHarness(t, http.StatusOK, makeWAV(1, 8000), Config{})
	h.primary.err = failure.Transient("transcribe", errors.New("503"))

	tr, err := h.run()
	require.NoError(t, err)
	assert.Equal(t, "basic", tr.Variant)
	assert.Equal(t, "basic transcript", tr.Text)
	assert.EqualValues(t, 1, h.primary.calls.Load())
	assert.EqualValues(t, 1, h.basic.calls.Load())
	h.assertNoTempFiles(t)
}

func TestProcess_BothTranscribersFail(t *testing.T) {
	h := newHarness(t, http.StatusOK, makeWAV(1, 8000), Config{})
	h.primary.err = errors.New("primary down")
	h.basic.err = errors.New("basic down")

	_, err := h.run()
	require.Error(t, err)
	assert.Equal(t, GuidanceNotHeard, failure.Guidance(err, ""))
	assert.EqualValues(t, 1, h.basic.calls.Load(), "basic variant is tried exactly once")
	h.assertNoTempFiles(t)
}

func TestProcess_EmptyTranscript(t *testing.T) {
	h := newHarness(t, http.StatusOK, makeWAV(1, 8000), Config{})
	h.primary.text = "   "
	_, err := h.run()
	assert.Equal(t, GuidanceNotHeard, failure.Guidance(err, ""))
	h.assertNoTempFiles(t)
}

func TestProcess_PanicStillRemovesTempFile(t *testing.T) {
	h := newHarness(t, http.StatusOK, makeWAV(1, 8000), Config{})
	h.primary.panics = true

	func() {
		defer func() {
			assert.NotNil(t, recover(), "expected panic to propagate")
		}()
		_, _ = h.run()
	}()
	h.assertNoTempFiles(t)
}

func TestProcess_UnknownChannel(t *testing.T) {
	h := newHarness(t, http.StatusOK, nil, Config{})
	_, err := h.p.Process(context.Background(), inbound.ChannelMatrix, inbound.Media{ID: "mxc://x/y"}, "")
	assert.True(t, failure.IsTerminal(err))
	h.assertNoTempFiles(t)
}

func TestProcess_CancelledContext(t *testing.T) {
	h := newHarness(t, http.StatusOK, makeWAV(1, 8000), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.p.Process(ctx, inbound.ChannelWhatsApp, inbound.Media{ID: "m"}, "")
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	h.assertNoTempFiles(t)
}
