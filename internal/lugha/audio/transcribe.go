package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/bdobrica/Lugha/common/version"
	"github.com/bdobrica/Lugha/internal/lugha/failure"
)

const defaultTranscribeTimeout = 120 * time.Second

// HTTPTranscriberConfig configures a hosted transcription endpoint.
type HTTPTranscriberConfig struct {
	Name    string
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// HTTPTranscriber posts the blob URL and language hint as JSON and expects
// {"text": ..., "language": ...} back.
type HTTPTranscriber struct {
	cfg    HTTPTranscriberConfig
	client *http.Client
}

// NewHTTPTranscriber returns an HTTPTranscriber. hc may be nil.
func NewHTTPTranscriber(cfg HTTPTranscriberConfig, hc *http.Client) *HTTPTranscriber {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTranscribeTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "http"
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPTranscriber{cfg: cfg, client: hc}
}

// Name implements Transcriber.
func (t *HTTPTranscriber) Name() string { return t.cfg.Name }

type transcribeRequest struct {
	AudioURL string `json:"audio_url"`
	Language string `json:"language,omitempty"`
	Model    string `json:"model,omitempty"`
}

type transcribeResponse struct {
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
	Language   string `json:"language"`
}

// Transcribe implements Transcriber.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	const op = "transcribe"
	body, err := json.Marshal(transcribeRequest{AudioURL: req.BlobURL, Language: req.Language, Model: t.cfg.Model})
	if err != nil {
		return nil, failure.Terminal(op, err, "")
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, failure.Terminal(op, err, "")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	if t.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, failure.Transient(op, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, failure.Transient(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, failure.Transient(op, err)
		}
		return nil, failure.Terminal(op, err, "")
	}

	var out transcribeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, failure.Terminal(op, fmt.Errorf("decode response: %w", err), "")
	}
	text := out.Text
	if text == "" {
		text = out.Transcript
	}
	return &TranscribeResult{Text: text, Language: out.Language}, nil
}

// OpenAITranscriberConfig configures a Whisper-compatible transcription API.
type OpenAITranscriberConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAITranscriber uploads the local file to an OpenAI-compatible
// /audio/transcriptions endpoint.
type OpenAITranscriber struct {
	cfg    OpenAITranscriberConfig
	client openai.Client
}

// NewOpenAITranscriber returns an OpenAITranscriber. hc may be nil.
func NewOpenAITranscriber(cfg OpenAITranscriberConfig, hc *http.Client) *OpenAITranscriber {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTranscribeTimeout
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.AudioModelWhisper1)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Model
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if hc != nil {
		opts = append(opts, option.WithHTTPClient(hc))
	}
	return &OpenAITranscriber{cfg: cfg, client: openai.NewClient(opts...)}
}

// Name implements Transcriber.
func (t *OpenAITranscriber) Name() string { return t.cfg.Name }

// whisperLanguage maps canonical codes to the ISO-639-1 hints Whisper
// accepts. Languages without a two-letter code are left to detection.
var whisperLanguage = map[string]string{
	"eng": "en",
	"lug": "lg",
}

// Transcribe implements Transcriber.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	const op = "transcribe.openai"
	f, err := os.Open(req.Path)
	if err != nil {
		return nil, failure.Terminal(op, err, "")
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(f, "voice"+ext(req.MIMEType), req.MIMEType),
		Model: openai.AudioModel(t.cfg.Model),
	}
	if code, ok := whisperLanguage[req.Language]; ok {
		params.Language = openai.String(code)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests {
			return nil, failure.Terminal(op, err, "")
		}
		return nil, failure.Transient(op, err)
	}
	return &TranscribeResult{Text: resp.Text, Language: req.Language}, nil
}
