// Package translate is a client for the hosted translation and language
// identification service. It backs the "$ translate" command and the
// deterministic fallback used when every inference backend is unavailable.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bdobrica/Lugha/common/retry"
	"github.com/bdobrica/Lugha/common/version"
	"github.com/bdobrica/Lugha/internal/lugha/failure"
)

const defaultTimeout = 30 * time.Second

// ErrNotConfigured is returned when no service URL was configured.
var ErrNotConfigured = errors.New("translate: service not configured")

// Config configures the translation client.
type Config struct {
	// URL is the service base; requests go to {URL}/translate and
	// {URL}/language_id.
	URL string
	// APIKey is sent as a bearer token when set.
	APIKey  string
	Timeout time.Duration
	Retry   retry.Policy
}

// Client is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// New returns a Client. hc may be nil; its Timeout is overridden per call
// by cfg.Timeout through the request context.
func New(cfg Config, hc *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &Client{cfg: cfg, http: hc}
}

type translateRequest struct {
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Text           string `json:"text"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
}

type languageIDRequest struct {
	Text string `json:"text"`
}

type languageIDResponse struct {
	Language string `json:"language"`
}

// Translate converts text from source to target (canonical codes).
func (c *Client) Translate(ctx context.Context, source, target, text string) (string, error) {
	if source == target {
		return text, nil
	}
	var out translateResponse
	err := c.call(ctx, "translate", translateRequest{
		SourceLanguage: source,
		TargetLanguage: target,
		Text:           text,
	}, &out)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out.TranslatedText) == "" {
		return "", failure.Terminal("translate", errors.New("empty translation"), "")
	}
	return out.TranslatedText, nil
}

// Identify returns the canonical code of the language text is written in.
func (c *Client) Identify(ctx context.Context, text string) (string, error) {
	var out languageIDResponse
	if err := c.call(ctx, "language_id", languageIDRequest{Text: text}, &out); err != nil {
		return "", err
	}
	if out.Language == "" {
		return "", failure.Terminal("language_id", errors.New("empty language"), "")
	}
	return out.Language, nil
}

func (c *Client) call(ctx context.Context, path string, in, out any) error {
	if c.cfg.URL == "" {
		return ErrNotConfigured
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("translate: marshal %s: %w", path, err)
	}

	policy := c.cfg.Retry
	policy.ShouldRetry = failure.IsTransient
	_, err = policy.Do(ctx, func(ctx context.Context, _ int) error {
		return c.post(ctx, path, body, out)
	})
	return err
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/"+path, bytes.NewReader(body))
	if err != nil {
		return failure.Terminal(path, err, "")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return failure.Transient(path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return failure.Transient(path, fmt.Errorf("read body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return failure.Transient(path, fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet(data)))
	case resp.StatusCode >= 300:
		return failure.Terminal(path, fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet(data)), "")
	}

	if err := json.Unmarshal(data, out); err != nil {
		return failure.Terminal(path, fmt.Errorf("decode response: %w", err), "")
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}
