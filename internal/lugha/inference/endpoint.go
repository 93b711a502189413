package inference

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

	"github.com/bdobrica/Lugha/common/version"
)

const defaultEndpointTimeout = 60 * time.Second

// EndpointConfig configures a hosted model endpoint.
type EndpointConfig struct {
	Name    string
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// EndpointBackend calls a hosted inference endpoint that answers with
// {"output": ...} on success and reports cold starts as
// {"status": "loading", "estimated_time": seconds}, usually with HTTP 503.
type EndpointBackend struct {
	cfg    EndpointConfig
	client *http.Client
}

// NewEndpoint returns an EndpointBackend. hc may be nil.
func NewEndpoint(cfg EndpointConfig, hc *http.Client) *EndpointBackend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultEndpointTimeout
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Model
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &EndpointBackend{cfg: cfg, client: hc}
}

// Name implements Backend.
func (b *EndpointBackend) Name() string { return b.cfg.Name }

// --- endpoint wire types ---

type endpointRequest struct {
	Messages      []Message `json:"messages"`
	Model         string    `json:"model,omitempty"`
	Temperature   float64   `json:"temperature"`
	SystemMessage string    `json:"system_message,omitempty"`
}

type endpointResponse struct {
	Output        *string        `json:"output"`
	GeneratedText *string        `json:"generated_text"`
	Model         string         `json:"model"`
	Status        string         `json:"status"`
	EstimatedTime float64        `json:"estimated_time"`
	Error         string         `json:"error"`
	Usage         *endpointUsage `json:"usage"`
}

type endpointUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Generate implements Backend.
func (b *EndpointBackend) Generate(ctx context.Context, req Request) Result {
	body, err := json.Marshal(endpointRequest{
		Messages:      req.Conversation(),
		Model:         b.cfg.Model,
		Temperature:   req.Temperature,
		SystemMessage: req.System(),
	})
	if err != nil {
		return Terminal{Err: fmt.Errorf("marshal request: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Terminal{Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	if b.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return Transient{Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Transient{Err: fmt.Errorf("read body: %w", err)}
	}

	var wire endpointResponse
	decodeErr := json.Unmarshal(data, &wire)

	if decodeErr == nil && (strings.EqualFold(wire.Status, "loading") || strings.Contains(strings.ToLower(wire.Error), "loading")) {
		return Loading{RetryAfter: time.Duration(wire.EstimatedTime * float64(time.Second))}
	}

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return Loading{}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Transient{Err: statusError(resp.StatusCode, wire.Error, data)}
	case resp.StatusCode >= 400:
		return Terminal{Err: statusError(resp.StatusCode, wire.Error, data)}
	}

	if decodeErr != nil {
		return Transient{Err: fmt.Errorf("decode response: %w", decodeErr)}
	}
	if wire.Error != "" {
		return Terminal{Err: errors.New(wire.Error)}
	}

	var text string
	switch {
	case wire.Output != nil:
		text = *wire.Output
	case wire.GeneratedText != nil:
		text = *wire.GeneratedText
	default:
		return Transient{Err: errors.New("response carries no output")}
	}

	out := Success{Text: text, Model: wire.Model}
	if out.Model == "" {
		out.Model = b.cfg.Model
	}
	if wire.Usage != nil {
		out.Usage = Usage{PromptTokens: wire.Usage.PromptTokens, CompletionTokens: wire.Usage.CompletionTokens}
	}
	return out
}

func statusError(code int, msg string, body []byte) error {
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	return fmt.Errorf("HTTP %d: %s", code, msg)
}
