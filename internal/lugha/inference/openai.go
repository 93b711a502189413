package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIConfig configures an OpenAI-compatible chat backend.
type OpenAIConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIBackend calls the chat completions API through openai-go. SDK
// retries are disabled; the gateway policy owns retrying.
type OpenAIBackend struct {
	cfg    OpenAIConfig
	client openai.Client
}

// NewOpenAI returns an OpenAIBackend. hc may be nil.
func NewOpenAI(cfg OpenAIConfig, hc *http.Client) *OpenAIBackend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultEndpointTimeout
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
	return &OpenAIBackend{cfg: cfg, client: openai.NewClient(opts...)}
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string { return b.cfg.Name }

// Generate implements Backend.
func (b *OpenAIBackend) Generate(ctx context.Context, req Request) Result {
	var msgs []openai.ChatCompletionMessageParamUnion
	if sys := req.System(); sys != "" {
		msgs = append(msgs, openai.SystemMessage(sys))
	}
	for _, m := range req.Conversation() {
		if m.Role == RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    msgs,
		Model:       openai.ChatModel(b.cfg.Model),
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		return classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return Transient{Err: errors.New("no choices in response")}
	}

	model := resp.Model
	if model == "" {
		model = b.cfg.Model
	}
	return Success{
		Text:  resp.Choices[0].Message.Content,
		Model: model,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}
}

func classifyOpenAIError(err error) Result {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusServiceUnavailable:
			return Loading{}
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500:
			return Transient{Err: err}
		default:
			return Terminal{Err: err}
		}
	}
	if errors.Is(err, context.Canceled) {
		return Terminal{Err: err}
	}
	return Transient{Err: fmt.Errorf("chat completion: %w", err)}
}
