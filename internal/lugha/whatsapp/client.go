package whatsapp

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

	"github.com/bdobrica/Lugha/common/spec/inbound"
	"github.com/bdobrica/Lugha/common/version"
	"github.com/bdobrica/Lugha/internal/lugha/audio"
	"github.com/bdobrica/Lugha/internal/lugha/dispatch"
	"github.com/bdobrica/Lugha/internal/lugha/failure"
)

// DefaultBaseURL is the Graph API root.
const DefaultBaseURL = "https://graph.facebook.com/v21.0"

// maxTextRunes is the Cloud API limit for a text message body.
const maxTextRunes = 4096

// ClientConfig configures the Cloud API client.
type ClientConfig struct {
	BaseURL       string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
}

// Client sends messages and resolves media. It implements
// dispatch.Messenger and audio.MediaResolver.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

var (
	_ dispatch.Messenger  = (*Client)(nil)
	_ audio.MediaResolver = (*Client)(nil)
)

// NewClient creates a Client. hc may be nil.
func NewClient(cfg ClientConfig, hc *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{cfg: cfg, http: hc}
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             sendText `json:"text"`
}

type sendText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type mediaResponse struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
	ID       string `json:"id"`
}

// Send posts a text message to recipient (a WhatsApp ID).
func (c *Client) Send(ctx context.Context, recipient, text string) (dispatch.Delivery, error) {
	body, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               recipient,
		Type:             "text",
		Text:             sendText{Body: truncateRunes(text, maxTextRunes)},
	})
	if err != nil {
		return dispatch.Delivery{}, fmt.Errorf("whatsapp: marshal message: %w", err)
	}

	var out sendResponse
	path := "/" + c.cfg.PhoneNumberID + "/messages"
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return dispatch.Delivery{}, err
	}
	if len(out.Messages) == 0 {
		return dispatch.Delivery{}, errors.New("whatsapp: send response carried no message ID")
	}
	return dispatch.Delivery{MessageID: out.Messages[0].ID}, nil
}

// ResolveMedia looks up the short-lived download URL for a media ID. The
// download itself needs the same bearer token.
func (c *Client) ResolveMedia(ctx context.Context, media inbound.Media) (*audio.Location, error) {
	var out mediaResponse
	if err := c.do(ctx, http.MethodGet, "/"+media.ID, nil, &out); err != nil {
		return nil, err
	}
	if out.URL == "" {
		return nil, failure.Terminal("whatsapp.media", errors.New("media lookup returned no URL"), audio.GuidanceUnavailable)
	}
	mimeType := out.MIMEType
	if mimeType == "" {
		mimeType = media.MIMEType
	}
	return &audio.Location{
		URL:      out.URL,
		Header:   http.Header{"Authorization": {"Bearer " + c.cfg.AccessToken}},
		MIMEType: mimeType,
		Size:     out.FileSize,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	op := "whatsapp" + strings.ReplaceAll(path, "/", ".")
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rd)
	if err != nil {
		return failure.Terminal(op, err, "")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return failure.Transient(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return failure.Transient(op, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		var ae apiError
		if json.Unmarshal(data, &ae) == nil && ae.Error.Message != "" {
			msg = fmt.Sprintf("%s (code %d)", ae.Error.Message, ae.Error.Code)
		}
		err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return failure.Transient(op, err)
		}
		return failure.Terminal(op, err, "")
	}

	if err := json.Unmarshal(data, out); err != nil {
		return failure.Terminal(op, fmt.Errorf("decode response: %w", err), "")
	}
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
