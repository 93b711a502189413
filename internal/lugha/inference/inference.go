// Package inference is the gateway to the generative language backends.
//
// Each Backend converts its wire responses into a tagged Result at the
// boundary. The Gateway retries Loading and Transient results under a shared
// retry.Policy, moves to the next configured variant on Terminal results or
// exhausted retries, and reports total exhaustion as a *FallbackResult.
package inference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/Lugha/internal/lugha/failure"
)

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is an ephemeral inference request.
type Request struct {
	Messages []Message
	// Backend names the variant to try first. Empty keeps configured order.
	Backend     string
	Temperature float64
	// SystemOverride replaces any system message in Messages.
	SystemOverride string
}

// System returns the effective system message.
func (r Request) System() string {
	if r.SystemOverride != "" {
		return r.SystemOverride
	}
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			return m.Content
		}
	}
	return ""
}

// Conversation returns the non-system messages in order.
func (r Request) Conversation() []Message {
	out := make([]Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// Usage is token accounting reported by a backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Total returns prompt plus completion tokens.
func (u Usage) Total() int { return u.PromptTokens + u.CompletionTokens }

// Response is a successful, cleaned completion.
type Response struct {
	Text     string
	Backend  string
	Model    string
	Usage    Usage
	Latency  time.Duration
	Attempts int
}

// Result is the tagged outcome of one backend call: Success, Loading,
// Transient, or Terminal.
type Result interface {
	result()
}

// Success carries generated text.
type Success struct {
	Text  string
	Model string
	Usage Usage
}

// Loading means the backend is cold-starting. RetryAfter is its estimate,
// zero when unknown.
type Loading struct {
	RetryAfter time.Duration
}

// Transient is a retryable failure (network, timeout, 429, 5xx).
type Transient struct {
	Err error
}

// Terminal is a failure retrying will not fix (auth, bad request, unknown
// model).
type Terminal struct {
	Err error
}

func (Success) result()   {}
func (Loading) result()   {}
func (Transient) result() {}
func (Terminal) result()  {}

// Backend is one model variant.
type Backend interface {
	// Name identifies the variant in logs and responses.
	Name() string
	Generate(ctx context.Context, req Request) Result
}

// FallbackResult is returned by Gateway.Complete when no variant could
// serve the request. It matches failure.ErrModelUnavailable. The caller
// chooses the fallback content.
type FallbackResult struct {
	Attempts int
	Failures []error
}

func (f *FallbackResult) Error() string {
	parts := make([]string, len(f.Failures))
	for i, err := range f.Failures {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("inference: %v after %d attempts: %s",
		failure.ErrModelUnavailable, f.Attempts, strings.Join(parts, "; "))
}

func (f *FallbackResult) Unwrap() []error {
	return append([]error{failure.ErrModelUnavailable}, f.Failures...)
}

// loadingError adapts Loading to retry.Hinter.
type loadingError struct {
	wait time.Duration
}

func (e *loadingError) Error() string {
	if e.wait > 0 {
		return fmt.Sprintf("model loading (estimated %s)", e.wait)
	}
	return "model loading"
}

func (e *loadingError) RetryAfter() time.Duration { return e.wait }
