package inference_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Lugha/internal/lugha/failure"
	"github.com/bdobrica/Lugha/internal/lugha/inference"
)

// scripted replays results in order, repeating the last one.
type scripted struct {
	name    string
	mu      sync.Mutex
	results []inference.Result
	calls   int
}

func (s *scripted) Name() string { return s.name }

func (s *scripted) Generate(ctx context.Context, req inference.Request) inference.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i]
}

func fastConfig(maxRetries int) inference.Config {
	return inference.Config{MaxRetries: maxRetries, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func request() inference.Request {
	return inference.Request{Messages: []inference.Message{
		{Role: inference.RoleSystem, Content: "sys"},
		{Role: inference.RoleUser, Content: "hi"},
	}}
}

func TestComplete_LoadingThenSuccessWithinBudget(t *testing.T) {
	const maxRetries = 4
	for n := 0; n <= maxRetries; n++ {
		results := make([]inference.Result, 0, n+1)
		for i := 0; i < n; i++ {
			results = append(results, inference.Loading{RetryAfter: time.Millisecond})
		}
		results = append(results, inference.Success{Text: "ok", Model: "m"})

		b := &scripted{name: "primary", results: results}
		g := inference.NewGateway(fastConfig(maxRetries), b)

		resp, err := g.Complete(context.Background(), request())
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, "ok", resp.Text)
		assert.Equal(t, n+1, resp.Attempts)
		assert.LessOrEqual(t, b.calls, maxRetries+1)
	}
}

func TestComplete_TerminalAdvancesToNextVariant(t *testing.T) {
	first := &scripted{name: "a", results: []inference.Result{inference.Terminal{Err: errors.New("401")}}}
	second := &scripted{name: "b", results: []inference.Result{inference.Success{Text: "<think>plan</think> Webale!", Model: "mb"}}}
	g := inference.NewGateway(fastConfig(3), first, second)

	resp, err := g.Complete(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, 1, first.calls, "terminal results must not be retried")
	assert.Equal(t, "b", resp.Backend)
	assert.Equal(t, "Webale!", resp.Text)
	assert.Equal(t, 2, resp.Attempts)
}

func TestComplete_ExhaustionReturnsFallback(t *testing.T) {
	first := &scripted{name: "a", results: []inference.Result{inference.Transient{Err: errors.New("timeout")}}}
	second := &scripted{name: "b", results: []inference.Result{inference.Loading{}}}
	g := inference.NewGateway(fastConfig(2), first, second)

	resp, err := g.Complete(context.Background(), request())
	require.Nil(t, resp)
	assert.True(t, errors.Is(err, failure.ErrModelUnavailable))

	var fb *inference.FallbackResult
	require.True(t, errors.As(err, &fb))
	assert.Equal(t, 6, fb.Attempts)
	assert.Len(t, fb.Failures, 2)
	assert.Equal(t, 3, first.calls)
	assert.Equal(t, 3, second.calls)
}

func TestComplete_EmptyCompletionRetried(t *testing.T) {
	b := &scripted{name: "a", results: []inference.Result{
		inference.Success{Text: "<think>only thoughts</think>"},
		inference.Success{Text: "answer"},
	}}
	g := inference.NewGateway(fastConfig(1), b)
	resp, err := g.Complete(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Text)
}

func TestComplete_PreferredBackendFirst(t *testing.T) {
	a := &scripted{name: "a", results: []inference.Result{inference.Success{Text: "from a"}}}
	b := &scripted{name: "b", results: []inference.Result{inference.Success{Text: "from b"}}}
	g := inference.NewGateway(fastConfig(0), a, b)

	req := request()
	req.Backend = "b"
	resp, err := g.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "from b", resp.Text)
	assert.Equal(t, 0, a.calls)
	assert.Equal(t, []string{"a", "b"}, g.Backends())
}

func TestComplete_ContextCancelled(t *testing.T) {
	b := &scripted{name: "a", results: []inference.Result{inference.Loading{RetryAfter: time.Second}}}
	g := inference.NewGateway(inference.Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second}, b)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Complete(ctx, request())
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestComplete_NoBackends(t *testing.T) {
	g := inference.NewGateway(fastConfig(0))
	_, err := g.Complete(context.Background(), request())
	assert.True(t, errors.Is(err, failure.ErrModelUnavailable))
}

func TestRequest_SystemOverride(t *testing.T) {
	req := request()
	assert.Equal(t, "sys", req.System())
	req.SystemOverride = "other"
	assert.Equal(t, "other", req.System())
	assert.Len(t, req.Conversation(), 1)
}
