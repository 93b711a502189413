package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/Lugha/common/retry"
	"github.com/bdobrica/Lugha/internal/lugha/failure"
	"github.com/bdobrica/Lugha/internal/lugha/observability"
)

// Config is the gateway retry configuration. It is read-only after
// NewGateway.
type Config struct {
	// MaxRetries is the number of retries per variant; each variant gets at
	// most MaxRetries+1 attempts.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// MaxElapsed bounds the time spent on one variant, including backoff.
	MaxElapsed time.Duration
}

// Gateway calls backend variants in order with retry and fallback.
// It is safe for concurrent use.
type Gateway struct {
	backends []Backend
	policy   retry.Policy
}

// NewGateway creates a gateway over backends, tried in the given order.
func NewGateway(cfg Config, backends ...Backend) *Gateway {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Gateway{
		backends: backends,
		policy: retry.Policy{
			MaxAttempts:  cfg.MaxRetries + 1,
			InitialDelay: cfg.InitialDelay,
			MaxDelay:     cfg.MaxDelay,
			MaxElapsed:   cfg.MaxElapsed,
			ShouldRetry:  failure.IsTransient,
		},
	}
}

// Backends returns the configured variant names in order.
func (g *Gateway) Backends() []string {
	names := make([]string, len(g.backends))
	for i, b := range g.backends {
		names[i] = b.Name()
	}
	return names
}

// Complete runs req against each variant until one succeeds. When every
// variant is exhausted it returns a *FallbackResult. A cancelled ctx returns
// the context error.
func (g *Gateway) Complete(ctx context.Context, req Request) (*Response, error) {
	log := observability.WithTrace(ctx)
	start := time.Now()
	total := 0
	var failures []error

	for _, b := range g.order(req.Backend) {
		var out Success
		policy := g.policy
		policy.OnRetry = func(attempt int, err error, delay time.Duration) {
			log.Info("inference attempt failed, backing off",
				"backend", b.Name(), "attempt", attempt, "delay", delay, "err", err)
		}

		attempts, err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
			res := b.Generate(ctx, req)
			return toError(b.Name(), res, &out)
		})
		total += attempts

		if err == nil {
			resp := &Response{
				Text:     Clean(out.Text),
				Backend:  b.Name(),
				Model:    out.Model,
				Usage:    out.Usage,
				Latency:  time.Since(start),
				Attempts: total,
			}
			log.Debug("inference complete",
				"backend", resp.Backend, "model", resp.Model, "attempts", total,
				"latency_ms", resp.Latency.Milliseconds(), "tokens", resp.Usage.Total())
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		log.Warn("inference backend exhausted", "backend", b.Name(), "attempts", attempts, "err", err)
		failures = append(failures, fmt.Errorf("%s: %w", b.Name(), err))
	}

	if len(failures) == 0 {
		failures = append(failures, errors.New("no backends configured"))
	}
	return nil, &FallbackResult{Attempts: total, Failures: failures}
}

// toError converts a Result into the retry loop's error vocabulary.
func toError(name string, res Result, out *Success) error {
	op := "inference." + name
	switch r := res.(type) {
	case Success:
		if Clean(r.Text) == "" {
			return failure.Transient(op, errors.New("empty completion"))
		}
		*out = r
		return nil
	case Loading:
		return failure.Transient(op, &loadingError{wait: r.RetryAfter})
	case Transient:
		return failure.Transient(op, r.Err)
	case Terminal:
		return failure.Terminal(op, r.Err, "")
	default:
		return failure.Terminal(op, fmt.Errorf("unexpected result %T", res), "")
	}
}

// order puts the preferred variant first, keeping the rest in order.
func (g *Gateway) order(preferred string) []Backend {
	if preferred == "" {
		return g.backends
	}
	out := make([]Backend, 0, len(g.backends))
	for _, b := range g.backends {
		if strings.EqualFold(b.Name(), preferred) {
			out = append(out, b)
		}
	}
	for _, b := range g.backends {
		if !strings.EqualFold(b.Name(), preferred) {
			out = append(out, b)
		}
	}
	return out
}
