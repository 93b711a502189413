package app

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bdobrica/Lugha/common/spec/inbound"
	"github.com/bdobrica/Lugha/common/trace"
	"github.com/bdobrica/Lugha/internal/lugha/observability"
)

// HandleFunc processes one event.
type HandleFunc func(ctx context.Context, evt *inbound.Event) error

// PoolStats is a snapshot of the worker pool counters.
type PoolStats struct {
	Workers  int   `json:"workers"`
	InFlight int64 `json:"in_flight"`
	Queued   int64 `json:"queued"`
	Handled  int64 `json:"events_handled"`
	Failed   int64 `json:"events_failed"`
	Dropped  int64 `json:"events_dropped"`
}

// Pool runs each event in its own goroutine, at most Workers at a time,
// under a per-event deadline. Events beyond Workers+QueueSize waiting are
// dropped.
type Pool struct {
	base     context.Context
	handle   HandleFunc
	timeout  time.Duration
	workers  int
	capacity int64
	sem      *semaphore.Weighted
	wg       sync.WaitGroup

	pending  atomic.Int64
	inFlight atomic.Int64
	handled  atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

// NewPool creates a pool. Cancelling base stops queued events from
// starting; running events keep their own deadline.
func NewPool(base context.Context, workers, queueSize int, timeout time.Duration, handle HandleFunc) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		base:     base,
		handle:   handle,
		timeout:  timeout,
		workers:  workers,
		capacity: int64(workers + queueSize),
		sem:      semaphore.NewWeighted(int64(workers)),
	}
}

// Submit schedules evt and returns immediately. It reports false when the
// pool is saturated or shutting down.
func (p *Pool) Submit(evt *inbound.Event) bool {
	if p.base.Err() != nil {
		return false
	}
	if p.pending.Add(1) > p.capacity {
		p.pending.Add(-1)
		p.dropped.Add(1)
		slog.Warn("worker pool saturated; dropping event", "channel", evt.Channel, "event", evt.ID)
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.pending.Add(-1)

		if err := p.sem.Acquire(p.base, 1); err != nil {
			p.dropped.Add(1)
			return
		}
		defer p.sem.Release(1)

		p.inFlight.Add(1)
		defer p.inFlight.Add(-1)
		p.run(evt)
	}()
	return true
}

func (p *Pool) run(evt *inbound.Event) {
	ctx := trace.WithTraceID(context.WithoutCancel(p.base), trace.GenerateID())
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	log := observability.WithTrace(ctx)

	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			log.Error("event handler panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	start := time.Now()
	if err := p.handle(ctx, evt); err != nil {
		p.failed.Add(1)
		log.Warn("event finished with error", "event", evt.ID, "err", err, "elapsed", time.Since(start))
		return
	}
	p.handled.Add(1)
	log.Debug("event finished", "event", evt.ID, "elapsed", time.Since(start))
}

// Stats returns the current counters.
func (p *Pool) Stats() PoolStats {
	inFlight := p.inFlight.Load()
	return PoolStats{
		Workers:  p.workers,
		InFlight: inFlight,
		Queued:   max(p.pending.Load()-inFlight, 0),
		Handled:  p.handled.Load(),
		Failed:   p.failed.Load(),
		Dropped:  p.dropped.Load(),
	}
}

// Wait blocks until every submitted event has finished or been abandoned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
