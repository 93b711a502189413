// Package dispatch sends replies through the messaging platforms and records
// the exchange in the context store.
//
// Delivery and persistence are asymmetric: a failed send is
// returned to the caller, while a failed turn write is only logged. Turns are
// written on a detached context after the send so a slow store never delays
// the reply.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bdobrica/Lugha/common/spec/inbound"
	"github.com/bdobrica/Lugha/internal/lugha/failure"
	"github.com/bdobrica/Lugha/internal/lugha/memory"
	"github.com/bdobrica/Lugha/internal/lugha/observability"
)

// Delivery is the platform's acknowledgement of a sent message.
type Delivery struct {
	MessageID string
}

// Messenger sends plain text to a recipient on one platform.
type Messenger interface {
	Send(ctx context.Context, recipient, text string) (Delivery, error)
}

// Outbound is one reply plus the exchange it concludes.
type Outbound struct {
	Channel   inbound.Channel
	Recipient string
	UserID    string
	Text      string

	// UserTurn is the inbound message. When nil the exchange is not
	// persisted.
	UserTurn *memory.Turn
	// Language and TurnType label the bot turn.
	Language string
	TurnType string
}

// Config tunes outbound throttling and background persistence.
type Config struct {
	// RatePerSecond is the sustained send rate per channel. Zero disables
	// throttling.
	RatePerSecond float64
	Burst         int
	// PersistTimeout bounds each background turn write.
	PersistTimeout time.Duration
}

// DefaultPersistTimeout applies when Config.PersistTimeout is zero.
const DefaultPersistTimeout = 10 * time.Second

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	cfg        Config
	store      memory.ContextStore
	messengers map[inbound.Channel]Messenger
	limiters   map[inbound.Channel]*rate.Limiter
	wg         sync.WaitGroup
}

// New creates a Dispatcher. store may be nil, in which case nothing is
// persisted.
func New(cfg Config, store memory.ContextStore, messengers map[inbound.Channel]Messenger) *Dispatcher {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	d := &Dispatcher{
		cfg:        cfg,
		store:      store,
		messengers: messengers,
		limiters:   make(map[inbound.Channel]*rate.Limiter, len(messengers)),
	}
	for ch := range messengers {
		limit := rate.Inf
		if cfg.RatePerSecond > 0 {
			limit = rate.Limit(cfg.RatePerSecond)
		}
		d.limiters[ch] = rate.NewLimiter(limit, cfg.Burst)
	}
	return d
}

// Dispatch sends out.Text and schedules persistence of the exchange. The
// user turn is always recorded; the bot turn only when the send succeeded.
// A send failure is returned as *failure.DeliveryError.
func (d *Dispatcher) Dispatch(ctx context.Context, out Outbound) (Delivery, error) {
	delivery, err := d.send(ctx, out)
	d.persist(ctx, out, err == nil)
	return delivery, err
}

func (d *Dispatcher) send(ctx context.Context, out Outbound) (Delivery, error) {
	deliveryErr := func(err error) error {
		return &failure.DeliveryError{Channel: string(out.Channel), Recipient: out.Recipient, Err: err}
	}

	m, ok := d.messengers[out.Channel]
	if !ok {
		return Delivery{}, deliveryErr(fmt.Errorf("no messenger for channel %q", out.Channel))
	}
	if out.Text == "" {
		return Delivery{}, deliveryErr(errors.New("empty reply"))
	}
	if err := d.limiters[out.Channel].Wait(ctx); err != nil {
		return Delivery{}, deliveryErr(err)
	}

	delivery, err := m.Send(ctx, out.Recipient, out.Text)
	if err != nil {
		return Delivery{}, deliveryErr(err)
	}
	observability.WithTrace(ctx).Debug("reply delivered",
		"channel", out.Channel, "recipient", out.Recipient, "message_id", delivery.MessageID)
	return delivery, nil
}

func (d *Dispatcher) persist(ctx context.Context, out Outbound, delivered bool) {
	if d.store == nil || out.UserTurn == nil {
		return
	}
	userTurn := *out.UserTurn
	var botTurn *memory.Turn
	if delivered {
		t := memory.NewTurn(memory.SpeakerBot, out.Text, out.Language, out.TurnType)
		botTurn = &t
	}

	// Keep the trace ID but not the request deadline.
	bg := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(bg, d.cfg.PersistTimeout)
		defer cancel()
		log := observability.WithTrace(ctx)

		if err := d.store.AppendTurn(ctx, out.UserID, userTurn); err != nil {
			log.Error("failed to persist user turn", "err", &failure.PersistenceError{UserID: out.UserID, Err: err})
		}
		if botTurn == nil {
			return
		}
		if err := d.store.AppendTurn(ctx, out.UserID, *botTurn); err != nil {
			log.Error("failed to persist bot turn", "err", &failure.PersistenceError{UserID: out.UserID, Err: err})
		}
	}()
}

// Wait blocks until all scheduled turn writes have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
