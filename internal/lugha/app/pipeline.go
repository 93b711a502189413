package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bdobrica/Lugha/common/spec/inbound"
	"github.com/bdobrica/Lugha/common/trace"
	"github.com/bdobrica/Lugha/internal/lugha/audio"
	"github.com/bdobrica/Lugha/internal/lugha/classify"
	"github.com/bdobrica/Lugha/internal/lugha/commands"
	"github.com/bdobrica/Lugha/internal/lugha/dispatch"
	"github.com/bdobrica/Lugha/internal/lugha/failure"
	"github.com/bdobrica/Lugha/internal/lugha/inference"
	"github.com/bdobrica/Lugha/internal/lugha/lang"
	"github.com/bdobrica/Lugha/internal/lugha/memory"
	"github.com/bdobrica/Lugha/internal/lugha/observability"
	"github.com/bdobrica/Lugha/internal/lugha/prompt"
)

// Replies used when no generated text is available.
const (
	// Apology ends every fallback chain.
	Apology = "Sorry, I can't answer right now. Please try again in a few minutes."
	// Acknowledgement is translated into the user's language when the
	// model cannot answer a thank-you.
	Acknowledgement = "You're very welcome! I'm happy to help."
	// TranslationNotice introduces a direct translation sent instead of a
	// generated reply.
	TranslationNotice = "I can't reach my language model right now, so here is your message translated:"
	// VoicePlaceholder stands in for a voice message that produced no
	// transcript.
	VoicePlaceholder = "[voice message]"
)

// forgetTimeout bounds releasing an event ID after a failed delivery.
const forgetTimeout = 5 * time.Second

// Deduper records processed event IDs. ForgetEvent releases an ID whose
// event ended without a delivered reply, so the platform's redelivery is
// handled instead of dropped.
type Deduper interface {
	MarkEvent(ctx context.Context, eventID string) (fresh bool, err error)
	ForgetEvent(ctx context.Context, eventID string) error
}

// Completer is the inference gateway.
type Completer interface {
	Complete(ctx context.Context, req inference.Request) (*inference.Response, error)
}

// AudioProcessor turns a media reference into a transcript.
type AudioProcessor interface {
	Process(ctx context.Context, channel inbound.Channel, media inbound.Media, hint string) (*audio.Transcript, error)
}

// Dispatcher sends replies and records turns.
type Dispatcher interface {
	Dispatch(ctx context.Context, out dispatch.Outbound) (dispatch.Delivery, error)
}

// PipelineDeps are the collaborators of a Pipeline. Dedup and Translator
// may be nil.
type PipelineDeps struct {
	Store      memory.Store
	Dedup      Deduper
	Classifier *classify.Classifier
	Router     *commands.Router
	Inference  Completer
	Audio      AudioProcessor
	Translator commands.Translator
	Dispatcher Dispatcher

	DefaultLanguage string
	History         int
	Temperature     float64
}

// Pipeline handles one inbound event end to end.
type Pipeline struct {
	deps PipelineDeps
}

// NewPipeline creates a Pipeline.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.DefaultLanguage == "" {
		deps.DefaultLanguage = lang.Default
	}
	if deps.History <= 0 {
		deps.History = memory.DefaultHistory
	}
	return &Pipeline{deps: deps}
}

// Handle runs dedup, classification, the command, audio or text path,
// inference with fallback, and dispatch. The returned error is for logging;
// every user-visible outcome has already been dispatched.
//
// The event ID is claimed before processing so concurrent redeliveries are
// dropped. If no reply reaches the user the claim is released again.
func (p *Pipeline) Handle(ctx context.Context, evt *inbound.Event) (err error) {
	ctx = trace.Ensure(ctx)
	log := observability.WithTrace(ctx).With("channel", evt.Channel, "sender", evt.SenderID, "event", evt.ID)

	if p.deps.Dedup != nil && evt.ID != "" {
		fresh, markErr := p.deps.Dedup.MarkEvent(ctx, evt.ID)
		switch {
		case markErr != nil:
			log.Warn("event dedup unavailable; processing anyway", "err", markErr)
		case !fresh:
			log.Debug("dropping redelivered event")
			return nil
		default:
			defer func() {
				if undelivered(ctx, err) {
					p.release(ctx, evt.ID)
				}
			}()
		}
	}

	kind := p.deps.Classifier.Classify(evt)
	log = log.With("kind", kind)
	log.Info("handling inbound event")

	if kind == classify.KindCommand {
		return p.handleCommand(ctx, evt)
	}

	pref, isNew, err := p.deps.Store.EnsurePreference(ctx, evt.SenderID, p.deps.DefaultLanguage)
	if err != nil {
		log.Warn("language preference unavailable; using default", "err", err)
		pref = memory.Preference{UserID: evt.SenderID, Language: p.deps.DefaultLanguage}
		isNew = false
	}

	text := evt.Text
	detected := ""
	if kind == classify.KindGratitude {
		detected, _ = p.deps.Classifier.Match(evt.Text)
	}
	if kind == classify.KindAudio {
		tr, err := p.deps.Audio.Process(ctx, evt.Channel, *evt.Media, pref.Language)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.Warn("voice message failed", "err", err)
			guidance := failure.Guidance(err, Apology)
			userTurn := memory.NewTurn(memory.SpeakerUser, voiceContent(evt), "", string(kind))
			if _, sendErr := p.send(ctx, evt, guidance, &userTurn, pref.Language, kind); sendErr != nil {
				return errors.Join(err, sendErr)
			}
			return err
		}
		text = tr.Text
		detected = tr.Language
	}

	history, err := p.deps.Store.RecentTurns(ctx, evt.SenderID, p.deps.History)
	if err != nil {
		log.Warn("conversation history unavailable", "err", err)
		history = nil
	}
	history = withoutCommands(history)

	pr := prompt.Compose(prompt.Input{
		History:            history,
		Language:           pref.Language,
		Kind:               kind,
		Text:               text,
		IsNewUser:          isNew,
		DisplayName:        evt.DisplayName,
		CommandPrefix:      p.deps.Classifier.Prefix(),
		TranscriptLanguage: detected,
	})

	reply, err := p.generate(ctx, pr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Warn("inference unavailable; resolving fallback", "err", err)
		reply = p.fallback(ctx, kind, text, pref.Language)
	}

	if kind == classify.KindGratitude && echoes(reply, evt.Text) {
		log.Info("generated reply echoed the thank-you; replacing it")
		reply = p.acknowledge(ctx, pref.Language)
	}

	userTurn := memory.NewTurn(memory.SpeakerUser, text, detected, string(kind))
	_, err = p.send(ctx, evt, reply, &userTurn, pref.Language, kind)
	return err
}

func (p *Pipeline) handleCommand(ctx context.Context, evt *inbound.Event) error {
	reply, err := p.deps.Router.Route(ctx, evt.Text, &commands.Request{
		SenderID:    evt.SenderID,
		DisplayName: evt.DisplayName,
		Channel:     string(evt.Channel),
	})
	if err != nil {
		observability.WithTrace(ctx).Error("command failed", "sender", evt.SenderID, "err", err)
	}
	userTurn := memory.NewTurn(memory.SpeakerUser, evt.Text, "", string(classify.KindCommand))
	_, sendErr := p.send(ctx, evt, reply, &userTurn, "", classify.KindCommand)
	return errors.Join(err, sendErr)
}

// release forgets a claimed event ID on a detached context, since ctx has
// usually expired by the time delivery is known to have failed.
func (p *Pipeline) release(ctx context.Context, eventID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forgetTimeout)
	defer cancel()
	if err := p.deps.Dedup.ForgetEvent(ctx, eventID); err != nil {
		observability.WithTrace(ctx).Warn("could not release event for redelivery", "event", eventID, "err", err)
		return
	}
	observability.WithTrace(ctx).Info("released event for redelivery", "event", eventID)
}

// undelivered reports whether Handle ended without a reply reaching the
// user: the send failed, or ctx expired before anything was sent.
func undelivered(ctx context.Context, err error) bool {
	var de *failure.DeliveryError
	if errors.As(err, &de) {
		return true
	}
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}

// withoutCommands drops command exchanges from prompt history.
func withoutCommands(turns []memory.Turn) []memory.Turn {
	out := turns[:0:0]
	for _, t := range turns {
		if t.TurnType != string(classify.KindCommand) {
			out = append(out, t)
		}
	}
	return out
}

func voiceContent(evt *inbound.Event) string {
	if strings.TrimSpace(evt.Text) != "" {
		return evt.Text
	}
	return VoicePlaceholder
}

func (p *Pipeline) generate(ctx context.Context, pr prompt.Prompt) (string, error) {
	resp, err := p.deps.Inference.Complete(ctx, inference.Request{
		Messages: []inference.Message{
			{Role: inference.RoleSystem, Content: pr.System},
			{Role: inference.RoleUser, Content: pr.User},
		},
		Temperature: p.deps.Temperature,
	})
	if err != nil {
		return "", err
	}
	observability.WithTrace(ctx).Info("reply generated",
		"backend", resp.Backend, "attempts", resp.Attempts, "latency_ms", resp.Latency.Milliseconds())
	return resp.Text, nil
}

func (p *Pipeline) send(ctx context.Context, evt *inbound.Event, text string, userTurn *memory.Turn, language string, kind classify.Kind) (dispatch.Delivery, error) {
	d, err := p.deps.Dispatcher.Dispatch(ctx, dispatch.Outbound{
		Channel:   evt.Channel,
		Recipient: evt.ReplyTo,
		UserID:    evt.SenderID,
		Text:      text,
		UserTurn:  userTurn,
		Language:  language,
		TurnType:  string(kind),
	})
	if err != nil {
		observability.WithTrace(ctx).Error("reply not delivered", "channel", evt.Channel, "err", err)
	}
	return d, err
}

// echoes reports whether reply contains the user's own words.
func echoes(reply, input string) bool {
	in := lang.Fold(input)
	if in == "" {
		return false
	}
	return strings.Contains(lang.Fold(reply), in)
}
