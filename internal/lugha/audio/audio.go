// Package audio turns a voice-message media reference into a transcript.
//
// Process resolves a download URL through the channel's MediaResolver,
// streams the bytes into a temporary file, validates the container, uploads
// the file to blob storage and transcribes it, degrading to the basic
// transcriber once before giving up. The temporary file is removed on every
// exit path, panics included.
package audio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Lugha/common/retry"
	"github.com/bdobrica/Lugha/common/spec/inbound"
	"github.com/bdobrica/Lugha/internal/lugha/failure"
	"github.com/bdobrica/Lugha/internal/lugha/observability"
)

// User guidance attached to terminal failures.
const (
	GuidanceTooLong     = "That recording is too long for me. Please try a shorter recording."
	GuidanceUnreadable  = "I couldn't play that recording. Please record it again as a voice note."
	GuidanceUnavailable = "I couldn't fetch your voice message right now. Please send it again in a moment."
	GuidanceNotHeard    = "I couldn't make out any words in that recording. Please try again or type your message."
)

// Location is a short-lived download URL for a media attachment.
type Location struct {
	URL      string
	Header   http.Header // sent with the download request (auth)
	MIMEType string
	Size     int64 // 0 when unknown
}

// MediaResolver turns a platform media reference into a Location.
type MediaResolver interface {
	ResolveMedia(ctx context.Context, media inbound.Media) (*Location, error)
}

// BlobStore keeps validated recordings and returns a URL the transcription
// service can fetch.
type BlobStore interface {
	Put(ctx context.Context, key, path, mimeType string) (url string, err error)
}

// TranscribeRequest describes one recording.
type TranscribeRequest struct {
	BlobURL  string
	Path     string // local file, valid only for the duration of the call
	MIMEType string
	Language string // canonical code hint, may be empty
}

// TranscribeResult is a transcription service reply.
type TranscribeResult struct {
	Text     string
	Language string
}

// Transcriber is one transcription service variant.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error)
}

// Transcript is the pipeline output.
type Transcript struct {
	Text     string
	Language string
	Duration time.Duration
	BlobURL  string
	Variant  string // name of the transcriber that produced Text
}

// Config holds pipeline limits.
type Config struct {
	TempDir         string
	MaxBytes        int64
	DownloadTimeout time.Duration
	MaxDuration     time.Duration
	Retry           retry.Policy
}

// Defaults for zero Config fields.
const (
	DefaultMaxBytes        = 16 << 20
	DefaultDownloadTimeout = 30 * time.Second
	DefaultMaxDuration     = 5 * time.Minute
)

// Deps are the pipeline's collaborators. Basic may be nil.
type Deps struct {
	Resolvers map[inbound.Channel]MediaResolver
	Blob      BlobStore
	Primary   Transcriber
	Basic     Transcriber
	HTTP      *http.Client
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// New creates a Pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultDownloadTimeout
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if deps.HTTP == nil {
		deps.HTTP = http.DefaultClient
	}
	cfg.Retry.ShouldRetry = failure.IsTransient
	return &Pipeline{cfg: cfg, deps: deps}
}

// Process runs the full pipeline for one attachment. Errors are either the
// context error or a *failure.TerminalInfraError carrying user guidance.
func (p *Pipeline) Process(ctx context.Context, channel inbound.Channel, media inbound.Media, hint string) (*Transcript, error) {
	log := observability.WithTrace(ctx).With("channel", channel, "media", media.ID)

	resolver, ok := p.deps.Resolvers[channel]
	if !ok {
		return nil, failure.Terminal("audio.resolve", fmt.Errorf("no media resolver for %s", channel), GuidanceUnavailable)
	}

	var loc *Location
	_, err := p.cfg.Retry.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		loc, err = resolver.ResolveMedia(ctx, media)
		return err
	})
	if err != nil {
		return nil, p.terminal(ctx, "audio.resolve", err, GuidanceUnavailable)
	}

	tmp, err := os.CreateTemp(p.cfg.TempDir, "voice-*")
	if err != nil {
		return nil, failure.Terminal("audio.tempfile", err, GuidanceUnavailable)
	}
	path := tmp.Name()
	defer func() {
		tmp.Close()
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Error("failed to remove voice temp file", "path", path, "err", rmErr)
		}
	}()

	size, err := p.download(ctx, loc, tmp)
	if err != nil {
		return nil, p.terminal(ctx, "audio.download", err, GuidanceUnavailable)
	}
	if err := tmp.Close(); err != nil {
		return nil, failure.Terminal("audio.download", err, GuidanceUnavailable)
	}

	info, err := Validate(path)
	if err != nil {
		log.Info("rejected voice message", "bytes", size, "mime", loc.MIMEType, "err", err)
		return nil, failure.Terminal("audio.validate", err, GuidanceUnreadable)
	}
	if info.Duration > p.cfg.MaxDuration {
		return nil, failure.Terminal("audio.validate",
			fmt.Errorf("duration %s exceeds %s", info.Duration.Round(time.Second), p.cfg.MaxDuration), GuidanceTooLong)
	}

	key := "voice/" + time.Now().UTC().Format("2006/01/02") + "/" + uuid.NewString() + info.Ext()
	var blobURL string
	_, err = p.cfg.Retry.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		blobURL, err = p.deps.Blob.Put(ctx, key, path, info.MIMEType)
		return err
	})
	if err != nil {
		return nil, p.terminal(ctx, "audio.upload", err, GuidanceUnavailable)
	}

	req := TranscribeRequest{BlobURL: blobURL, Path: path, MIMEType: info.MIMEType, Language: hint}
	res, variant, err := p.transcribe(ctx, req)
	if err != nil {
		return nil, p.terminal(ctx, "audio.transcribe", err, GuidanceNotHeard)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return nil, failure.Terminal("audio.transcribe", errors.New("empty transcript"), GuidanceNotHeard)
	}

	log.Info("voice message transcribed",
		"format", info.Format, "duration", info.Duration.Round(time.Millisecond),
		"bytes", size, "variant", variant)

	return &Transcript{
		Text:     text,
		Language: res.Language,
		Duration: info.Duration,
		BlobURL:  blobURL,
		Variant:  variant,
	}, nil
}

// transcribe tries the primary variant, then the basic variant once.
func (p *Pipeline) transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, string, error) {
	res, err := p.deps.Primary.Transcribe(ctx, req)
	if err == nil {
		return res, p.deps.Primary.Name(), nil
	}
	if ctx.Err() != nil || p.deps.Basic == nil {
		return nil, "", err
	}
	observability.WithTrace(ctx).Warn("primary transcription failed, using basic variant",
		"primary", p.deps.Primary.Name(), "basic", p.deps.Basic.Name(), "err", err)

	res, basicErr := p.deps.Basic.Transcribe(ctx, req)
	if basicErr != nil {
		return nil, "", errors.Join(err, basicErr)
	}
	return res, p.deps.Basic.Name(), nil
}

// terminal converts an exhausted error into a terminal one, passing context
// errors through unchanged.
func (p *Pipeline) terminal(ctx context.Context, op string, err error, guidance string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var term *failure.TerminalInfraError
	if errors.As(err, &term) && term.Guidance != "" {
		return err
	}
	return failure.Terminal(op, err, guidance)
}

// ext maps a MIME type to a file extension for blob keys.
func ext(mimeType string) string {
	switch mimeType {
	case "audio/wav":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	}
	return ""
}
