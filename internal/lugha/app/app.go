// Package app wires the Lugha gateway: channels, the message pipeline, the
// worker pool and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bdobrica/Lugha/common/retry"
	"github.com/bdobrica/Lugha/common/spec/inbound"
	"github.com/bdobrica/Lugha/internal/lugha/audio"
	"github.com/bdobrica/Lugha/internal/lugha/classify"
	"github.com/bdobrica/Lugha/internal/lugha/commands"
	"github.com/bdobrica/Lugha/internal/lugha/config"
	"github.com/bdobrica/Lugha/internal/lugha/dispatch"
	"github.com/bdobrica/Lugha/internal/lugha/inference"
	"github.com/bdobrica/Lugha/internal/lugha/matrix"
	"github.com/bdobrica/Lugha/internal/lugha/memory"
	"github.com/bdobrica/Lugha/internal/lugha/store"
	"github.com/bdobrica/Lugha/internal/lugha/translate"
	"github.com/bdobrica/Lugha/internal/lugha/whatsapp"
)

// pruneInterval is how often old turns and event markers are deleted.
const pruneInterval = time.Hour

// App is the running gateway.
type App struct {
	cfg        *config.Config
	db         *store.Store // nil when running on the in-memory store
	pipeline   *Pipeline
	dispatcher *dispatch.Dispatcher
	server     *HTTPServer
	matrix     *matrix.Client

	ctx    context.Context
	cancel context.CancelFunc
	pool   *Pool
}

// New builds every component from cfg. Nothing is started.
func New(cfg *config.Config) (*App, error) {
	hc, err := newHTTPClient(cfg.Proxy.SOCKS5)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	var st memory.Store
	var dedup Deduper
	storeKind := "memory"
	if cfg.Database.Path != "" {
		db, err := store.New(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		a.db = db
		st, dedup, storeKind = db, db, "sqlite"
	} else {
		slog.Warn("no database configured; conversation history is kept in memory and redelivered webhooks are not deduplicated")
		st = memory.NewInMemory(cfg.Database.MemoryTurns)
	}

	backends, err := buildBackends(cfg.Inference, hc)
	if err != nil {
		a.close()
		return nil, err
	}
	gateway := inference.NewGateway(inference.Config{
		MaxRetries:   cfg.Inference.MaxRetries,
		InitialDelay: cfg.Inference.InitialDelay,
		MaxDelay:     cfg.Inference.MaxDelay,
		MaxElapsed:   cfg.Inference.MaxElapsed,
	}, backends...)

	networkRetry := retry.Policy{
		MaxAttempts:  cfg.Audio.MaxAttempts,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}

	var translator commands.Translator
	if cfg.Translate.URL != "" {
		translator = translate.New(translate.Config{
			URL:     cfg.Translate.URL,
			APIKey:  cfg.Translate.APIKey,
			Timeout: cfg.Translate.Timeout,
			Retry:   networkRetry,
		}, hc)
	}

	resolvers := map[inbound.Channel]audio.MediaResolver{}
	messengers := map[inbound.Channel]dispatch.Messenger{}
	var channels []string
	var wa *whatsapp.Client
	if cfg.WhatsApp.Enabled {
		wa = whatsapp.NewClient(whatsapp.ClientConfig{
			BaseURL:       cfg.WhatsApp.BaseURL,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			AccessToken:   cfg.WhatsApp.AccessToken,
		}, hc)
		resolvers[inbound.ChannelWhatsApp] = wa
		messengers[inbound.ChannelWhatsApp] = wa
		channels = append(channels, string(inbound.ChannelWhatsApp))
	}
	if cfg.Matrix.Enabled {
		mc := &matrix.Config{
			Homeserver:  cfg.Matrix.Homeserver,
			UserID:      cfg.Matrix.UserID,
			AccessToken: cfg.Matrix.AccessToken,
			Rooms:       cfg.Matrix.Rooms,
			AutoJoin:    cfg.Matrix.AutoJoin,
			HTTP:        hc,
		}
		if a.db != nil {
			mc.DB = a.db.DB()
		}
		a.matrix, err = matrix.New(mc)
		if err != nil {
			a.close()
			return nil, err
		}
		resolvers[inbound.ChannelMatrix] = a.matrix
		messengers[inbound.ChannelMatrix] = a.matrix
		channels = append(channels, string(inbound.ChannelMatrix))
	}

	blob, blobHandler := buildBlobStore(cfg.Audio.Blob, hc)
	primary, err := buildTranscriber(cfg.Audio.Primary, hc)
	if err != nil {
		a.close()
		return nil, err
	}
	var basic audio.Transcriber
	if cfg.Audio.Basic != nil {
		if basic, err = buildTranscriber(*cfg.Audio.Basic, hc); err != nil {
			a.close()
			return nil, err
		}
	}
	audioPipeline := audio.New(audio.Config{
		TempDir:         cfg.Audio.TempDir,
		MaxBytes:        cfg.Audio.MaxBytes,
		DownloadTimeout: cfg.Audio.DownloadTimeout,
		MaxDuration:     cfg.Audio.MaxDuration,
		Retry:           networkRetry,
	}, audio.Deps{
		Resolvers: resolvers,
		Blob:      blob,
		Primary:   primary,
		Basic:     basic,
		HTTP:      hc,
	})

	a.dispatcher = dispatch.New(dispatch.Config{
		RatePerSecond:  cfg.Dispatch.RatePerSecond,
		Burst:          cfg.Dispatch.Burst,
		PersistTimeout: cfg.Dispatch.PersistTimeout,
	}, st, messengers)

	router := commands.NewRouter(cfg.Commands.Prefix)
	commands.NewHandlers(st, translator, cfg.Commands.DefaultLanguage).Register(router)

	a.pipeline = NewPipeline(PipelineDeps{
		Store:           st,
		Dedup:           dedup,
		Classifier:      classify.New(cfg.Commands.Prefix, cfg.Commands.Gratitude),
		Router:          router,
		Inference:       gateway,
		Audio:           audioPipeline,
		Translator:      translator,
		Dispatcher:      a.dispatcher,
		DefaultLanguage: cfg.Commands.DefaultLanguage,
		History:         cfg.Commands.History,
		Temperature:     cfg.Inference.Temperature,
	})

	a.pool = NewPool(a.ctx, cfg.Server.Workers, cfg.Server.QueueSize, cfg.Server.RequestTimeout, a.pipeline.Handle)

	a.server = NewHTTPServer(cfg.Server.Addr, a.pool, serviceInfo{
		Backends: gateway.Backends(),
		Channels: channels,
		Store:    storeKind,
	})
	if wa != nil {
		a.server.Handle("/webhook", whatsapp.NewWebhook(whatsapp.WebhookConfig{
			VerifyToken: cfg.WhatsApp.VerifyToken,
			AppSecret:   cfg.WhatsApp.AppSecret,
		}, a.submit))
	}
	if cfg.Server.IngressToken != "" {
		a.server.Handle("POST /events", &ingressHandler{token: cfg.Server.IngressToken, submit: a.pool.Submit})
	}
	if blobHandler != nil {
		a.server.Handle("GET /media/", http.StripPrefix("/media/", blobHandler))
	}

	return a, nil
}

// Handler exposes the HTTP routes, for tests.
func (a *App) Handler() http.Handler { return a.server }

// Run starts the HTTP server, the Matrix sync loop and the prune loop, and
// blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.server.Start(a.ctx); err != nil {
		return err
	}
	if a.matrix != nil {
		slog.Info("starting Matrix sync")
		if err := a.matrix.Start(a.ctx, a.submit); err != nil {
			return fmt.Errorf("failed to start Matrix client: %w", err)
		}
	}
	if a.db != nil && a.cfg.Database.Retention > 0 {
		go a.pruneLoop()
	}

	slog.Info("Lugha is running", "addr", a.cfg.Server.Addr)
	select {
	case <-ctx.Done():
	case <-a.ctx.Done():
	}
	slog.Info("shutting down")
	return nil
}

// Stop drains in-flight events and releases every resource.
func (a *App) Stop() {
	if a.matrix != nil {
		slog.Info("stopping Matrix client")
		a.matrix.Stop()
	}
	slog.Info("stopping http server")
	a.server.Stop()

	a.cancel()
	a.pool.Wait()
	a.dispatcher.Wait()
	a.close()
}

func (a *App) close() {
	a.cancel()
	if a.db != nil {
		slog.Info("closing database")
		a.db.Close()
	}
}

func (a *App) submit(evt *inbound.Event) {
	a.pool.Submit(evt)
}

func (a *App) pruneLoop() {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-a.cfg.Database.Retention)
			if n, err := a.db.PruneTurns(a.ctx, cutoff); err != nil {
				slog.Warn("prune turns", "err", err)
			} else if n > 0 {
				slog.Info("pruned old turns", "count", n)
			}
			if _, err := a.db.PruneEvents(a.ctx, cutoff); err != nil {
				slog.Warn("prune events", "err", err)
			}
		}
	}
}

func buildBackends(cfg config.InferenceConfig, hc *http.Client) ([]inference.Backend, error) {
	var out []inference.Backend
	for _, b := range cfg.Backends {
		switch b.Kind {
		case config.KindEndpoint:
			out = append(out, inference.NewEndpoint(inference.EndpointConfig{
				Name: b.Name, URL: b.URL, APIKey: b.APIKey, Model: b.Model, Timeout: b.Timeout,
			}, hc))
		case config.KindOpenAI:
			out = append(out, inference.NewOpenAI(inference.OpenAIConfig{
				Name: b.Name, BaseURL: b.URL, APIKey: b.APIKey, Model: b.Model, Timeout: b.Timeout,
			}, hc))
		default:
			return nil, fmt.Errorf("inference backend %q: unknown kind %q", b.Name, b.Kind)
		}
	}
	return out, nil
}

func buildTranscriber(cfg config.TranscriberConfig, hc *http.Client) (audio.Transcriber, error) {
	switch cfg.Kind {
	case config.KindHTTP:
		return audio.NewHTTPTranscriber(audio.HTTPTranscriberConfig{
			Name: cfg.Name, URL: cfg.URL, APIKey: cfg.APIKey, Model: cfg.Model, Timeout: cfg.Timeout,
		}, hc), nil
	case config.KindOpenAI:
		return audio.NewOpenAITranscriber(audio.OpenAITranscriberConfig{
			Name: cfg.Name, BaseURL: cfg.URL, APIKey: cfg.APIKey, Model: cfg.Model, Timeout: cfg.Timeout,
		}, hc), nil
	}
	return nil, fmt.Errorf("transcriber %q: unknown kind %q", cfg.Name, cfg.Kind)
}

// buildBlobStore returns the store and, for the filesystem store, the
// handler serving its files.
func buildBlobStore(cfg config.BlobConfig, hc *http.Client) (audio.BlobStore, http.Handler) {
	if cfg.Kind == config.KindHTTP {
		return &audio.HTTPBlobStore{
			UploadURL:     cfg.UploadURL,
			PublicBaseURL: cfg.PublicBaseURL,
			Token:         cfg.Token,
			Client:        hc,
		}, nil
	}
	fs := &audio.FSBlobStore{Dir: cfg.Dir, PublicBaseURL: cfg.PublicBaseURL}
	return fs, fs.Handler()
}
