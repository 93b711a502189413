package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/bdobrica/Lugha/internal/lugha/lang"
	"github.com/bdobrica/Lugha/internal/lugha/memory"
)

// Translator is the subset of the translation client the handlers need.
type Translator interface {
	Translate(ctx context.Context, source, target, text string) (string, error)
	Identify(ctx context.Context, text string) (string, error)
}

// Handlers holds command handlers and their dependencies.
type Handlers struct {
	prefs       memory.PreferenceStore
	translator  Translator
	defaultLang string
}

// NewHandlers creates Handlers. translator may be nil, in which case
// "translate" reports that translation is unavailable.
func NewHandlers(prefs memory.PreferenceStore, translator Translator, defaultLang string) *Handlers {
	if defaultLang == "" {
		defaultLang = lang.Default
	}
	return &Handlers{prefs: prefs, translator: translator, defaultLang: defaultLang}
}

// Register binds every handler to r.
func (h *Handlers) Register(r *Router) {
	r.Register("set.language", h.HandleSetLanguage)
	r.Register("status", h.HandleStatus)
	r.Register("languages", h.HandleLanguages)
	r.Register("translate", h.HandleTranslate)
	r.Register("help", func(ctx context.Context, cmd *Command, req *Request) (string, error) {
		return r.HelpText(), nil
	})
}

// HandleSetLanguage stores the resolved language as the user's preference.
func (h *Handlers) HandleSetLanguage(ctx context.Context, cmd *Command, req *Request) (string, error) {
	l, ok := lang.Lookup(cmd.Target)
	if !ok {
		return "", fmt.Errorf("unresolved target %q", cmd.Target)
	}
	if err := h.prefs.SetPreference(ctx, memory.Preference{UserID: req.SenderID, Language: l.Code}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Done. I will reply in %s.", l), nil
}

// HandleStatus reports the user's preferred language.
func (h *Handlers) HandleStatus(ctx context.Context, cmd *Command, req *Request) (string, error) {
	code, err := h.preferred(ctx, req.SenderID)
	if err != nil {
		return "", err
	}
	l, ok := lang.Lookup(code)
	if !ok {
		l = lang.Language{Code: code, Name: code}
	}
	return fmt.Sprintf("Your language: %s", l), nil
}

// HandleLanguages lists the supported languages.
func (h *Handlers) HandleLanguages(ctx context.Context, cmd *Command, req *Request) (string, error) {
	return languagesBlock(), nil
}

// HandleTranslate translates the argument into the explicit target, or into
// the user's preferred language. Text already in the preferred language is
// translated to English.
func (h *Handlers) HandleTranslate(ctx context.Context, cmd *Command, req *Request) (string, error) {
	if h.translator == nil {
		return "Translation is not available right now.", nil
	}
	text, _ := cmd.GetArg(0)

	source, err := h.translator.Identify(ctx, text)
	if err != nil {
		return "", fmt.Errorf("identify: %w", err)
	}

	target := cmd.Target
	if target == "" {
		if target, err = h.preferred(ctx, req.SenderID); err != nil {
			return "", err
		}
		if target == source {
			target = lang.Default
		}
	}
	if target == source {
		return fmt.Sprintf("That is already in %s.", lang.NameOf(target)), nil
	}

	out, err := h.translator.Translate(ctx, source, target, text)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	return fmt.Sprintf("%s → %s:\n%s", lang.NameOf(source), lang.NameOf(target), out), nil
}

func (h *Handlers) preferred(ctx context.Context, userID string) (string, error) {
	p, err := h.prefs.Preference(ctx, userID)
	if errors.Is(err, memory.ErrNoPreference) {
		return h.defaultLang, nil
	}
	if err != nil {
		return "", err
	}
	return p.Language, nil
}
