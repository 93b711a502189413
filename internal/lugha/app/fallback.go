package app

import (
	"context"
	"strings"

	"github.com/bdobrica/Lugha/internal/lugha/classify"
	"github.com/bdobrica/Lugha/internal/lugha/lang"
	"github.com/bdobrica/Lugha/internal/lugha/observability"
)

// fallback resolves a reply without the model. Thank-yous get a translated
// acknowledgement; everything else gets a direct translation of the user's
// message, or the apology when translation is impossible.
func (p *Pipeline) fallback(ctx context.Context, kind classify.Kind, text, preferred string) string {
	if kind == classify.KindGratitude {
		return p.acknowledge(ctx, preferred)
	}
	if p.deps.Translator == nil || strings.TrimSpace(text) == "" {
		return Apology
	}
	log := observability.WithTrace(ctx)

	source, err := p.deps.Translator.Identify(ctx, text)
	if err != nil {
		log.Warn("fallback language identification failed", "err", err)
		return Apology
	}
	if source == preferred {
		return Apology
	}
	translated, err := p.deps.Translator.Translate(ctx, source, preferred, text)
	if err != nil {
		log.Warn("fallback translation failed", "err", err)
		return Apology
	}
	return TranslationNotice + "\n\n" + translated
}

// acknowledge returns the acknowledgement in the preferred language, or in
// English when translation is unavailable.
func (p *Pipeline) acknowledge(ctx context.Context, preferred string) string {
	if p.deps.Translator == nil || preferred == lang.Default {
		return Acknowledgement
	}
	out, err := p.deps.Translator.Translate(ctx, lang.Default, preferred, Acknowledgement)
	if err != nil {
		observability.WithTrace(ctx).Warn("acknowledgement translation failed", "err", err)
		return Acknowledgement
	}
	return out
}
