package config

import (
	"fmt"
	"strings"

	"github.com/bdobrica/Lugha/internal/lugha/lang"
)

// ValidationError names one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format", "must be text or json, got %q", c.Log.Format)
	}
	if _, ok := lang.Lookup(c.Commands.DefaultLanguage); !ok {
		add("commands.default_language", "unknown language code %q", c.Commands.DefaultLanguage)
	}
	if strings.ContainsAny(c.Commands.Prefix, " \t\n") {
		add("commands.prefix", "must not contain whitespace")
	}
	for code := range c.Commands.Gratitude {
		if _, ok := lang.Lookup(code); !ok {
			add("commands.gratitude", "unknown language code %q", code)
		}
	}

	if len(c.Inference.Backends) == 0 {
		add("inference.backends", "at least one backend is required")
	}
	names := map[string]bool{}
	for i, b := range c.Inference.Backends {
		field := fmt.Sprintf("inference.backends[%d]", i)
		if names[b.Name] {
			add(field+".name", "duplicate backend name %q", b.Name)
		}
		names[b.Name] = true
		switch b.Kind {
		case KindEndpoint:
			if b.URL == "" {
				add(field+".url", "required for endpoint backends")
			}
		case KindOpenAI:
			if b.Model == "" {
				add(field+".model", "required for openai backends")
			}
		default:
			add(field+".kind", "must be %s or %s, got %q", KindEndpoint, KindOpenAI, b.Kind)
		}
	}
	if c.Inference.MaxDelay < c.Inference.InitialDelay {
		add("inference.max_delay", "must not be shorter than initial_delay")
	}

	switch c.Audio.Blob.Kind {
	case KindFS:
		if c.Audio.Blob.Dir == "" {
			add("audio.blob.dir", "required for fs blob store")
		}
	case KindHTTP:
		if c.Audio.Blob.UploadURL == "" {
			add("audio.blob.upload_url", "required for http blob store")
		}
	default:
		add("audio.blob.kind", "must be %s or %s, got %q", KindFS, KindHTTP, c.Audio.Blob.Kind)
	}
	validateTranscriber(&errs, "audio.primary", &c.Audio.Primary)
	if c.Audio.Basic != nil {
		validateTranscriber(&errs, "audio.basic", c.Audio.Basic)
	}

	if !c.WhatsApp.Enabled && !c.Matrix.Enabled {
		add("whatsapp.enabled", "at least one channel (whatsapp or matrix) must be enabled")
	}
	if c.WhatsApp.Enabled {
		if c.WhatsApp.PhoneNumberID == "" {
			add("whatsapp.phone_number_id", "required")
		}
		if c.WhatsApp.AccessToken == "" {
			add("whatsapp.access_token", "LUGHA_WHATSAPP_ACCESS_TOKEN must be set")
		}
		if c.WhatsApp.VerifyToken == "" {
			add("whatsapp.verify_token", "LUGHA_WHATSAPP_VERIFY_TOKEN must be set")
		}
	}
	if c.Matrix.Enabled {
		if c.Matrix.Homeserver == "" || c.Matrix.UserID == "" {
			add("matrix", "homeserver and user_id are required")
		}
		if c.Matrix.AccessToken == "" {
			add("matrix.access_token", "LUGHA_MATRIX_ACCESS_TOKEN must be set")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateTranscriber(errs *ValidationErrors, field string, t *TranscriberConfig) {
	switch t.Kind {
	case KindHTTP:
		if t.URL == "" {
			*errs = append(*errs, ValidationError{Field: field + ".url", Message: "required for http transcribers"})
		}
	case KindOpenAI:
		if t.Model == "" {
			*errs = append(*errs, ValidationError{Field: field + ".model", Message: "required for openai transcribers"})
		}
	default:
		*errs = append(*errs, ValidationError{Field: field + ".kind",
			Message: fmt.Sprintf("must be %s or %s, got %q", KindHTTP, KindOpenAI, t.Kind)})
	}
}
