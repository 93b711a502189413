package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides settings from LUGHA_* variables and resolves every
// api_key_env reference. Malformed numeric or duration values are errors.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("LUGHA_ADDR", &c.Server.Addr)
	e.duration("LUGHA_REQUEST_TIMEOUT", &c.Server.RequestTimeout)
	e.int("LUGHA_WORKERS", &c.Server.Workers)
	e.str("LUGHA_INGRESS_TOKEN", &c.Server.IngressToken)
	e.str("LUGHA_LOG_LEVEL", &c.Log.Level)
	e.str("LUGHA_LOG_FORMAT", &c.Log.Format)
	e.str("LUGHA_DB_PATH", &c.Database.Path)
	e.str("LUGHA_SOCKS5_PROXY", &c.Proxy.SOCKS5)
	e.str("LUGHA_DEFAULT_LANGUAGE", &c.Commands.DefaultLanguage)
	e.int("LUGHA_INFERENCE_MAX_RETRIES", &c.Inference.MaxRetries)
	e.str("LUGHA_TRANSLATE_URL", &c.Translate.URL)
	e.str("LUGHA_TRANSLATE_API_KEY", &c.Translate.APIKey)
	e.str("LUGHA_AUDIO_TEMP_DIR", &c.Audio.TempDir)
	e.str("LUGHA_BLOB_TOKEN", &c.Audio.Blob.Token)
	e.boolean("LUGHA_WHATSAPP_ENABLED", &c.WhatsApp.Enabled)
	e.str("LUGHA_WHATSAPP_PHONE_NUMBER_ID", &c.WhatsApp.PhoneNumberID)
	e.str("LUGHA_WHATSAPP_ACCESS_TOKEN", &c.WhatsApp.AccessToken)
	e.str("LUGHA_WHATSAPP_APP_SECRET", &c.WhatsApp.AppSecret)
	e.str("LUGHA_WHATSAPP_VERIFY_TOKEN", &c.WhatsApp.VerifyToken)
	e.boolean("LUGHA_MATRIX_ENABLED", &c.Matrix.Enabled)
	e.str("LUGHA_MATRIX_HOMESERVER", &c.Matrix.Homeserver)
	e.str("LUGHA_MATRIX_USER_ID", &c.Matrix.UserID)
	e.str("LUGHA_MATRIX_ACCESS_TOKEN", &c.Matrix.AccessToken)

	for i := range c.Inference.Backends {
		e.ref(c.Inference.Backends[i].APIKeyEnv, &c.Inference.Backends[i].APIKey)
	}
	e.ref(c.Audio.Primary.APIKeyEnv, &c.Audio.Primary.APIKey)
	if c.Audio.Basic != nil {
		e.ref(c.Audio.Basic.APIKeyEnv, &c.Audio.Basic.APIKey)
	}

	if len(e.errs) > 0 {
		return fmt.Errorf("config: environment: %s", strings.Join(e.errs, "; "))
	}
	return nil
}

type envReader struct {
	lookup LookupFunc
	errs   []string
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

// ref reads the variable named by key, when key is set.
func (e *envReader) ref(key string, dst *string) {
	if key != "" {
		e.str(key, dst)
	}
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not an integer", key, v))
		return
	}
	*dst = n
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
		return
	}
	*dst = b
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not a duration", key, v))
		return
	}
	*dst = d
}
