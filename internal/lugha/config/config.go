// Package config loads the Lugha gateway configuration.
//
// Settings come from one YAML or TOML file (picked by extension), then
// defaults fill the gaps, then LUGHA_* environment variables override them.
// Credentials are never read from the file: they only come from the
// environment, either the fixed LUGHA_* names or the variable a backend
// names in its api_key_env field.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Proxy     ProxyConfig     `yaml:"proxy" toml:"proxy"`
	Commands  CommandsConfig  `yaml:"commands" toml:"commands"`
	Inference InferenceConfig `yaml:"inference" toml:"inference"`
	Translate TranslateConfig `yaml:"translate" toml:"translate"`
	Audio     AudioConfig     `yaml:"audio" toml:"audio"`
	Dispatch  DispatchConfig  `yaml:"dispatch" toml:"dispatch"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp" toml:"whatsapp"`
	Matrix    MatrixConfig    `yaml:"matrix" toml:"matrix"`
}

// ServerConfig covers the HTTP listener and the worker pool.
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
	// RequestTimeout is the overall deadline for handling one event.
	RequestTimeout time.Duration `yaml:"request_timeout" toml:"request_timeout"`
	Workers        int           `yaml:"workers" toml:"workers"`
	// QueueSize bounds events waiting for a worker; beyond it events are
	// dropped with a warning.
	QueueSize int `yaml:"queue_size" toml:"queue_size"`
	// IngressToken guards POST /events. Empty disables the endpoint.
	IngressToken string `yaml:"-" toml:"-"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DatabaseConfig selects the context store. An empty Path keeps turns and
// preferences in memory.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
	// Retention prunes turns and processed-event markers older than this.
	// Zero keeps everything.
	Retention time.Duration `yaml:"retention" toml:"retention"`
	// MemoryTurns bounds the in-memory store per user.
	MemoryTurns int `yaml:"memory_turns" toml:"memory_turns"`
}

type ProxyConfig struct {
	// SOCKS5 is host:port of a SOCKS5 proxy for all outbound HTTP.
	SOCKS5 string `yaml:"socks5" toml:"socks5"`
}

type CommandsConfig struct {
	Prefix          string `yaml:"prefix" toml:"prefix"`
	DefaultLanguage string `yaml:"default_language" toml:"default_language"`
	History         int    `yaml:"history" toml:"history"`
	// Gratitude adds phrases per canonical language code.
	Gratitude map[string][]string `yaml:"gratitude" toml:"gratitude"`
}

// InferenceConfig configures the backend chain, tried in order.
type InferenceConfig struct {
	MaxRetries   int             `yaml:"max_retries" toml:"max_retries"`
	InitialDelay time.Duration   `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay     time.Duration   `yaml:"max_delay" toml:"max_delay"`
	MaxElapsed   time.Duration   `yaml:"max_elapsed" toml:"max_elapsed"`
	Temperature  float64         `yaml:"temperature" toml:"temperature"`
	Backends     []BackendConfig `yaml:"backends" toml:"backends"`
}

// Backend kinds.
const (
	KindEndpoint = "endpoint"
	KindOpenAI   = "openai"
	KindHTTP     = "http"
	KindFS       = "fs"
)

// BackendConfig describes one inference backend.
type BackendConfig struct {
	Name      string        `yaml:"name" toml:"name"`
	Kind      string        `yaml:"kind" toml:"kind"`
	URL       string        `yaml:"url" toml:"url"`
	Model     string        `yaml:"model" toml:"model"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout"`
	APIKeyEnv string        `yaml:"api_key_env" toml:"api_key_env"`
	APIKey    string        `yaml:"-" toml:"-"`
}

type TranslateConfig struct {
	URL     string        `yaml:"url" toml:"url"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
	APIKey  string        `yaml:"-" toml:"-"`
}

type AudioConfig struct {
	TempDir         string             `yaml:"temp_dir" toml:"temp_dir"`
	MaxBytes        int64              `yaml:"max_bytes" toml:"max_bytes"`
	DownloadTimeout time.Duration      `yaml:"download_timeout" toml:"download_timeout"`
	MaxDuration     time.Duration      `yaml:"max_duration" toml:"max_duration"`
	MaxAttempts     int                `yaml:"max_attempts" toml:"max_attempts"`
	Blob            BlobConfig         `yaml:"blob" toml:"blob"`
	Primary         TranscriberConfig  `yaml:"primary" toml:"primary"`
	Basic           *TranscriberConfig `yaml:"basic" toml:"basic"`
}

// BlobConfig selects where validated recordings are kept.
type BlobConfig struct {
	Kind string `yaml:"kind" toml:"kind"` // fs or http
	// Dir is the fs store root; it is served under /media/.
	Dir           string `yaml:"dir" toml:"dir"`
	PublicBaseURL string `yaml:"public_base_url" toml:"public_base_url"`
	UploadURL     string `yaml:"upload_url" toml:"upload_url"`
	Token         string `yaml:"-" toml:"-"`
}

// TranscriberConfig describes one transcription variant.
type TranscriberConfig struct {
	Name      string        `yaml:"name" toml:"name"`
	Kind      string        `yaml:"kind" toml:"kind"` // http or openai
	URL       string        `yaml:"url" toml:"url"`
	Model     string        `yaml:"model" toml:"model"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout"`
	APIKeyEnv string        `yaml:"api_key_env" toml:"api_key_env"`
	APIKey    string        `yaml:"-" toml:"-"`
}

type DispatchConfig struct {
	RatePerSecond  float64       `yaml:"rate_per_second" toml:"rate_per_second"`
	Burst          int           `yaml:"burst" toml:"burst"`
	PersistTimeout time.Duration `yaml:"persist_timeout" toml:"persist_timeout"`
}

type WhatsAppConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	BaseURL       string `yaml:"base_url" toml:"base_url"`
	PhoneNumberID string `yaml:"phone_number_id" toml:"phone_number_id"`
	AccessToken   string `yaml:"-" toml:"-"`
	AppSecret     string `yaml:"-" toml:"-"`
	VerifyToken   string `yaml:"-" toml:"-"`
}

type MatrixConfig struct {
	Enabled     bool     `yaml:"enabled" toml:"enabled"`
	Homeserver  string   `yaml:"homeserver" toml:"homeserver"`
	UserID      string   `yaml:"user_id" toml:"user_id"`
	Rooms       []string `yaml:"rooms" toml:"rooms"`
	AutoJoin    bool     `yaml:"auto_join" toml:"auto_join"`
	AccessToken string   `yaml:"-" toml:"-"`
}

// Load reads path (YAML or TOML by extension), applies defaults and
// environment overrides, and validates the result. An empty path starts
// from defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	cfg.SetDefaults()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("config: decode TOML %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: decode YAML %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config: unsupported file extension %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
	return nil
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 2 * time.Minute
	}
	if c.Server.Workers <= 0 {
		c.Server.Workers = 8
	}
	if c.Server.QueueSize <= 0 {
		c.Server.QueueSize = 256
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Database.MemoryTurns <= 0 {
		c.Database.MemoryTurns = 50
	}
	if c.Commands.Prefix == "" {
		c.Commands.Prefix = "$"
	}
	if c.Commands.DefaultLanguage == "" {
		c.Commands.DefaultLanguage = "eng"
	}
	if c.Commands.History <= 0 {
		c.Commands.History = 5
	}
	if c.Inference.MaxRetries <= 0 {
		c.Inference.MaxRetries = 3
	}
	if c.Inference.InitialDelay <= 0 {
		c.Inference.InitialDelay = time.Second
	}
	if c.Inference.MaxDelay <= 0 {
		c.Inference.MaxDelay = 20 * time.Second
	}
	if c.Inference.MaxElapsed <= 0 {
		c.Inference.MaxElapsed = 90 * time.Second
	}
	if c.Inference.Temperature == 0 {
		c.Inference.Temperature = 0.3
	}
	for i := range c.Inference.Backends {
		b := &c.Inference.Backends[i]
		if b.Timeout <= 0 {
			b.Timeout = 60 * time.Second
		}
		if b.Name == "" {
			b.Name = fmt.Sprintf("%s-%d", b.Kind, i)
		}
	}
	if c.Translate.Timeout <= 0 {
		c.Translate.Timeout = 30 * time.Second
	}
	if c.Audio.TempDir == "" {
		c.Audio.TempDir = os.TempDir()
	}
	if c.Audio.MaxBytes <= 0 {
		c.Audio.MaxBytes = 16 << 20
	}
	if c.Audio.DownloadTimeout <= 0 {
		c.Audio.DownloadTimeout = 30 * time.Second
	}
	if c.Audio.MaxDuration <= 0 {
		c.Audio.MaxDuration = 5 * time.Minute
	}
	if c.Audio.MaxAttempts <= 0 {
		c.Audio.MaxAttempts = 3
	}
	if c.Audio.Blob.Kind == "" {
		c.Audio.Blob.Kind = KindFS
	}
	transcriberDefaults(&c.Audio.Primary, "primary")
	if c.Audio.Basic != nil {
		transcriberDefaults(c.Audio.Basic, "basic")
	}
	if c.Dispatch.RatePerSecond == 0 {
		c.Dispatch.RatePerSecond = 20
	}
	if c.Dispatch.Burst <= 0 {
		c.Dispatch.Burst = 5
	}
	if c.Dispatch.PersistTimeout <= 0 {
		c.Dispatch.PersistTimeout = 10 * time.Second
	}
}

func transcriberDefaults(t *TranscriberConfig, name string) {
	if t.Name == "" {
		t.Name = name
	}
	if t.Timeout <= 0 {
		t.Timeout = 60 * time.Second
	}
}

// Secrets returns every configured credential, for log redaction.
func (c *Config) Secrets() []string {
	out := []string{
		c.Server.IngressToken,
		c.Translate.APIKey,
		c.Audio.Blob.Token,
		c.Audio.Primary.APIKey,
		c.WhatsApp.AccessToken,
		c.WhatsApp.AppSecret,
		c.WhatsApp.VerifyToken,
		c.Matrix.AccessToken,
	}
	if c.Audio.Basic != nil {
		out = append(out, c.Audio.Basic.APIKey)
	}
	for _, b := range c.Inference.Backends {
		out = append(out, b.APIKey)
	}
	return out
}
