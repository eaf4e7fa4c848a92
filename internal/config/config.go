// Package config loads the dealerline YAML configuration.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/szaher/dealerline/internal/auth"
	"github.com/szaher/dealerline/internal/escalation"
	"github.com/szaher/dealerline/internal/secrets"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "dealerline.yaml"

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	LLM        LLMConfig        `yaml:"llm"`
	Dealership DealershipConfig `yaml:"dealership"`
	Heuristics HeuristicsConfig `yaml:"heuristics"`
	Escalation EscalationConfig `yaml:"escalation"`
	Storage    StorageConfig    `yaml:"storage"`
	CRM        CRMConfig        `yaml:"crm"`
	Events     EventsConfig     `yaml:"events"`
	Reminders  RemindersConfig  `yaml:"reminders"`

	secrets []string
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string               `yaml:"addr" validate:"required"`
	APIKey          string               `yaml:"api_key"`
	NoAuth          bool                 `yaml:"no_auth"`
	RateLimit       auth.RateLimitConfig `yaml:"rate_limit"`
	SSEKeepAlive    time.Duration        `yaml:"sse_keep_alive" validate:"gte=0"`
	ShutdownTimeout time.Duration        `yaml:"shutdown_timeout" validate:"gt=0"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn warning error"`
	MaskPhones bool   `yaml:"mask_phones"`
}

// LLMConfig configures the language model.
type LLMConfig struct {
	Model        string        `yaml:"model" validate:"required"`
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	Temperature  float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens    int           `yaml:"max_tokens" validate:"gt=0"`
	PhaseTimeout time.Duration `yaml:"phase_timeout" validate:"gt=0"`
	PhaseRetries int           `yaml:"phase_retries" validate:"gte=0,lte=5"`
}

// DealershipConfig holds customer-facing lines.
type DealershipConfig struct {
	Greetings      []string `yaml:"greetings" validate:"dive,required"`
	HandoffMessage string   `yaml:"handoff_message"`
	FallbackReply  string   `yaml:"fallback_reply"`
}

// HeuristicsConfig points at an optional scoring lexicon.
type HeuristicsConfig struct {
	LexiconPath string `yaml:"lexicon_path" validate:"required_if=Watch true"`
	Watch       bool   `yaml:"watch"`
}

// EscalationConfig lists auto-escalation rules.
type EscalationConfig struct {
	Rules []escalation.Rule `yaml:"rules"`
}

// StorageConfig selects the durable storage backends.
type StorageConfig struct {
	Transcripts TranscriptsConfig `yaml:"transcripts"`
	CallLog     CallLogConfig     `yaml:"call_log"`
}

// TranscriptsConfig selects where transcripts are written.
type TranscriptsConfig struct {
	Backend string `yaml:"backend" validate:"oneof=local s3"`
	Dir     string `yaml:"dir" validate:"required_if=Backend local"`
	Bucket  string `yaml:"bucket" validate:"required_if=Backend s3"`
	Prefix  string `yaml:"prefix"`
	Region  string `yaml:"region"`
}

// CallLogConfig selects where call-log rows are appended.
type CallLogConfig struct {
	Backend string `yaml:"backend" validate:"oneof=jsonl postgres"`
	Path    string `yaml:"path" validate:"required_if=Backend jsonl"`
	DSN     string `yaml:"dsn" validate:"required_if=Backend postgres"`
}

// CRMConfig configures the CRM database.
type CRMConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `yaml:"dsn" validate:"required"`
	Seed   bool   `yaml:"seed"`
}

// EventsConfig configures live event fan-out.
type EventsConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig enables the Redis publisher when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Channel  string        `yaml:"channel"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
}

// RemindersConfig configures the appointment reminder sweep.
type RemindersConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			RateLimit:       auth.DefaultRateLimitConfig(),
			SSEKeepAlive:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", MaskPhones: true},
		LLM: LLMConfig{
			Model:        "openai/gpt-4o",
			Temperature:  0.85,
			MaxTokens:    300,
			PhaseTimeout: 20 * time.Second,
			PhaseRetries: 1,
		},
		Storage: StorageConfig{
			Transcripts: TranscriptsConfig{Backend: "local", Dir: "data/transcripts"},
			CallLog:     CallLogConfig{Backend: "jsonl", Path: "data/call_logs.jsonl"},
		},
		CRM:       CRMConfig{Driver: "sqlite", DSN: "data/dealership.db", Seed: true},
		Reminders: RemindersConfig{Enabled: true, Schedule: "0 18 * * *"},
	}
}

// Load reads the YAML file at path over the defaults, resolves env()
// references and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.ResolveSecrets(context.Background(), secrets.NewEnvResolver()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML data into cfg, rejecting unknown keys.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

// ResolveSecrets expands env() references in the fields that may carry
// credentials. Resolved values are remembered for log redaction.
func (c *Config) ResolveSecrets(ctx context.Context, r secrets.Resolver) error {
	fields := []struct {
		name string
		v    *string
	}{
		{"server.api_key", &c.Server.APIKey},
		{"llm.api_key", &c.LLM.APIKey},
		{"storage.call_log.dsn", &c.Storage.CallLog.DSN},
		{"crm.dsn", &c.CRM.DSN},
		{"events.redis.password", &c.Events.Redis.Password},
	}
	for _, f := range fields {
		v, resolved, err := secrets.Expand(ctx, r, *f.v)
		if err != nil {
			return fmt.Errorf("config %s: %w", f.name, err)
		}
		*f.v = v
		if resolved && v != "" {
			c.secrets = append(c.secrets, v)
		}
	}
	if c.Server.APIKey == "" && !c.Server.NoAuth {
		if k := auth.KeyFromEnv(); k != "" {
			c.Server.APIKey = k
			c.secrets = append(c.secrets, k)
		}
	}
	return nil
}

// Secrets returns the values resolved from env() references.
func (c *Config) Secrets() []string {
	out := make([]string, len(c.secrets))
	copy(out, c.secrets)
	return out
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and compiles the escalation rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	if _, err := escalation.NewPolicy(c.Escalation.Rules); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
