// Package config loads runtime settings and prompt templates.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
	"github.com/cognicore/lexatom/pkg/lexatom/validate"
)

// EnvPrefix prefixes every environment override, e.g. LEXATOM_LLM_MODEL.
const EnvPrefix = "LEXATOM_"

// Reasoner kinds.
const (
	ReasonerPengine  = "pengine"
	ReasonerEmbedded = "embedded"
)

type Config struct {
	Log        LogConfig        `koanf:"log"`
	LLM        LLMConfig        `koanf:"llm"`
	Reasoner   ReasonerConfig   `koanf:"reasoner"`
	Store      StoreConfig      `koanf:"store"`
	Validation ValidationConfig `koanf:"validation"`
	Prompts    string           `koanf:"prompts"` // optional prompt bundle path
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type LLMConfig struct {
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`

	RequestsPerMinute int `koanf:"requests_per_minute"` // 0 disables throttling
}

type ReasonerConfig struct {
	Kind        string        `koanf:"kind"` // pengine, embedded
	URL         string        `koanf:"url"`
	Application string        `koanf:"application"`
	Timeout     time.Duration `koanf:"timeout"`
}

type StoreConfig struct {
	Path string `koanf:"path"`
}

type ValidationConfig struct {
	MaxAttempts int    `koanf:"max_attempts"`
	Policy      string `koanf:"policy"` // accept_last_draft, fail_on_exhaustion
}

// Load builds the configuration from defaults, the optional YAML file at
// path and LEXATOM_* environment variables, in that order of precedence.
// SWI_PROLOG_URL is honored as the default reasoner URL.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	reasonerURL := "http://localhost:3030"
	if u := os.Getenv("SWI_PROLOG_URL"); u != "" {
		reasonerURL = u
	}

	defaults := map[string]any{
		"log.level":               "info",
		"llm.base_url":            "https://api.openai.com/v1/chat/completions",
		"llm.model":               "gpt-4o-mini",
		"llm.timeout":             "60s",
		"reasoner.kind":           ReasonerPengine,
		"reasoner.url":            reasonerURL,
		"reasoner.application":    "pengine_sandbox",
		"reasoner.timeout":        "30s",
		"store.path":              "lexatom.db",
		"validation.max_attempts": validate.DefaultMaxAttempts,
		"validation.policy":       validate.AcceptLastDraft.String(),
	}
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return nil, err
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	// LEXATOM_LLM_BASE_URL -> llm.base_url: only the section separator
	// becomes a dot.
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + rest
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.Reasoner.Kind {
	case ReasonerPengine:
		if c.Reasoner.URL == "" {
			return fmt.Errorf("%w: reasoner.url is required for the pengine reasoner", internalerr.ErrInvalidConfig)
		}
	case ReasonerEmbedded:
	default:
		return fmt.Errorf("%w: unknown reasoner.kind %q", internalerr.ErrInvalidConfig, c.Reasoner.Kind)
	}
	if c.Validation.MaxAttempts < 1 {
		return fmt.Errorf("%w: validation.max_attempts must be at least 1", internalerr.ErrInvalidConfig)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("%w: llm.requests_per_minute must not be negative", internalerr.ErrInvalidConfig)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is required", internalerr.ErrInvalidConfig)
	}
	return nil
}

// Policy returns the configured exhaustion policy.
func (c *Config) Policy() (validate.Policy, error) {
	return validate.ParsePolicy(c.Validation.Policy)
}
