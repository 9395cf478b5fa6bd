// Package config loads and merges strainer's layered configuration:
// built-in defaults, an optional TOML file, STRAINER_* environment
// variables, and CLI flags, in that precedence order. Each layer is a
// struct of optional (pointer) fields; a later layer only overrides an
// earlier one where its own field is explicitly set.
package config

import "github.com/strainer/strainer/pkg/ratelimit"

// APILayer is the `[api]` section: provider selection and credentials.
type APILayer struct {
	Type       *string           `toml:"type"`
	APIKey     *string           `toml:"api_key"`
	BaseURL    *string           `toml:"base_url"`
	Model      *string           `toml:"model"`
	MaxTokens  *uint32           `toml:"max_tokens"`
	Parameters map[string]string `toml:"parameters"`
}

// LimitsLayer is the `[limits]` section.
type LimitsLayer struct {
	RequestsPerMinute    *uint32 `toml:"requests_per_minute"`
	TokensPerMinute      *uint32 `toml:"tokens_per_minute"`
	InputTokensPerMinute *uint32 `toml:"input_tokens_per_minute"`
}

// ThresholdsLayer is the `[thresholds]` section.
type ThresholdsLayer struct {
	Warning  *uint8 `toml:"warning"`
	Critical *uint8 `toml:"critical"`
	Resume   *uint8 `toml:"resume"`
}

// BackoffLayer is the `[backoff]` section.
type BackoffLayer struct {
	MinSeconds *uint32 `toml:"min_seconds"`
	MaxSeconds *uint32 `toml:"max_seconds"`
}

// ProcessLayer is the `[process]` section.
type ProcessLayer struct {
	PauseOnWarning  *bool `toml:"pause_on_warning"`
	PauseOnCritical *bool `toml:"pause_on_critical"`
}

// LoggingLayer is the `[logging]` section.
type LoggingLayer struct {
	Level  *string `toml:"level"`
	Format *string `toml:"format"`
}

// Layer is one configuration source: defaults, file, environment, or
// flags. Every field is optional; Merge applies later layers over
// earlier ones only where a field is non-nil.
type Layer struct {
	API        APILayer        `toml:"api"`
	Limits     LimitsLayer     `toml:"limits"`
	Thresholds ThresholdsLayer `toml:"thresholds"`
	Backoff    BackoffLayer    `toml:"backoff"`
	Process    ProcessLayer    `toml:"process"`
	Logging    LoggingLayer    `toml:"logging"`
}

// Config is the fully merged and validated configuration consumed by
// cmd/strainer's subcommands.
type Config struct {
	API        ResolvedAPI
	Limits     ratelimit.RateLimits
	Thresholds ratelimit.Thresholds
	Backoff    ratelimit.BackoffConfig
	Process    ResolvedProcess
	Logging    ResolvedLogging
}

// ResolvedAPI is the fully resolved `[api]` section.
type ResolvedAPI struct {
	Type       string
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  uint32
	Parameters map[string]string
}

// ResolvedProcess is the fully resolved `[process]` section.
type ResolvedProcess struct {
	PauseOnWarning  bool
	PauseOnCritical bool
}

// ResolvedLogging is the fully resolved `[logging]` section.
type ResolvedLogging struct {
	Level  string
	Format string
}

func strp(s string) *string { return &s }
func u32p(v uint32) *uint32 { return &v }
func u8p(v uint8) *uint8    { return &v }
func boolp(v bool) *bool    { return &v }

// Defaults returns the built-in default layer that every other layer
// merges on top of. It sets the provider type, thresholds, backoff,
// process, and logging fields; the API key, base URL, model, max tokens,
// parameters, and limits are left unset.
func Defaults() Layer {
	return Layer{
		API: APILayer{
			Type: strp("anthropic"),
		},
		Thresholds: ThresholdsLayer{
			Warning:  u8p(30),
			Critical: u8p(50),
			Resume:   u8p(25),
		},
		Backoff: BackoffLayer{
			MinSeconds: u32p(5),
			MaxSeconds: u32p(60),
		},
		Process: ProcessLayer{
			PauseOnWarning:  boolp(false),
			PauseOnCritical: boolp(true),
		},
		Logging: LoggingLayer{
			Level:  strp("info"),
			Format: strp("text"),
		},
	}
}
