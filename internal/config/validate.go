package config

import (
	"errors"

	"github.com/strainer/strainer/pkg/provider"
)

// Sentinel errors for this package's fieldless validation failures, in the
// style of the teacher's pkg/system/proc/errs.go: one documented var block
// per package. ConfigValidationError wraps one of these via Unwrap so
// callers can match with errors.Is while still getting a human Reason.
var (
	ErrMissingAPIKey       = errors.New("config: api.api_key is required")
	ErrMissingModel        = errors.New("config: api.model is required")
	ErrInvalidMaxTokens    = errors.New("config: api.max_tokens must be > 0")
	ErrUnknownProviderType = errors.New("config: api.type must be one of anthropic, openai, mock")
)

// ConfigValidationError reports a semantic violation in a merged
// configuration: threshold ordering, backoff ordering, or a missing API
// key for a non-mock provider.
type ConfigValidationError struct {
	Reason string
	Err    error
}

func (e *ConfigValidationError) Error() string {
	return "config: invalid configuration: " + e.Reason
}

func (e *ConfigValidationError) Unwrap() error { return e.Err }

// Validate checks the cross-field invariants a merged Config must
// satisfy before it reaches the supervisor or provider factory.
func Validate(cfg Config) error {
	if err := cfg.Thresholds.Validate(); err != nil {
		return &ConfigValidationError{Reason: err.Error(), Err: err}
	}
	if err := cfg.Backoff.Validate(); err != nil {
		return &ConfigValidationError{Reason: err.Error(), Err: err}
	}

	switch provider.Type(cfg.API.Type) {
	case provider.TypeMock:
		// no credentials required
	case provider.TypeAnthropic, provider.TypeOpenAI:
		if cfg.API.APIKey == "" {
			return &ConfigValidationError{Reason: "api.api_key is required for provider " + cfg.API.Type, Err: ErrMissingAPIKey}
		}
		if cfg.API.Model == "" {
			return &ConfigValidationError{Reason: "api.model is required for provider " + cfg.API.Type, Err: ErrMissingModel}
		}
		if cfg.API.MaxTokens == 0 {
			return &ConfigValidationError{Reason: "api.max_tokens must be > 0 for provider " + cfg.API.Type, Err: ErrInvalidMaxTokens}
		}
	default:
		return &ConfigValidationError{Reason: "api.type must be one of anthropic, openai, mock; got " + cfg.API.Type, Err: ErrUnknownProviderType}
	}

	return nil
}
