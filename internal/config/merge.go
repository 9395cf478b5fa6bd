package config

import "github.com/strainer/strainer/pkg/ratelimit"

// Merge folds layers left to right: a later layer's field overrides an
// earlier one only when the later field is non-nil. Parameters maps
// merge key-by-key rather than replacing wholesale, so a single env or
// flag override does not discard the rest of a file-provided map.
func Merge(layers ...Layer) Layer {
	var out Layer
	for _, l := range layers {
		mergeInto(&out, l)
	}
	return out
}

func mergeInto(out *Layer, l Layer) {
	if l.API.Type != nil {
		out.API.Type = l.API.Type
	}
	if l.API.APIKey != nil {
		out.API.APIKey = l.API.APIKey
	}
	if l.API.BaseURL != nil {
		out.API.BaseURL = l.API.BaseURL
	}
	if l.API.Model != nil {
		out.API.Model = l.API.Model
	}
	if l.API.MaxTokens != nil {
		out.API.MaxTokens = l.API.MaxTokens
	}
	for k, v := range l.API.Parameters {
		if out.API.Parameters == nil {
			out.API.Parameters = map[string]string{}
		}
		out.API.Parameters[k] = v
	}

	if l.Limits.RequestsPerMinute != nil {
		out.Limits.RequestsPerMinute = l.Limits.RequestsPerMinute
	}
	if l.Limits.TokensPerMinute != nil {
		out.Limits.TokensPerMinute = l.Limits.TokensPerMinute
	}
	if l.Limits.InputTokensPerMinute != nil {
		out.Limits.InputTokensPerMinute = l.Limits.InputTokensPerMinute
	}

	if l.Thresholds.Warning != nil {
		out.Thresholds.Warning = l.Thresholds.Warning
	}
	if l.Thresholds.Critical != nil {
		out.Thresholds.Critical = l.Thresholds.Critical
	}
	if l.Thresholds.Resume != nil {
		out.Thresholds.Resume = l.Thresholds.Resume
	}

	if l.Backoff.MinSeconds != nil {
		out.Backoff.MinSeconds = l.Backoff.MinSeconds
	}
	if l.Backoff.MaxSeconds != nil {
		out.Backoff.MaxSeconds = l.Backoff.MaxSeconds
	}

	if l.Process.PauseOnWarning != nil {
		out.Process.PauseOnWarning = l.Process.PauseOnWarning
	}
	if l.Process.PauseOnCritical != nil {
		out.Process.PauseOnCritical = l.Process.PauseOnCritical
	}

	if l.Logging.Level != nil {
		out.Logging.Level = l.Logging.Level
	}
	if l.Logging.Format != nil {
		out.Logging.Format = l.Logging.Format
	}
}

// Resolve converts a fully merged Layer into a validated Config. Any
// field still nil after merging falls back to its zero value (nil limits
// stay nil, meaning unconstrained); Validate then rejects an empty API
// key, model, or max tokens for a non-mock provider, none of which
// Defaults sets.
func Resolve(l Layer) (Config, error) {
	cfg := Config{
		API: ResolvedAPI{
			Type:       derefStr(l.API.Type),
			APIKey:     derefStr(l.API.APIKey),
			BaseURL:    derefStr(l.API.BaseURL),
			Model:      derefStr(l.API.Model),
			MaxTokens:  derefU32(l.API.MaxTokens),
			Parameters: l.API.Parameters,
		},
		Limits: ratelimit.RateLimits{
			RequestsPerMinute:    l.Limits.RequestsPerMinute,
			TokensPerMinute:      l.Limits.TokensPerMinute,
			InputTokensPerMinute: l.Limits.InputTokensPerMinute,
		},
		Thresholds: ratelimit.Thresholds{
			Warning:  derefU8(l.Thresholds.Warning),
			Critical: derefU8(l.Thresholds.Critical),
			Resume:   derefU8(l.Thresholds.Resume),
		},
		Backoff: ratelimit.BackoffConfig{
			MinSeconds: derefU32(l.Backoff.MinSeconds),
			MaxSeconds: derefU32(l.Backoff.MaxSeconds),
		},
		Process: ResolvedProcess{
			PauseOnWarning:  derefBool(l.Process.PauseOnWarning),
			PauseOnCritical: derefBool(l.Process.PauseOnCritical),
		},
		Logging: ResolvedLogging{
			Level:  derefStr(l.Logging.Level),
			Format: derefStr(l.Logging.Format),
		},
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefU32(p *uint32) uint32 {
	if p == nil {
		return 0
	}
	return *p
}

func derefU8(p *uint8) uint8 {
	if p == nil {
		return 0
	}
	return *p
}

func derefBool(p *bool) bool {
	if p == nil {
		return false
	}
	return *p
}
