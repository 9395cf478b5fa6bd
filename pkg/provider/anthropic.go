package provider

import "github.com/strainer/strainer/pkg/ratelimit"

// anthropicDefaultBaseURL is the built-in base URL used when Config.BaseURL
// is empty.
const anthropicDefaultBaseURL = "https://api.anthropic.com/v1"

// Anthropic's built-in default per-minute limits, used until live upstream
// introspection is implemented (see DESIGN.md's Open Question resolution).
const (
	anthropicDefaultRequestsPerMinute    = 10000
	anthropicDefaultTokensPerMinute      = 100000
	anthropicDefaultInputTokensPerMinute = 50000
)

type anthropicProvider struct {
	cfg     Config
	baseURL string
}

func newAnthropic(cfg Config) (Provider, error) {
	if err := validateCredentialed(cfg); err != nil {
		return nil, err
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	return &anthropicProvider{cfg: cfg, baseURL: baseURL}, nil
}

// CurrentUsage returns static zero counters. Live introspection against the
// Anthropic API is an open question this implementation does not resolve;
// see SPEC_FULL.md §6.
func (p *anthropicProvider) CurrentUsage() (ratelimit.UsageSnapshot, error) {
	return ratelimit.UsageSnapshot{}, nil
}

// ConfiguredLimits returns Anthropic's built-in default per-minute limits.
func (p *anthropicProvider) ConfiguredLimits() (ratelimit.LimitsSnapshot, error) {
	requests := uint32(anthropicDefaultRequestsPerMinute)
	tokens := uint32(anthropicDefaultTokensPerMinute)
	inputTokens := uint32(anthropicDefaultInputTokensPerMinute)
	return ratelimit.LimitsSnapshot{
		RequestsPerMinute:    &requests,
		TokensPerMinute:      &tokens,
		InputTokensPerMinute: &inputTokens,
	}, nil
}
