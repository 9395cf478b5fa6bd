package provider

import "github.com/strainer/strainer/pkg/ratelimit"

const openAIDefaultBaseURL = "https://api.openai.com/v1"

const (
	openAIDefaultRequestsPerMinute    = 3500
	openAIDefaultTokensPerMinute      = 90000
	openAIDefaultInputTokensPerMinute = 45000
)

type openAIProvider struct {
	cfg     Config
	baseURL string
}

func newOpenAI(cfg Config) (Provider, error) {
	if err := validateCredentialed(cfg); err != nil {
		return nil, err
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	return &openAIProvider{cfg: cfg, baseURL: baseURL}, nil
}

// CurrentUsage returns static zero counters, same caveat as Anthropic.
func (p *openAIProvider) CurrentUsage() (ratelimit.UsageSnapshot, error) {
	return ratelimit.UsageSnapshot{}, nil
}

// ConfiguredLimits returns OpenAI's built-in default per-minute limits.
func (p *openAIProvider) ConfiguredLimits() (ratelimit.LimitsSnapshot, error) {
	requests := uint32(openAIDefaultRequestsPerMinute)
	tokens := uint32(openAIDefaultTokensPerMinute)
	inputTokens := uint32(openAIDefaultInputTokensPerMinute)
	return ratelimit.LimitsSnapshot{
		RequestsPerMinute:    &requests,
		TokensPerMinute:      &tokens,
		InputTokensPerMinute: &inputTokens,
	}, nil
}
