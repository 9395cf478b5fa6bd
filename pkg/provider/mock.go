package provider

import (
	"sync"

	"github.com/strainer/strainer/pkg/ratelimit"
)

// MockProvider is a deterministic variant for tests and for verifying
// supervisor behavior locally, without credentials or network access. Its
// self-reported limits are the canonical limits source for this variant.
type MockProvider struct {
	mu     sync.Mutex
	usage  ratelimit.UsageSnapshot
	limits ratelimit.LimitsSnapshot
}

func newMock(cfg Config) *MockProvider {
	return &MockProvider{
		limits: ratelimit.LimitsSnapshot{
			RequestsPerMinute:    cfg.RequestsPerMinute,
			TokensPerMinute:      cfg.TokensPerMinute,
			InputTokensPerMinute: cfg.InputTokensPerMinute,
		},
	}
}

// NewMock builds a MockProvider directly, without going through the Config
// tagged-union dispatch. Most callers should prefer provider.New with
// Type: TypeMock; this constructor exists for tests that want direct
// access to SetUsage without round-tripping through Config.
func NewMock(requestsPerMinute, tokensPerMinute, inputTokensPerMinute *uint32) *MockProvider {
	return newMock(Config{
		RequestsPerMinute:    requestsPerMinute,
		TokensPerMinute:      tokensPerMinute,
		InputTokensPerMinute: inputTokensPerMinute,
	})
}

// SetUsage sets the counters CurrentUsage will report next.
func (m *MockProvider) SetUsage(requests, tokens, inputTokens uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = ratelimit.UsageSnapshot{
		RequestsUsed:    requests,
		TokensUsed:      tokens,
		InputTokensUsed: inputTokens,
	}
}

// CurrentUsage returns the counters set by the most recent SetUsage call.
func (m *MockProvider) CurrentUsage() (ratelimit.UsageSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage, nil
}

// ConfiguredLimits returns the limits this MockProvider was constructed
// with, verbatim.
func (m *MockProvider) ConfiguredLimits() (ratelimit.LimitsSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits, nil
}
