package ratelimit

import "time"

// Provider is the uniform query surface the engine needs from an upstream.
// It is declared here, not imported from pkg/provider, so that package can
// depend on this one instead of the reverse.
type Provider interface {
	CurrentUsage() (UsageSnapshot, error)
	ConfiguredLimits() (LimitsSnapshot, error)
}

// Engine holds the last observed usage and the static configuration needed
// to turn a provider's response into a proceed/backoff verdict. It is a
// pure function of its inputs plus the two provider responses: it holds no
// background task and never retries a failed provider call.
type Engine struct {
	thresholds Thresholds
	backoff    BackoffConfig
	provider   Provider

	stats     internalUsageStats
	lastLevel Level
}

// NewEngine constructs an Engine. It takes no limits: Check reads them
// from the provider on every call. Thresholds and backoff are validated here defensively
// since Engine is also constructed directly by tests and callers outside
// the config package.
func NewEngine(thresholds Thresholds, backoff BackoffConfig, provider Provider) (*Engine, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if err := backoff.Validate(); err != nil {
		return nil, err
	}
	return &Engine{thresholds: thresholds, backoff: backoff, provider: provider}, nil
}

// Check runs the decision algorithm and returns the proceed verdict plus
// the duration the caller should back off for when proceed is false (or
// the minimum idle backoff when proceed is true).
//
// Algorithm, exactly per the decision engine contract:
//  1. query current usage
//  2. query configured limits
//  3. if every limit dimension is unconstrained, proceed with min backoff
//     without touching internal stats
//  4. overwrite internal stats with the usage snapshot and a fresh timestamp
//  5. compute floor(used*100/limit) per dimension using 64-bit arithmetic
//  6. take the max across dimensions
//  7. compare against the threshold ladder: critical -> back off at max;
//     warning -> proceed at min backoff; at or under resume -> reset stats
//     and proceed at min backoff; otherwise proceed at min backoff
func (e *Engine) Check() (bool, time.Duration, error) {
	usage, err := e.provider.CurrentUsage()
	if err != nil {
		return false, 0, err
	}
	limits, err := e.provider.ConfiguredLimits()
	if err != nil {
		return false, 0, err
	}

	if limits.Unconstrained() {
		e.lastLevel = LevelNormal
		return true, e.backoff.min(), nil
	}

	e.stats = internalUsageStats{usage: usage, checkedAt: time.Now()}

	requestsPct := percentOf(usage.RequestsUsed, limits.RequestsPerMinute)
	tokensPct := percentOf(usage.TokensUsed, limits.TokensPerMinute)
	inputTokensPct := percentOf(usage.InputTokensUsed, limits.InputTokensPerMinute)

	maxPct := requestsPct
	if tokensPct > maxPct {
		maxPct = tokensPct
	}
	if inputTokensPct > maxPct {
		maxPct = inputTokensPct
	}

	critical := uint64(e.thresholds.Critical)
	warning := uint64(e.thresholds.Warning)
	resume := uint64(e.thresholds.Resume)

	switch {
	case maxPct >= critical:
		e.lastLevel = LevelCritical
		return false, e.backoff.max(), nil
	case maxPct >= warning:
		e.lastLevel = LevelWarning
		return true, e.backoff.min(), nil
	case maxPct <= resume:
		e.stats = internalUsageStats{}
		e.lastLevel = LevelNormal
		return true, e.backoff.min(), nil
	default:
		e.lastLevel = LevelNormal
		return true, e.backoff.min(), nil
	}
}

// LastLevel reports the threshold-ladder classification from the most
// recent Check call. It lets a caller (the supervision loop) implement
// pause_on_warning without re-deriving percentages from raw usage.
func (e *Engine) LastLevel() Level { return e.lastLevel }

// percentOf computes floor(used*100/limit) using 64-bit intermediates to
// avoid overflow; a nil or zero limit is treated as unconstrained (0%).
func percentOf(used uint32, limit *uint32) uint64 {
	if limit == nil || *limit == 0 {
		return 0
	}
	return (uint64(used) * 100) / uint64(*limit)
}
