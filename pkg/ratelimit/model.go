// Package ratelimit implements the decision engine: a pure function from
// usage and limits to a proceed/backoff verdict. It holds no background
// task and performs no I/O of its own.
package ratelimit

import (
	"errors"
	"time"
)

// Sentinel errors for this package's fieldless validation failures, in the
// style of the teacher's pkg/system/proc/errs.go: one documented var block
// per package.
var (
	// ErrInvalidThresholds reports a Thresholds value that does not satisfy
	// resume < warning < critical.
	ErrInvalidThresholds = errors.New("ratelimit: thresholds must satisfy resume < warning < critical")

	// ErrInvalidBackoff reports a BackoffConfig value that does not satisfy
	// min_seconds < max_seconds.
	ErrInvalidBackoff = errors.New("ratelimit: backoff min_seconds must be less than max_seconds")
)

// RateLimits are the per-minute ceilings an operator configures for a run.
// A nil field means that dimension is unconstrained.
type RateLimits struct {
	RequestsPerMinute    *uint32
	TokensPerMinute      *uint32
	InputTokensPerMinute *uint32
}

// Unconstrained reports whether every dimension is nil, in which case the
// engine always proceeds.
func (r RateLimits) Unconstrained() bool {
	return r.RequestsPerMinute == nil && r.TokensPerMinute == nil && r.InputTokensPerMinute == nil
}

// LimitsSnapshot is the shape a Provider reports back for ConfiguredLimits.
// A nil dimension means the provider cannot or will not constrain on it.
type LimitsSnapshot = RateLimits

// Thresholds are percentages in 0..=100 applied to the maximum per-dimension
// usage percentage. Resume must be strictly less than Warning, which must be
// strictly less than Critical.
type Thresholds struct {
	Warning  uint8
	Critical uint8
	Resume   uint8
}

// DefaultThresholds returns this repository's canonical threshold pair
// (30/50/25), the same default surfaced by the CLI flags and the config
// file defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 30, Critical: 50, Resume: 25}
}

// Validate enforces Resume < Warning < Critical.
func (t Thresholds) Validate() error {
	if !(t.Resume < t.Warning && t.Warning < t.Critical) {
		return ErrInvalidThresholds
	}
	return nil
}

// BackoffConfig bounds how long the supervision loop waits between checks
// while backing off.
type BackoffConfig struct {
	MinSeconds uint32
	MaxSeconds uint32
}

// Validate enforces Min < Max.
func (b BackoffConfig) Validate() error {
	if !(b.MinSeconds < b.MaxSeconds) {
		return ErrInvalidBackoff
	}
	return nil
}

func (b BackoffConfig) min() time.Duration { return time.Duration(b.MinSeconds) * time.Second }
func (b BackoffConfig) max() time.Duration { return time.Duration(b.MaxSeconds) * time.Second }

// UsageSnapshot is a provider's report of usage over the current rolling
// minute.
type UsageSnapshot struct {
	RequestsUsed    uint32
	TokensUsed      uint32
	InputTokensUsed uint32
}

// Level classifies the maximum usage percentage against the threshold
// ladder, independent of the proceed/backoff verdict. It lets a caller
// distinguish "proceeding but at warning level" from ordinary operation,
// which the two-valued Check return cannot express on its own.
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "normal"
	}
}

// internalUsageStats is the engine's private record of the last observed
// usage, reset to zero whenever usage decays at or below the resume
// threshold.
type internalUsageStats struct {
	usage     UsageSnapshot
	checkedAt time.Time
}
