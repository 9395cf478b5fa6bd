package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strainer/strainer/internal/config"
	"github.com/strainer/strainer/pkg/control"
	"github.com/strainer/strainer/pkg/provider"
	"github.com/strainer/strainer/pkg/supervisor"
)

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"non-zero child exit surfaces status", &supervisor.ChildNonZeroExit{Status: 7}, 7},
		{"zero-status child exit falls back to generic", &supervisor.ChildNonZeroExit{Status: 0}, exitGeneric},
		{"not running", &supervisor.NotRunning{PID: 123}, exitWatchNotAlive},
		{"empty argv", control.ErrInvalidInvocation, exitInvalidInvoc},
		{"spawn failed", &control.SpawnFailed{Reason: "not found"}, exitSpawnFailed},
		{"config load error", &config.ConfigLoadError{Path: "x", Err: assertErr{}}, exitInvalidConfig},
		{"config validation error", &config.ConfigValidationError{Reason: "bad"}, exitInvalidConfig},
		{"provider config error", &provider.InvalidProviderConfig{Reason: "bad"}, exitProviderInit},
		{"unknown error", assertErr{}, exitGeneric},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCodeFor(tc.err))
		})
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

// newTestCmd builds a cobra.Command with run's flag set bound, mirroring
// main's wiring closely enough to exercise flagsToLayer's Changed guard.
func newTestCmd(rf *runFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "run"}
	bindRunFlags(cmd, rf)
	return cmd
}

func TestFlagsToLayer_UntouchedFlagsLeaveLayerFieldsNil(t *testing.T) {
	var rf runFlags
	cmd := newTestCmd(&rf)
	require.NoError(t, cmd.ParseFlags(nil))

	l := flagsToLayer(cmd, commonFlags{}, rf)

	assert.Nil(t, l.Thresholds.Warning)
	assert.Nil(t, l.Thresholds.Critical)
	assert.Nil(t, l.Thresholds.Resume)
	assert.Nil(t, l.Backoff.MinSeconds)
	assert.Nil(t, l.Backoff.MaxSeconds)
	assert.Nil(t, l.Process.PauseOnWarning)
	assert.Nil(t, l.Process.PauseOnCritical)
}

func TestFlagsToLayer_ExplicitFlagsPopulateLayer(t *testing.T) {
	var rf runFlags
	cmd := newTestCmd(&rf)
	require.NoError(t, cmd.ParseFlags([]string{
		"--warning-threshold", "40",
		"--critical-threshold", "60",
		"--resume-threshold", "20",
		"--min-backoff", "10",
		"--max-backoff", "90",
		"--pause-on-warning", "true",
		"--pause-on-critical", "false",
	}))

	l := flagsToLayer(cmd, commonFlags{}, rf)

	require.NotNil(t, l.Thresholds.Warning)
	assert.Equal(t, uint8(40), *l.Thresholds.Warning)
	require.NotNil(t, l.Thresholds.Critical)
	assert.Equal(t, uint8(60), *l.Thresholds.Critical)
	require.NotNil(t, l.Thresholds.Resume)
	assert.Equal(t, uint8(20), *l.Thresholds.Resume)
	require.NotNil(t, l.Backoff.MinSeconds)
	assert.Equal(t, uint32(10), *l.Backoff.MinSeconds)
	require.NotNil(t, l.Backoff.MaxSeconds)
	assert.Equal(t, uint32(90), *l.Backoff.MaxSeconds)
	require.NotNil(t, l.Process.PauseOnWarning)
	assert.True(t, *l.Process.PauseOnWarning)
	require.NotNil(t, l.Process.PauseOnCritical)
	assert.False(t, *l.Process.PauseOnCritical)
}

func TestFlagsToLayer_PartialFlagsOnlyPopulateThoseFields(t *testing.T) {
	var rf runFlags
	cmd := newTestCmd(&rf)
	require.NoError(t, cmd.ParseFlags([]string{"--warning-threshold", "40"}))

	l := flagsToLayer(cmd, commonFlags{}, rf)

	require.NotNil(t, l.Thresholds.Warning)
	assert.Equal(t, uint8(40), *l.Thresholds.Warning)
	assert.Nil(t, l.Thresholds.Critical)
	assert.Nil(t, l.Thresholds.Resume)
	assert.Nil(t, l.Backoff.MinSeconds)
	assert.Nil(t, l.Backoff.MaxSeconds)
	assert.Nil(t, l.Process.PauseOnWarning)
	assert.Nil(t, l.Process.PauseOnCritical)
}

func TestResolve_DefaultThresholdsSurviveWhenFlagsUntouched(t *testing.T) {
	var rf runFlags
	cmd := newTestCmd(&rf)
	require.NoError(t, cmd.ParseFlags([]string{"--api-key", "k", "--api", "mock"}))

	cfg, err := resolve(cmd, commonFlags{}, rf)
	require.NoError(t, err)

	assert.Equal(t, uint8(30), cfg.Thresholds.Warning)
	assert.Equal(t, uint8(50), cfg.Thresholds.Critical)
	assert.Equal(t, uint8(25), cfg.Thresholds.Resume)
}

// TestResolve_EnvLayerSurvivesUnsetFlags guards against flagsToLayer
// populating its Layer from cobra's compiled-in flag defaults: if it did,
// the flag layer (merged last) would always beat the environment layer
// below for every invocation that doesn't pass --warning-threshold
// explicitly.
func TestResolve_EnvLayerSurvivesUnsetFlags(t *testing.T) {
	t.Setenv("STRAINER_WARNING_THRESHOLD", "41")
	t.Setenv("STRAINER_PAUSE_ON_CRITICAL", "false")

	var rf runFlags
	cmd := newTestCmd(&rf)
	require.NoError(t, cmd.ParseFlags([]string{"--api-key", "k", "--api", "mock"}))

	cfg, err := resolve(cmd, commonFlags{}, rf)
	require.NoError(t, err)

	assert.Equal(t, uint8(41), cfg.Thresholds.Warning)
	assert.False(t, cfg.Process.PauseOnCritical)
}
