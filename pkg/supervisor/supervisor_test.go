package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strainer/strainer/pkg/control"
	"github.com/strainer/strainer/pkg/provider"
	"github.com/strainer/strainer/pkg/ratelimit"
)

// fakeController lets pause/resume-parity and exit-priority tests run
// without spawning real OS processes. It hands RunUntilExit a scripted
// probe instead of one tied to a real *exec.Cmd.
type fakeController struct {
	pauses, resumes int
	running         bool
	probe           ChildProbe
}

func (f *fakeController) Spawn(argv []string) (control.ProcessHandle, ChildProbe, error) {
	return control.ProcessHandle{}, f.probe, nil
}
func (f *fakeController) Attach(pid int) control.ProcessHandle  { return control.ProcessHandle{} }
func (f *fakeController) Pause(control.ProcessHandle) error     { f.pauses++; return nil }
func (f *fakeController) Resume(control.ProcessHandle) error    { f.resumes++; return nil }
func (f *fakeController) Terminate(control.ProcessHandle) error { return nil }
func (f *fakeController) IsRunning(control.ProcessHandle) bool  { return f.running }

// realControllerAdapter boxes pkg/control's concrete *control.ChildProbe
// return value as supervisor.ChildProbe so TestRunUntilExit_* can drive the
// real spawn path through RunUntilExit's Controller parameter.
type realControllerAdapter struct {
	*control.Controller
}

func (a realControllerAdapter) Spawn(argv []string) (control.ProcessHandle, ChildProbe, error) {
	return a.Controller.Spawn(argv)
}

// signalCountingAdapter wraps realControllerAdapter and counts the pause,
// resume, and terminate signals sent through it.
type signalCountingAdapter struct {
	realControllerAdapter
	signals int
}

func (a *signalCountingAdapter) Pause(h control.ProcessHandle) error {
	a.signals++
	return a.realControllerAdapter.Pause(h)
}

func (a *signalCountingAdapter) Resume(h control.ProcessHandle) error {
	a.signals++
	return a.realControllerAdapter.Resume(h)
}

func (a *signalCountingAdapter) Terminate(h control.ProcessHandle) error {
	a.signals++
	return a.realControllerAdapter.Terminate(h)
}

// fakeProbe implements exit-probing independent of fakeController.Spawn so
// tests can script exactly when the child "exits".
type fakeProbe struct {
	statuses []*control.ExitStatus // nil entries mean "still running"
	i        int
}

func (p *fakeProbe) TryWait() (*control.ExitStatus, error) {
	if p.i >= len(p.statuses) {
		return nil, nil
	}
	s := p.statuses[p.i]
	p.i++
	return s, nil
}

// fakeEngine scripts a sequence of verdicts for the loop to consume.
type fakeEngine struct {
	verdicts []verdict
	i        int
	last     int // index of the verdict the most recent Check returned
}

type verdict struct {
	proceed bool
	backoff time.Duration
	level   ratelimit.Level
}

func (e *fakeEngine) Check() (bool, time.Duration, error) {
	v := e.verdicts[e.i]
	e.last = e.i
	if e.i < len(e.verdicts)-1 {
		e.i++
	}
	return v.proceed, v.backoff, nil
}

func (e *fakeEngine) LastLevel() ratelimit.Level {
	return e.verdicts[e.last].level
}

func TestRunLoop_PauseResumeParity(t *testing.T) {
	probe := &fakeProbe{statuses: []*control.ExitStatus{nil, nil, {Code: 0}}}
	ctrl := &fakeController{running: true, probe: probe}
	engine := &fakeEngine{verdicts: []verdict{
		{proceed: false, backoff: time.Millisecond, level: ratelimit.LevelCritical},
		{proceed: false, backoff: time.Millisecond, level: ratelimit.LevelCritical},
		{proceed: true, backoff: time.Millisecond, level: ratelimit.LevelNormal},
	}}

	err := RunUntilExit(context.Background(), ctrl, engine, []string{"dummy-argv"}, Config{PauseOnCritical: true})
	require.NoError(t, err)
	assert.Equal(t, ctrl.pauses, ctrl.resumes)
	assert.Equal(t, 2, ctrl.pauses)
}

func TestRunLoop_ExitObservedBeforeLimitCheck(t *testing.T) {
	probe := &fakeProbe{statuses: []*control.ExitStatus{{Code: 0}}}
	ctrl := &fakeController{running: true, probe: probe}
	engine := &fakeEngine{verdicts: []verdict{
		{proceed: false, backoff: time.Hour, level: ratelimit.LevelCritical},
	}}

	err := RunUntilExit(context.Background(), ctrl, engine, []string{"dummy-argv"}, Config{PauseOnCritical: true})
	require.NoError(t, err, "exit must be reported without ever consulting the engine")
	assert.Equal(t, 0, ctrl.pauses)
}

func TestRunLoop_NonZeroExitSurfaced(t *testing.T) {
	probe := &fakeProbe{statuses: []*control.ExitStatus{{Code: 7}}}
	ctrl := &fakeController{running: true, probe: probe}
	engine := &fakeEngine{verdicts: []verdict{{proceed: true, backoff: 0, level: ratelimit.LevelNormal}}}

	err := RunUntilExit(context.Background(), ctrl, engine, []string{"dummy-argv"}, Config{})
	var nz *ChildNonZeroExit
	require.ErrorAs(t, err, &nz)
	assert.Equal(t, 7, nz.Status)
}

func TestRunLoop_PauseOnWarningDisabledNeverPauses(t *testing.T) {
	probe := &fakeProbe{statuses: []*control.ExitStatus{nil, {Code: 0}}}
	ctrl := &fakeController{running: true, probe: probe}
	engine := &fakeEngine{verdicts: []verdict{
		{proceed: true, backoff: time.Millisecond, level: ratelimit.LevelWarning},
		{proceed: true, backoff: time.Millisecond, level: ratelimit.LevelNormal},
	}}

	err := RunUntilExit(context.Background(), ctrl, engine, []string{"dummy-argv"}, Config{PauseOnWarning: false})
	require.NoError(t, err)
	assert.Equal(t, 0, ctrl.pauses, "pause_on_warning disabled must never pause on warning-only usage")
}

func TestRunLoop_PauseOnWarningEnabledPauses(t *testing.T) {
	probe := &fakeProbe{statuses: []*control.ExitStatus{nil, {Code: 0}}}
	ctrl := &fakeController{running: true, probe: probe}
	engine := &fakeEngine{verdicts: []verdict{
		{proceed: true, backoff: time.Millisecond, level: ratelimit.LevelWarning},
		{proceed: true, backoff: time.Millisecond, level: ratelimit.LevelNormal},
	}}

	err := RunUntilExit(context.Background(), ctrl, engine, []string{"dummy-argv"}, Config{PauseOnWarning: true})
	require.NoError(t, err)
	assert.Equal(t, 1, ctrl.pauses)
	assert.Equal(t, ctrl.pauses, ctrl.resumes)
}

func TestRunLoop_CancellationStillResumes(t *testing.T) {
	probe := &fakeProbe{statuses: []*control.ExitStatus{nil}}
	ctrl := &fakeController{running: true, probe: probe}
	engine := &fakeEngine{verdicts: []verdict{
		{proceed: false, backoff: 10 * time.Second, level: ratelimit.LevelCritical},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunUntilExit(ctx, ctrl, engine, []string{"dummy-argv"}, Config{PauseOnCritical: true})
	require.Error(t, err)
	assert.Equal(t, 1, ctrl.pauses)
	assert.Equal(t, 1, ctrl.resumes, "cancellation must still run the scoped resume")
}

func TestSleepCancellable_InterruptedByContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := sleepCancellable(ctx, time.Hour)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleepCancellable_CompletesNormally(t *testing.T) {
	err := sleepCancellable(context.Background(), 5*time.Millisecond)
	require.NoError(t, err)
}

// Scenario 4 from the testable-properties list: a real spawn with the Mock
// provider reporting zero usage never pauses the child.
func TestRunUntilExit_NeverPausesWithZeroUsage(t *testing.T) {
	mock := provider.NewMock(nil, nil, nil)
	engine, err := ratelimit.NewEngine(ratelimit.DefaultThresholds(), ratelimit.BackoffConfig{MinSeconds: 1, MaxSeconds: 2}, mock)
	require.NoError(t, err)

	ctrl := &signalCountingAdapter{realControllerAdapter: realControllerAdapter{control.New()}}
	err = RunUntilExit(context.Background(), ctrl, engine, []string{"sh", "-c", "sleep 0.1"}, Config{PauseOnCritical: true})
	require.NoError(t, err)
	assert.Equal(t, 0, ctrl.signals, "child must never be paused")
}

// Scenario 5: spawning a nonexistent binary fails with SpawnFailed and
// delivers no signals.
func TestRunUntilExit_SpawnFailure(t *testing.T) {
	mock := provider.NewMock(nil, nil, nil)
	engine, err := ratelimit.NewEngine(ratelimit.DefaultThresholds(), ratelimit.BackoffConfig{MinSeconds: 1, MaxSeconds: 2}, mock)
	require.NoError(t, err)

	ctrl := &signalCountingAdapter{realControllerAdapter: realControllerAdapter{control.New()}}
	err = RunUntilExit(context.Background(), ctrl, engine, []string{"strainer_nonexistent_binary_xyz"}, Config{})
	require.Error(t, err)
	var spawnErr *control.SpawnFailed
	assert.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, 0, ctrl.signals, "no signals delivered")
}

func TestRunUntilExit_EmptyArgv(t *testing.T) {
	mock := provider.NewMock(nil, nil, nil)
	engine, err := ratelimit.NewEngine(ratelimit.DefaultThresholds(), ratelimit.BackoffConfig{MinSeconds: 1, MaxSeconds: 2}, mock)
	require.NoError(t, err)

	ctrl := realControllerAdapter{control.New()}
	err = RunUntilExit(context.Background(), ctrl, engine, nil, Config{})
	assert.ErrorIs(t, err, control.ErrInvalidInvocation)
}

// Scenario 6: watch succeeds against a running PID and fails once it is
// gone.
func TestWatch(t *testing.T) {
	raw := control.New()
	ctrl := realControllerAdapter{raw}
	h, probe, err := raw.Spawn([]string{"sleep", "5"})
	require.NoError(t, err)

	require.NoError(t, Watch(ctrl, h.PID()))

	require.NoError(t, raw.Terminate(h))
	time.Sleep(150 * time.Millisecond)
	_, _ = probe.TryWait()

	err = Watch(ctrl, h.PID())
	var notRunning *NotRunning
	assert.ErrorAs(t, err, &notRunning)
}
