// Package supervisor drives a process controller, a rate-limit decision
// engine, and a provider through a single cooperative polling loop: the
// core coupling this whole system exists to provide. It owns the process
// handle, the engine, and the provider exclusively; the engine and the
// provider hold no background task of their own, and the controller's only
// one is the goroutine that waits for a spawned child's exit.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/strainer/strainer/pkg/control"
	"github.com/strainer/strainer/pkg/ratelimit"
)

// Sentinel errors for this package's internal signaling, in the style of
// the teacher's pkg/system/proc/errs.go: one documented var block per
// package.
var (
	// errPending is returned exactly once per sleepCancellable call to force
	// a single backoff.Retry interval; it never escapes to callers.
	errPending = errors.New("supervisor: waiting out backoff")
)

// Config configures one supervised run. Rate limits, thresholds, and
// backoff bounds live in the Engine this Config's caller builds; the loop
// itself only needs to know whether to pause the child at warning/critical
// level.
type Config struct {
	PauseOnWarning  bool
	PauseOnCritical bool
}

// ChildNonZeroExit reports that the supervised child exited with a
// non-zero status. The supervisor does not retry.
type ChildNonZeroExit struct {
	Status int
}

func (e *ChildNonZeroExit) Error() string {
	return "supervisor: child exited with status " + strconv.Itoa(e.Status)
}

// NotRunning reports that a watch target is not alive.
type NotRunning struct {
	PID int
}

func (e *NotRunning) Error() string {
	return "supervisor: pid " + strconv.Itoa(e.PID) + " is not running"
}

// ChildProbe is the exit-probe surface RunUntilExit needs from a spawned
// child; pkg/control's *ChildProbe satisfies it. Named as an interface,
// rather than depended on concretely, so tests can script exit behavior
// without spawning a real process.
type ChildProbe interface {
	TryWait() (*control.ExitStatus, error)
}

// Controller is the subset of pkg/control's Controller the loop needs,
// named here so tests can supply a fake without spawning real processes.
type Controller interface {
	Spawn(argv []string) (control.ProcessHandle, ChildProbe, error)
	Attach(pid int) control.ProcessHandle
	Pause(h control.ProcessHandle) error
	Resume(h control.ProcessHandle) error
	Terminate(h control.ProcessHandle) error
	IsRunning(h control.ProcessHandle) bool
}

// Engine is the subset of pkg/ratelimit's Engine the loop needs.
type Engine interface {
	Check() (bool, time.Duration, error)
	LastLevel() ratelimit.Level
}

// RunUntilExit spawns argv under ctrl and drives it to completion,
// applying cfg's rate-limit policy via engine. Exit priority holds: the
// child's exit status is observed before every limit check, and a
// proceed=false verdict never delays reporting an already-observed exit
// past the current iteration.
//
// On ctx cancellation, any outstanding pause is resumed before
// RunUntilExit returns.
func RunUntilExit(ctx context.Context, ctrl Controller, engine Engine, argv []string, cfg Config) error {
	handle, probe, err := ctrl.Spawn(argv)
	if err != nil {
		return err
	}

	for {
		if status, err := probe.TryWait(); err != nil {
			return err
		} else if status != nil {
			if status.Code != 0 {
				return &ChildNonZeroExit{Status: status.Code}
			}
			return nil
		}

		proceed, backoffDuration, err := engine.Check()
		if err != nil {
			return err
		}
		slog.Debug("tick", "proceed", proceed, "backoff", backoffDuration, "level", engine.LastLevel())

		if !proceed {
			if err := pauseSleepResume(ctx, ctrl, handle, backoffDuration, cfg.PauseOnCritical); err != nil {
				return err
			}
			continue
		}

		if cfg.PauseOnWarning && engine.LastLevel() == ratelimit.LevelWarning {
			if err := pauseSleepResume(ctx, ctrl, handle, backoffDuration, true); err != nil {
				return err
			}
			continue
		}

		if err := sleepCancellable(ctx, time.Second); err != nil {
			return err
		}
	}
}

// pauseSleepResume is the scoped pause/resume acquisition: every exit path,
// including context cancellation, runs the resume step so a paused child
// is never left stopped.
func pauseSleepResume(ctx context.Context, ctrl Controller, handle control.ProcessHandle, d time.Duration, doPause bool) error {
	if doPause {
		if err := ctrl.Pause(handle); err != nil {
			return err
		}
		slog.Debug("paused child", "pid", handle.PID(), "backoff", d)
	}

	sleepErr := sleepCancellable(ctx, d)

	if doPause {
		if err := ctrl.Resume(handle); err != nil {
			return errors.Join(sleepErr, err)
		}
		slog.Debug("resumed child", "pid", handle.PID())
	}

	return sleepErr
}

// sleepCancellable sleeps for d, or returns early with ctx.Err() if ctx is
// cancelled first. It is built on cenkalti/backoff/v4's context-aware
// BackOff: the operation fails once to force exactly one wait of d, then
// succeeds to end the retry loop, so a cancelled context interrupts the
// wait immediately instead of sleeping to completion.
func sleepCancellable(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	attempted := false
	op := func() error {
		if attempted {
			return nil
		}
		attempted = true
		return errPending
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(d), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return err
	}
	return nil
}

// Watch attaches to pid and succeeds only if it is currently running. It
// does not run the rate-limit loop; upgrading watch mode to do so is left
// as an open question (see SPEC_FULL.md §6).
func Watch(ctrl Controller, pid int) error {
	handle := ctrl.Attach(pid)
	if !ctrl.IsRunning(handle) {
		return &NotRunning{PID: pid}
	}
	return nil
}
