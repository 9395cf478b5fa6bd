// Package control wraps an OS process identifier with the job-control
// primitives the supervision loop needs: spawn, attach, pause, resume,
// terminate, and a non-blocking liveness probe. All mutation of the target
// process goes through a Controller. The only background goroutine in
// this package is the one Spawn starts per child to wait for its exit.
package control

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// Sentinel errors for the fieldless failure conditions this package
// reports, in the style of the teacher's pkg/system/proc/errs.go: one
// documented var block per package. Failures that carry diagnostic data
// (SpawnFailed, SignalRefused) remain their own struct types below.
var (
	// ErrInvalidInvocation is returned by Spawn when argv is empty.
	ErrInvalidInvocation = errors.New("control: argv must not be empty")
)

// terminateGrace is how long Terminate waits after a graceful SIGTERM
// before escalating to SIGKILL.
const terminateGrace = 100 * time.Millisecond

// ProcessHandle is an opaque reference to a supervised OS process. The
// supervision loop is its sole owner; terminating the underlying OS process
// is never implied by letting a handle go out of scope.
type ProcessHandle struct {
	pid int
	cmd *exec.Cmd // non-nil only for handles created by Spawn
}

// PID returns the OS process identifier the handle refers to.
func (h ProcessHandle) PID() int { return h.pid }

// ExitStatus is the terminal state of a spawned child, reported by
// ChildProbe.TryWait.
type ExitStatus struct {
	Code int
}

// ChildProbe lets the owner of a spawned handle poll for exit without
// blocking.
type ChildProbe struct {
	cmd  *exec.Cmd
	done chan error
}

// TryWait reports the child's exit status if it has already exited, or
// (nil, nil) if it is still running. It never blocks.
func (p *ChildProbe) TryWait() (*ExitStatus, error) {
	select {
	case err := <-p.done:
		code := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		return &ExitStatus{Code: code}, nil
	default:
		return nil, nil
	}
}

// Controller issues stop/continue/terminate primitives against OS process
// identifiers using job-control signals.
type Controller struct{}

// New returns a ready-to-use Controller. Controller carries no state.
func New() *Controller { return &Controller{} }

// Attach produces a handle for an externally-managed PID with no liveness
// check performed up front.
func (c *Controller) Attach(pid int) ProcessHandle {
	return ProcessHandle{pid: pid}
}

// SpawnFailed reports that the OS refused to start the requested program.
type SpawnFailed struct {
	Reason string
}

func (e *SpawnFailed) Error() string { return "control: spawn failed: " + e.Reason }

// Spawn starts argv[0] with the remaining elements as arguments and
// returns a handle plus a probe for its exit. The spawned process is a
// direct child of the calling process, so its exit status is reapable.
func (c *Controller) Spawn(argv []string) (ProcessHandle, *ChildProbe, error) {
	if len(argv) == 0 {
		return ProcessHandle{}, nil, ErrInvalidInvocation
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return ProcessHandle{}, nil, &SpawnFailed{Reason: err.Error()}
	}

	probe := &ChildProbe{cmd: cmd, done: make(chan error, 1)}
	go func() {
		probe.done <- cmd.Wait()
	}()

	return ProcessHandle{pid: cmd.Process.Pid, cmd: cmd}, probe, nil
}

// SignalRefused reports that a pause, resume, terminate, or probe signal
// could not be delivered to the target PID.
type SignalRefused struct {
	PID int
	Op  string
	Err error
}

func (e *SignalRefused) Error() string {
	return "control: " + e.Op + " refused for pid " + strconv.Itoa(e.PID) + ": " + e.Err.Error()
}

func (e *SignalRefused) Unwrap() error { return e.Err }

// Pause sends the job-control stop signal. Pausing an already-paused
// process succeeds.
func (c *Controller) Pause(h ProcessHandle) error {
	if err := unix.Kill(h.pid, unix.SIGSTOP); err != nil {
		return &SignalRefused{PID: h.pid, Op: "pause", Err: err}
	}
	return nil
}

// Resume sends the job-control continue signal. Resuming an already-running
// process succeeds.
func (c *Controller) Resume(h ProcessHandle) error {
	if err := unix.Kill(h.pid, unix.SIGCONT); err != nil {
		return &SignalRefused{PID: h.pid, Op: "resume", Err: err}
	}
	return nil
}

// Terminate requests graceful termination, waits a bounded grace period,
// and escalates to an uncatchable kill if the process is still alive.
// Returns success once the process is no longer live or the final signal
// was accepted.
func (c *Controller) Terminate(h ProcessHandle) error {
	if err := unix.Kill(h.pid, unix.SIGTERM); err != nil {
		return &SignalRefused{PID: h.pid, Op: "terminate", Err: err}
	}

	time.Sleep(terminateGrace)

	if !c.IsRunning(h) {
		return nil
	}

	if err := unix.Kill(h.pid, unix.SIGKILL); err != nil {
		return &SignalRefused{PID: h.pid, Op: "terminate", Err: err}
	}
	return nil
}

// IsRunning sends the null-effect probe signal (signal number zero) and
// reports whether the target is still live. It never blocks and has no
// side effects.
func (c *Controller) IsRunning(h ProcessHandle) bool {
	return unix.Kill(h.pid, 0) == nil
}

