//go:build linux

// Package supervise runs the patched application as a child process,
// forwards terminating signals to it, and translates its termination into
// the loader's own outcome.
package supervise

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sys/unix"
)

// ErrExecFailed means the program image could not be executed at all.
var ErrExecFailed = errors.New("supervise: failed to exec program")

// Outcome is the child's translated termination: a normal exit code, or
// the signal that killed it.
type Outcome struct {
	Code     int
	Signal   syscall.Signal
	Signaled bool
}

// Run starts progPath with argv [progPath, passArgs...] and inherited
// stdio, forwards SIGINT and SIGTERM to the child while it lives, reaps
// it, and translates its wait status. SIGKILL cannot be intercepted and
// simply kills both processes independently.
func Run(logger log.Logger, progPath string, passArgs []string) (Outcome, error) {
	cmd := exec.Command(progPath, passArgs...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %s: %v", ErrExecFailed, progPath, err)
	}
	level.Debug(logger).Log("msg", "child started", "prog", progPath, "pid", cmd.Process.Pid)

	// The child pid is recorded before forwarding is enabled and read-only
	// afterward; the relay goroutine touches nothing else.
	child := cmd.Process
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigc:
				level.Debug(logger).Log("msg", "forwarding signal to child", "sig", sig, "pid", child.Pid)
				_ = child.Signal(sig)
			case <-done:
				return
			}
		}
	}()

	waitErr := cmd.Wait()
	signal.Stop(sigc)
	close(done)

	return translateWait(logger, cmd, waitErr)
}

func translateWait(logger log.Logger, cmd *exec.Cmd, waitErr error) (Outcome, error) {
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return Outcome{}, fmt.Errorf("supervise: wait for child %d: %w", cmd.Process.Pid, waitErr)
	}

	ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
	if !ok {
		return Outcome{}, fmt.Errorf("supervise: unexpected wait status type %T", cmd.ProcessState.Sys())
	}
	switch {
	case ws.Exited():
		level.Debug(logger).Log("msg", "child exited", "code", ws.ExitStatus())
		return Outcome{Code: ws.ExitStatus()}, nil
	case ws.Signaled():
		level.Debug(logger).Log("msg", "child terminated by signal", "sig", ws.Signal())
		return Outcome{Signal: ws.Signal(), Signaled: true}, nil
	}
	// Unreachable under standard process semantics: a reaped child either
	// exited or was signaled.
	return Outcome{}, fmt.Errorf("supervise: child neither exited nor signaled (wait status %#x)", uint32(ws))
}

// Exit terminates the loader with the child's outcome. A signaled child is
// mirrored by restoring the default disposition and re-raising the same
// signal, so the caller observes the identical termination. Never returns.
func (o Outcome) Exit() {
	if o.Signaled {
		signal.Reset(o.Signal)
		_ = unix.Kill(unix.Getpid(), o.Signal)
		// The default disposition terminates us above; this is the shell
		// convention fallback for non-fatal dispositions.
		os.Exit(128 + int(o.Signal))
	}
	os.Exit(o.Code)
}
