// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// HostProvisioner runs steps directly on the host, one shell process
// per command, with the instance's workspace as the working directory.
type HostProvisioner struct {
	// Stdout and Stderr receive step output. Defaults to the process's
	// own streams when nil.
	Stdout io.Writer
	Stderr io.Writer
}

// Provision verifies the workspace exists and returns a host
// environment. The shell is resolved via PATH at exec time, not
// validated here: a missing interpreter surfaces as a step failure
// with a precise error.
func (p *HostProvisioner) Provision(ctx context.Context, spec Spec) (Environment, error) {
	info, err := os.Stat(spec.Workspace)
	if err != nil {
		return nil, &Error{Instance: spec.Instance, Err: fmt.Errorf("workspace: %w", err)}
	}
	if !info.IsDir() {
		return nil, &Error{Instance: spec.Instance, Err: fmt.Errorf("workspace %s is not a directory", spec.Workspace)}
	}

	shell := spec.Shell
	if shell == "" {
		shell = "sh"
	}
	return &hostEnvironment{
		workspace: spec.Workspace,
		shell:     shell,
		stdout:    p.Stdout,
		stderr:    p.Stderr,
	}, nil
}

type hostEnvironment struct {
	workspace string
	shell     string
	stdout    io.Writer
	stderr    io.Writer
}

// Exec runs the command via "<shell> -c" in its own process group so
// that cancellation reaches the shell and all its children. Without
// Setpgid only the shell gets the signal; children survive holding the
// inherited output descriptors and block the runner from finishing
// the step.
func (e *hostEnvironment) Exec(ctx context.Context, command Command) (int, error) {
	if command.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, command.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.shell, "-c", command.Script)
	cmd.Dir = e.workspace
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if command.GracePeriod > 0 {
		// Graceful: SIGTERM the process group, escalate to SIGKILL
		// after the grace period if it has not exited. The signals
		// target the group (negative PID) so children die too.
		gracePeriod := command.GracePeriod
		cmd.Cancel = func() error {
			processGroup := -cmd.Process.Pid
			if err := syscall.Kill(processGroup, syscall.SIGTERM); err != nil {
				return syscall.Kill(processGroup, syscall.SIGKILL)
			}
			go func() {
				time.Sleep(gracePeriod)
				// The group may already be gone; ESRCH is harmless.
				_ = syscall.Kill(processGroup, syscall.SIGKILL)
			}()
			return nil
		}
	} else {
		cmd.Cancel = func() error {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
	}

	cmd.Env = os.Environ()
	for name, value := range command.Env {
		cmd.Env = append(cmd.Env, name+"="+value)
	}

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	// A kill from the timeout or from run cancellation surfaces as an
	// ExitError with code -1, indistinguishable from an ordinary exit
	// unless the context is consulted. The context holds the real
	// cause and callers classify on it.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, fmt.Errorf("command terminated: %w", ctxErr)
	}
	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode(), nil
	}
	// Missing shell, unworkable descriptors.
	return -1, err
}

func (e *hostEnvironment) Close(ctx context.Context) error {
	return nil
}
