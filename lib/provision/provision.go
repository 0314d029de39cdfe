// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package provision materializes the execution environment a job
// instance runs in. A Provisioner turns a variant's environment
// descriptor into an Environment that can execute step commands and
// report exit codes; the runner never touches os/exec or the
// container CLI directly.
//
// Two provisioners exist: the host provisioner runs steps as local
// shell processes, and the container provisioner runs them inside a
// long-lived docker container with the workspace bind-mounted.
// Provisioning failures are *Error values and fail only the one
// instance that hit them.
package provision

import (
	"context"
	"fmt"
	"time"
)

// Spec describes the environment one job instance needs.
type Spec struct {
	// Instance is the "<job>/<variant>" name, used in container names
	// and error messages.
	Instance string

	// Image is the container image. Empty selects the host.
	Image string

	// Workspace is the host directory holding the checked-out source.
	// Steps run with it as their working directory (mounted at
	// /workspace inside containers).
	Workspace string

	// Shell is the interpreter for step commands ("sh" when empty).
	Shell string
}

// Command is one step command ready to execute.
type Command struct {
	// Script is the shell script to run.
	Script string

	// Env is the merged job/variant/step environment for this command.
	Env map[string]string

	// Timeout bounds the command's execution. Zero means no limit
	// beyond the caller's context.
	Timeout time.Duration

	// GracePeriod is the SIGTERM-to-SIGKILL window on timeout or
	// cancellation. Zero kills immediately.
	GracePeriod time.Duration
}

// Environment is a provisioned execution context for one job instance.
type Environment interface {
	// Exec runs one command and returns its exit code. The error is
	// non-nil only when the command could not be run or was cut short
	// (context cancellation, signal); a clean non-zero exit returns
	// (code, nil).
	Exec(ctx context.Context, command Command) (int, error)

	// Close releases the environment (removes the container). Host
	// environments are a no-op.
	Close(ctx context.Context) error
}

// Provisioner materializes environments.
type Provisioner interface {
	// Provision builds the environment for one instance. Failures are
	// *Error and become the instance's terminal outcome.
	Provision(ctx context.Context, spec Spec) (Environment, error)
}

// Error is an environment provisioning failure. Fatal to the one job
// instance; never visible to siblings.
type Error struct {
	// Instance is the affected "<job>/<variant>".
	Instance string

	// Err is the underlying failure.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provisioning environment for %s: %v", e.Instance, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
