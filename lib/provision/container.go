// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// containerWorkspace is where the instance workspace is mounted inside
// the container.
const containerWorkspace = "/workspace"

// ContainerProvisioner runs steps inside a docker container. One
// container is created per instance (sleeping, workspace mounted at
// /workspace) and each step is a docker exec against it, so state
// written outside the workspace persists between steps the same way
// it does on the host.
type ContainerProvisioner struct {
	// Binary is the container CLI ("docker" when empty; "podman"
	// works identically for the subcommands used here).
	Binary string

	// Stdout and Stderr receive step output. Defaults to the process's
	// own streams when nil.
	Stdout io.Writer
	Stderr io.Writer
}

func (p *ContainerProvisioner) binary() string {
	if p.Binary == "" {
		return "docker"
	}
	return p.Binary
}

// Provision pulls the image if absent, then creates and starts the
// instance's container. Every failure here is an *Error: the instance
// is marked failed, siblings are untouched.
func (p *ContainerProvisioner) Provision(ctx context.Context, spec Spec) (Environment, error) {
	if spec.Image == "" {
		return nil, &Error{Instance: spec.Instance, Err: errors.New("container provisioner requires an image")}
	}

	exists, err := p.imageExists(ctx, spec.Image)
	if err != nil {
		return nil, &Error{Instance: spec.Instance, Err: err}
	}
	if !exists {
		if err := p.pullImage(ctx, spec.Image); err != nil {
			return nil, &Error{Instance: spec.Instance, Err: err}
		}
	}

	name := containerName(spec.Instance)
	createArgs := []string{
		"run", "--detach",
		"--name", name,
		"--volume", spec.Workspace + ":" + containerWorkspace,
		"--workdir", containerWorkspace,
		spec.Image,
		"sleep", "infinity",
	}
	if output, err := p.run(ctx, createArgs...); err != nil {
		return nil, &Error{Instance: spec.Instance, Err: fmt.Errorf("creating container: %v: %s", err, output)}
	}

	shell := spec.Shell
	if shell == "" {
		shell = "sh"
	}
	return &containerEnvironment{
		provisioner: p,
		name:        name,
		shell:       shell,
	}, nil
}

// imageExists checks the local image store.
func (p *ContainerProvisioner) imageExists(ctx context.Context, image string) (bool, error) {
	output, err := p.run(ctx, "image", "inspect", image)
	if err == nil {
		return true, nil
	}
	if strings.Contains(output, "No such") {
		return false, nil
	}
	return false, fmt.Errorf("inspecting image %s: %v: %s", image, err, output)
}

func (p *ContainerProvisioner) pullImage(ctx context.Context, image string) error {
	if output, err := p.run(ctx, "pull", image); err != nil {
		return fmt.Errorf("pulling image %s: %v: %s", image, err, output)
	}
	return nil
}

// run executes a container CLI command, capturing combined output for
// error reporting.
func (p *ContainerProvisioner) run(ctx context.Context, args ...string) (string, error) {
	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binary(), args...)
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	return strings.TrimSpace(output.String()), err
}

type containerEnvironment struct {
	provisioner *ContainerProvisioner
	name        string
	shell       string
}

// Exec runs one step as a docker exec. Timeout handling kills the
// exec client process; the container itself is removed on Close, which
// also reaps anything the step left running.
func (e *containerEnvironment) Exec(ctx context.Context, command Command) (int, error) {
	if command.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, command.Timeout)
		defer cancel()
	}

	args := []string{"exec"}
	for name, value := range command.Env {
		args = append(args, "--env", name+"="+value)
	}
	args = append(args, e.name, e.shell, "-c", command.Script)

	cmd := exec.CommandContext(ctx, e.provisioner.binary(), args...)
	cmd.Stdout = e.provisioner.Stdout
	cmd.Stderr = e.provisioner.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	// The kill on timeout or cancellation reads as exit -1; report
	// the context's cause instead of a bare exit code.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, fmt.Errorf("command terminated: %w", ctxErr)
	}
	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode(), nil
	}
	return -1, err
}

// Close force-removes the container. Best effort with its own
// deadline so a wedged daemon cannot hang the run teardown.
func (e *containerEnvironment) Close(ctx context.Context) error {
	removeContext, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if output, err := e.provisioner.run(removeContext, "rm", "--force", e.name); err != nil {
		return fmt.Errorf("removing container %s: %v: %s", e.name, err, output)
	}
	return nil
}

// containerName builds a unique, CLI-safe container name from the
// instance name: slashes become dashes and a random suffix prevents
// collisions with leftovers from interrupted runs.
func containerName(instance string) string {
	var suffix [4]byte
	rand.Read(suffix[:])
	safe := strings.NewReplacer("/", "-", ":", "-", ".", "-").Replace(instance)
	return "kiln-" + safe + "-" + hex.EncodeToString(suffix[:])
}
