// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package runner executes pipeline runs: it evaluates the trigger,
// expands job templates into per-variant instances, runs each instance
// on its own goroutine (bounded parallelism, no shared mutable state),
// waits on the join barrier, publishes the release when the trigger
// decision allows it, and folds everything into a RunResult.
//
// Instances are fully isolated from each other: a failure is terminal
// for its own instance only, and cache trouble degrades that one
// instance to a cold build. The only cross-instance synchronization is
// the WaitGroup barrier in front of the release publisher.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kiln-build/kiln/lib/artifact"
	"github.com/kiln-build/kiln/lib/cache"
	"github.com/kiln-build/kiln/lib/pipeline"
	"github.com/kiln-build/kiln/lib/provision"
	"github.com/kiln-build/kiln/lib/release"
	"github.com/kiln-build/kiln/lib/schema"
	"github.com/kiln-build/kiln/lib/trigger"
	"github.com/kiln-build/kiln/lib/tunnel"
)

// DefaultStepTimeout bounds steps that set no timeout of their own
// when the pipeline's defaults block doesn't either.
const DefaultStepTimeout = 10 * time.Minute

// DefaultParallelism is the instance concurrency bound when the
// configuration leaves it unset.
const DefaultParallelism = 4

// Config wires a Runner. Provisioner and Source are required; nil
// optional collaborators disable the matching feature.
type Config struct {
	// Source is the checked-out repository the run builds.
	Source string

	// WorkspaceRoot, when set, gives every instance a private copy of
	// Source beneath it (removed after the instance settles). When
	// empty all instances share Source directly; fine for a single
	// instance, racy for cache restores beyond that.
	WorkspaceRoot string

	// ArtifactRoot, when set, is where publishing runs stage
	// collected bundle files. Empty means the system temp directory.
	ArtifactRoot string

	// Parallelism bounds concurrently executing instances. Zero
	// means DefaultParallelism.
	Parallelism int

	// Shell is the step interpreter when the pipeline's defaults
	// block doesn't name one. Empty means "sh".
	Shell string

	// StepTimeout is the fallback per-step timeout. Zero means
	// DefaultStepTimeout.
	StepTimeout time.Duration

	// Store is the cache store. Nil disables caching: every job
	// builds cold and saves nothing.
	Store *cache.Store

	// Provisioner materializes step execution environments. Required.
	Provisioner provision.Provisioner

	// ReleaseHost publishes releases. Required only for runs that
	// pass the publish gate; a publishing run without one records a
	// release error.
	ReleaseHost release.Host

	// Tunnel is the debug session broker client. Nil turns hook
	// debug_tunnel requests into warnings.
	Tunnel *tunnel.Client

	// Variables are operator-provided pipeline variable values
	// (--var flags).
	Variables map[string]string

	// Secrets are unsealed secret variables. They participate in
	// ${NAME} expansion like any variable, never enter step process
	// environments, and their values are masked in every warning,
	// result error, and progress event.
	Secrets map[string]string

	// Logger receives structured run events. Nil discards.
	Logger *slog.Logger

	// Sink receives progress events for the human-facing renderers.
	// Nil discards.
	Sink Sink
}

// Runner executes pipeline runs. Safe for sequential reuse; one run
// at a time.
type Runner struct {
	config      Config
	logger      *slog.Logger
	sink        Sink
	masker      *strings.Replacer
	parallelism int
}

// New validates the configuration and builds a Runner.
func New(config Config) (*Runner, error) {
	if config.Provisioner == nil {
		return nil, fmt.Errorf("runner: Provisioner is required")
	}
	if config.Source == "" {
		return nil, fmt.Errorf("runner: Source is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sink := config.Sink
	if sink == nil {
		sink = NopSink()
	}
	parallelism := config.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	if config.Shell == "" {
		config.Shell = "sh"
	}
	if config.StepTimeout <= 0 {
		config.StepTimeout = DefaultStepTimeout
	}

	return &Runner{
		config:      config,
		logger:      logger,
		sink:        sink,
		masker:      secretMasker(config.Secrets),
		parallelism: parallelism,
	}, nil
}

// Run executes one pipeline run for one event. The returned error is
// reserved for malformed inputs (invalid definition, unresolvable
// variables); everything that happens after jobs start is reported
// through the RunResult instead.
func (r *Runner) Run(ctx context.Context, definition *schema.Pipeline, event schema.Event) (*schema.RunResult, error) {
	if issues := pipeline.Validate(definition); len(issues) > 0 {
		return nil, fmt.Errorf("invalid pipeline definition:\n  %s", strings.Join(issues, "\n  "))
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	decision := trigger.Evaluate(definition.Triggers, event)
	result := &schema.RunResult{
		Version:  schema.RunResultVersion,
		Pipeline: definition.Name,
		Event:    event,
		Publish:  decision.Publish,
		Tag:      decision.Tag,
	}

	if !decision.Run {
		result.Conclusion = schema.ConclusionSkipped
		result.Reason = decision.Reason
		r.logger.Info("run skipped", "pipeline", definition.Name, "reason", decision.Reason)
		return result, nil
	}

	// Resolution order, lowest to highest: declared defaults,
	// declared pass-through from the process environment, operator
	// variables, secrets, event facts. Event facts win over
	// everything — they are facts of the run.
	provided := mergeMaps(r.config.Variables, r.config.Secrets, pipeline.EventVariables(definition.Name, event))
	variables, err := pipeline.ResolveVariables(definition.Variables, provided, os.Getenv)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result.StartedAt = start.UTC().Format(time.RFC3339)
	r.emit(Event{Kind: EventRunStarted, Detail: definition.Name})
	r.logger.Info("run started",
		"pipeline", definition.Name,
		"event", string(event.Kind),
		"ref", event.Ref,
		"publish", decision.Publish,
	)

	staging, cleanupStaging, err := r.prepareStaging(decision.Publish)
	if err != nil {
		return nil, err
	}
	defer cleanupStaging()

	instances := expandInstances(definition, decision)
	outcomes := make([]instanceOutcome, len(instances))

	semaphore := make(chan struct{}, r.parallelism)
	var waitGroup sync.WaitGroup
	for _, inst := range instances {
		waitGroup.Add(1)
		go func(inst instance) {
			defer waitGroup.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			outcomes[inst.index] = r.runInstance(ctx, definition, inst, variables, staging)
		}(inst)
	}
	// Join barrier: the publisher must observe every instance
	// settled, never a partial set.
	waitGroup.Wait()

	anyFailed := false
	var bundles []*artifact.Bundle
	for _, outcome := range outcomes {
		result.Jobs = append(result.Jobs, outcome.result)
		result.Warnings = append(result.Warnings, outcome.warnings...)
		if outcome.result.Outcome == schema.OutcomeFailed {
			anyFailed = true
		}
		if outcome.bundle != nil {
			bundles = append(bundles, outcome.bundle)
		}
	}

	publishFailed := false
	if decision.Publish {
		publishFailed = !r.publishRelease(ctx, result, decision.Tag, bundles)
	}

	if anyFailed || publishFailed {
		result.Conclusion = schema.ConclusionFailure
	} else {
		result.Conclusion = schema.ConclusionSuccess
	}
	completed := time.Now()
	result.CompletedAt = completed.UTC().Format(time.RFC3339)
	result.DurationMS = completed.Sub(start).Milliseconds()

	r.emit(Event{Kind: EventRunFinished, Status: result.Conclusion, Duration: completed.Sub(start)})
	r.logger.Info("run finished",
		"pipeline", definition.Name,
		"conclusion", result.Conclusion,
		"duration_ms", result.DurationMS,
	)
	return result, nil
}

// publishRelease assembles the success bundles and publishes them.
// Runs even when some instances failed: the success subset still
// ships. Reports whether the publish attempt succeeded.
func (r *Runner) publishRelease(ctx context.Context, result *schema.RunResult, tag string, bundles []*artifact.Bundle) bool {
	assembled := release.Assemble(tag, bundles)
	releaseResult := &schema.ReleaseResult{
		Tag:        tag,
		Bundles:    len(assembled.Bundles),
		Assets:     assembled.Assets(),
		TotalBytes: assembled.TotalBytes(),
	}
	result.Release = releaseResult

	if len(assembled.Bundles) == 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("release %s contains no artifact bundles", tag))
	}

	host := r.config.ReleaseHost
	if host == nil {
		releaseResult.Error = "no release host configured"
		r.emit(Event{Kind: EventRelease, Status: "failed", Detail: releaseResult.Error})
		return false
	}

	handle, err := host.Publish(ctx, assembled)
	if err != nil {
		releaseResult.Error = r.mask(err.Error())
		r.emit(Event{Kind: EventRelease, Status: "failed", Detail: releaseResult.Error})
		r.logger.Error("release publish failed", "tag", tag, "error", err)
		return false
	}
	releaseResult.Handle = handle
	r.emit(Event{Kind: EventRelease, Status: "published", Detail: handle})
	r.logger.Info("release published",
		"tag", tag,
		"bundles", releaseResult.Bundles,
		"assets", releaseResult.Assets,
		"handle", handle,
	)
	return true
}

// prepareWorkspace returns the workspace directory for an instance and
// a cleanup function. With a WorkspaceRoot configured, the instance
// gets a private copy of the source tree; otherwise everyone shares
// the source directory.
func (r *Runner) prepareWorkspace(instanceName string) (string, func(), error) {
	if r.config.WorkspaceRoot == "" {
		return r.config.Source, func() {}, nil
	}

	pattern := strings.ReplaceAll(instanceName, "/", "-") + "-*"
	workspace, err := os.MkdirTemp(r.config.WorkspaceRoot, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("creating workspace for %s: %w", instanceName, err)
	}
	if err := copyTree(r.config.Source, workspace); err != nil {
		os.RemoveAll(workspace)
		return "", nil, fmt.Errorf("populating workspace for %s: %w", instanceName, err)
	}
	cleanup := func() {
		if err := os.RemoveAll(workspace); err != nil {
			r.logger.Warn("removing workspace", "instance", instanceName, "error", err)
		}
	}
	return workspace, cleanup, nil
}

// prepareStaging creates the run's artifact staging directory and a
// cleanup function. Collected bundles carry paths into their instance
// workspace, and private workspaces are removed when the instance
// settles — before the publisher runs. Publishing runs with private
// workspaces therefore stage bundle files into a directory that lives
// until the publish attempt finishes. Runs that publish nothing, or
// that build in the shared source directory, skip staging.
func (r *Runner) prepareStaging(publish bool) (string, func(), error) {
	if !publish || r.config.WorkspaceRoot == "" {
		return "", func() {}, nil
	}

	root := r.config.ArtifactRoot
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return "", nil, fmt.Errorf("creating artifact staging root: %w", err)
		}
	}
	staging, err := os.MkdirTemp(root, "staging-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating artifact staging directory: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(staging); err != nil {
			r.logger.Warn("removing artifact staging", "error", err)
		}
	}
	return staging, cleanup, nil
}

// defaultTimeout resolves the run's fallback step timeout from the
// pipeline's defaults block, then the runner configuration.
func (r *Runner) defaultTimeout(definition *schema.Pipeline) time.Duration {
	if definition.Defaults.StepTimeout != "" {
		if timeout, err := time.ParseDuration(definition.Defaults.StepTimeout); err == nil {
			return timeout
		}
	}
	return r.config.StepTimeout
}

// emit masks and forwards a progress event.
func (r *Runner) emit(event Event) {
	event.Detail = r.mask(event.Detail)
	r.sink.Event(event)
}

// mask replaces secret values in a string.
func (r *Runner) mask(s string) string {
	if r.masker == nil || s == "" {
		return s
	}
	return r.masker.Replace(s)
}

// secretMasker builds a replacer mapping every secret value to "***".
// Returns nil when there is nothing to mask.
func secretMasker(secrets map[string]string) *strings.Replacer {
	var pairs []string
	for _, value := range secrets {
		if value != "" {
			pairs = append(pairs, value, "***")
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	return strings.NewReplacer(pairs...)
}

// copyTree copies a directory tree, preserving file modes and
// recreating symlinks. Destination directories are created as needed.
func copyTree(source, destination string) error {
	return filepath.WalkDir(source, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destination, relative)

		info, err := entry.Info()
		if err != nil {
			return err
		}

		switch {
		case entry.IsDir():
			if relative == "." {
				return nil
			}
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			// Sockets, devices, pipes: nothing a build checkout
			// should contain; skip rather than fail.
			return nil
		}
	})
}

func copyFile(source, destination string, mode os.FileMode) error {
	input, err := os.Open(source)
	if err != nil {
		return err
	}
	defer input.Close()

	output, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(output, input); err != nil {
		output.Close()
		return err
	}
	return output.Close()
}
