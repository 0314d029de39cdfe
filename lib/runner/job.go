// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kiln-build/kiln/lib/artifact"
	"github.com/kiln-build/kiln/lib/cache"
	"github.com/kiln-build/kiln/lib/pipeline"
	"github.com/kiln-build/kiln/lib/provision"
	"github.com/kiln-build/kiln/lib/schema"
)

// instanceRun is the mutable state of one executing job instance. It
// lives on the instance's goroutine only; nothing here is shared.
type instanceRun struct {
	runner     *Runner
	definition *schema.Pipeline
	job        *schema.JobSpec
	variant    schema.Variant
	name       string

	workspace      string
	staging        string
	environment    provision.Environment
	variables      map[string]string
	baseEnv        map[string]string
	defaultTimeout time.Duration

	// cacheKey is set once derivation succeeds; save reuses it so
	// restore and save can never disagree on the key.
	cacheKey    cache.Key
	hasCacheKey bool

	collectedBundle *artifact.Bundle
	warnings        []string
}

// instanceOutcome is what an instance hands back across the join
// barrier: its result row and, on success, its artifact bundle.
type instanceOutcome struct {
	result   schema.JobResult
	bundle   *artifact.Bundle
	warnings []string
}

// runInstance executes one job instance start to finish and always
// returns a settled outcome; errors become the instance's result, not
// the run's.
func (r *Runner) runInstance(ctx context.Context, definition *schema.Pipeline, inst instance, variables map[string]string, staging string) instanceOutcome {
	name := inst.name()
	result := schema.JobResult{Job: inst.job.Name, Variant: inst.variant.Name}

	if inst.skipReason != "" {
		result.Outcome = schema.OutcomeSkipped
		result.Error = inst.skipReason
		r.emit(Event{Kind: EventJobFinished, Instance: name, Status: string(result.Outcome), Detail: inst.skipReason})
		return instanceOutcome{result: result}
	}

	r.emit(Event{Kind: EventJobStarted, Instance: name})
	start := time.Now()

	run := &instanceRun{
		runner:         r,
		definition:     definition,
		job:            inst.job,
		variant:        inst.variant,
		name:           name,
		staging:        staging,
		defaultTimeout: r.defaultTimeout(definition),
	}
	run.execute(ctx, &result, variables)

	result.DurationMS = time.Since(start).Milliseconds()
	r.emit(Event{
		Kind:     EventJobFinished,
		Instance: name,
		Status:   string(result.Outcome),
		Detail:   result.Error,
		Duration: time.Since(start),
	})

	outcome := instanceOutcome{result: result, warnings: run.warnings}
	if result.Outcome == schema.OutcomeSuccess {
		outcome.bundle = run.collectedBundle
	}
	return outcome
}

// execute drives the instance through workspace preparation,
// provisioning, cache restore, steps, the failure hook, artifact
// collection, and cache save, filling in the result as it goes.
func (r *instanceRun) execute(ctx context.Context, result *schema.JobResult, runVariables map[string]string) {
	workspace, cleanup, err := r.runner.prepareWorkspace(r.name)
	if err != nil {
		result.Outcome = schema.OutcomeFailed
		result.Error = r.runner.mask(err.Error())
		return
	}
	defer cleanup()
	r.workspace = workspace

	r.variables = mergeMaps(runVariables, map[string]string{
		pipeline.VarJob:       r.job.Name,
		pipeline.VarVariant:   r.variant.Name,
		pipeline.VarInstance:  r.name,
		pipeline.VarWorkspace: workspace,
	})
	r.baseEnv = kilnEnvironment(r.variables)

	environment, err := r.runner.config.Provisioner.Provision(ctx, provision.Spec{
		Instance:  r.name,
		Image:     r.variant.Image,
		Workspace: workspace,
		Shell:     r.shell(),
	})
	if err != nil {
		result.Outcome = schema.OutcomeFailed
		result.Error = r.runner.mask(err.Error())
		return
	}
	r.environment = environment
	defer func() {
		// Container removal must survive run cancellation.
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		if err := environment.Close(closeCtx); err != nil {
			r.warn("releasing environment for %s: %v", r.name, err)
		}
	}()

	r.restoreCache(result)

	steps, failedStep, failedErr := r.runSteps(ctx)
	result.Steps = steps

	if failedErr != nil {
		result.Outcome = schema.OutcomeFailed
		result.FailedStep = failedStep
		result.Error = r.runner.mask(failedErr.Error())
		r.runHook(ctx, result, failedStep, failedErr)
		return
	}

	if err := r.collectArtifacts(result); err != nil {
		result.Outcome = schema.OutcomeFailed
		result.Error = r.runner.mask(err.Error())
		return
	}

	r.saveCache()
	result.Outcome = schema.OutcomeSuccess
}

// restoreCache derives the cache key and restores the entry if
// present. Cache trouble degrades to a cold build with a warning; it
// never fails the instance.
func (r *instanceRun) restoreCache(result *schema.JobResult) {
	spec := r.job.Cache
	store := r.runner.config.Store
	if spec == nil || store == nil {
		return
	}

	inputs, err := pipeline.ExpandPatterns(spec.Inputs, r.variables)
	if err != nil {
		r.warn("cache inputs for %s: %v", r.name, err)
		return
	}

	scope := cache.Scope{
		Pipeline: r.definition.Name,
		Job:      r.job.Name,
		Variant:  r.variant.Name,
		Prefix:   spec.Prefix,
	}
	key, err := cache.DeriveKey(r.workspace, scope, inputs)
	if err != nil {
		r.warn("cache key for %s: %v", r.name, err)
		r.runner.emit(Event{Kind: EventCache, Instance: r.name, Status: "error", Detail: r.runner.mask(err.Error())})
		return
	}
	r.cacheKey = key
	r.hasCacheKey = true
	result.CacheKey = key.String()

	hit, err := store.Restore(key, r.workspace)
	if err != nil {
		r.warn("cache restore for %s: %v", r.name, err)
		r.runner.emit(Event{Kind: EventCache, Instance: r.name, Status: "error", Detail: key.String()})
		return
	}
	result.CacheHit = hit
	status := "miss"
	if hit {
		status = "hit"
	}
	r.runner.emit(Event{Kind: EventCache, Instance: r.name, Status: status, Detail: key.String()})
}

// saveCache writes the cache entry after a successful run. Requires a
// derived key; save failures are warnings.
func (r *instanceRun) saveCache() {
	spec := r.job.Cache
	store := r.runner.config.Store
	if spec == nil || store == nil || !r.hasCacheKey {
		return
	}

	paths, err := pipeline.ExpandPatterns(spec.Paths, r.variables)
	if err != nil {
		r.warn("cache paths for %s: %v", r.name, err)
		return
	}
	if _, err := store.Save(r.cacheKey, r.workspace, paths); err != nil {
		r.warn("cache save for %s: %v", r.name, err)
	}
}

// collectArtifacts gathers the job's artifact bundle. The zero-match
// policy comes from the pipeline: "warn" records a warning and keeps
// the empty bundle, "fail" fails the job.
func (r *instanceRun) collectArtifacts(result *schema.JobResult) error {
	if len(r.job.Artifacts) == 0 {
		return nil
	}

	patterns, err := pipeline.ExpandPatterns(r.job.Artifacts, r.variables)
	if err != nil {
		return fmt.Errorf("artifact patterns for %s: %w", r.name, err)
	}

	bundle, err := artifact.Collect(r.workspace, r.job.Name, r.variant.Name, patterns)
	if err != nil {
		return err
	}

	if len(bundle.Files) == 0 {
		if r.definition.Artifacts.OnMissing == schema.MissingFail {
			return &artifact.CollectError{Instance: r.name, Patterns: patterns}
		}
		r.warn("no artifacts matched for %s", r.name)
	}

	// The workspace is removed when this instance settles; on a
	// publishing run the bundle files must outlive it.
	if r.staging != "" && len(bundle.Files) > 0 {
		dir := filepath.Join(r.staging, r.job.Name+"-"+r.variant.Name)
		if err := bundle.Stage(dir); err != nil {
			return fmt.Errorf("staging artifacts for %s: %w", r.name, err)
		}
	}

	r.collectedBundle = bundle
	result.ArtifactFiles = len(bundle.Files)
	result.ArtifactBytes = bundle.TotalBytes()
	return nil
}

func (r *instanceRun) shell() string {
	if r.definition.Defaults.Shell != "" {
		return r.definition.Defaults.Shell
	}
	return r.runner.config.Shell
}

func (r *instanceRun) warn(format string, args ...any) {
	message := r.runner.mask(fmt.Sprintf(format, args...))
	r.warnings = append(r.warnings, message)
	r.runner.logger.Warn(message)
}

// kilnEnvironment selects the KILN_* variables (and nothing else) for
// injection into step process environments. Declared pipeline
// variables and secrets reach steps only through ${NAME} expansion, so
// secret values never land in a process environment.
func kilnEnvironment(variables map[string]string) map[string]string {
	env := make(map[string]string)
	for name, value := range variables {
		if len(name) > 5 && name[:5] == "KILN_" {
			env[name] = value
		}
	}
	return env
}
