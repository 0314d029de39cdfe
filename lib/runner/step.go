// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/kiln-build/kiln/lib/pipeline"
	"github.com/kiln-build/kiln/lib/provision"
	"github.com/kiln-build/kiln/lib/schema"
)

// StepError is a required step failure: the job's terminal error
// unless a later failure-guarded step changes what the user sees.
type StepError struct {
	// Step is the failed step's name.
	Step string

	// ExitCode is the command's exit code, or -1 when the command
	// never ran or was cut short.
	ExitCode int

	// Err is the underlying failure when the command could not be
	// executed at all. Nil for a plain non-zero exit.
	Err error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %q: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("step %q: exit status %d", e.Step, e.ExitCode)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// runSteps executes the instance's steps in order. A required step
// failure flips the instance into the failed state: subsequent
// on-success steps are skipped while "always" and "on_failure" steps
// still run, with FAILED_STEP and FAILED_ERROR available to them.
//
// Returns the per-step results, the name of the step that failed the
// job, and the failure itself (nil when the job passed). Optional step
// failures are recorded but never returned.
func (r *instanceRun) runSteps(ctx context.Context) ([]schema.StepResult, string, error) {
	var (
		results    []schema.StepResult
		failedStep string
		failedErr  *StepError
	)

	for _, step := range r.job.Steps {
		guard := step.When

		// Run cancellation: steps that would otherwise run are
		// recorded as aborted; the loop still visits every step so
		// the result shows what was cut off.
		if ctx.Err() != nil {
			results = append(results, schema.StepResult{
				Name:   step.Name,
				Status: schema.StepAborted,
				Error:  "run cancelled",
			})
			continue
		}

		failed := failedErr != nil
		if (guard == schema.WhenOnSuccess && failed) || (guard == schema.WhenOnFailure && !failed) {
			results = append(results, schema.StepResult{
				Name:   step.Name,
				Status: schema.StepSkipped,
			})
			continue
		}

		variables := r.variables
		if failed {
			variables = mergeMaps(variables, pipeline.FailureVariables(failedStep, failedErr))
		}

		result, stepErr := r.runStep(ctx, step, variables)
		results = append(results, result)

		if stepErr != nil && failedErr == nil {
			failedStep = step.Name
			failedErr = stepErr
		}
	}

	if failedErr != nil {
		return results, failedStep, failedErr
	}
	return results, "", nil
}

// runStep executes one step and classifies its result. The returned
// error is non-nil exactly when the failure must fail the job.
func (r *instanceRun) runStep(ctx context.Context, step schema.Step, variables map[string]string) (schema.StepResult, *StepError) {
	result := schema.StepResult{Name: step.Name}

	fail := func(err error) (schema.StepResult, *StepError) {
		result.Status = schema.StepFailed
		result.Error = r.runner.mask(err.Error())
		return result, &StepError{Step: step.Name, ExitCode: -1, Err: err}
	}

	expanded, err := pipeline.ExpandStep(step, variables)
	if err != nil {
		return fail(err)
	}
	timeout, err := stepTimeout(expanded, r.defaultTimeout)
	if err != nil {
		return fail(err)
	}
	gracePeriod, err := stepGracePeriod(expanded)
	if err != nil {
		return fail(err)
	}

	r.runner.emit(Event{
		Kind:     EventStepStarted,
		Instance: r.name,
		Step:     step.Name,
	})

	env := mergeMaps(r.baseEnv, r.job.Env, r.variant.Env, expanded.Env)
	if failedStep, ok := variables[pipeline.VarFailedStep]; ok {
		env[pipeline.VarFailedStep] = failedStep
		env[pipeline.VarFailedError] = variables[pipeline.VarFailedError]
	}

	start := time.Now()
	exitCode, execErr := r.environment.Exec(ctx, provision.Command{
		Script:      expanded.Run,
		Env:         env,
		Timeout:     timeout,
		GracePeriod: gracePeriod,
	})
	result.DurationMS = time.Since(start).Milliseconds()

	var stepErr *StepError
	switch {
	case execErr != nil && ctx.Err() != nil:
		result.Status = schema.StepAborted
		result.ExitCode = exitCode
		result.Error = r.runner.mask(execErr.Error())
		stepErr = &StepError{Step: step.Name, ExitCode: exitCode, Err: execErr}
	case execErr != nil:
		result.Status = schema.StepFailed
		result.ExitCode = exitCode
		result.Error = r.runner.mask(execErr.Error())
		stepErr = &StepError{Step: step.Name, ExitCode: exitCode, Err: execErr}
	case exitCode != 0:
		result.ExitCode = exitCode
		result.Error = fmt.Sprintf("exit status %d", exitCode)
		if step.Optional {
			result.Status = schema.StepFailedOptional
		} else {
			result.Status = schema.StepFailed
			stepErr = &StepError{Step: step.Name, ExitCode: exitCode}
		}
	default:
		result.Status = schema.StepOK
	}

	r.runner.emit(Event{
		Kind:     EventStepFinished,
		Instance: r.name,
		Step:     step.Name,
		Status:   result.Status,
		Detail:   result.Error,
		Duration: time.Duration(result.DurationMS) * time.Millisecond,
	})
	return result, stepErr
}

// stepTimeout resolves a step's timeout: its own setting, else the
// run default.
func stepTimeout(step schema.Step, defaultTimeout time.Duration) (time.Duration, error) {
	if step.Timeout == "" {
		return defaultTimeout, nil
	}
	timeout, err := time.ParseDuration(step.Timeout)
	if err != nil {
		return 0, fmt.Errorf("step %q: invalid timeout %q", step.Name, step.Timeout)
	}
	return timeout, nil
}

func stepGracePeriod(step schema.Step) (time.Duration, error) {
	if step.GracePeriod == "" {
		return 0, nil
	}
	gracePeriod, err := time.ParseDuration(step.GracePeriod)
	if err != nil {
		return 0, fmt.Errorf("step %q: invalid grace_period %q", step.Name, step.GracePeriod)
	}
	return gracePeriod, nil
}

// mergeMaps merges maps left to right; later maps win on conflict.
// Always returns a fresh map.
func mergeMaps(maps ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, m := range maps {
		for name, value := range m {
			merged[name] = value
		}
	}
	return merged
}
