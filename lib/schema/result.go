// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"fmt"
)

// RunResultVersion is the current schema version for RunResult records.
// Increment when adding fields that existing code must not silently
// drop during read-modify-write.
const RunResultVersion = 1

// Job instance outcomes. Every instance reaches exactly one of these.
type Outcome string

const (
	// OutcomeSuccess: all required steps completed without failure.
	OutcomeSuccess Outcome = "success"

	// OutcomeFailed: environment provisioning or a required step
	// failed. The instance's artifacts are excluded from any release.
	OutcomeFailed Outcome = "failed"

	// OutcomeSkipped: the instance never ran (publish-only job on a
	// non-publishing run). Contributes nothing to the release.
	OutcomeSkipped Outcome = "skipped"
)

// Step result statuses.
const (
	StepOK             = "ok"
	StepFailed         = "failed"
	StepFailedOptional = "failed (optional)"
	StepSkipped        = "skipped"
	StepAborted        = "aborted"
)

// Run conclusions.
const (
	// ConclusionSuccess: every job instance succeeded (skipped
	// instances are fine) and publishing, if attempted, worked.
	ConclusionSuccess = "success"

	// ConclusionFailure: at least one instance failed, or publishing
	// failed. Successful instances' bundles are still published.
	ConclusionFailure = "failure"

	// ConclusionSkipped: the trigger evaluator declined the event;
	// no jobs ran.
	ConclusionSkipped = "skipped"
)

// RunResult is the aggregate record of one pipeline run, built by
// folding terminal job outcomes after the join barrier. Written to run
// history and printed by the CLI (--json emits it verbatim).
type RunResult struct {
	// Version is the schema version (see RunResultVersion).
	Version int `json:"version"`

	// Pipeline is the pipeline name from the definition.
	Pipeline string `json:"pipeline"`

	// Event is the repository event that triggered (or failed to
	// trigger) this run.
	Event Event `json:"event"`

	// Publish records the trigger evaluator's publish decision for
	// this run. Identical for every job in the run.
	Publish bool `json:"publish"`

	// Tag is the release tag (prefix-stripped) when Publish is true.
	Tag string `json:"tag,omitempty"`

	// Conclusion is the terminal outcome: "success", "failure", or
	// "skipped".
	Conclusion string `json:"conclusion"`

	// Reason explains a skipped conclusion (e.g., which trigger rule
	// declined the event).
	Reason string `json:"reason,omitempty"`

	// StartedAt is an ISO 8601 timestamp of when the run began.
	StartedAt string `json:"started_at"`

	// CompletedAt is an ISO 8601 timestamp of when the run finished.
	CompletedAt string `json:"completed_at"`

	// DurationMS is the total wall-clock time in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// Jobs records every expanded instance's result, in expansion
	// order (definition order × variant order), regardless of the
	// order instances finished in.
	Jobs []JobResult `json:"jobs"`

	// Release describes the publish attempt. Nil when the run did
	// not publish (Publish false or conclusion skipped).
	Release *ReleaseResult `json:"release,omitempty"`

	// Warnings collects non-fatal conditions surfaced to the user:
	// cache I/O degradation, empty artifact matches, empty releases.
	Warnings []string `json:"warnings,omitempty"`
}

// JobResult is the terminal record of one job instance.
type JobResult struct {
	// Job is the template name.
	Job string `json:"job"`

	// Variant is the environment variant name.
	Variant string `json:"variant"`

	// Outcome is the instance's terminal outcome.
	Outcome Outcome `json:"outcome"`

	// DurationMS is the instance wall-clock time in milliseconds.
	// Zero for skipped instances.
	DurationMS int64 `json:"duration_ms"`

	// CacheKey is the derived cache key, empty when the job declares
	// no cache or key derivation was skipped.
	CacheKey string `json:"cache_key,omitempty"`

	// CacheHit reports whether the cache restore found an entry.
	CacheHit bool `json:"cache_hit,omitempty"`

	// Steps records each step that was reached, in execution order.
	Steps []StepResult `json:"steps,omitempty"`

	// FailedStep is the name of the step that failed the job. Empty
	// unless Outcome is failed due to a step.
	FailedStep string `json:"failed_step,omitempty"`

	// Error is the failure description (provisioning error, step
	// error, or collection error under the "fail" policy).
	Error string `json:"error,omitempty"`

	// ArtifactFiles and ArtifactBytes summarize the collected bundle.
	// Zero for failed, skipped, and artifact-less instances.
	ArtifactFiles int   `json:"artifact_files,omitempty"`
	ArtifactBytes int64 `json:"artifact_bytes,omitempty"`

	// DiagnosticFiles counts files in the failure hook's diagnostics
	// bundle, when one was collected.
	DiagnosticFiles int `json:"diagnostic_files,omitempty"`

	// TunnelURL is the debug session URL returned by the tunnel
	// broker when the failure hook opened one.
	TunnelURL string `json:"tunnel_url,omitempty"`
}

// StepResult records the outcome of a single step.
type StepResult struct {
	// Name is the step's identifier from the definition.
	Name string `json:"name"`

	// Status is the step outcome: "ok", "failed", "failed (optional)",
	// "skipped", or "aborted".
	Status string `json:"status"`

	// DurationMS is the step wall-clock time in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// ExitCode is the command's exit code when it ran and exited.
	// Zero for successful and skipped steps.
	ExitCode int `json:"exit_code,omitempty"`

	// Error is the error message when the step failed or aborted.
	Error string `json:"error,omitempty"`
}

// ReleaseResult describes the publish attempt of a run.
type ReleaseResult struct {
	// Tag is the release tag.
	Tag string `json:"tag"`

	// Bundles counts the artifact bundles included (one per
	// successful instance with collected artifacts).
	Bundles int `json:"bundles"`

	// Assets counts the individual files published.
	Assets int `json:"assets"`

	// TotalBytes is the summed size of all published assets.
	TotalBytes int64 `json:"total_bytes"`

	// Handle is the backend's identifier for the release (directory
	// path or object-store prefix).
	Handle string `json:"handle,omitempty"`

	// Error is the publish failure, when the attempt failed. A
	// publish failure never unwinds job results.
	Error string `json:"error,omitempty"`
}

// Validate checks that all required fields are present and well-formed.
// Returns the first problem found, or nil.
func (r *RunResult) Validate() error {
	if r.Version < 1 {
		return fmt.Errorf("run result: version must be >= 1, got %d", r.Version)
	}
	if r.Pipeline == "" {
		return errors.New("run result: pipeline is required")
	}
	if err := r.Event.Validate(); err != nil {
		return fmt.Errorf("run result: %w", err)
	}
	switch r.Conclusion {
	case ConclusionSuccess, ConclusionFailure, ConclusionSkipped:
		// Valid.
	case "":
		return errors.New("run result: conclusion is required")
	default:
		return fmt.Errorf("run result: unknown conclusion %q", r.Conclusion)
	}
	if r.Conclusion != ConclusionSkipped {
		if r.StartedAt == "" {
			return errors.New("run result: started_at is required")
		}
		if r.CompletedAt == "" {
			return errors.New("run result: completed_at is required")
		}
	}
	for i := range r.Jobs {
		if err := r.Jobs[i].Validate(); err != nil {
			return fmt.Errorf("run result: jobs[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate checks that the job result has valid required fields.
func (j *JobResult) Validate() error {
	if j.Job == "" {
		return errors.New("job result: job is required")
	}
	if j.Variant == "" {
		return errors.New("job result: variant is required")
	}
	switch j.Outcome {
	case OutcomeSuccess, OutcomeFailed, OutcomeSkipped:
		// Valid.
	case "":
		return errors.New("job result: outcome is required")
	default:
		return fmt.Errorf("job result: unknown outcome %q", j.Outcome)
	}
	for i := range j.Steps {
		if err := j.Steps[i].Validate(); err != nil {
			return fmt.Errorf("job result: steps[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate checks that the step result has valid required fields.
func (s *StepResult) Validate() error {
	if s.Name == "" {
		return errors.New("step result: name is required")
	}
	switch s.Status {
	case StepOK, StepFailed, StepFailedOptional, StepSkipped, StepAborted:
		// Valid.
	case "":
		return errors.New("step result: status is required")
	default:
		return fmt.Errorf("step result: unknown status %q", s.Status)
	}
	return nil
}

// InstanceName returns the canonical "<job>/<variant>" identifier.
func (j *JobResult) InstanceName() string {
	return InstanceName(j.Job, j.Variant)
}
