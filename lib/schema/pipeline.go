// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Pipeline is a complete pipeline definition, loaded from a kiln.jsonc
// file at the repository root. It declares when the pipeline runs
// (Triggers), the job templates to expand (Jobs), and pipeline-wide
// policy (Defaults, Artifacts).
//
// Variable substitution (${NAME}) is applied to step commands, step
// env values, cache patterns, and artifact patterns before use.
// Variables resolve from declared defaults, the triggering event, and
// unsealed secrets; see lib/pipeline for precedence rules.
type Pipeline struct {
	// Name identifies the pipeline in results, logs, and run history
	// (e.g., "release-build"). Required.
	Name string `json:"name"`

	// Description is a human-readable summary of what this pipeline
	// builds and publishes.
	Description string `json:"description,omitempty"`

	// Triggers controls when the pipeline runs and when a run is
	// allowed to publish a release. When nil, the pipeline never runs.
	Triggers *TriggerSpec `json:"triggers"`

	// Variables declares the variables this pipeline expects, with
	// optional defaults and required flags. The runner validates
	// required variables before expanding any job.
	Variables map[string]Variable `json:"variables,omitempty"`

	// Defaults provides pipeline-wide step execution defaults,
	// overridable per step.
	Defaults Defaults `json:"defaults,omitempty"`

	// Jobs is the ordered list of job templates. Order fixes the
	// expansion order (and therefore result ordering); execution
	// order across jobs is unconstrained. At least one job is
	// required.
	Jobs []JobSpec `json:"jobs"`

	// Artifacts is the pipeline-wide artifact collection policy.
	Artifacts ArtifactPolicy `json:"artifacts,omitempty"`
}

// TriggerSpec declares the ref rules that gate a pipeline run and the
// tag patterns that gate release publishing. Each rule block is
// independent: an absent block means events of that kind never start
// a run.
type TriggerSpec struct {
	// Push matches branch pushes against branch name patterns
	// (prefix-stripped: "main", "release/**").
	Push *RefRule `json:"push,omitempty"`

	// PullRequest matches pull request events against the PR's
	// target branch patterns.
	PullRequest *RefRule `json:"pull_request,omitempty"`

	// Tag matches tag pushes against tag name patterns ("v*",
	// "v/**"). Tag matches start a run; whether that run may publish
	// is decided separately by Publish.
	Tag *TagRule `json:"tag,omitempty"`

	// Publish gates release publishing: a run publishes only when
	// the event is a tag push matching these patterns. When nil,
	// publishing falls back to the Tag rule's patterns, so the
	// common case (publish every release tag) needs no extra block.
	Publish *RefRule `json:"publish,omitempty"`
}

// RefRule is a list of name patterns matched against an event's
// prefix-stripped ref. Patterns support single-segment globs ("v1.*")
// and the multi-segment ** wildcard ("release/**").
type RefRule struct {
	// Patterns is the pattern list. An empty list matches nothing.
	Patterns []string `json:"patterns"`
}

// TagRule is the trigger rule for tag pushes.
type TagRule struct {
	// Patterns matches the tag name (prefix-stripped).
	Patterns []string `json:"patterns"`

	// FullBuild controls whether build jobs run on a tag event. When
	// true (the default), a tag push runs the full job set and the
	// release is assembled from that run's bundles. When false, only
	// jobs marked publish_only run; use this when tagged commits were
	// already built on their branch and only release assembly work
	// remains. Pointer so that absence means true.
	FullBuild *bool `json:"full_build,omitempty"`
}

// FullBuildEnabled resolves the FullBuild default.
func (t *TagRule) FullBuildEnabled() bool {
	return t.FullBuild == nil || *t.FullBuild
}

// Variable declares an expected pipeline variable. The declaration is
// for documentation and validation; actual values come from defaults,
// the event, secrets, and the process environment at run time.
type Variable struct {
	// Description explains what this variable is for.
	Description string `json:"description,omitempty"`

	// Default is the fallback value when the variable is not provided
	// by any source. Empty string is a valid default.
	Default string `json:"default,omitempty"`

	// Required means the runner must fail the run before expanding
	// jobs if this variable has no value from any source (including
	// Default).
	Required bool `json:"required,omitempty"`
}

// Defaults are pipeline-wide step execution defaults.
type Defaults struct {
	// Shell is the interpreter for step run commands. Defaults to
	// "sh" at runtime.
	Shell string `json:"shell,omitempty"`

	// StepTimeout is the default per-step timeout (time.ParseDuration
	// syntax, e.g. "10m"). Defaults to 10 minutes at runtime.
	StepTimeout string `json:"step_timeout,omitempty"`
}

// JobSpec is one job template. Expansion produces one independent job
// instance per variant; instances share nothing but the read-only
// template.
type JobSpec struct {
	// Name identifies the template (e.g., "build"). Required, unique
	// within the pipeline.
	Name string `json:"name"`

	// Variants lists the environments this job runs in. Expansion is
	// total: every variant produces exactly one instance. At least
	// one variant is required.
	Variants []Variant `json:"variants"`

	// Steps is the ordered step list every instance executes.
	// At least one step is required.
	Steps []Step `json:"steps"`

	// Env sets job-level environment variables for all steps in all
	// variants. Variant env takes precedence on conflict, step env
	// over both.
	Env map[string]string `json:"env,omitempty"`

	// Cache configures dependency caching for this job. When nil the
	// job always builds cold.
	Cache *CacheSpec `json:"cache,omitempty"`

	// Artifacts lists glob patterns (relative to the workspace)
	// collected into the job's bundle after a successful run.
	// Patterns support ** for multi-segment matches.
	Artifacts []string `json:"artifacts,omitempty"`

	// Hook configures failure-only behavior: diagnostic collection
	// and the remote debug tunnel.
	Hook *HookSpec `json:"hook,omitempty"`

	// PublishOnly restricts this job to publishing runs (tag events
	// that pass the publish gate). On other runs the job is skipped
	// and contributes nothing.
	PublishOnly bool `json:"publish_only,omitempty"`
}

// Variant is one concrete environment a job template expands into.
type Variant struct {
	// Name identifies the variant (e.g., "linux", "linux-alpine",
	// "macos"). Required, unique within the job. The instance name is
	// "<job>/<variant>" and the cache scope includes it, so caches
	// never leak between variants.
	Name string `json:"name"`

	// Image is the container image the variant runs in. Empty means
	// run directly on the host.
	Image string `json:"image,omitempty"`

	// Env sets variant-level environment variables, merged over job
	// env.
	Env map[string]string `json:"env,omitempty"`
}

// Step guard conditions. The guard is a closed set, not an expression
// language: a step runs when its guard matches the job's state at the
// time the step is reached.
const (
	// WhenOnSuccess (the empty string, the default) runs the step
	// only while no required step has failed.
	WhenOnSuccess = ""

	// WhenAlways runs the step regardless of prior failures. Cleanup
	// steps use this.
	WhenAlways = "always"

	// WhenOnFailure runs the step only after a required step has
	// failed. Diagnostics and failure reporting attach here.
	WhenOnFailure = "on_failure"
)

// Step is a single step in a job. Steps execute strictly in order;
// a required step failure stops subsequent on-success steps while
// "always" and "on_failure" steps still run.
type Step struct {
	// Name is a human-readable identifier for this step, used in log
	// output and results (e.g., "build", "unit-tests"). Required,
	// unique within the job.
	Name string `json:"name"`

	// Run is a shell command executed via the configured shell
	// ("sh -c" by default). Multi-line strings are supported.
	// Variable substitution (${NAME}) is applied before execution.
	// Required.
	Run string `json:"run"`

	// When is the guard condition: "" (on success, default),
	// "always", or "on_failure".
	When string `json:"when,omitempty"`

	// Optional means step failure doesn't fail the job. The failure
	// is recorded and execution continues. Use for best-effort steps
	// like lint warnings or upload retries.
	Optional bool `json:"optional,omitempty"`

	// Timeout is the maximum duration for this step (e.g., "5m",
	// "30s"). Parsed by time.ParseDuration. Overrides the pipeline
	// default.
	Timeout string `json:"timeout,omitempty"`

	// GracePeriod is the duration between SIGTERM and SIGKILL when
	// the step's timeout expires or the run is cancelled. When set,
	// the process group gets SIGTERM first and this long to exit
	// before SIGKILL. When empty, SIGKILL is immediate. Use for
	// steps with external side effects that need orderly shutdown.
	GracePeriod string `json:"grace_period,omitempty"`

	// Env sets additional environment variables for this step only.
	// Merged over job and variant env; step values take precedence
	// on conflict.
	Env map[string]string `json:"env,omitempty"`
}

// CacheSpec configures dependency caching for a job. The key is
// derived from the content of the files matching Inputs; the cached
// data is the directories listed in Paths.
type CacheSpec struct {
	// Paths lists the directories (relative to the workspace) saved
	// on success and restored on a key hit (e.g., "target",
	// "node_modules"). At least one path is required.
	Paths []string `json:"paths"`

	// Inputs lists glob patterns for the files whose content
	// determines the cache key (e.g., "Cargo.lock", "**/go.sum").
	// An empty match set is valid and produces a stable key.
	Inputs []string `json:"inputs"`

	// Prefix is an optional extra scope component (e.g., "cargo")
	// separating caches with different purposes inside one job.
	Prefix string `json:"prefix,omitempty"`
}

// HookSpec configures the failure hook for a job. The hook runs after
// a job instance reaches Outcome failed; it never changes the outcome
// and never delays sibling jobs.
type HookSpec struct {
	// Diagnostics lists glob patterns collected into a
	// diagnostics-only bundle on failure (e.g., "target/debug/*.log").
	// Diagnostic bundles appear in run output but never in a release.
	Diagnostics []string `json:"diagnostics,omitempty"`

	// DebugTunnel requests an interactive debug session from the
	// tunnel broker when the job fails. Fire-and-forget: the session
	// URL lands in the job result; its lifetime is the broker's
	// policy.
	DebugTunnel bool `json:"debug_tunnel,omitempty"`

	// TunnelTTL is the requested session lifetime (time.ParseDuration
	// syntax). The broker may cap it. Defaults to 30 minutes.
	TunnelTTL string `json:"tunnel_ttl,omitempty"`
}

// Artifact collection policy values for ArtifactPolicy.OnMissing.
const (
	// MissingWarn records a warning and an empty bundle when a job's
	// artifact patterns match nothing. The default.
	MissingWarn = "warn"

	// MissingFail fails the job when its artifact patterns match
	// nothing.
	MissingFail = "fail"
)

// ArtifactPolicy is pipeline-wide artifact collection policy.
type ArtifactPolicy struct {
	// OnMissing selects the zero-match policy: "warn" (default) or
	// "fail".
	OnMissing string `json:"on_missing,omitempty"`
}

// Job looks up a job template by name. Returns nil when absent.
func (p *Pipeline) Job(name string) *JobSpec {
	for i := range p.Jobs {
		if p.Jobs[i].Name == name {
			return &p.Jobs[i]
		}
	}
	return nil
}

// InstanceName is the canonical "<job>/<variant>" identifier for a job
// instance. Used in results, logs, cache scopes, and bundle names.
func InstanceName(job, variant string) string {
	return job + "/" + variant
}
