// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/kiln-build/kiln/lib/schema"
)

// Validate checks a Pipeline definition for structural issues. Returns
// a list of human-readable issue descriptions; an empty list means the
// definition is valid. All issues are reported in one pass so authors
// fix a broken file in one round trip.
func Validate(definition *schema.Pipeline) []string {
	var issues []string

	if definition.Name == "" {
		issues = append(issues, "pipeline name is required")
	}

	issues = append(issues, validateTriggers(definition.Triggers)...)

	for name := range definition.Variables {
		if !variableNamePattern.MatchString(name) {
			issues = append(issues, fmt.Sprintf("variables[%s]: name must be letters, digits, and underscores, starting with a letter or underscore", name))
		}
	}

	if definition.Defaults.StepTimeout != "" {
		if _, err := time.ParseDuration(definition.Defaults.StepTimeout); err != nil {
			issues = append(issues, fmt.Sprintf("defaults.step_timeout: invalid duration %q: %v", definition.Defaults.StepTimeout, err))
		}
	}

	switch definition.Artifacts.OnMissing {
	case "", schema.MissingWarn, schema.MissingFail:
		// Valid.
	default:
		issues = append(issues, fmt.Sprintf("artifacts.on_missing: must be %q or %q, got %q", schema.MissingWarn, schema.MissingFail, definition.Artifacts.OnMissing))
	}

	if len(definition.Jobs) == 0 {
		issues = append(issues, "pipeline has no jobs (at least one job is required)")
	}

	jobNames := make(map[string]bool, len(definition.Jobs))
	for index := range definition.Jobs {
		job := &definition.Jobs[index]
		prefix := fmt.Sprintf("jobs[%d]", index)
		if job.Name != "" {
			prefix = fmt.Sprintf("jobs[%d] %q", index, job.Name)
		}

		switch {
		case job.Name == "":
			issues = append(issues, fmt.Sprintf("%s: name is required", prefix))
		case strings.ContainsAny(job.Name, "/ \t"):
			issues = append(issues, fmt.Sprintf("%s: name must not contain slashes or whitespace", prefix))
		case jobNames[job.Name]:
			issues = append(issues, fmt.Sprintf("%s: duplicate job name", prefix))
		default:
			jobNames[job.Name] = true
		}

		issues = append(issues, validateJob(job, prefix)...)
	}

	return issues
}

// validateTriggers checks the trigger rule blocks. A definition with
// no triggers at all is flagged: it parses, but no event can ever
// start it, which is always an authoring mistake.
func validateTriggers(spec *schema.TriggerSpec) []string {
	if spec == nil {
		return []string{"pipeline has no triggers (no event can start it)"}
	}

	var issues []string
	if spec.Push == nil && spec.PullRequest == nil && spec.Tag == nil {
		issues = append(issues, "triggers: no rule blocks set (no event can start the pipeline)")
	}
	if spec.Push != nil && len(spec.Push.Patterns) == 0 {
		issues = append(issues, "triggers.push: patterns must be non-empty")
	}
	if spec.PullRequest != nil && len(spec.PullRequest.Patterns) == 0 {
		issues = append(issues, "triggers.pull_request: patterns must be non-empty")
	}
	if spec.Tag != nil && len(spec.Tag.Patterns) == 0 {
		issues = append(issues, "triggers.tag: patterns must be non-empty")
	}
	if spec.Publish != nil && len(spec.Publish.Patterns) == 0 {
		issues = append(issues, "triggers.publish: patterns must be non-empty")
	}
	if spec.Publish != nil && spec.Tag == nil {
		issues = append(issues, "triggers.publish: requires a triggers.tag rule (publishing runs start from tag events)")
	}
	return issues
}

// validateJob checks one job template: variants, steps, cache, and
// hook configuration.
func validateJob(job *schema.JobSpec, prefix string) []string {
	var issues []string

	if len(job.Variants) == 0 {
		issues = append(issues, fmt.Sprintf("%s: at least one variant is required", prefix))
	}
	variantNames := make(map[string]bool, len(job.Variants))
	for index, variant := range job.Variants {
		switch {
		case variant.Name == "":
			issues = append(issues, fmt.Sprintf("%s: variants[%d]: name is required", prefix, index))
		case strings.ContainsAny(variant.Name, "/ \t"):
			issues = append(issues, fmt.Sprintf("%s: variants[%d] %q: name must not contain slashes or whitespace", prefix, index, variant.Name))
		case variantNames[variant.Name]:
			issues = append(issues, fmt.Sprintf("%s: variants[%d] %q: duplicate variant name", prefix, index, variant.Name))
		default:
			variantNames[variant.Name] = true
		}
	}

	if len(job.Steps) == 0 {
		issues = append(issues, fmt.Sprintf("%s: at least one step is required", prefix))
	}
	stepNames := make(map[string]bool, len(job.Steps))
	for index, step := range job.Steps {
		stepPrefix := fmt.Sprintf("%s: steps[%d]", prefix, index)
		if step.Name != "" {
			stepPrefix = fmt.Sprintf("%s: steps[%d] %q", prefix, index, step.Name)
		}

		switch {
		case step.Name == "":
			issues = append(issues, fmt.Sprintf("%s: name is required", stepPrefix))
		case stepNames[step.Name]:
			issues = append(issues, fmt.Sprintf("%s: duplicate step name", stepPrefix))
		default:
			stepNames[step.Name] = true
		}

		if step.Run == "" {
			issues = append(issues, fmt.Sprintf("%s: run is required", stepPrefix))
		}

		switch step.When {
		case schema.WhenOnSuccess, schema.WhenAlways, schema.WhenOnFailure:
			// Valid.
		default:
			issues = append(issues, fmt.Sprintf("%s: when must be empty, %q, or %q, got %q", stepPrefix, schema.WhenAlways, schema.WhenOnFailure, step.When))
		}

		if step.Timeout != "" {
			if _, err := time.ParseDuration(step.Timeout); err != nil {
				issues = append(issues, fmt.Sprintf("%s: invalid timeout %q: %v", stepPrefix, step.Timeout, err))
			}
		}
		if step.GracePeriod != "" {
			if _, err := time.ParseDuration(step.GracePeriod); err != nil {
				issues = append(issues, fmt.Sprintf("%s: invalid grace_period %q: %v", stepPrefix, step.GracePeriod, err))
			}
		}
	}

	if job.Cache != nil {
		if len(job.Cache.Paths) == 0 {
			issues = append(issues, fmt.Sprintf("%s: cache.paths must be non-empty", prefix))
		}
		for index, cachePath := range job.Cache.Paths {
			if strings.HasPrefix(cachePath, "/") || strings.Contains(cachePath, "..") {
				issues = append(issues, fmt.Sprintf("%s: cache.paths[%d] %q: must be a relative path inside the workspace", prefix, index, cachePath))
			}
		}
	}

	if job.Hook != nil && job.Hook.TunnelTTL != "" {
		if _, err := time.ParseDuration(job.Hook.TunnelTTL); err != nil {
			issues = append(issues, fmt.Sprintf("%s: hook.tunnel_ttl: invalid duration %q: %v", prefix, job.Hook.TunnelTTL, err))
		}
	}

	return issues
}
