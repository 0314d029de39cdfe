// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package trigger decides whether a repository event starts a pipeline
// run and whether that run may publish a release. Evaluation is a pure
// function of the event and the pipeline's trigger rules: every job in
// a run derives from the same Decision, so no job can observe a
// different trigger state than another.
package trigger

import (
	"fmt"

	"github.com/kiln-build/kiln/lib/glob"
	"github.com/kiln-build/kiln/lib/schema"
)

// Decision is the evaluator's verdict for one event.
type Decision struct {
	// Run reports whether the pipeline runs at all.
	Run bool

	// Publish reports whether this run may publish a release. Only
	// tag events that pass the publish gate set it. Meaningful only
	// when Run is true.
	Publish bool

	// Tag is the prefix-stripped tag name when Publish is true.
	Tag string

	// FullBuild reports whether regular (non-publish-only) jobs run.
	// Always true except on tag events whose rule sets
	// full_build: false.
	FullBuild bool

	// Reason explains a negative Run decision for logs and results.
	Reason string
}

// Evaluate applies the pipeline's trigger rules to an event. No side
// effects; identical inputs always produce identical decisions.
func Evaluate(spec *schema.TriggerSpec, event schema.Event) Decision {
	if spec == nil {
		return Decision{FullBuild: true, Reason: "pipeline has no triggers configured"}
	}

	switch event.Kind {
	case schema.EventPush:
		if spec.Push == nil {
			return Decision{FullBuild: true, Reason: "no push trigger configured"}
		}
		branch := event.ShortRef()
		if !glob.MatchAny(spec.Push.Patterns, branch) {
			return Decision{
				FullBuild: true,
				Reason:    fmt.Sprintf("branch %q matches no push pattern", branch),
			}
		}
		return Decision{Run: true, FullBuild: true}

	case schema.EventPullRequest:
		if spec.PullRequest == nil {
			return Decision{FullBuild: true, Reason: "no pull_request trigger configured"}
		}
		branch := event.ShortRef()
		if !glob.MatchAny(spec.PullRequest.Patterns, branch) {
			return Decision{
				FullBuild: true,
				Reason:    fmt.Sprintf("target branch %q matches no pull_request pattern", branch),
			}
		}
		return Decision{Run: true, FullBuild: true}

	case schema.EventTag:
		if spec.Tag == nil {
			return Decision{FullBuild: true, Reason: "no tag trigger configured"}
		}
		tag := event.TagName()
		if !glob.MatchAny(spec.Tag.Patterns, tag) {
			return Decision{
				FullBuild: true,
				Reason:    fmt.Sprintf("tag %q matches no tag pattern", tag),
			}
		}
		decision := Decision{
			Run:       true,
			FullBuild: spec.Tag.FullBuildEnabled(),
		}
		// Publishing is gated separately so a pipeline can build on
		// every tag but release only some. Absent publish rule falls
		// back to the tag rule, which already matched.
		if spec.Publish != nil {
			decision.Publish = glob.MatchAny(spec.Publish.Patterns, tag)
		} else {
			decision.Publish = true
		}
		if decision.Publish {
			decision.Tag = tag
		}
		return decision

	default:
		return Decision{FullBuild: true, Reason: fmt.Sprintf("unknown event kind %q", event.Kind)}
	}
}
