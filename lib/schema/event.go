// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines kiln's data model: the repository events that
// trigger runs, the pipeline definition loaded from kiln.jsonc, and the
// result types produced when a run finishes.
//
// The types here are plain wire structs with validation methods. Loading
// (JSONC translation), variable expansion, and cross-field validation of
// pipeline definitions live in lib/pipeline.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// EventKind classifies a repository event.
type EventKind string

const (
	// EventPush is a branch push.
	EventPush EventKind = "push"

	// EventPullRequest is a pull request open or update.
	EventPullRequest EventKind = "pull_request"

	// EventTag is a tag push. Pushes whose ref carries the tag prefix
	// are normalized to this kind regardless of how the source feed
	// labeled them.
	EventTag EventKind = "tag"
)

// Ref prefixes used to classify events. The source-control feed
// delivers fully qualified refs; kiln never sees short names.
const (
	BranchRefPrefix = "refs/heads/"
	TagRefPrefix    = "refs/tags/"
)

// Event is one repository event delivered by the source-control feed.
// Immutable once constructed; a pipeline run consumes exactly one Event
// and every component in the run sees the same value.
type Event struct {
	// Kind is the event classification. Use NewEvent to derive it
	// consistently from the ref.
	Kind EventKind `json:"kind"`

	// Ref is the fully qualified git ref (e.g., "refs/heads/main",
	// "refs/tags/v1.0"). Required.
	Ref string `json:"ref"`

	// Commit is the commit SHA the event points at. Optional; kiln
	// passes it through to steps as KILN_COMMIT but never inspects it.
	Commit string `json:"commit,omitempty"`

	// PullRequest is the PR number for pull_request events. Zero
	// otherwise.
	PullRequest int `json:"pull_request,omitempty"`
}

// NewEvent builds an Event and normalizes its kind: a push whose ref
// carries the tag prefix becomes an EventTag. This is the single place
// where tag classification happens, so every consumer of the Event
// derives identical trigger state.
func NewEvent(kind EventKind, ref, commit string) Event {
	if kind == EventPush && strings.HasPrefix(ref, TagRefPrefix) {
		kind = EventTag
	}
	return Event{Kind: kind, Ref: ref, Commit: commit}
}

// IsTag reports whether the event is a tag push. True exactly when the
// ref carries the tag prefix.
func (e *Event) IsTag() bool {
	return strings.HasPrefix(e.Ref, TagRefPrefix)
}

// TagName returns the tag name with the prefix stripped (e.g., "v1.0"
// for "refs/tags/v1.0"), or "" when the event is not a tag push.
func (e *Event) TagName() string {
	if !e.IsTag() {
		return ""
	}
	return strings.TrimPrefix(e.Ref, TagRefPrefix)
}

// ShortRef returns the ref with its branch or tag prefix stripped, for
// matching against configured patterns and for display.
func (e *Event) ShortRef() string {
	if name, ok := strings.CutPrefix(e.Ref, BranchRefPrefix); ok {
		return name
	}
	if name, ok := strings.CutPrefix(e.Ref, TagRefPrefix); ok {
		return name
	}
	return e.Ref
}

// Validate checks the event for internal consistency.
func (e *Event) Validate() error {
	if e.Ref == "" {
		return errors.New("event: ref is required")
	}
	switch e.Kind {
	case EventPush, EventPullRequest, EventTag:
		// Valid.
	case "":
		return errors.New("event: kind is required")
	default:
		return fmt.Errorf("event: unknown kind %q", e.Kind)
	}
	if e.Kind == EventTag && !e.IsTag() {
		return fmt.Errorf("event: kind is tag but ref %q lacks the %s prefix", e.Ref, TagRefPrefix)
	}
	if e.Kind == EventPush && e.IsTag() {
		return fmt.Errorf("event: ref %q is a tag ref but kind is push; use NewEvent to classify", e.Ref)
	}
	if e.Kind == EventPullRequest && e.PullRequest <= 0 {
		return errors.New("event: pull_request events require a positive PR number")
	}
	return nil
}
