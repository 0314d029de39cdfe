// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"

	"github.com/kiln-build/kiln/lib/schema"
)

// eventParams are the flags describing the repository event a run or
// plan is for. Shared by "run" and "plan".
type eventParams struct {
	Ref         string `flag:"ref" desc:"fully qualified git ref (refs/heads/..., refs/tags/...)"`
	Commit      string `flag:"commit" desc:"commit SHA the event points at"`
	Event       string `flag:"event" desc:"event kind: push, tag, or pull_request" default:"push"`
	PullRequest int    `flag:"pr" desc:"pull request number (pull_request events)"`
}

// buildEvent turns the flags into a validated Event. Tag refs are
// normalized to tag events regardless of --event, so passing just
// --ref refs/tags/v1.0 does the right thing.
func (p *eventParams) buildEvent() (schema.Event, error) {
	if p.Ref == "" {
		return schema.Event{}, fmt.Errorf("--ref is required")
	}

	event := schema.NewEvent(schema.EventKind(p.Event), p.Ref, p.Commit)
	event.PullRequest = p.PullRequest
	if event.Kind == schema.EventPullRequest && event.PullRequest == 0 {
		return schema.Event{}, fmt.Errorf("--pr is required for pull_request events")
	}
	if err := event.Validate(); err != nil {
		return schema.Event{}, err
	}
	return event, nil
}
