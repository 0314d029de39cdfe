// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"github.com/kiln-build/kiln/lib/schema"
	"github.com/kiln-build/kiln/lib/trigger"
)

// instance is one expanded job: a template bound to a single variant.
// Expansion is total — every variant of every job produces exactly one
// instance, and instances the trigger decision rules out carry a skip
// reason instead of being dropped, so result ordering is always
// definition order × variant order.
type instance struct {
	index   int
	job     *schema.JobSpec
	variant schema.Variant

	// skipReason is non-empty when the instance must not run. The
	// instance settles as Outcome skipped with this reason.
	skipReason string
}

func (i *instance) name() string {
	return schema.InstanceName(i.job.Name, i.variant.Name)
}

// expandInstances produces the run's job set from the definition and
// the trigger decision.
func expandInstances(definition *schema.Pipeline, decision trigger.Decision) []instance {
	var instances []instance
	for jobIndex := range definition.Jobs {
		job := &definition.Jobs[jobIndex]

		var skipReason string
		switch {
		case job.PublishOnly && !decision.Publish:
			skipReason = "publish-only job on a non-publishing run"
		case !decision.FullBuild && !job.PublishOnly:
			skipReason = "full build disabled for this tag rule"
		}

		for _, variant := range job.Variants {
			instances = append(instances, instance{
				index:      len(instances),
				job:        job,
				variant:    variant,
				skipReason: skipReason,
			})
		}
	}
	return instances
}
