// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/kiln-build/kiln/cmd/kiln/cli"
	libpipeline "github.com/kiln-build/kiln/lib/pipeline"
	"github.com/kiln-build/kiln/lib/schema"
	"github.com/kiln-build/kiln/lib/trigger"
)

// planParams holds the parameters for the plan command.
type planParams struct {
	cli.JSONOutput
	eventParams
	File string `flag:"file,f" desc:"pipeline definition path" default:"kiln.jsonc"`
}

// planResult is the JSON output for pipeline plan.
type planResult struct {
	Pipeline  string         `json:"pipeline"`
	Run       bool           `json:"run"`
	Publish   bool           `json:"publish"`
	Tag       string         `json:"tag,omitempty"`
	FullBuild bool           `json:"full_build"`
	Reason    string         `json:"reason,omitempty"`
	Instances []planInstance `json:"instances"`
}

// planInstance is one job/variant expansion entry in the plan.
type planInstance struct {
	Instance string `json:"instance"`
	Image    string `json:"image,omitempty"`
	Steps    int    `json:"steps"`
	Skipped  bool   `json:"skipped,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// planCommand returns the "plan" subcommand: evaluate the trigger
// rules and show the instance expansion without building anything.
func planCommand() *cli.Command {
	var params planParams

	return &cli.Command{
		Name:    "plan",
		Summary: "Preview what an event would run",
		Description: `Evaluate the pipeline's trigger rules against an event and print the
resulting plan: whether a run would start, whether it would publish a
release, and the full job/variant instance expansion with per-instance
skip reasons.

Nothing is built and no engine state is touched. The same decision
logic drives a real run, so the plan is exact.`,
		Usage: "kiln pipeline plan --ref <ref> [flags]",
		Examples: []cli.Example{
			{
				Description: "Plan for a branch push",
				Command:     "kiln pipeline plan --ref refs/heads/main",
			},
			{
				Description: "Plan for a release tag",
				Command:     "kiln pipeline plan --ref refs/tags/v1.4.0",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("plan", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("usage: kiln pipeline plan --ref <ref> [flags]")
			}

			definition, err := libpipeline.ReadFile(params.File)
			if err != nil {
				return err
			}
			if issues := libpipeline.Validate(definition); len(issues) > 0 {
				for _, issue := range issues {
					fmt.Fprintf(os.Stderr, "  - %s\n", issue)
				}
				return fmt.Errorf("%s: %d validation issue(s) found", params.File, len(issues))
			}

			event, err := params.buildEvent()
			if err != nil {
				return err
			}

			decision := trigger.Evaluate(definition.Triggers, event)
			plan := buildPlan(definition, decision)

			if done, err := params.EmitJSON(plan); done {
				return err
			}
			printPlan(plan)
			return nil
		},
	}
}

// buildPlan folds the trigger decision and the instance expansion into
// a plan. The skip conditions mirror the runner's expansion exactly.
func buildPlan(definition *schema.Pipeline, decision trigger.Decision) *planResult {
	plan := &planResult{
		Pipeline:  definition.Name,
		Run:       decision.Run,
		Publish:   decision.Publish,
		Tag:       decision.Tag,
		FullBuild: decision.FullBuild,
		Reason:    decision.Reason,
		Instances: []planInstance{},
	}
	if !decision.Run {
		return plan
	}

	for i := range definition.Jobs {
		job := &definition.Jobs[i]
		for j := range job.Variants {
			variant := &job.Variants[j]
			instance := planInstance{
				Instance: schema.InstanceName(job.Name, variant.Name),
				Image:    variant.Image,
				Steps:    len(job.Steps),
			}
			switch {
			case job.PublishOnly && !decision.Publish:
				instance.Skipped = true
				instance.Reason = "publish-only job on a non-publishing run"
			case !decision.FullBuild && !job.PublishOnly:
				instance.Skipped = true
				instance.Reason = "full build disabled for this tag rule"
			}
			plan.Instances = append(plan.Instances, instance)
		}
	}
	return plan
}

func printPlan(plan *planResult) {
	if !plan.Run {
		fmt.Printf("pipeline %s: run skipped (%s)\n", plan.Pipeline, plan.Reason)
		return
	}

	fmt.Printf("pipeline %s: run\n", plan.Pipeline)
	if plan.Publish {
		fmt.Printf("  publish: yes (tag %s)\n", plan.Tag)
	} else {
		fmt.Printf("  publish: no\n")
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "  INSTANCE\tIMAGE\tSTEPS\tSTATUS")
	for _, instance := range plan.Instances {
		image := instance.Image
		if image == "" {
			image = "host"
		}
		status := "run"
		if instance.Skipped {
			status = "skipped: " + instance.Reason
		}
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%s\n", instance.Instance, image, instance.Steps, status)
	}
	tw.Flush()
}
