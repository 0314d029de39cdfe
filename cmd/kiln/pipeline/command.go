// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline implements the "kiln pipeline" command group: run a
// pipeline for a repository event, preview what a run would do, and
// validate a definition file.
package pipeline

import (
	"github.com/kiln-build/kiln/cmd/kiln/cli"
)

// Command returns the "pipeline" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "pipeline",
		Summary: "Run and inspect build pipelines",
		Description: `Run and inspect kiln build pipelines.

A pipeline is defined in a kiln.jsonc file at the repository root:
triggers (which branches, tags, and pull requests start a run), jobs
with their target variants, steps, caching, artifacts, and failure
hooks. JSONC is JSON plus // line comments, /* block comments */, and
trailing commas.

A run is driven by one repository event (a push, tag, or pull
request). The trigger rules decide whether the event starts a run and
whether the run publishes a release; every job/variant instance then
builds in its own workspace, in parallel.

Engine configuration (cache location, release backend, tunnel broker,
secrets) comes from the file named by KILN_CONFIG. Without it kiln
uses local defaults under ~/.cache/kiln.`,
		Subcommands: []*cli.Command{
			runCommand(),
			planCommand(),
			validateCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Run the pipeline for a branch push",
				Command:     "kiln pipeline run --ref refs/heads/main --commit 4fe21ab",
			},
			{
				Description: "Run a tag release with a live status board",
				Command:     "kiln pipeline run --ref refs/tags/v1.4.0 --watch",
			},
			{
				Description: "Preview what an event would run without building",
				Command:     "kiln pipeline plan --ref refs/tags/v1.4.0",
			},
			{
				Description: "Validate the definition file",
				Command:     "kiln pipeline validate kiln.jsonc",
			},
		},
	}
}
