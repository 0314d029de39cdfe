// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Command kiln is the build-and-release pipeline engine CLI.
package main

import (
	"fmt"
	"os"

	cachecmd "github.com/kiln-build/kiln/cmd/kiln/cache"
	"github.com/kiln-build/kiln/cmd/kiln/cli"
	historycmd "github.com/kiln-build/kiln/cmd/kiln/history"
	pipelinecmd "github.com/kiln-build/kiln/cmd/kiln/pipeline"
	secretcmd "github.com/kiln-build/kiln/cmd/kiln/secret"
	"github.com/kiln-build/kiln/lib/version"
)

func main() {
	if err := root().Execute(os.Args[1:]); err != nil {
		// Commands that already printed their own output (a failed
		// run, a broken definition) return an ExitError with the
		// desired code. No redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func root() *cli.Command {
	return &cli.Command{
		Name: "kiln",
		Description: `Kiln: multi-target build and release pipelines.

Run a repository's pipeline for push, tag, and pull request events:
parallel job instances across target variants, content-addressed
dependency caching, artifact collection, and tag-gated release
publishing. Configuration comes from the file named by KILN_CONFIG;
without it kiln runs with local defaults under ~/.cache/kiln.`,
		Subcommands: []*cli.Command{
			pipelinecmd.Command(),
			cachecmd.Command(),
			secretcmd.Command(),
			historycmd.Command(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("kiln %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Validate the pipeline definition",
				Command:     "kiln pipeline validate",
			},
			{
				Description: "Run the pipeline for a branch push",
				Command:     "kiln pipeline run --ref refs/heads/main",
			},
			{
				Description: "Release run with the live status board",
				Command:     "kiln pipeline run --ref refs/tags/v1.4.0 --watch",
			},
			{
				Description: "See what a tag would run without building",
				Command:     "kiln pipeline plan --ref refs/tags/v1.4.0",
			},
			{
				Description: "Browse past runs",
				Command:     "kiln history list",
			},
			{
				Description: "Garbage-collect the dependency cache",
				Command:     "kiln cache gc",
			},
		},
	}
}
