// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"os"

	"github.com/kiln-build/kiln/cmd/kiln/cli"
	libpipeline "github.com/kiln-build/kiln/lib/pipeline"
)

// validateCommand returns the "validate" subcommand.
func validateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Summary: "Validate a pipeline definition file",
		Description: `Validate a pipeline definition file. Checks that the JSONC is
well-formed and that the definition is coherent: at least one job,
unique job and variant names, steps with names and commands, guard
values, cache specs, timeout syntax, and so on.

Every problem is reported, not just the first one. Purely local; no
engine configuration is needed.`,
		Usage: "kiln pipeline validate [file]",
		Examples: []cli.Example{
			{
				Description: "Validate the default definition file",
				Command:     "kiln pipeline validate",
			},
			{
				Description: "Validate a specific file",
				Command:     "kiln pipeline validate ci/release.jsonc",
			},
		},
		Run: func(args []string) error {
			path := libpipeline.DefaultFileName
			if len(args) == 1 {
				path = args[0]
			} else if len(args) > 1 {
				return fmt.Errorf("usage: kiln pipeline validate [file]")
			}

			definition, err := libpipeline.ReadFile(path)
			if err != nil {
				return err
			}

			issues := libpipeline.Validate(definition)
			if len(issues) > 0 {
				for _, issue := range issues {
					fmt.Fprintf(os.Stderr, "  - %s\n", issue)
				}
				fmt.Fprintf(os.Stderr, "%s: %d issue(s) found\n", path, len(issues))
				return &cli.ExitError{Code: 1}
			}

			fmt.Fprintf(os.Stdout, "%s: valid\n", path)
			return nil
		},
	}
}
