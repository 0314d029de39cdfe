// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package history implements the "kiln history" command group over the
// local run-history database.
package history

import (
	"github.com/kiln-build/kiln/cmd/kiln/cli"
	"github.com/kiln-build/kiln/lib/config"
	libhistory "github.com/kiln-build/kiln/lib/history"
)

// Command returns the "history" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "history",
		Summary: "Browse recorded pipeline runs",
		Description: `Browse the local run history.

Every completed "kiln pipeline run" is recorded in a SQLite database
(history.path in the engine configuration): the full result, plus
indexed columns for listing and filtering. Secrets are masked before
recording, so history is safe to share.`,
		Subcommands: []*cli.Command{
			listCommand(),
			showCommand(),
			pruneCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "List recent runs",
				Command:     "kiln history list",
			},
			{
				Description: "List failed runs of one pipeline",
				Command:     "kiln history list --pipeline release-build --conclusion failure",
			},
			{
				Description: "Show one run in full",
				Command:     "kiln history show 42",
			},
			{
				Description: "Keep only the 200 most recent runs",
				Command:     "kiln history prune --keep 200",
			},
		},
	}
}

// openStore opens the configured history database.
func openStore() (*libhistory.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return libhistory.Open(libhistory.Config{
		Path:     cfg.History.Path,
		PoolSize: cfg.History.PoolSize,
	})
}
