// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache implements the "kiln cache" command group: inspect
// cache keys and garbage-collect the store.
package cache

import (
	"github.com/kiln-build/kiln/cmd/kiln/cli"
)

// Command returns the "cache" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "cache",
		Summary: "Inspect and maintain the dependency cache",
		Description: `Inspect and maintain kiln's dependency cache.

Cache entries are content-addressed: the key is derived from the
pipeline/job/variant scope and the content of the job's declared input
files, so a lockfile change produces a new key and an untouched
lockfile hits the existing entry. Entries are refreshed on every hit;
"gc" removes the ones nothing has touched for longer than the
threshold.`,
		Subcommands: []*cli.Command{
			keyCommand(),
			gcCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Show the cache key a job instance would use",
				Command:     "kiln cache key --pipeline release-build --job build --variant linux-amd64 --input go.sum",
			},
			{
				Description: "Remove entries unused for 30 days",
				Command:     "kiln cache gc",
			},
			{
				Description: "See what a sweep would remove",
				Command:     "kiln cache gc --dry-run",
			},
		},
	}
}
