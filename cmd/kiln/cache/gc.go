// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kiln-build/kiln/cmd/kiln/cli"
	libcache "github.com/kiln-build/kiln/lib/cache"
	"github.com/kiln-build/kiln/lib/config"
)

// gcParams holds the parameters for the gc command.
type gcParams struct {
	cli.JSONOutput
	MaxAge time.Duration `flag:"max-age" desc:"remove entries unused for longer than this (default from config)"`
	DryRun bool          `flag:"dry-run" desc:"report what would be removed without deleting"`
}

// gcResult is the JSON output for cache gc.
type gcResult struct {
	Scanned    int   `json:"scanned"`
	Removed    int   `json:"removed"`
	FreedBytes int64 `json:"freed_bytes"`
	DryRun     bool  `json:"dry_run,omitempty"`
}

// gcCommand returns the "gc" subcommand: sweep stale cache entries.
func gcCommand() *cli.Command {
	var params gcParams

	return &cli.Command{
		Name:    "gc",
		Summary: "Remove cache entries unused past the age threshold",
		Description: `Sweep the cache store, removing entries not restored or saved within
the age threshold. Restores refresh an entry's timestamp, so the sweep
is least-recently-used eviction: anything a recent run touched
survives.

The threshold defaults to cache.max_age from the engine configuration
(30 days out of the box). Orphaned temp files from crashed writers are
cleaned up as well.`,
		Usage: "kiln cache gc [flags]",
		Examples: []cli.Example{
			{
				Description: "Sweep with the configured threshold",
				Command:     "kiln cache gc",
			},
			{
				Description: "Aggressive sweep, preview only",
				Command:     "kiln cache gc --max-age 72h --dry-run",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("gc", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("usage: kiln cache gc [flags]")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			maxAge := params.MaxAge
			if maxAge <= 0 {
				maxAge = cfg.CacheMaxAge()
			}

			store, err := libcache.NewStore(cfg.Paths.Cache)
			if err != nil {
				return err
			}

			stats, err := store.Sweep(maxAge, time.Now(), params.DryRun)
			if err != nil {
				return err
			}

			result := gcResult{
				Scanned:    stats.Scanned,
				Removed:    stats.Removed,
				FreedBytes: stats.FreedBytes,
				DryRun:     params.DryRun,
			}
			if done, err := params.EmitJSON(result); done {
				return err
			}

			verb := "removed"
			if params.DryRun {
				verb = "would remove"
			}
			fmt.Printf("scanned %d entries, %s %d (%s)\n",
				stats.Scanned, verb, stats.Removed, formatBytes(stats.FreedBytes))
			return nil
		},
	}
}

func formatBytes(count int64) string {
	switch {
	case count >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(count)/(1<<30))
	case count >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(count)/(1<<20))
	case count >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(count)/(1<<10))
	default:
		return fmt.Sprintf("%d B", count)
	}
}
