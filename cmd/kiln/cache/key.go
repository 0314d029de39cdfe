// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kiln-build/kiln/cmd/kiln/cli"
	libcache "github.com/kiln-build/kiln/lib/cache"
)

// keyParams holds the parameters for the key command.
type keyParams struct {
	cli.JSONOutput
	Workspace string   `flag:"workspace" desc:"workspace to hash inputs in" default:"."`
	Pipeline  string   `flag:"pipeline" desc:"pipeline name"`
	Job       string   `flag:"job" desc:"job template name"`
	Variant   string   `flag:"variant" desc:"variant name"`
	Prefix    string   `flag:"prefix" desc:"cache prefix from the job definition"`
	Input     []string `flag:"input" desc:"input file pattern (repeatable)"`
}

// keyResult is the JSON output for cache key.
type keyResult struct {
	Key    string `json:"key"`
	Digest string `json:"digest"`
}

// keyCommand returns the "key" subcommand: derive and print the cache
// key for a scope and input set, without touching the store.
func keyCommand() *cli.Command {
	var params keyParams

	return &cli.Command{
		Name:    "key",
		Summary: "Derive the cache key for a job's inputs",
		Description: `Derive the cache key a job instance would use, from the scope
(pipeline, job, variant, optional prefix) and the content of the
matched input files. Useful for checking whether an edit will
invalidate a cache entry: same key, same entry.

Reads the workspace but never the store, so this works on machines
with no cache at all.`,
		Usage: "kiln cache key --job <job> --variant <variant> [flags]",
		Examples: []cli.Example{
			{
				Description: "Key for a Go build cache",
				Command:     "kiln cache key --pipeline release-build --job build --variant linux-amd64 --input go.sum --input go.mod",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("key", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("usage: kiln cache key --job <job> --variant <variant> [flags]")
			}
			if params.Job == "" || params.Variant == "" {
				return fmt.Errorf("--job and --variant are required")
			}
			if len(params.Input) == 0 {
				return fmt.Errorf("at least one --input pattern is required")
			}

			key, err := libcache.DeriveKey(params.Workspace, libcache.Scope{
				Pipeline: params.Pipeline,
				Job:      params.Job,
				Variant:  params.Variant,
				Prefix:   params.Prefix,
			}, params.Input)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(keyResult{Key: key.String(), Digest: key.ID()}); done {
				return err
			}
			fmt.Println(key.String())
			return nil
		},
	}
}
