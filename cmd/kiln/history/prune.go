// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kiln-build/kiln/cmd/kiln/cli"
)

// pruneParams holds the parameters for the prune command.
type pruneParams struct {
	Keep int `flag:"keep" desc:"number of most recent runs to keep" default:"100"`
}

// pruneCommand returns the "prune" subcommand.
func pruneCommand() *cli.Command {
	var params pruneParams

	return &cli.Command{
		Name:    "prune",
		Summary: "Delete all but the most recent runs",
		Usage:   "kiln history prune [--keep <n>]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("prune", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("usage: kiln history prune [--keep <n>]")
			}
			if params.Keep < 0 {
				return fmt.Errorf("--keep must be >= 0")
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			deleted, err := store.Prune(context.Background(), params.Keep)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d run(s), kept the %d most recent\n", deleted, params.Keep)
			return nil
		},
	}
}
