// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/kiln-build/kiln/cmd/kiln/cli"
	"github.com/kiln-build/kiln/lib/watchui"
)

// showParams holds the parameters for the show command.
type showParams struct {
	cli.JSONOutput
}

// showCommand returns the "show" subcommand.
func showCommand() *cli.Command {
	var params showParams

	return &cli.Command{
		Name:    "show",
		Summary: "Show one recorded run in full",
		Description: `Show a recorded run: per-job outcomes, steps, cache state, artifacts,
release status, and warnings. The run ID comes from "kiln history
list". With --json the complete stored result is printed.`,
		Usage: "kiln history show <run-id>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("show", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: kiln history show <run-id>")
			}
			runID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run ID %q", args[0])
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := store.GetRun(context.Background(), runID)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(result); done {
				return err
			}
			fmt.Println(watchui.Summary(result))
			return nil
		},
	}
}
