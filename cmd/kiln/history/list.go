// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/kiln-build/kiln/cmd/kiln/cli"
	libhistory "github.com/kiln-build/kiln/lib/history"
)

// listParams holds the parameters for the list command.
type listParams struct {
	cli.JSONOutput
	Pipeline   string `flag:"pipeline" desc:"filter by pipeline name"`
	Conclusion string `flag:"conclusion" desc:"filter by conclusion: success, failure, or skipped"`
	Limit      int    `flag:"limit,n" desc:"maximum runs to list" default:"20"`
}

// listCommand returns the "list" subcommand.
func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List recorded runs, most recent first",
		Usage:   "kiln history list [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("usage: kiln history list [flags]")
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(context.Background(), libhistory.ListFilter{
				Pipeline:   params.Pipeline,
				Conclusion: params.Conclusion,
				Limit:      params.Limit,
			})
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(runs); done {
				return err
			}
			printRuns(runs)
			return nil
		},
	}
}

func printRuns(runs []libhistory.RunSummary) {
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ID\tPIPELINE\tEVENT\tREF\tCONCLUSION\tJOBS\tDURATION\tSTARTED")
	for _, run := range runs {
		jobs := fmt.Sprintf("%d", run.JobsTotal)
		if run.JobsFailed > 0 {
			jobs = fmt.Sprintf("%d (%d failed)", run.JobsTotal, run.JobsFailed)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.Pipeline, run.EventKind, run.Ref, run.Conclusion,
			jobs, formatDuration(run.DurationMS), run.StartedAt)
	}
	tw.Flush()
}

func formatDuration(milliseconds int64) string {
	return (time.Duration(milliseconds) * time.Millisecond).Round(100 * time.Millisecond).String()
}
