// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/kiln-build/kiln/cmd/kiln/cli"
	"github.com/kiln-build/kiln/lib/cache"
	"github.com/kiln-build/kiln/lib/config"
	"github.com/kiln-build/kiln/lib/history"
	libpipeline "github.com/kiln-build/kiln/lib/pipeline"
	"github.com/kiln-build/kiln/lib/provision"
	"github.com/kiln-build/kiln/lib/release"
	"github.com/kiln-build/kiln/lib/runner"
	"github.com/kiln-build/kiln/lib/schema"
	"github.com/kiln-build/kiln/lib/tunnel"
	"github.com/kiln-build/kiln/lib/watchui"
)

// runParams holds the parameters for the run command.
type runParams struct {
	cli.JSONOutput
	eventParams
	File      string   `flag:"file,f" desc:"pipeline definition path" default:"kiln.jsonc"`
	Source    string   `flag:"source" desc:"repository checkout to build" default:"."`
	Var       []string `flag:"var" desc:"KEY=VALUE pipeline variable (repeatable)"`
	Watch     bool     `flag:"watch,w" desc:"live per-job status board (needs a TTY)"`
	NoCache   bool     `flag:"no-cache" desc:"disable the dependency cache for this run"`
	NoHistory bool     `flag:"no-history" desc:"do not record the run in history"`
}

// runCommand returns the "run" subcommand: execute the pipeline for
// one repository event.
func runCommand() *cli.Command {
	var params runParams

	return &cli.Command{
		Name:    "run",
		Summary: "Execute the pipeline for a repository event",
		Description: `Execute the pipeline for one repository event. The trigger rules
decide whether the event starts a run and whether the run publishes a
release; job/variant instances then build in parallel, each in a
private workspace copied from --source.

Step progress streams to stderr as it happens. With --watch (on a
terminal) a live per-job status board replaces the stream; pressing q
detaches the board without stopping the run. The run summary prints
when everything settles, and the run is recorded in the local history
database.

Exits 0 on success or a skipped run, 1 when any job failed or the
release could not be published.`,
		Usage: "kiln pipeline run --ref <ref> [flags]",
		Examples: []cli.Example{
			{
				Description: "Run for a branch push",
				Command:     "kiln pipeline run --ref refs/heads/main --commit 4fe21ab",
			},
			{
				Description: "Release run with the live board",
				Command:     "kiln pipeline run --ref refs/tags/v1.4.0 --watch",
			},
			{
				Description: "Override a pipeline variable",
				Command:     "kiln pipeline run --ref refs/heads/main --var BUILD_MODE=debug",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("run", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("usage: kiln pipeline run --ref <ref> [flags]")
			}
			return executeRun(&params)
		},
	}
}

func executeRun(params *runParams) error {
	logger := cli.NewCommandLogger().With("command", "pipeline/run")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	definition, err := libpipeline.ReadFile(params.File)
	if err != nil {
		return err
	}

	event, err := params.buildEvent()
	if err != nil {
		return err
	}

	variables, err := parseVarFlags(params.Var)
	if err != nil {
		return err
	}

	secrets, err := loadSecrets(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	source, err := filepath.Abs(params.Source)
	if err != nil {
		return err
	}

	runnerConfig := runner.Config{
		Source:        source,
		WorkspaceRoot: cfg.Paths.Workspaces,
		ArtifactRoot:  cfg.Paths.Artifacts,
		Parallelism:   cfg.Runner.Parallelism,
		Shell:         cfg.Runner.Shell,
		StepTimeout:   cfg.StepTimeout(),
		Provisioner: &provision.AutoProvisioner{
			Host:      &provision.HostProvisioner{},
			Container: &provision.ContainerProvisioner{Binary: cfg.Runner.ContainerBinary},
		},
		Variables: variables,
		Secrets:   secrets.Pipeline,
		Logger:    logger,
	}

	if !params.NoCache {
		store, err := cache.NewStore(cfg.Paths.Cache)
		if err != nil {
			return err
		}
		runnerConfig.Store = store
	}

	runnerConfig.ReleaseHost, err = releaseHost(ctx, cfg, secrets)
	if err != nil {
		return err
	}

	if cfg.Tunnel.BrokerURL != "" {
		if secrets.TunnelToken == "" {
			logger.Warn("tunnel broker configured without TUNNEL_TOKEN; debug sessions disabled")
		} else {
			runnerConfig.Tunnel = tunnel.NewClient(cfg.Tunnel.BrokerURL, secrets.TunnelToken)
		}
	}

	watch := params.Watch && term.IsTerminal(int(os.Stdout.Fd()))

	var board *watchui.ChannelSink
	if watch {
		board = watchui.NewChannelSink(256)
		runnerConfig.Sink = board
	} else {
		runnerConfig.Sink = runner.NewWriterSink(os.Stderr)
	}

	engine, err := runner.New(runnerConfig)
	if err != nil {
		return err
	}

	var result *schema.RunResult
	var runErr error

	if watch {
		done := make(chan struct{})
		go func() {
			defer close(done)
			result, runErr = engine.Run(ctx, definition, event)
			board.Close()
		}()

		// A board error (broken terminal) must not kill the run; the
		// goroutine above owns the run's lifetime either way.
		if _, err := tea.NewProgram(watchui.New(board.Events())).Run(); err != nil {
			logger.Warn("status board failed", "error", err)
		}
		<-done
	} else {
		result, runErr = engine.Run(ctx, definition, event)
	}
	if runErr != nil {
		return runErr
	}

	if !params.NoHistory {
		recordRun(ctx, cfg, logger, result)
	}

	if done, err := params.EmitJSON(result); done {
		return err
	}
	fmt.Println(watchui.Summary(result))

	if result.Conclusion == schema.ConclusionFailure {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

// releaseHost builds the configured release backend. The local backend
// needs no credentials; the object backend takes its keys from the
// sealed secrets file.
func releaseHost(ctx context.Context, cfg *config.Config, secrets *engineSecrets) (release.Host, error) {
	switch cfg.Release.Backend {
	case config.ReleaseBackendObject:
		return release.NewObjectHost(ctx, release.ObjectConfig{
			Endpoint:  cfg.Release.Endpoint,
			AccessKey: secrets.S3AccessKey,
			SecretKey: secrets.S3SecretKey,
			Bucket:    cfg.Release.Bucket,
			Prefix:    cfg.Release.Prefix,
			Insecure:  cfg.Release.Insecure,
		})
	default:
		return &release.LocalHost{Root: cfg.Paths.Releases}, nil
	}
}

// recordRun writes the result to the history database. History is
// bookkeeping: a recording failure downgrades to a warning rather than
// overturning a finished run.
func recordRun(ctx context.Context, cfg *config.Config, logger *slog.Logger, result *schema.RunResult) {
	store, err := history.Open(history.Config{
		Path:     cfg.History.Path,
		PoolSize: cfg.History.PoolSize,
	})
	if err != nil {
		logger.Warn("opening run history", "error", err)
		return
	}
	defer store.Close()

	runID, err := store.RecordRun(ctx, result)
	if err != nil {
		logger.Warn("recording run", "error", err)
		return
	}
	logger.Info("run recorded", "run_id", runID)
}

// parseVarFlags turns repeated --var KEY=VALUE flags into a map.
func parseVarFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	variables := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("--var %q: expected KEY=VALUE", pair)
		}
		variables[name] = value
	}
	return variables, nil
}
