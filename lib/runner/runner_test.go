// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kiln-build/kiln/lib/cache"
	"github.com/kiln-build/kiln/lib/provision"
	"github.com/kiln-build/kiln/lib/release"
	"github.com/kiln-build/kiln/lib/schema"
	"github.com/kiln-build/kiln/lib/tunnel"
)

// executedCommand pairs a command with the instance that ran it.
type executedCommand struct {
	instance string
	command  provision.Command
}

// fakeProvisioner hands out in-memory environments and records every
// provisioned spec and executed command. The exec callback decides
// each command's fate; nil means everything exits 0.
type fakeProvisioner struct {
	mu       sync.Mutex
	specs    []provision.Spec
	commands []executedCommand
	closed   int

	failFor map[string]error
	exec    func(spec provision.Spec, command provision.Command) (int, error)
}

func (p *fakeProvisioner) Provision(ctx context.Context, spec provision.Spec) (provision.Environment, error) {
	p.mu.Lock()
	p.specs = append(p.specs, spec)
	failErr := p.failFor[spec.Instance]
	p.mu.Unlock()

	if failErr != nil {
		return nil, &provision.Error{Instance: spec.Instance, Err: failErr}
	}
	return &fakeEnvironment{provisioner: p, spec: spec}, nil
}

func (p *fakeProvisioner) commandsFor(instance string) []provision.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	var commands []provision.Command
	for _, executed := range p.commands {
		if executed.instance == instance {
			commands = append(commands, executed.command)
		}
	}
	return commands
}

type fakeEnvironment struct {
	provisioner *fakeProvisioner
	spec        provision.Spec
}

func (e *fakeEnvironment) Exec(ctx context.Context, command provision.Command) (int, error) {
	e.provisioner.mu.Lock()
	e.provisioner.commands = append(e.provisioner.commands, executedCommand{
		instance: e.spec.Instance,
		command:  command,
	})
	exec := e.provisioner.exec
	e.provisioner.mu.Unlock()

	if exec != nil {
		return exec(e.spec, command)
	}
	return 0, nil
}

func (e *fakeEnvironment) Close(ctx context.Context) error {
	e.provisioner.mu.Lock()
	e.provisioner.closed++
	e.provisioner.mu.Unlock()
	return nil
}

// buildDefinition is a three-variant pipeline with push and tag
// triggers and artifact collection, the base for most scenarios.
func buildDefinition() *schema.Pipeline {
	return &schema.Pipeline{
		Name: "release-build",
		Triggers: &schema.TriggerSpec{
			Push: &schema.RefRule{Patterns: []string{"main"}},
			Tag:  &schema.TagRule{Patterns: []string{"v*"}},
		},
		Jobs: []schema.JobSpec{
			{
				Name: "build",
				Variants: []schema.Variant{
					{Name: "linux-amd64"},
					{Name: "linux-arm64"},
					{Name: "darwin-arm64"},
				},
				Steps: []schema.Step{
					{Name: "compile", Run: "make build"},
				},
				Artifacts: []string{"dist/**"},
			},
		},
	}
}

// sourceTree creates a checkout directory with a dist/ artifact and a
// lockfile for cache key derivation.
func sourceTree(t *testing.T) string {
	t.Helper()
	source := t.TempDir()
	for path, content := range map[string]string{
		"dist/app.bin": "binary payload",
		"lockfile":     "dependencies v1",
		"main.go":      "package main",
	} {
		full := filepath.Join(source, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return source
}

func newTestRunner(t *testing.T, mutate func(*Config)) (*Runner, *fakeProvisioner) {
	t.Helper()
	provisioner := &fakeProvisioner{}
	config := Config{
		Source:        sourceTree(t),
		WorkspaceRoot: t.TempDir(),
		Provisioner:   provisioner,
		ReleaseHost:   &release.LocalHost{Root: t.TempDir()},
	}
	if mutate != nil {
		mutate(&config)
	}
	runner, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return runner, provisioner
}

func pushEvent() schema.Event {
	return schema.NewEvent(schema.EventPush, "refs/heads/main", "abc1234")
}

func tagEvent(tag string) schema.Event {
	return schema.NewEvent(schema.EventTag, "refs/tags/"+tag, "abc1234")
}

func TestBranchPushRunsWithoutRelease(t *testing.T) {
	t.Parallel()
	runner, provisioner := newTestRunner(t, nil)

	result, err := runner.Run(context.Background(), buildDefinition(), pushEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Conclusion != schema.ConclusionSuccess {
		t.Errorf("conclusion = %q, warnings = %v", result.Conclusion, result.Warnings)
	}
	if result.Publish {
		t.Error("branch push must not publish")
	}
	if result.Release != nil {
		t.Errorf("Release = %+v, want nil", result.Release)
	}
	if len(result.Jobs) != 3 {
		t.Fatalf("len(Jobs) = %d, want 3", len(result.Jobs))
	}
	for _, job := range result.Jobs {
		if job.Outcome != schema.OutcomeSuccess {
			t.Errorf("%s outcome = %q: %s", job.InstanceName(), job.Outcome, job.Error)
		}
		if job.ArtifactFiles != 1 {
			t.Errorf("%s artifact files = %d, want 1", job.InstanceName(), job.ArtifactFiles)
		}
	}
	provisioner.mu.Lock()
	defer provisioner.mu.Unlock()
	if provisioner.closed != 3 {
		t.Errorf("environments closed = %d, want 3", provisioner.closed)
	}
}

func TestTagRunPublishesAllBundles(t *testing.T) {
	t.Parallel()
	releasesDir := t.TempDir()
	runner, _ := newTestRunner(t, func(config *Config) {
		config.ReleaseHost = &release.LocalHost{Root: releasesDir}
	})

	result, err := runner.Run(context.Background(), buildDefinition(), tagEvent("v1.0"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Conclusion != schema.ConclusionSuccess {
		t.Fatalf("conclusion = %q, warnings = %v", result.Conclusion, result.Warnings)
	}
	if !result.Publish || result.Tag != "v1.0" {
		t.Fatalf("Publish = %v, Tag = %q", result.Publish, result.Tag)
	}
	if result.Release == nil {
		t.Fatal("Release is nil")
	}
	if result.Release.Bundles != 3 || result.Release.Assets != 3 {
		t.Errorf("release bundles = %d, assets = %d, want 3/3", result.Release.Bundles, result.Release.Assets)
	}
	if result.Release.Error != "" {
		t.Errorf("release error: %s", result.Release.Error)
	}
	if _, err := os.Stat(filepath.Join(releasesDir, "v1.0", "build-linux-arm64", "dist", "app.bin")); err != nil {
		t.Errorf("published asset missing: %v", err)
	}
}

func TestStepTimeoutIsFailedNotAborted(t *testing.T) {
	t.Parallel()
	runner, provisioner := newTestRunner(t, nil)
	provisioner.exec = func(spec provision.Spec, command provision.Command) (int, error) {
		if spec.Instance == "build/linux-amd64" {
			return -1, fmt.Errorf("command terminated: %w", context.DeadlineExceeded)
		}
		return 0, nil
	}

	result, err := runner.Run(context.Background(), buildDefinition(), pushEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// A per-step timeout is the step's own failure; aborted is
	// reserved for whole-run cancellation.
	for _, job := range result.Jobs {
		if job.InstanceName() != "build/linux-amd64" {
			continue
		}
		if job.Outcome != schema.OutcomeFailed {
			t.Fatalf("outcome = %q, want failed", job.Outcome)
		}
		if len(job.Steps) != 1 || job.Steps[0].Status != schema.StepFailed {
			t.Fatalf("step status = %+v, want failed", job.Steps)
		}
		if !strings.Contains(job.Steps[0].Error, "deadline") {
			t.Errorf("step error %q lost the timeout cause", job.Steps[0].Error)
		}
	}
}

func TestPublishedAssetsOutliveWorkspaceCleanup(t *testing.T) {
	t.Parallel()
	releasesDir := t.TempDir()
	workspaceRoot := t.TempDir()
	runner, _ := newTestRunner(t, func(config *Config) {
		config.WorkspaceRoot = workspaceRoot
		config.ArtifactRoot = t.TempDir()
		config.ReleaseHost = &release.LocalHost{Root: releasesDir}
	})

	result, err := runner.Run(context.Background(), buildDefinition(), tagEvent("v3.0"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Conclusion != schema.ConclusionSuccess {
		t.Fatalf("conclusion = %q, release error = %v", result.Conclusion, result.Release)
	}

	// Instance workspaces are gone by the time the publisher runs;
	// the published content must have been staged out of them.
	entries, err := os.ReadDir(workspaceRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d workspace directories left behind", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(releasesDir, "v3.0", "build-darwin-arm64", "dist", "app.bin"))
	if err != nil {
		t.Fatalf("published asset unreadable: %v", err)
	}
	if string(data) != "binary payload" {
		t.Errorf("published content = %q", data)
	}
}

func TestPartialFailureStillPublishesSuccessSubset(t *testing.T) {
	t.Parallel()
	runner, provisioner := newTestRunner(t, nil)
	provisioner.exec = func(spec provision.Spec, command provision.Command) (int, error) {
		if spec.Instance == "build/linux-arm64" {
			return 2, nil
		}
		return 0, nil
	}

	result, err := runner.Run(context.Background(), buildDefinition(), tagEvent("v2.0"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Conclusion != schema.ConclusionFailure {
		t.Errorf("conclusion = %q, want failure", result.Conclusion)
	}
	if result.Release == nil {
		t.Fatal("partial failure must still publish the success subset")
	}
	if result.Release.Bundles != 2 {
		t.Errorf("release bundles = %d, want 2", result.Release.Bundles)
	}

	var failedJob *schema.JobResult
	for i := range result.Jobs {
		if result.Jobs[i].Variant == "linux-arm64" {
			failedJob = &result.Jobs[i]
		}
	}
	if failedJob == nil || failedJob.Outcome != schema.OutcomeFailed {
		t.Fatalf("arm64 job = %+v", failedJob)
	}
	if failedJob.FailedStep != "compile" {
		t.Errorf("FailedStep = %q", failedJob.FailedStep)
	}
	if failedJob.ArtifactFiles != 0 {
		t.Error("failed job must not collect artifacts")
	}
}

func TestCacheHitOnSecondRun(t *testing.T) {
	t.Parallel()
	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	definition := buildDefinition()
	definition.Jobs[0].Variants = definition.Jobs[0].Variants[:1]
	definition.Jobs[0].Cache = &schema.CacheSpec{
		Paths:  []string{"dist"},
		Inputs: []string{"lockfile"},
	}

	runner, _ := newTestRunner(t, func(config *Config) {
		config.Store = store
	})

	first, err := runner.Run(context.Background(), definition, pushEvent())
	if err != nil {
		t.Fatal(err)
	}
	if first.Jobs[0].CacheHit {
		t.Error("first run must be a cache miss")
	}
	if first.Jobs[0].CacheKey == "" {
		t.Fatal("cache key not derived")
	}

	second, err := runner.Run(context.Background(), definition, pushEvent())
	if err != nil {
		t.Fatal(err)
	}
	if !second.Jobs[0].CacheHit {
		t.Error("second run with identical inputs must hit")
	}
	if second.Jobs[0].CacheKey != first.Jobs[0].CacheKey {
		t.Errorf("cache key changed: %q vs %q", second.Jobs[0].CacheKey, first.Jobs[0].CacheKey)
	}
}

func TestZeroArtifactMatchesWarns(t *testing.T) {
	t.Parallel()
	definition := buildDefinition()
	definition.Jobs[0].Variants = definition.Jobs[0].Variants[:1]
	definition.Jobs[0].Artifacts = []string{"missing/**"}

	runner, _ := newTestRunner(t, nil)
	result, err := runner.Run(context.Background(), definition, pushEvent())
	if err != nil {
		t.Fatal(err)
	}

	if result.Conclusion != schema.ConclusionSuccess {
		t.Errorf("conclusion = %q, want success under warn policy", result.Conclusion)
	}
	if result.Jobs[0].ArtifactFiles != 0 {
		t.Errorf("artifact files = %d", result.Jobs[0].ArtifactFiles)
	}
	found := false
	for _, warning := range result.Warnings {
		if strings.Contains(warning, "no artifacts matched") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing zero-match warning in %v", result.Warnings)
	}
}

func TestZeroArtifactMatchesFailPolicy(t *testing.T) {
	t.Parallel()
	definition := buildDefinition()
	definition.Jobs[0].Variants = definition.Jobs[0].Variants[:1]
	definition.Jobs[0].Artifacts = []string{"missing/**"}
	definition.Artifacts.OnMissing = schema.MissingFail

	runner, _ := newTestRunner(t, nil)
	result, err := runner.Run(context.Background(), definition, pushEvent())
	if err != nil {
		t.Fatal(err)
	}

	if result.Conclusion != schema.ConclusionFailure {
		t.Errorf("conclusion = %q, want failure under fail policy", result.Conclusion)
	}
	if result.Jobs[0].Outcome != schema.OutcomeFailed {
		t.Errorf("outcome = %q", result.Jobs[0].Outcome)
	}
	if !strings.Contains(result.Jobs[0].Error, "matched no files") {
		t.Errorf("error = %q", result.Jobs[0].Error)
	}
}

func TestGuardsAndFailFast(t *testing.T) {
	t.Parallel()
	definition := buildDefinition()
	definition.Jobs[0].Variants = definition.Jobs[0].Variants[:1]
	definition.Jobs[0].Artifacts = nil
	definition.Jobs[0].Steps = []schema.Step{
		{Name: "setup", Run: "true"},
		{Name: "compile", Run: "make build"},
		{Name: "test", Run: "make test"},
		{Name: "cleanup", Run: "rm -rf tmp", When: schema.WhenAlways},
		{Name: "report", Run: "echo ${FAILED_STEP}", When: schema.WhenOnFailure},
	}

	runner, provisioner := newTestRunner(t, nil)
	provisioner.exec = func(spec provision.Spec, command provision.Command) (int, error) {
		if command.Script == "make build" {
			return 1, nil
		}
		return 0, nil
	}

	result, err := runner.Run(context.Background(), definition, pushEvent())
	if err != nil {
		t.Fatal(err)
	}

	job := result.Jobs[0]
	if job.Outcome != schema.OutcomeFailed || job.FailedStep != "compile" {
		t.Fatalf("job = %+v", job)
	}

	wantStatuses := map[string]string{
		"setup":   schema.StepOK,
		"compile": schema.StepFailed,
		"test":    schema.StepSkipped,
		"cleanup": schema.StepOK,
		"report":  schema.StepOK,
	}
	if len(job.Steps) != len(wantStatuses) {
		t.Fatalf("len(Steps) = %d, want %d", len(job.Steps), len(wantStatuses))
	}
	for _, step := range job.Steps {
		if step.Status != wantStatuses[step.Name] {
			t.Errorf("step %s status = %q, want %q", step.Name, step.Status, wantStatuses[step.Name])
		}
	}

	// The on_failure step sees the failed step in both the expanded
	// command and its environment.
	commands := provisioner.commandsFor("build/linux-amd64")
	report := commands[len(commands)-1]
	if report.Script != "echo compile" {
		t.Errorf("report script = %q, want FAILED_STEP expanded", report.Script)
	}
	if report.Env["FAILED_STEP"] != "compile" {
		t.Errorf("report env FAILED_STEP = %q", report.Env["FAILED_STEP"])
	}
	if !strings.Contains(report.Env["FAILED_ERROR"], "exit status 1") {
		t.Errorf("report env FAILED_ERROR = %q", report.Env["FAILED_ERROR"])
	}
}

func TestOptionalStepFailureKeepsJobGreen(t *testing.T) {
	t.Parallel()
	definition := buildDefinition()
	definition.Jobs[0].Variants = definition.Jobs[0].Variants[:1]
	definition.Jobs[0].Artifacts = nil
	definition.Jobs[0].Steps = []schema.Step{
		{Name: "lint", Run: "make lint", Optional: true},
		{Name: "compile", Run: "true"},
	}

	runner, provisioner := newTestRunner(t, nil)
	provisioner.exec = func(spec provision.Spec, command provision.Command) (int, error) {
		if command.Script == "make lint" {
			return 1, nil
		}
		return 0, nil
	}

	result, err := runner.Run(context.Background(), definition, pushEvent())
	if err != nil {
		t.Fatal(err)
	}
	job := result.Jobs[0]
	if job.Outcome != schema.OutcomeSuccess {
		t.Fatalf("outcome = %q: %s", job.Outcome, job.Error)
	}
	if job.Steps[0].Status != schema.StepFailedOptional {
		t.Errorf("lint status = %q", job.Steps[0].Status)
	}
	if job.Steps[1].Status != schema.StepOK {
		t.Errorf("compile status = %q", job.Steps[1].Status)
	}
}

func TestPublishOnlyJobSkippedOnPush(t *testing.T) {
	t.Parallel()
	definition := buildDefinition()
	definition.Jobs = append(definition.Jobs, schema.JobSpec{
		Name:        "announce",
		PublishOnly: true,
		Variants:    []schema.Variant{{Name: "default"}},
		Steps:       []schema.Step{{Name: "notify", Run: "notify-release"}},
	})

	runner, provisioner := newTestRunner(t, nil)
	result, err := runner.Run(context.Background(), definition, pushEvent())
	if err != nil {
		t.Fatal(err)
	}

	if result.Conclusion != schema.ConclusionSuccess {
		t.Errorf("conclusion = %q", result.Conclusion)
	}
	announce := result.Jobs[len(result.Jobs)-1]
	if announce.Job != "announce" || announce.Outcome != schema.OutcomeSkipped {
		t.Fatalf("announce = %+v", announce)
	}
	if commands := provisioner.commandsFor("announce/default"); len(commands) != 0 {
		t.Errorf("skipped job executed %d commands", len(commands))
	}
}

func TestTagWithoutFullBuildRunsPublishOnlyJobsOnly(t *testing.T) {
	t.Parallel()
	fullBuild := false
	definition := buildDefinition()
	definition.Triggers.Tag.FullBuild = &fullBuild
	definition.Jobs[0].Artifacts = nil
	definition.Jobs = append(definition.Jobs, schema.JobSpec{
		Name:        "assemble",
		PublishOnly: true,
		Variants:    []schema.Variant{{Name: "default"}},
		Steps:       []schema.Step{{Name: "gather", Run: "true"}},
	})

	runner, _ := newTestRunner(t, nil)
	result, err := runner.Run(context.Background(), definition, tagEvent("v3.0"))
	if err != nil {
		t.Fatal(err)
	}

	for _, job := range result.Jobs {
		want := schema.OutcomeSkipped
		if job.Job == "assemble" {
			want = schema.OutcomeSuccess
		}
		if job.Outcome != want {
			t.Errorf("%s outcome = %q, want %q", job.InstanceName(), job.Outcome, want)
		}
	}
}

func TestProvisionFailureIsolatedToInstance(t *testing.T) {
	t.Parallel()
	runner, provisioner := newTestRunner(t, nil)
	provisioner.failFor = map[string]error{
		"build/darwin-arm64": fmt.Errorf("image not found"),
	}

	result, err := runner.Run(context.Background(), buildDefinition(), pushEvent())
	if err != nil {
		t.Fatal(err)
	}

	if result.Conclusion != schema.ConclusionFailure {
		t.Errorf("conclusion = %q", result.Conclusion)
	}
	for _, job := range result.Jobs {
		want := schema.OutcomeSuccess
		if job.Variant == "darwin-arm64" {
			want = schema.OutcomeFailed
		}
		if job.Outcome != want {
			t.Errorf("%s outcome = %q, want %q", job.InstanceName(), job.Outcome, want)
		}
	}
}

func TestUnmatchedBranchSkipsRun(t *testing.T) {
	t.Parallel()
	runner, provisioner := newTestRunner(t, nil)

	event := schema.NewEvent(schema.EventPush, "refs/heads/feature/x", "abc1234")
	result, err := runner.Run(context.Background(), buildDefinition(), event)
	if err != nil {
		t.Fatal(err)
	}

	if result.Conclusion != schema.ConclusionSkipped {
		t.Errorf("conclusion = %q", result.Conclusion)
	}
	if result.Reason == "" {
		t.Error("skipped run must carry a reason")
	}
	if len(result.Jobs) != 0 {
		t.Errorf("skipped run expanded %d jobs", len(result.Jobs))
	}
	provisioner.mu.Lock()
	defer provisioner.mu.Unlock()
	if len(provisioner.specs) != 0 {
		t.Error("skipped run provisioned environments")
	}
}

func TestFailureHookDiagnosticsAndTunnel(t *testing.T) {
	t.Parallel()
	broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request tunnel.SessionRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("decoding session request: %v", err)
		}
		if request.Instance != "build/linux-amd64" || request.FailedStep != "compile" {
			t.Errorf("session request = %+v", request)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(tunnel.Session{ID: "s1", URL: "https://debug.example.com/s1"})
	}))
	defer broker.Close()

	definition := buildDefinition()
	definition.Jobs[0].Variants = definition.Jobs[0].Variants[:1]
	definition.Jobs[0].Artifacts = nil
	definition.Jobs[0].Steps = []schema.Step{{Name: "compile", Run: "make build"}}
	definition.Jobs[0].Hook = &schema.HookSpec{
		Diagnostics: []string{"*.log"},
		DebugTunnel: true,
	}

	runner, provisioner := newTestRunner(t, func(config *Config) {
		config.Tunnel = tunnel.NewClient(broker.URL, "token")
	})
	provisioner.exec = func(spec provision.Spec, command provision.Command) (int, error) {
		// Leave a diagnostic behind before failing.
		if err := os.WriteFile(filepath.Join(spec.Workspace, "build.log"), []byte("boom"), 0o644); err != nil {
			t.Error(err)
		}
		return 1, nil
	}

	result, err := runner.Run(context.Background(), definition, pushEvent())
	if err != nil {
		t.Fatal(err)
	}

	job := result.Jobs[0]
	if job.Outcome != schema.OutcomeFailed {
		t.Fatalf("outcome = %q", job.Outcome)
	}
	if job.DiagnosticFiles != 1 {
		t.Errorf("DiagnosticFiles = %d, want 1", job.DiagnosticFiles)
	}
	if job.TunnelURL != "https://debug.example.com/s1" {
		t.Errorf("TunnelURL = %q", job.TunnelURL)
	}
}

func TestSecretMaskingInResultsAndEvents(t *testing.T) {
	t.Parallel()
	var events []Event
	var eventsMu sync.Mutex

	definition := buildDefinition()
	definition.Jobs[0].Variants = definition.Jobs[0].Variants[:1]
	definition.Jobs[0].Artifacts = nil
	definition.Jobs[0].Steps = []schema.Step{
		{Name: "deploy", Run: "deploy --token ${DEPLOY_TOKEN}"},
	}
	definition.Variables = map[string]schema.Variable{
		"DEPLOY_TOKEN": {Required: true},
	}

	runner, provisioner := newTestRunner(t, func(config *Config) {
		config.Secrets = map[string]string{"DEPLOY_TOKEN": "hunter2secret"}
		config.Sink = SinkFunc(func(event Event) {
			eventsMu.Lock()
			events = append(events, event)
			eventsMu.Unlock()
		})
	})
	provisioner.exec = func(spec provision.Spec, command provision.Command) (int, error) {
		if command.Script != "deploy --token hunter2secret" {
			t.Errorf("script = %q, secret not expanded", command.Script)
		}
		if _, leaked := command.Env["DEPLOY_TOKEN"]; leaked {
			t.Error("secret leaked into process environment")
		}
		return -1, fmt.Errorf("deploy rejected token hunter2secret")
	}

	result, err := runner.Run(context.Background(), definition, pushEvent())
	if err != nil {
		t.Fatal(err)
	}

	if strings.Contains(result.Jobs[0].Error, "hunter2secret") {
		t.Errorf("secret in job error: %s", result.Jobs[0].Error)
	}
	if !strings.Contains(result.Jobs[0].Error, "***") {
		t.Errorf("masked placeholder missing: %s", result.Jobs[0].Error)
	}
	eventsMu.Lock()
	defer eventsMu.Unlock()
	for _, event := range events {
		if strings.Contains(event.Detail, "hunter2secret") {
			t.Errorf("secret in %s event detail: %s", event.Kind, event.Detail)
		}
	}
}

func TestRequiredVariableMissing(t *testing.T) {
	t.Parallel()
	definition := buildDefinition()
	definition.Variables = map[string]schema.Variable{
		"SIGNING_KEY": {Required: true},
	}

	runner, _ := newTestRunner(t, nil)
	if _, err := runner.Run(context.Background(), definition, pushEvent()); err == nil {
		t.Fatal("expected error for missing required variable")
	}
}

func TestInvalidDefinitionRejected(t *testing.T) {
	t.Parallel()
	runner, _ := newTestRunner(t, nil)
	definition := &schema.Pipeline{Name: "broken"}
	if _, err := runner.Run(context.Background(), definition, pushEvent()); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestEmptyReleaseStillPublishesWithWarning(t *testing.T) {
	t.Parallel()
	releasesDir := t.TempDir()
	definition := buildDefinition()
	definition.Jobs[0].Variants = definition.Jobs[0].Variants[:1]
	definition.Jobs[0].Artifacts = nil

	runner, _ := newTestRunner(t, func(config *Config) {
		config.ReleaseHost = &release.LocalHost{Root: releasesDir}
	})
	result, err := runner.Run(context.Background(), definition, tagEvent("v9.0"))
	if err != nil {
		t.Fatal(err)
	}

	if result.Conclusion != schema.ConclusionSuccess {
		t.Fatalf("conclusion = %q", result.Conclusion)
	}
	if result.Release == nil || result.Release.Error != "" {
		t.Fatalf("release = %+v", result.Release)
	}
	if result.Release.Bundles != 0 {
		t.Errorf("bundles = %d, want 0", result.Release.Bundles)
	}
	found := false
	for _, warning := range result.Warnings {
		if strings.Contains(warning, "no artifact bundles") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing empty-release warning in %v", result.Warnings)
	}
	if _, err := os.Stat(filepath.Join(releasesDir, "v9.0", "release.json")); err != nil {
		t.Errorf("release record missing: %v", err)
	}
}

func TestWorkspaceIsolationBetweenInstances(t *testing.T) {
	t.Parallel()
	runner, provisioner := newTestRunner(t, nil)

	var workspaces sync.Map
	provisioner.exec = func(spec provision.Spec, command provision.Command) (int, error) {
		workspaces.Store(spec.Instance, spec.Workspace)
		return 0, nil
	}

	if _, err := runner.Run(context.Background(), buildDefinition(), pushEvent()); err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	workspaces.Range(func(_, value any) bool {
		path := value.(string)
		if seen[path] {
			t.Errorf("workspace %s shared between instances", path)
		}
		seen[path] = true
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("workspace %s not cleaned up", path)
		}
		return true
	})
	if len(seen) != 3 {
		t.Errorf("distinct workspaces = %d, want 3", len(seen))
	}
}
