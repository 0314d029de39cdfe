// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"strings"
	"testing"
)

func validRunResult() RunResult {
	return RunResult{
		Version:     RunResultVersion,
		Pipeline:    "release-build",
		Event:       Event{Kind: EventTag, Ref: "refs/tags/v1.0"},
		Publish:     true,
		Tag:         "v1.0",
		Conclusion:  ConclusionSuccess,
		StartedAt:   "2026-08-24T12:00:00Z",
		CompletedAt: "2026-08-24T12:05:00Z",
		DurationMS:  300000,
		Jobs: []JobResult{
			{
				Job:     "build",
				Variant: "linux",
				Outcome: OutcomeSuccess,
				Steps: []StepResult{
					{Name: "compile", Status: StepOK, DurationMS: 120000},
				},
			},
		},
	}
}

func TestRunResultValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*RunResult)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*RunResult) {},
		},
		{
			name:    "zero version",
			mutate:  func(r *RunResult) { r.Version = 0 },
			wantErr: "version must be >= 1",
		},
		{
			name:    "missing pipeline",
			mutate:  func(r *RunResult) { r.Pipeline = "" },
			wantErr: "pipeline is required",
		},
		{
			name:    "invalid event",
			mutate:  func(r *RunResult) { r.Event.Ref = "" },
			wantErr: "ref is required",
		},
		{
			name:    "unknown conclusion",
			mutate:  func(r *RunResult) { r.Conclusion = "partial" },
			wantErr: "unknown conclusion",
		},
		{
			name:    "missing timestamps",
			mutate:  func(r *RunResult) { r.StartedAt = "" },
			wantErr: "started_at is required",
		},
		{
			name: "skipped run needs no timestamps",
			mutate: func(r *RunResult) {
				r.Conclusion = ConclusionSkipped
				r.StartedAt = ""
				r.CompletedAt = ""
				r.Jobs = nil
			},
		},
		{
			name:    "bad job outcome",
			mutate:  func(r *RunResult) { r.Jobs[0].Outcome = "crashed" },
			wantErr: "unknown outcome",
		},
		{
			name:    "bad step status",
			mutate:  func(r *RunResult) { r.Jobs[0].Steps[0].Status = "done" },
			wantErr: "unknown status",
		},
		{
			name:    "missing variant",
			mutate:  func(r *RunResult) { r.Jobs[0].Variant = "" },
			wantErr: "variant is required",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			result := validRunResult()
			test.mutate(&result)
			err := result.Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", test.wantErr)
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Fatalf("Validate() = %q, want it to contain %q", err, test.wantErr)
			}
		})
	}
}

func TestStepResultStatusVocabulary(t *testing.T) {
	t.Parallel()

	for _, status := range []string{StepOK, StepFailed, StepFailedOptional, StepSkipped, StepAborted} {
		result := StepResult{Name: "build", Status: status}
		if err := result.Validate(); err != nil {
			t.Errorf("status %q rejected: %v", status, err)
		}
	}
}

func TestJobResultInstanceName(t *testing.T) {
	t.Parallel()

	result := JobResult{Job: "build", Variant: "linux-alpine"}
	if got := result.InstanceName(); got != "build/linux-alpine" {
		t.Fatalf("InstanceName() = %q, want %q", got, "build/linux-alpine")
	}
}
