// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/kiln-build/kiln/lib/schema"
)

func TestResolveVariables(t *testing.T) {
	t.Parallel()

	declarations := map[string]schema.Variable{
		"TOOLCHAIN": {Default: "stable"},
		"REGION":    {Default: "us-east"},
		"TOKEN":     {Required: true},
	}

	t.Run("defaults apply", func(t *testing.T) {
		t.Parallel()
		resolved, err := ResolveVariables(declarations, map[string]string{"TOKEN": "t0"}, nil)
		if err != nil {
			t.Fatalf("ResolveVariables: %v", err)
		}
		if resolved["TOOLCHAIN"] != "stable" {
			t.Errorf("TOOLCHAIN = %q, want default", resolved["TOOLCHAIN"])
		}
	})

	t.Run("environ overrides defaults", func(t *testing.T) {
		t.Parallel()
		environ := func(name string) string {
			if name == "TOOLCHAIN" {
				return "nightly"
			}
			return ""
		}
		resolved, err := ResolveVariables(declarations, map[string]string{"TOKEN": "t0"}, environ)
		if err != nil {
			t.Fatalf("ResolveVariables: %v", err)
		}
		if resolved["TOOLCHAIN"] != "nightly" {
			t.Errorf("TOOLCHAIN = %q, want environ value", resolved["TOOLCHAIN"])
		}
	})

	t.Run("provided overrides environ", func(t *testing.T) {
		t.Parallel()
		environ := func(string) string { return "from-env" }
		provided := map[string]string{"TOKEN": "t0", "REGION": "eu-west"}
		resolved, err := ResolveVariables(declarations, provided, environ)
		if err != nil {
			t.Fatalf("ResolveVariables: %v", err)
		}
		if resolved["REGION"] != "eu-west" {
			t.Errorf("REGION = %q, want provided value", resolved["REGION"])
		}
	})

	t.Run("undeclared provided values pass through", func(t *testing.T) {
		t.Parallel()
		provided := map[string]string{"TOKEN": "t0", "KILN_EVENT": "push"}
		resolved, err := ResolveVariables(declarations, provided, nil)
		if err != nil {
			t.Fatalf("ResolveVariables: %v", err)
		}
		if resolved["KILN_EVENT"] != "push" {
			t.Errorf("KILN_EVENT = %q, want pass-through", resolved["KILN_EVENT"])
		}
	})

	t.Run("undeclared environ names ignored", func(t *testing.T) {
		t.Parallel()
		environ := func(name string) string {
			if name == "PATH" {
				t.Error("looked up undeclared name PATH")
			}
			return ""
		}
		_, err := ResolveVariables(declarations, map[string]string{"TOKEN": "t0"}, environ)
		if err != nil {
			t.Fatalf("ResolveVariables: %v", err)
		}
	})

	t.Run("required missing", func(t *testing.T) {
		t.Parallel()
		missing := map[string]schema.Variable{
			"ZED":   {Required: true},
			"ALPHA": {Required: true},
		}
		_, err := ResolveVariables(missing, nil, nil)
		if err == nil {
			t.Fatal("expected error for missing required variables")
		}
		// Sorted so the message is deterministic.
		if !strings.Contains(err.Error(), "ALPHA, ZED") {
			t.Errorf("error = %v, want sorted names", err)
		}
	})

	t.Run("required satisfied by environ", func(t *testing.T) {
		t.Parallel()
		environ := func(name string) string {
			if name == "TOKEN" {
				return "from-env"
			}
			return ""
		}
		resolved, err := ResolveVariables(declarations, nil, environ)
		if err != nil {
			t.Fatalf("ResolveVariables: %v", err)
		}
		if resolved["TOKEN"] != "from-env" {
			t.Errorf("TOKEN = %q", resolved["TOKEN"])
		}
	})
}

func TestExpand(t *testing.T) {
	t.Parallel()

	variables := map[string]string{
		"VERSION": "1.84",
		"TARGET":  "x86_64-linux",
		"empty":   "",
	}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{name: "no references", input: "make build", want: "make build"},
		{name: "single", input: "rust:${VERSION}", want: "rust:1.84"},
		{
			name:  "multiple",
			input: "cargo build --target ${TARGET} --config v=${VERSION}",
			want:  "cargo build --target x86_64-linux --config v=1.84",
		},
		{name: "empty value", input: "x${empty}y", want: "xy"},
		{name: "bare dollar untouched", input: "echo $HOME ${VERSION}", want: "echo $HOME 1.84"},
		{name: "unbraced untouched", input: "echo $VERSION", want: "echo $VERSION"},
		{
			name:    "unresolved",
			input:   "deploy ${STAGE} ${CLUSTER}",
			wantErr: "unresolved pipeline variables: STAGE, CLUSTER",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			got, err := Expand(test.input, variables)
			if test.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", test.wantErr)
				}
				if !strings.Contains(err.Error(), test.wantErr) {
					t.Errorf("error = %v, want %q", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expand: %v", err)
			}
			if got != test.want {
				t.Errorf("Expand(%q) = %q, want %q", test.input, got, test.want)
			}
		})
	}
}

func TestExpandStep(t *testing.T) {
	t.Parallel()

	variables := map[string]string{"VERSION": "2.1", "KILN_JOB": "build"}

	t.Run("env then run", func(t *testing.T) {
		t.Parallel()
		step := schema.Step{
			Name: "package",
			Run:  "tar czf ${ARCHIVE} dist/",
			Env:  map[string]string{"ARCHIVE": "widget-${VERSION}.tar.gz"},
		}
		expanded, err := ExpandStep(step, variables)
		if err != nil {
			t.Fatalf("ExpandStep: %v", err)
		}
		if expanded.Run != "tar czf widget-2.1.tar.gz dist/" {
			t.Errorf("Run = %q", expanded.Run)
		}
		if expanded.Env["ARCHIVE"] != "widget-2.1.tar.gz" {
			t.Errorf("Env[ARCHIVE] = %q", expanded.Env["ARCHIVE"])
		}
		// Input untouched.
		if step.Run != "tar czf ${ARCHIVE} dist/" {
			t.Errorf("input step mutated: %q", step.Run)
		}
	})

	t.Run("env does not self reference", func(t *testing.T) {
		t.Parallel()
		step := schema.Step{
			Name: "bad",
			Run:  "true",
			Env:  map[string]string{"A": "${B}", "B": "x"},
		}
		_, err := ExpandStep(step, variables)
		if err == nil {
			t.Fatal("expected error: step env must not reference sibling env entries")
		}
		if !strings.Contains(err.Error(), `step "bad" env[A]`) {
			t.Errorf("error = %v, want env context", err)
		}
	})

	t.Run("unresolved run reference", func(t *testing.T) {
		t.Parallel()
		step := schema.Step{Name: "deploy", Run: "deploy ${STAGE}"}
		_, err := ExpandStep(step, variables)
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), `step "deploy" run`) {
			t.Errorf("error = %v, want run context", err)
		}
	})

	t.Run("nil env stays nil", func(t *testing.T) {
		t.Parallel()
		expanded, err := ExpandStep(schema.Step{Name: "plain", Run: "make"}, variables)
		if err != nil {
			t.Fatalf("ExpandStep: %v", err)
		}
		if expanded.Env != nil {
			t.Errorf("Env = %v, want nil", expanded.Env)
		}
	})
}

func TestExpandPatterns(t *testing.T) {
	t.Parallel()

	variables := map[string]string{"TARGET": "release"}

	got, err := ExpandPatterns([]string{"target/${TARGET}/*.so", "docs/**"}, variables)
	if err != nil {
		t.Fatalf("ExpandPatterns: %v", err)
	}
	if len(got) != 2 || got[0] != "target/release/*.so" || got[1] != "docs/**" {
		t.Errorf("ExpandPatterns = %v", got)
	}

	if got, err := ExpandPatterns(nil, variables); err != nil || got != nil {
		t.Errorf("ExpandPatterns(nil) = %v, %v; want nil, nil", got, err)
	}

	if _, err := ExpandPatterns([]string{"${MISSING}/*"}, variables); err == nil {
		t.Error("expected error for unresolved pattern variable")
	}
}

func TestEventVariables(t *testing.T) {
	t.Parallel()

	t.Run("push", func(t *testing.T) {
		t.Parallel()
		event := schema.NewEvent(schema.EventPush, "refs/heads/main", "abc123")
		got := EventVariables("widget", event)
		want := map[string]string{
			VarPipeline: "widget",
			VarEvent:    "push",
			VarRef:      "refs/heads/main",
			VarShortRef: "main",
			VarCommit:   "abc123",
			VarTag:      "",
		}
		for name, value := range want {
			if got[name] != value {
				t.Errorf("%s = %q, want %q", name, got[name], value)
			}
		}
	})

	t.Run("tag", func(t *testing.T) {
		t.Parallel()
		event := schema.NewEvent(schema.EventPush, "refs/tags/v2.0", "def456")
		got := EventVariables("widget", event)
		if got[VarEvent] != "tag" {
			t.Errorf("%s = %q, want %q", VarEvent, got[VarEvent], "tag")
		}
		if got[VarTag] != "v2.0" {
			t.Errorf("%s = %q, want %q", VarTag, got[VarTag], "v2.0")
		}
		if got[VarShortRef] != "v2.0" {
			t.Errorf("%s = %q, want %q", VarShortRef, got[VarShortRef], "v2.0")
		}
	})
}

func TestFailureVariables(t *testing.T) {
	t.Parallel()

	got := FailureVariables("compile", errors.New("exit status 2"))
	if got[VarFailedStep] != "compile" {
		t.Errorf("%s = %q", VarFailedStep, got[VarFailedStep])
	}
	if got[VarFailedError] != "exit status 2" {
		t.Errorf("%s = %q", VarFailedError, got[VarFailedError])
	}

	got = FailureVariables("compile", nil)
	if got[VarFailedError] != "" {
		t.Errorf("%s = %q, want empty for nil error", VarFailedError, got[VarFailedError])
	}
}
