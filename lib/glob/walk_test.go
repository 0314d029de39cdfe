// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package glob

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
)

// writeTree creates the named files (with parent directories) under
// root, each containing its own name.
func writeTree(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestWalk(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root,
		"go.sum",
		"services/api/go.sum",
		"services/api/main.go",
		"target/release/widget",
		"target/release/widget.d",
		"target/debug/widget",
		"docs/readme.md",
	)

	tests := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{
			name:     "doublestar filename",
			patterns: []string{"**/go.sum"},
			want:     []string{"go.sum", "services/api/go.sum"},
		},
		{
			name:     "directory glob",
			patterns: []string{"target/release/*"},
			want:     []string{"target/release/widget", "target/release/widget.d"},
		},
		{
			name:     "multiple patterns deduplicate by first match",
			patterns: []string{"docs/**", "*.md"},
			want:     []string{"docs/readme.md"},
		},
		{
			name:     "no matches",
			patterns: []string{"dist/**"},
			want:     nil,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got, err := Walk(root, test.patterns)
			if err != nil {
				t.Fatalf("Walk: %v", err)
			}
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("Walk(%v) = %v, want %v", test.patterns, got, test.want)
			}
		})
	}
}

func TestWalkEmptyPatterns(t *testing.T) {
	t.Parallel()

	got, err := Walk(t.TempDir(), nil)
	if err != nil || got != nil {
		t.Errorf("Walk(nil patterns) = %v, %v; want nil, nil", got, err)
	}
}

func TestWalkMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := Walk(filepath.Join(t.TempDir(), "absent"), []string{"**"})
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestWalkSkipsSymlinks(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks not reliable on windows")
	}

	root := t.TempDir()
	writeTree(t, root, "real.log")
	if err := os.Symlink(filepath.Join(root, "real.log"), filepath.Join(root, "link.log")); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}

	got, err := Walk(root, []string{"*.log"})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"real.log"}) {
		t.Errorf("Walk = %v, want only the regular file", got)
	}
}
