// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeFile creates a file (and parent directories) under root.
func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCollect(t *testing.T) {
	t.Parallel()

	workspace := t.TempDir()
	writeFile(t, workspace, "dist/app-linux", "binary one")
	writeFile(t, workspace, "dist/app-linux.sha256", "checksum")
	writeFile(t, workspace, "target/debug/junk.o", "not an artifact")

	bundle, err := Collect(workspace, "build", "linux", []string{"dist/**"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if bundle.Job != "build" || bundle.Variant != "linux" {
		t.Errorf("bundle identity = %s/%s, want build/linux", bundle.Job, bundle.Variant)
	}
	if bundle.Diagnostic {
		t.Error("regular collection must not be marked diagnostic")
	}
	if len(bundle.Files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(bundle.Files), bundle.Files)
	}

	// Walk returns sorted paths; the bundle preserves that order.
	if bundle.Files[0].Name != "dist/app-linux" || bundle.Files[1].Name != "dist/app-linux.sha256" {
		t.Errorf("unexpected file order: %q, %q", bundle.Files[0].Name, bundle.Files[1].Name)
	}

	for _, file := range bundle.Files {
		if !strings.HasPrefix(file.Ref, "art-") || len(file.Ref) != len("art-")+12 {
			t.Errorf("file %s: malformed ref %q", file.Name, file.Ref)
		}
		if file.Size <= 0 {
			t.Errorf("file %s: size %d", file.Name, file.Size)
		}
		if !filepath.IsAbs(file.Path) {
			t.Errorf("file %s: path %q is not absolute", file.Name, file.Path)
		}
	}

	if bundle.TotalBytes() != int64(len("binary one")+len("checksum")) {
		t.Errorf("TotalBytes = %d", bundle.TotalBytes())
	}
}

func TestCollectZeroMatchesIsEmptyBundle(t *testing.T) {
	t.Parallel()

	bundle, err := Collect(t.TempDir(), "build", "macos", []string{"dist/**"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(bundle.Files) != 0 {
		t.Errorf("got %d files, want 0", len(bundle.Files))
	}
}

func TestCollectNoPatterns(t *testing.T) {
	t.Parallel()

	workspace := t.TempDir()
	writeFile(t, workspace, "dist/app", "content")

	bundle, err := Collect(workspace, "build", "linux", nil)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(bundle.Files) != 0 {
		t.Errorf("no patterns should collect nothing, got %d files", len(bundle.Files))
	}
}

func TestCollectDiagnostics(t *testing.T) {
	t.Parallel()

	workspace := t.TempDir()
	writeFile(t, workspace, "build.log", "it broke")

	bundle, err := CollectDiagnostics(workspace, "build", "linux", []string{"*.log"})
	if err != nil {
		t.Fatalf("CollectDiagnostics: %v", err)
	}
	if !bundle.Diagnostic {
		t.Error("diagnostics bundle must be marked diagnostic")
	}
	if len(bundle.Files) != 1 {
		t.Fatalf("got %d files, want 1", len(bundle.Files))
	}
}

func TestFileHashDeterminismAndSensitivity(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a", "same content")
	writeFile(t, dir, "b", "same content")
	writeFile(t, dir, "c", "different content")

	hashA, err := FileHash(filepath.Join(dir, "a"))
	if err != nil {
		t.Fatal(err)
	}
	hashB, err := FileHash(filepath.Join(dir, "b"))
	if err != nil {
		t.Fatal(err)
	}
	hashC, err := FileHash(filepath.Join(dir, "c"))
	if err != nil {
		t.Fatal(err)
	}

	if hashA != hashB {
		t.Error("identical content must hash identically")
	}
	if hashA == hashC {
		t.Error("different content must hash differently")
	}
}

func TestManifestRoundTrip(t *testing.T) {
	t.Parallel()

	workspace := t.TempDir()
	writeFile(t, workspace, "dist/app", "payload")

	bundle, err := Collect(workspace, "build", "linux", []string{"dist/*"})
	if err != nil {
		t.Fatal(err)
	}

	data, err := bundle.MarshalManifest()
	if err != nil {
		t.Fatalf("MarshalManifest: %v", err)
	}
	decoded, err := UnmarshalManifest(data)
	if err != nil {
		t.Fatalf("UnmarshalManifest: %v", err)
	}
	if decoded.InstanceName() != "build/linux" {
		t.Errorf("InstanceName = %q", decoded.InstanceName())
	}
	if len(decoded.Files) != 1 || decoded.Files[0].Ref != bundle.Files[0].Ref {
		t.Errorf("decoded manifest does not match original: %+v", decoded.Files)
	}
}

func TestStageSurvivesWorkspaceRemoval(t *testing.T) {
	t.Parallel()

	workspace := t.TempDir()
	writeFile(t, workspace, "dist/app-linux", "binary one")
	writeFile(t, workspace, "dist/nested/report.txt", "report")

	bundle, err := Collect(workspace, "build", "linux", []string{"dist/**"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	staging := t.TempDir()
	if err := bundle.Stage(staging); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := os.RemoveAll(workspace); err != nil {
		t.Fatal(err)
	}

	for _, file := range bundle.Files {
		if !strings.HasPrefix(file.Path, staging) {
			t.Errorf("file %s: path %q not repointed at the staging directory", file.Name, file.Path)
		}
		if _, err := os.Stat(file.Path); err != nil {
			t.Errorf("file %s: staged copy unreadable after workspace removal: %v", file.Name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(staging, "dist", "nested", "report.txt"))
	if err != nil || string(data) != "report" {
		t.Errorf("staged content = %q, err = %v", data, err)
	}
}

func TestCollectErrorMessage(t *testing.T) {
	t.Parallel()

	err := &CollectError{Instance: "build/linux", Patterns: []string{"dist/**"}}
	if !strings.Contains(err.Error(), "build/linux") || !strings.Contains(err.Error(), "dist/**") {
		t.Errorf("unhelpful error: %v", err)
	}
}
