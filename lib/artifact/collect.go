// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kiln-build/kiln/lib/glob"
)

// CollectError reports that a job's artifact patterns matched nothing
// and the pipeline's policy is "fail". Under the default "warn" policy
// the collector returns an empty bundle instead.
type CollectError struct {
	// Instance is the "<job>/<variant>" name.
	Instance string

	// Patterns are the patterns that matched nothing.
	Patterns []string
}

func (e *CollectError) Error() string {
	return fmt.Sprintf("artifact collection for %s: patterns %v matched no files", e.Instance, e.Patterns)
}

// Collect gathers the workspace files matching the patterns into a
// bundle for the given instance. Paths in the returned bundle are
// absolute (rooted in the workspace); names are workspace-relative
// and sorted.
//
// A zero-match result returns an empty bundle, not an error: the
// caller applies the pipeline's on_missing policy and builds a
// CollectError itself when the policy is "fail". I/O failures while
// walking or hashing are returned as ordinary errors.
func Collect(workspace, job, variant string, patterns []string) (*Bundle, error) {
	bundle := &Bundle{
		Version: BundleVersion,
		Job:     job,
		Variant: variant,
	}
	if len(patterns) == 0 {
		return bundle, nil
	}

	matches, err := glob.Walk(workspace, patterns)
	if err != nil {
		return nil, fmt.Errorf("matching artifact patterns: %w", err)
	}

	for _, name := range matches {
		path := filepath.Join(workspace, filepath.FromSlash(name))
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat artifact %s: %w", name, err)
		}
		hash, err := FileHash(path)
		if err != nil {
			return nil, err
		}
		bundle.Files = append(bundle.Files, File{
			Name: name,
			Path: path,
			Size: info.Size(),
			Ref:  FormatRef(hash),
		})
	}

	return bundle, nil
}

// Stage copies the bundle's files into dir and repoints each Path at
// the staged copy. Collection happens inside the instance workspace,
// which is removed once the instance settles; a staged bundle keeps
// its content readable for the publisher, which runs only after every
// instance has finished.
func (b *Bundle) Stage(dir string) error {
	for i := range b.Files {
		file := &b.Files[i]
		destination := filepath.Join(dir, filepath.FromSlash(file.Name))
		if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
			return fmt.Errorf("staging %s: %w", file.Name, err)
		}
		if err := copyFile(destination, file.Path); err != nil {
			return fmt.Errorf("staging %s: %w", file.Name, err)
		}
		file.Path = destination
	}
	return nil
}

// copyFile copies src to dst, truncating any existing file.
func copyFile(dst, src string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		return err
	}
	return destination.Close()
}

// CollectDiagnostics gathers a failed instance's diagnostic files.
// Identical to Collect except the bundle is marked diagnostic, which
// excludes it from release assembly. Zero matches are normal here —
// the failure may have happened before any diagnostics existed.
func CollectDiagnostics(workspace, job, variant string, patterns []string) (*Bundle, error) {
	bundle, err := Collect(workspace, job, variant, patterns)
	if err != nil {
		return nil, err
	}
	bundle.Diagnostic = true
	return bundle, nil
}
