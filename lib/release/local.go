// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kiln-build/kiln/lib/artifact"
)

// LocalHost publishes releases into a directory tree:
//
//	<root>/<tag>/release.json
//	<root>/<tag>/<job>-<variant>/manifest.cbor
//	<root>/<tag>/<job>-<variant>/<asset files...>
//
// The whole tag directory is staged under a temp name and renamed
// into place, so observers never see a half-published release and a
// retried publish for an existing tag is a no-op that returns the
// existing directory.
type LocalHost struct {
	// Root is the releases directory. Created on first publish.
	Root string
}

// releaseRecord is the release.json summary at the tag root.
type releaseRecord struct {
	Tag         string   `json:"tag"`
	PublishedAt string   `json:"published_at"`
	Bundles     []string `json:"bundles"`
	Assets      int      `json:"assets"`
	TotalBytes  int64    `json:"total_bytes"`
}

func (h *LocalHost) Publish(ctx context.Context, release *Release) (string, error) {
	finalPath := filepath.Join(h.Root, release.Tag)

	// Fast path: the tag is already published. Content under a tag is
	// immutable, so the existing directory is the release.
	if _, err := os.Stat(finalPath); err == nil {
		return finalPath, nil
	}

	if err := os.MkdirAll(h.Root, 0o755); err != nil {
		return "", &PublishError{Tag: release.Tag, Err: err}
	}
	staging, err := os.MkdirTemp(h.Root, "."+release.Tag+"-*")
	if err != nil {
		return "", &PublishError{Tag: release.Tag, Err: err}
	}
	defer os.RemoveAll(staging)

	record := releaseRecord{
		Tag:         release.Tag,
		PublishedAt: time.Now().UTC().Format(time.RFC3339),
		Bundles:     []string{},
		Assets:      release.Assets(),
		TotalBytes:  release.TotalBytes(),
	}

	for _, bundle := range release.Bundles {
		if err := ctx.Err(); err != nil {
			return "", &PublishError{Tag: release.Tag, Err: err}
		}
		bundleDir := filepath.Join(staging, bundle.Job+"-"+bundle.Variant)
		if err := stageBundle(bundleDir, bundle); err != nil {
			return "", &PublishError{Tag: release.Tag, Err: err}
		}
		record.Bundles = append(record.Bundles, bundle.InstanceName())
	}

	recordData, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", &PublishError{Tag: release.Tag, Err: err}
	}
	if err := os.WriteFile(filepath.Join(staging, "release.json"), recordData, 0o644); err != nil {
		return "", &PublishError{Tag: release.Tag, Err: err}
	}

	if err := os.Rename(staging, finalPath); err != nil {
		// A concurrent publisher may have won the rename. Their
		// release has the same content (same tag, same run inputs),
		// so losing the race is success.
		if _, statErr := os.Stat(finalPath); statErr == nil {
			return finalPath, nil
		}
		return "", &PublishError{Tag: release.Tag, Err: err}
	}
	return finalPath, nil
}

// stageBundle copies a bundle's files and manifest into the staging
// directory, preserving the workspace-relative asset paths.
func stageBundle(bundleDir string, bundle *artifact.Bundle) error {
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		return err
	}
	for _, file := range bundle.Files {
		destination := filepath.Join(bundleDir, filepath.FromSlash(file.Name))
		if err := copyFile(destination, file.Path); err != nil {
			return fmt.Errorf("staging %s: %w", file.Name, err)
		}
	}
	manifest, err := bundle.MarshalManifest()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(bundleDir, "manifest.cbor"), manifest, 0o644)
}

// copyFile copies src to dst, creating parent directories.
func copyFile(dst, src string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
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
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return destination.Close()
}
