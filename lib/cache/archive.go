// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// packTree archives the named workspace-relative paths into a tar
// stream. Directories are walked recursively; regular files, symlinks,
// and directory entries (for empty directories) are preserved with
// their modes. Paths that do not exist are skipped: a build that never
// produced a cached directory still gets its other paths saved.
//
// Returns the archive bytes and the number of regular files packed.
func packTree(workspace string, paths []string) ([]byte, int, error) {
	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)
	fileCount := 0

	for _, root := range paths {
		absolute := filepath.Join(workspace, filepath.FromSlash(root))
		if _, err := os.Lstat(absolute); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		err := filepath.WalkDir(absolute, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			info, err := entry.Info()
			if err != nil {
				return err
			}

			relative, err := filepath.Rel(workspace, path)
			if err != nil {
				return err
			}

			link := ""
			if entry.Type()&fs.ModeSymlink != 0 {
				if link, err = os.Readlink(path); err != nil {
					return err
				}
			}

			header, err := tar.FileInfoHeader(info, link)
			if err != nil {
				return err
			}
			header.Name = filepath.ToSlash(relative)
			if entry.IsDir() {
				header.Name += "/"
			}

			if err := writer.WriteHeader(header); err != nil {
				return err
			}
			if !entry.Type().IsRegular() {
				return nil
			}

			file, err := os.Open(path)
			if err != nil {
				return err
			}
			_, err = io.Copy(writer, file)
			file.Close()
			if err != nil {
				return fmt.Errorf("packing %s: %w", path, err)
			}
			fileCount++
			return nil
		})
		if err != nil {
			return nil, 0, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, 0, err
	}
	return buffer.Bytes(), fileCount, nil
}

// unpackTree extracts a tar archive produced by packTree into the
// workspace. Entry names are checked against workspace escape before
// any write. Existing files are overwritten; a partially failed
// extraction leaves whatever was already written, which the build
// treats like any stale workspace content.
func unpackTree(workspace string, data []byte) error {
	reader := tar.NewReader(bytes.NewReader(data))

	for {
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		name := filepath.FromSlash(header.Name)
		if !filepath.IsLocal(name) {
			return fmt.Errorf("archive entry %q escapes the workspace", header.Name)
		}
		target := filepath.Join(workspace, name)
		mode := header.FileInfo().Mode().Perm()

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, mode); err != nil {
				return err
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			file, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
			if err != nil {
				return err
			}
			_, err = io.Copy(file, reader)
			if closeErr := file.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			// Replace rather than fail when restoring over a previous
			// extraction.
			os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}

		default:
			// Device nodes, FIFOs, and hard links never belong in a
			// build cache; skip them.
		}
	}
}
