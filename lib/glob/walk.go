// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package glob

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Walk collects the regular files under root whose root-relative
// slash path matches any of the patterns. Returned paths are relative
// to root, slash-separated, and sorted. Matching nothing is not an
// error: the caller decides what an empty result means.
//
// Symlinks are not followed; a symlink that matches a pattern is
// skipped. Directories never match, only the files inside them.
func Walk(root string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("glob root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("glob root %s is not a directory", root)
	}

	var matches []string
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			// A directory that disappeared mid-walk or is unreadable
			// cannot contain matches worth failing the walk for.
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !entry.Type().IsRegular() {
			return nil
		}

		relative, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(relative)
		if MatchAny(patterns, name) {
			matches = append(matches, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Strings(matches)
	return matches, nil
}
