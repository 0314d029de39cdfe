// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SweepStats reports what a sweep found and removed.
type SweepStats struct {
	// Scanned is the number of entries examined.
	Scanned int

	// Removed is the number of entries deleted.
	Removed int

	// FreedBytes is the total size of the deleted entries.
	FreedBytes int64
}

// staleTempAge is how long an orphaned temp file (from a writer that
// died mid-save) survives before a sweep removes it. Long enough that
// no live writer can still be filling it.
const staleTempAge = time.Hour

// Sweep removes entries not used since the cutoff. Restore refreshes
// an entry's modification time, so mtime approximates recency of use
// and the sweep behaves as least-recently-used eviction. Orphaned temp
// files older than an hour are removed as well.
//
// When dryRun is set, nothing is deleted; the stats report what a real
// sweep would remove.
func (s *Store) Sweep(maxAge time.Duration, now time.Time, dryRun bool) (SweepStats, error) {
	cutoff := now.Add(-maxAge)
	var stats SweepStats

	err := filepath.WalkDir(s.entries, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}

		info, err := entry.Info()
		if err != nil {
			// Entry vanished mid-walk (concurrent sweep or remove).
			return nil
		}

		if strings.HasSuffix(entry.Name(), ".tmp") {
			if now.Sub(info.ModTime()) > staleTempAge && !dryRun {
				_ = os.Remove(path)
			}
			return nil
		}

		stats.Scanned++
		if info.ModTime().After(cutoff) {
			return nil
		}

		if !dryRun {
			if err := os.Remove(path); err != nil {
				// Entry vanished between stat and remove; don't count
				// it as freed.
				return nil
			}
		}
		stats.Removed++
		stats.FreedBytes += info.Size()
		return nil
	})
	if err != nil {
		return stats, &IOError{Op: "sweep", Err: err}
	}
	return stats, nil
}
